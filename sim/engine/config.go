package engine

import (
	"fmt"
	"math"
)

// Default run parameters
const (
	DefaultWidth           = 10
	DefaultHeight          = 10
	DefaultObstacleDensity = 0.15
	DefaultDirtDensity     = 0.3
	DefaultSensorRange     = 3
	DefaultInitialEnergy   = 600
	DefaultIdleLimit       = 100
)

// RunConfig is everything a host must supply to start a run
type RunConfig struct {
	Name            string   `json:"name" yaml:"name"`
	Description     string   `json:"description,omitempty" yaml:"description,omitempty"`
	Width           int      `json:"width" yaml:"width"`
	Height          int      `json:"height" yaml:"height"`
	ObstacleDensity float64  `json:"obstacle_density" yaml:"obstacle_density"`
	DirtDensity     float64  `json:"dirt_density" yaml:"dirt_density"`
	SensorRange     int      `json:"sensor_range" yaml:"sensor_range"`
	InitialEnergy   float64  `json:"initial_energy" yaml:"initial_energy"`
	IdleLimit       int      `json:"idle_limit" yaml:"idle_limit"`
	Start           Position `json:"start" yaml:"start"`
	Seed            int64    `json:"seed" yaml:"seed"`
	// Layout replaces random placement with a fixed map ('.', '#', '*').
	// Width and Height must match it.
	Layout []string `json:"layout,omitempty" yaml:"layout,omitempty"`
	// CaptureFrames makes the simulation hand a Snapshot to observers every iteration
	CaptureFrames bool    `json:"capture_frames,omitempty" yaml:"capture_frames,omitempty"`
	Tuning        *Tuning `json:"tuning,omitempty" yaml:"tuning,omitempty"`
}

// DefaultRunConfig returns the classic 10x10 setup
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Name:            "classic",
		Description:     "10x10 room, light clutter",
		Width:           DefaultWidth,
		Height:          DefaultHeight,
		ObstacleDensity: DefaultObstacleDensity,
		DirtDensity:     DefaultDirtDensity,
		SensorRange:     DefaultSensorRange,
		InitialEnergy:   DefaultInitialEnergy,
		IdleLimit:       DefaultIdleLimit,
		Start:           Position{X: 3, Y: 3},
		Seed:            1,
	}
}

// EffectiveTuning returns the configured tuning or the defaults
func (c RunConfig) EffectiveTuning() Tuning {
	if c.Tuning == nil {
		return DefaultTuning()
	}
	t := *c.Tuning
	if len(t.Directions) == 0 {
		t.Directions = Compass()
	}
	return t
}

// ValidateRunConfig checks a run configuration before anything is allocated
func ValidateRunConfig(c RunConfig) error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: width and height must be positive, got %dx%d", ErrInvalidSize, c.Width, c.Height)
	}
	if err := validateDensity("obstacle", c.ObstacleDensity); err != nil {
		return err
	}
	if err := validateDensity("dirt", c.DirtDensity); err != nil {
		return err
	}
	if len(c.Layout) > 0 {
		if len(c.Layout) != c.Height {
			return fmt.Errorf("%w: layout must have %d rows to match height, got %d", ErrInvalidSize, c.Height, len(c.Layout))
		}
		for i, row := range c.Layout {
			if len(row) != c.Width {
				return fmt.Errorf("%w: layout row %d must have %d cells to match width, got %d", ErrInvalidSize, i+1, c.Width, len(row))
			}
		}
	}
	if c.Start.X < 0 || c.Start.X >= c.Width || c.Start.Y < 0 || c.Start.Y >= c.Height {
		return fmt.Errorf("%w: (%d,%d) on %dx%d grid", ErrOutOfBoundsStart, c.Start.X, c.Start.Y, c.Width, c.Height)
	}
	if c.SensorRange <= 0 {
		return fmt.Errorf("%w: sensor_range must be positive, got %d", ErrInvalidConfig, c.SensorRange)
	}
	if math.IsNaN(c.InitialEnergy) || c.InitialEnergy <= 0 {
		return fmt.Errorf("%w: initial_energy must be positive, got %v", ErrInvalidConfig, c.InitialEnergy)
	}
	if c.IdleLimit <= 0 {
		return fmt.Errorf("%w: idle_limit must be positive, got %d", ErrInvalidConfig, c.IdleLimit)
	}
	if c.Tuning != nil {
		if err := validateTuning(*c.Tuning); err != nil {
			return err
		}
	}
	return nil
}

func validateTuning(t Tuning) error {
	costs := map[string]float64{
		"move_straight":    t.MoveStraight,
		"move_diagonal":    t.MoveDiagonal,
		"scan":             t.Scan,
		"clean_base":       t.CleanBase,
		"clean_effort_min": t.CleanEffortMin,
		"clean_effort_max": t.CleanEffortMax,
	}
	for name, v := range costs {
		if math.IsNaN(v) || v < 0 {
			return fmt.Errorf("%w: tuning.%s must be non-negative, got %v", ErrInvalidConfig, name, v)
		}
	}
	if t.CleanEffortMin > t.CleanEffortMax {
		return fmt.Errorf("%w: tuning.clean_effort_min %v exceeds clean_effort_max %v", ErrInvalidConfig, t.CleanEffortMin, t.CleanEffortMax)
	}
	return nil
}
