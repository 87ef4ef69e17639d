package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Ratio is a derived metric that may be undefined when its denominator is zero
type Ratio struct {
	Value   float64
	Defined bool
}

func ratio(num, den float64) Ratio {
	if den == 0 {
		return Ratio{}
	}
	return Ratio{Value: num / den, Defined: true}
}

func (r Ratio) scale(k float64) Ratio {
	if !r.Defined {
		return r
	}
	return Ratio{Value: r.Value * k, Defined: true}
}

// String formats the value with four decimals, or "undefined"
func (r Ratio) String() string {
	if !r.Defined {
		return "undefined"
	}
	return strconv.FormatFloat(r.Value, 'f', 4, 64)
}

// MarshalJSON writes undefined ratios as null
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON reads null as an undefined ratio
func (r *Ratio) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = Ratio{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = Ratio{Value: v, Defined: true}
	return nil
}

// MarshalYAML writes undefined ratios as null
func (r Ratio) MarshalYAML() (interface{}, error) {
	if !r.Defined {
		return nil, nil
	}
	return r.Value, nil
}

// UnmarshalYAML reads null as an undefined ratio
func (r *Ratio) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!null" {
		*r = Ratio{}
		return nil
	}
	var v float64
	if err := value.Decode(&v); err != nil {
		return err
	}
	*r = Ratio{Value: v, Defined: true}
	return nil
}

// InitialConditions is what the run started with
type InitialConditions struct {
	DirtySpots int     `json:"dirty_spots" yaml:"dirty_spots"`
	Obstacles  int     `json:"obstacles" yaml:"obstacles"`
	Energy     float64 `json:"energy" yaml:"energy"`
}

// FinalState is what was left when the run stopped
type FinalState struct {
	PendingDirt        int     `json:"pending_dirt" yaml:"pending_dirt"`
	DirtCleaned        int     `json:"dirt_cleaned" yaml:"dirt_cleaned"`
	// TotalSteps is the length of the path history, start cell included
	TotalSteps         int     `json:"total_steps" yaml:"total_steps"`
	UniqueCellsVisited int     `json:"unique_cells_visited" yaml:"unique_cells_visited"`
	ObstacleEncounters int     `json:"obstacle_encounters" yaml:"obstacle_encounters"`
	Energy             float64 `json:"energy" yaml:"energy"`
	EnergyConsumed     float64 `json:"energy_consumed" yaml:"energy_consumed"`
}

// Performance holds the derived ratios. Percentages are on a 0-100 scale.
type Performance struct {
	PercentDirtCleaned       Ratio `json:"percent_dirt_cleaned" yaml:"percent_dirt_cleaned"`
	PercentEnergyConsumed    Ratio `json:"percent_energy_consumed" yaml:"percent_energy_consumed"`
	DirtCleanedPerStep       Ratio `json:"dirt_cleaned_per_step" yaml:"dirt_cleaned_per_step"`
	CoverageEfficiency       Ratio `json:"coverage_efficiency" yaml:"coverage_efficiency"`
	EnergyPerDirtSpot        Ratio `json:"energy_per_dirt_spot" yaml:"energy_per_dirt_spot"`
	EnergyPerStep            Ratio `json:"energy_per_step" yaml:"energy_per_step"`
	PercentEnergyPerDirtSpot Ratio `json:"percent_energy_per_dirt_spot" yaml:"percent_energy_per_dirt_spot"`
	PercentEnergyPerStep     Ratio `json:"percent_energy_per_step" yaml:"percent_energy_per_step"`
}

// Metrics is the post-run performance record
type Metrics struct {
	Initial     InitialConditions `json:"initial_conditions" yaml:"initial_conditions"`
	Final       FinalState        `json:"current_state" yaml:"current_state"`
	Performance Performance       `json:"performance_metrics" yaml:"performance_metrics"`
}

// Evaluate derives the metrics record from the final environment and agent.
// The record is always returned. If any ratio has a zero denominator the
// error wraps ErrDivisionUndefined and names every undefined field.
func Evaluate(env *Environment, agent *Agent) (*Metrics, error) {
	initialDirt := len(env.initialDirt)
	pending := env.GlobalDirtyCount()
	cleaned := initialDirt - pending
	if cleaned < 0 {
		cleaned = 0
	}
	// the path history includes the start cell, as does the visited set
	steps := len(agent.path)
	consumed := agent.InitialEnergy() - agent.Energy()

	m := &Metrics{
		Initial: InitialConditions{
			DirtySpots: initialDirt,
			Obstacles:  len(env.initialObstacles),
			Energy:     agent.InitialEnergy(),
		},
		Final: FinalState{
			PendingDirt:        pending,
			DirtCleaned:        cleaned,
			TotalSteps:         steps,
			UniqueCellsVisited: agent.VisitedCount(),
			ObstacleEncounters: len(agent.encounters),
			Energy:             agent.Energy(),
			EnergyConsumed:     consumed,
		},
	}

	p := &m.Performance
	p.PercentDirtCleaned = ratio(float64(cleaned), float64(initialDirt)).scale(100)
	p.PercentEnergyConsumed = ratio(consumed, agent.InitialEnergy()).scale(100)
	p.DirtCleanedPerStep = ratio(float64(cleaned), float64(steps))
	p.CoverageEfficiency = ratio(float64(agent.VisitedCount()), float64(steps))
	p.EnergyPerDirtSpot = ratio(consumed, float64(cleaned))
	p.EnergyPerStep = ratio(consumed, float64(steps))
	p.PercentEnergyPerDirtSpot = ratio(p.EnergyPerDirtSpot.Value*100, agent.InitialEnergy())
	if !p.EnergyPerDirtSpot.Defined {
		p.PercentEnergyPerDirtSpot = Ratio{}
	}
	p.PercentEnergyPerStep = ratio(p.EnergyPerStep.Value*100, agent.InitialEnergy())
	if !p.EnergyPerStep.Defined {
		p.PercentEnergyPerStep = Ratio{}
	}

	return m, m.undefinedErr()
}

// Undefined lists the names of ratio fields with a zero denominator
func (m *Metrics) Undefined() []string {
	p := m.Performance
	fields := []struct {
		name string
		r    Ratio
	}{
		{"percent_dirt_cleaned", p.PercentDirtCleaned},
		{"percent_energy_consumed", p.PercentEnergyConsumed},
		{"dirt_cleaned_per_step", p.DirtCleanedPerStep},
		{"coverage_efficiency", p.CoverageEfficiency},
		{"energy_per_dirt_spot", p.EnergyPerDirtSpot},
		{"energy_per_step", p.EnergyPerStep},
		{"percent_energy_per_dirt_spot", p.PercentEnergyPerDirtSpot},
		{"percent_energy_per_step", p.PercentEnergyPerStep},
	}
	var out []string
	for _, f := range fields {
		if !f.r.Defined {
			out = append(out, f.name)
		}
	}
	return out
}

func (m *Metrics) undefinedErr() error {
	var errs []error
	for _, name := range m.Undefined() {
		errs = append(errs, fmt.Errorf("%w: %s", ErrDivisionUndefined, name))
	}
	return errors.Join(errs...)
}
