package service

import (
	"time"

	"github.com/wricardo/cleaning-agent-sim/sim/engine"
	"github.com/wricardo/cleaning-agent-sim/sim/report"
)

// RunOverrides replaces individual preset fields. Nil fields keep the preset value.
type RunOverrides struct {
	Width           *int             `json:"width,omitempty"`
	Height          *int             `json:"height,omitempty"`
	ObstacleDensity *float64         `json:"obstacle_density,omitempty"`
	DirtDensity     *float64         `json:"dirt_density,omitempty"`
	SensorRange     *int             `json:"sensor_range,omitempty"`
	InitialEnergy   *float64         `json:"initial_energy,omitempty"`
	IdleLimit       *int             `json:"idle_limit,omitempty"`
	Start           *engine.Position `json:"start,omitempty"`
	Seed            *int64           `json:"seed,omitempty"`
	PathSearch      *bool            `json:"path_search,omitempty"`
}

// Apply returns cfg with the overrides applied
func (o *RunOverrides) Apply(cfg engine.RunConfig) engine.RunConfig {
	if o == nil {
		return cfg
	}
	if o.Width != nil {
		cfg.Width = *o.Width
	}
	if o.Height != nil {
		cfg.Height = *o.Height
	}
	if o.ObstacleDensity != nil {
		cfg.ObstacleDensity = *o.ObstacleDensity
	}
	if o.DirtDensity != nil {
		cfg.DirtDensity = *o.DirtDensity
	}
	if o.SensorRange != nil {
		cfg.SensorRange = *o.SensorRange
	}
	if o.InitialEnergy != nil {
		cfg.InitialEnergy = *o.InitialEnergy
	}
	if o.IdleLimit != nil {
		cfg.IdleLimit = *o.IdleLimit
	}
	if o.Start != nil {
		cfg.Start = *o.Start
	}
	if o.Seed != nil {
		cfg.Seed = *o.Seed
	}
	if o.PathSearch != nil {
		t := cfg.EffectiveTuning()
		t.PathSearch = *o.PathSearch
		cfg.Tuning = &t
	}
	return cfg
}

// RunRequest starts a single run
type RunRequest struct {
	ConfigID  string        `json:"config_id,omitempty"`
	Overrides *RunOverrides `json:"overrides,omitempty"`
	// Async returns immediately and streams frames to the FrameSink
	Async bool `json:"async,omitempty"`
	// CaptureFrames attaches a grid snapshot to every streamed step
	CaptureFrames bool `json:"capture_frames,omitempty"`
	// Save writes the finished report to the report store
	Save bool `json:"save,omitempty"`
}

// RunInfo provides information about a run
type RunInfo struct {
	ID               string           `json:"id"`
	ConfigName       string           `json:"config_name"`
	Config           engine.RunConfig `json:"config"`
	Status           RunStatus        `json:"status"`
	Outcome          engine.Outcome   `json:"outcome"`
	OutcomeCode      int              `json:"outcome_code"`
	Iterations       int              `json:"iterations"`
	ElapsedMS        int64            `json:"elapsed_ms"`
	Metrics          *engine.Metrics  `json:"metrics,omitempty"`
	UndefinedMetrics []string         `json:"undefined_metrics,omitempty"`
	FinalGrid        []string         `json:"final_grid,omitempty"`
	Error            string           `json:"error,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	LastAccessedAt   time.Time        `json:"last_accessed_at"`
	FinishedAt       *time.Time       `json:"finished_at,omitempty"`
}

// MetricsResponse wraps a run's metrics record
type MetricsResponse struct {
	RunID            string          `json:"run_id"`
	Outcome          engine.Outcome  `json:"outcome"`
	OutcomeCode      int             `json:"outcome_code"`
	ElapsedMS        int64           `json:"elapsed_ms"`
	Metrics          *engine.Metrics `json:"metrics"`
	UndefinedMetrics []string        `json:"undefined_metrics,omitempty"`
}

// TelemetryOptions configures telemetry retrieval
type TelemetryOptions struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
}

// TelemetryResponse contains paginated per-step telemetry
type TelemetryResponse struct {
	RunID       string              `json:"run_id"`
	Steps       []engine.StepRecord `json:"steps"`
	TotalSteps  int                 `json:"total_steps"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"page_size"`
	TotalPages  int                 `json:"total_pages"`
	HasNext     bool                `json:"has_next"`
	HasPrevious bool                `json:"has_previous"`
}

// FrameResponse is the grid at one iteration of a run
type FrameResponse struct {
	RunID     string           `json:"run_id"`
	Iteration int              `json:"iteration"`
	Rows      []string         `json:"rows"`
	Snapshot  *engine.Snapshot `json:"snapshot"`
}

// BatchRequest runs the same preset many times with consecutive seeds
type BatchRequest struct {
	ConfigID  string        `json:"config_id,omitempty"`
	Overrides *RunOverrides `json:"overrides,omitempty"`
	Runs      int           `json:"runs"`
	// BaseSeed defaults to the preset seed; run i uses BaseSeed+i
	BaseSeed *int64 `json:"base_seed,omitempty"`
	Parallel int    `json:"parallel,omitempty"`
	Save     bool   `json:"save,omitempty"`
}

// BatchResult holds every run of a batch plus the aggregate
type BatchResult struct {
	ConfigName string         `json:"config_name"`
	Runs       []*RunInfo     `json:"runs"`
	Summary    report.Summary `json:"summary"`
}

// ConfigInfo provides information about a run preset
type ConfigInfo struct {
	Filename        string  `json:"filename"`
	ConfigID        string  `json:"config_id"` // The identifier to use when starting runs
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	ObstacleDensity float64 `json:"obstacle_density"`
	DirtDensity     float64 `json:"dirt_density"`
	InitialEnergy   float64 `json:"initial_energy"`
}

// Report is the persisted summary of a finished run
type Report struct {
	ID               string           `json:"id" yaml:"id"`
	ConfigName       string           `json:"config_name" yaml:"config_name"`
	Config           engine.RunConfig `json:"config" yaml:"config"`
	Status           RunStatus        `json:"status" yaml:"status"`
	Outcome          engine.Outcome   `json:"outcome" yaml:"outcome"`
	OutcomeCode      int              `json:"outcome_code" yaml:"outcome_code"`
	Iterations       int              `json:"iterations" yaml:"iterations"`
	ElapsedMS        int64            `json:"elapsed_ms" yaml:"elapsed_ms"`
	Metrics          *engine.Metrics  `json:"metrics" yaml:"metrics"`
	UndefinedMetrics []string         `json:"undefined_metrics,omitempty" yaml:"undefined_metrics,omitempty"`
	FinalGrid        []string         `json:"final_grid,omitempty" yaml:"final_grid,omitempty"`
	CreatedAt        time.Time        `json:"created_at" yaml:"created_at"`
	FinishedAt       time.Time        `json:"finished_at" yaml:"finished_at"`
}

// Entry converts the report for aggregation
func (r *Report) Entry() report.Entry {
	return report.Entry{Name: r.ID, Outcome: r.Outcome, Metrics: r.Metrics}
}

// RunEvent is a lifecycle notification sent to the FrameSink
type RunEvent struct {
	Type      string         `json:"type"` // "started", "finished", "failed"
	RunID     string         `json:"run_id"`
	Outcome   engine.Outcome `json:"outcome,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
