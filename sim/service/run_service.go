package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wricardo/cleaning-agent-sim/sim/engine"
)

var (
	ErrRunNotFound     = errors.New("run not found")
	ErrConfigNotFound  = errors.New("configuration not found")
	ErrRunInProgress   = errors.New("run still in progress")
	ErrFrameOutOfRange = errors.New("frame iteration out of range")
	ErrIterationCap    = errors.New("iteration cap reached")
	ErrInvalidRequest  = errors.New("invalid request")
)

// RunService defines all simulation operations exposed to transports
type RunService interface {
	// Runs
	StartRun(ctx context.Context, req RunRequest) (*RunInfo, error)
	GetRun(ctx context.Context, runID string) (*RunInfo, error)
	ListRuns(ctx context.Context) ([]*RunInfo, error)
	DeleteRun(ctx context.Context, runID string) error

	// Results
	GetMetrics(ctx context.Context, runID string) (*MetricsResponse, error)
	GetTelemetry(ctx context.Context, runID string, opts TelemetryOptions) (*TelemetryResponse, error)
	GetFrame(ctx context.Context, runID string, iteration int) (*FrameResponse, error)

	// Batches
	RunBatch(ctx context.Context, req BatchRequest) (*BatchResult, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*ConfigInfo, error)
	LoadConfig(ctx context.Context, configName string) (*engine.RunConfig, error)
	SaveConfig(ctx context.Context, configName string, config *engine.RunConfig) error

	// Close cancels background runs and waits for them
	Close() error
}

// RunRegistry defines run storage operations
type RunRegistry interface {
	Create(configName string, config engine.RunConfig) (*Run, error)
	Get(id string) (*Run, error)
	List() []*Run
	Delete(id string) error
	Touch(id string) error
}

// ConfigManager handles run preset loading
type ConfigManager interface {
	LoadConfig(name string) (*engine.RunConfig, error)
	ListConfigs() ([]*ConfigInfo, error)
	GetDefault() *engine.RunConfig
	SaveConfig(name string, config *engine.RunConfig) error
}

// ReportStore persists finished run reports
type ReportStore interface {
	Save(report *Report) error
}

// FrameSink receives live step frames for a run, e.g. a websocket hub
type FrameSink interface {
	BroadcastStep(runID string, rec engine.StepRecord, snap *engine.Snapshot)
	BroadcastEvent(runID string, eventType string, data interface{})
}

// RunStatus is the lifecycle state of a stored run
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is one simulation tracked by the registry. Async runs are written by
// their worker goroutine while transports read them, so state sits behind mu.
type Run struct {
	ID         string
	ConfigName string
	Config     engine.RunConfig
	CreatedAt  time.Time

	mu             sync.RWMutex
	lastAccessedAt time.Time
	finishedAt     time.Time
	status         RunStatus
	telemetry      []engine.StepRecord
	result         *engine.Result
	final          *engine.Snapshot
	finalRows      []string
	err            error
}

// NewRun creates a run in the running state
func NewRun(id, configName string, config engine.RunConfig) *Run {
	now := time.Now()
	return &Run{
		ID:             id,
		ConfigName:     configName,
		Config:         config,
		CreatedAt:      now,
		lastAccessedAt: now,
		status:         StatusRunning,
	}
}

// RestoreRun rebuilds a finished run from its persisted report. Telemetry
// is not persisted; callers recompute it by replaying the config.
func RestoreRun(rep *Report) *Run {
	r := &Run{
		ID:             rep.ID,
		ConfigName:     rep.ConfigName,
		Config:         rep.Config,
		CreatedAt:      rep.CreatedAt,
		lastAccessedAt: rep.FinishedAt,
		finishedAt:     rep.FinishedAt,
		status:         rep.Status,
		finalRows:      append([]string(nil), rep.FinalGrid...),
		result: &engine.Result{
			Outcome:     rep.Outcome,
			OutcomeCode: rep.OutcomeCode,
			Iterations:  rep.Iterations,
			Elapsed:     time.Duration(rep.ElapsedMS) * time.Millisecond,
			Metrics:     rep.Metrics,
			Undefined:   rep.UndefinedMetrics,
		},
	}
	if r.status == "" {
		r.status = StatusCompleted
	}
	if r.lastAccessedAt.IsZero() {
		r.lastAccessedAt = time.Now()
	}
	return r
}

// Status returns the current lifecycle state
func (r *Run) Status() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// LastAccessedAt returns when the run was last read or written
func (r *Run) LastAccessedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastAccessedAt
}

// Touch marks the run as accessed now
func (r *Run) Touch() {
	r.mu.Lock()
	r.lastAccessedAt = time.Now()
	r.mu.Unlock()
}

// AppendStep records one live telemetry entry
func (r *Run) AppendStep(rec engine.StepRecord) {
	r.mu.Lock()
	r.telemetry = append(r.telemetry, rec)
	r.mu.Unlock()
}

// Complete stores the final result and snapshot
func (r *Run) Complete(res engine.Result, final *engine.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = &res
	r.telemetry = res.Telemetry
	r.final = final
	r.status = StatusCompleted
	r.finishedAt = time.Now()
	r.lastAccessedAt = r.finishedAt
}

// Fail marks the run failed. A partial result may be attached.
func (r *Run) Fail(err error, partial *engine.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.result = partial
	r.status = StatusFailed
	r.finishedAt = time.Now()
	r.lastAccessedAt = r.finishedAt
}

// RestoreTelemetry installs replayed telemetry on a run that has none
func (r *Run) RestoreTelemetry(steps []engine.StepRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.telemetry) == 0 {
		r.telemetry = steps
	}
}

// Result returns the final result, nil while running
func (r *Run) Result() *engine.Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result
}

// Telemetry returns a copy of the telemetry recorded so far
func (r *Run) Telemetry() []engine.StepRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]engine.StepRecord(nil), r.telemetry...)
}

// Err returns the failure, if any
func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Info builds the transport view of the run
func (r *Run) Info() *RunInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := &RunInfo{
		ID:             r.ID,
		ConfigName:     r.ConfigName,
		Config:         r.Config,
		Status:         r.status,
		Outcome:        engine.Running,
		OutcomeCode:    engine.Running.Code(),
		Iterations:     len(r.telemetry),
		CreatedAt:      r.CreatedAt,
		LastAccessedAt: r.lastAccessedAt,
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		info.FinishedAt = &t
	}
	if r.result != nil {
		info.Outcome = r.result.Outcome
		info.OutcomeCode = r.result.OutcomeCode
		info.Iterations = r.result.Iterations
		info.ElapsedMS = r.result.Elapsed.Milliseconds()
		info.Metrics = r.result.Metrics
		info.UndefinedMetrics = r.result.Undefined
	}
	if r.final != nil {
		info.FinalGrid = r.final.Render()
	} else if len(r.finalRows) > 0 {
		info.FinalGrid = append([]string(nil), r.finalRows...)
	}
	if r.err != nil {
		info.Error = r.err.Error()
	}
	return info
}

// Report builds the persisted form of a finished run
func (r *Run) Report() *Report {
	info := r.Info()
	rep := &Report{
		ID:               info.ID,
		ConfigName:       info.ConfigName,
		Config:           info.Config,
		Status:           info.Status,
		Outcome:          info.Outcome,
		OutcomeCode:      info.OutcomeCode,
		Iterations:       info.Iterations,
		ElapsedMS:        info.ElapsedMS,
		Metrics:          info.Metrics,
		UndefinedMetrics: info.UndefinedMetrics,
		FinalGrid:        info.FinalGrid,
		CreatedAt:        info.CreatedAt,
	}
	if info.FinishedAt != nil {
		rep.FinishedAt = *info.FinishedAt
	}
	return rep
}
