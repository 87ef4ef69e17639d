package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wricardo/cleaning-agent-sim/logging"
	"github.com/wricardo/cleaning-agent-sim/sim/engine"
	"github.com/wricardo/cleaning-agent-sim/sim/report"
)

const (
	// DefaultMaxIterations caps a single run. Runs hitting it fail with ErrIterationCap.
	DefaultMaxIterations = 1_000_000
	// MaxBatchRuns bounds a single batch request
	MaxBatchRuns = 1000

	defaultTelemetryLimit = 20
	maxTelemetryLimit     = 100
	ctxCheckInterval      = 256
)

// runServiceImpl implements the RunService interface
type runServiceImpl struct {
	runs          RunRegistry
	configs       ConfigManager
	reports       ReportStore
	sink          FrameSink
	maxIterations int

	// background runs outlive the request that started them
	bg     context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServiceOption configures the run service
type ServiceOption func(*runServiceImpl)

// WithReportStore persists reports of runs started with Save
func WithReportStore(store ReportStore) ServiceOption {
	return func(s *runServiceImpl) { s.reports = store }
}

// WithFrameSink streams live steps and lifecycle events
func WithFrameSink(sink FrameSink) ServiceOption {
	return func(s *runServiceImpl) { s.sink = sink }
}

// WithMaxIterations overrides DefaultMaxIterations
func WithMaxIterations(n int) ServiceOption {
	return func(s *runServiceImpl) {
		if n > 0 {
			s.maxIterations = n
		}
	}
}

// NewRunService creates a new run service instance
func NewRunService(runs RunRegistry, configs ConfigManager, opts ...ServiceOption) RunService {
	s := &runServiceImpl{
		runs:          runs,
		configs:       configs,
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.bg, s.cancel = context.WithCancel(context.Background())
	return s
}

// resolveConfig loads the preset, applies overrides and validates the result
func (s *runServiceImpl) resolveConfig(configID string, overrides *RunOverrides) (string, engine.RunConfig, error) {
	var base *engine.RunConfig
	if configID == "" {
		base = s.configs.GetDefault()
	} else {
		loaded, err := s.configs.LoadConfig(configID)
		if err != nil {
			if errors.Is(err, ErrConfigNotFound) {
				if available, listErr := s.configs.ListConfigs(); listErr == nil && len(available) > 0 {
					ids := make([]string, 0, len(available))
					for _, c := range available {
						ids = append(ids, c.ConfigID)
					}
					return "", engine.RunConfig{}, fmt.Errorf("%w: '%s'. Available configs: %v", ErrConfigNotFound, configID, ids)
				}
			}
			return "", engine.RunConfig{}, fmt.Errorf("failed to load config %s: %w", configID, err)
		}
		base = loaded
	}

	name := configID
	if name == "" {
		name = base.Name
	}

	cfg := overrides.Apply(*base)
	if err := engine.ValidateRunConfig(cfg); err != nil {
		return "", engine.RunConfig{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return name, cfg, nil
}

// StartRun runs a simulation to completion, or in the background when Async is set
func (s *runServiceImpl) StartRun(ctx context.Context, req RunRequest) (*RunInfo, error) {
	name, cfg, err := s.resolveConfig(req.ConfigID, req.Overrides)
	if err != nil {
		return nil, err
	}
	cfg.CaptureFrames = req.CaptureFrames

	run, err := s.runs.Create(name, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	logging.Info().
		Add(logging.Component("service")).
		Add(logging.RunID(run.ID)).
		Add(logging.ConfigName(name)).
		Add(logging.Seed(cfg.Seed)).
		Msg("run started")
	s.notify(run.ID, "started", RunEvent{Type: "started", RunID: run.ID, Timestamp: time.Now()})

	if req.Async {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.finish(run, s.execute(s.bg, run), req.Save)
		}()
		return run.Info(), nil
	}

	if err := s.execute(ctx, run); err != nil {
		s.finish(run, err, req.Save)
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}
	s.finish(run, nil, req.Save)
	return run.Info(), nil
}

// execute drives the simulation, enforcing the iteration cap and ctx cancellation
func (s *runServiceImpl) execute(ctx context.Context, run *Run) error {
	if err := ctx.Err(); err != nil {
		run.Fail(err, nil)
		return err
	}
	sim, err := engine.NewSimulation(run.Config, engine.WithObserver(&runObserver{run: run, sink: s.sink}))
	if err != nil {
		run.Fail(err, nil)
		return err
	}

	for !sim.Tick() {
		if sim.Iteration() >= s.maxIterations {
			if sim.Settle() {
				break
			}
			partial := sim.Result()
			err := fmt.Errorf("%w: %d iterations", ErrIterationCap, s.maxIterations)
			run.Fail(err, &partial)
			return err
		}
		if sim.Iteration()%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				partial := sim.Result()
				run.Fail(err, &partial)
				return err
			}
		}
	}

	run.Complete(sim.Result(), sim.Snapshot())
	return nil
}

// finish logs the outcome, notifies the sink and saves the report if asked
func (s *runServiceImpl) finish(run *Run, err error, save bool) {
	info := run.Info()
	if err != nil {
		logging.Warn().
			Add(logging.Component("service")).
			Add(logging.RunID(run.ID)).
			Add(logging.Iteration(info.Iterations)).
			Add(logging.ErrorField(err)).
			Msg("run failed")
		s.notify(run.ID, "failed", RunEvent{Type: "failed", RunID: run.ID, Message: err.Error(), Timestamp: time.Now()})
	} else {
		logging.Info().
			Add(logging.Component("service")).
			Add(logging.RunID(run.ID)).
			Add(logging.Outcome(info.Outcome)).
			Add(logging.Iteration(info.Iterations)).
			Add(logging.Duration(time.Duration(info.ElapsedMS) * time.Millisecond)).
			Msg("run finished")
		s.notify(run.ID, "finished", RunEvent{Type: "finished", RunID: run.ID, Outcome: info.Outcome, Timestamp: time.Now()})
	}

	if save && s.reports != nil {
		if saveErr := s.reports.Save(run.Report()); saveErr != nil {
			logging.Warn().
				Add(logging.Component("service")).
				Add(logging.RunID(run.ID)).
				Add(logging.ErrorField(saveErr)).
				Msg("failed to persist report")
		}
	}
}

func (s *runServiceImpl) notify(runID, eventType string, ev RunEvent) {
	if s.sink != nil {
		s.sink.BroadcastEvent(runID, eventType, ev)
	}
}

// GetRun retrieves run information
func (s *runServiceImpl) GetRun(ctx context.Context, runID string) (*RunInfo, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}
	return run.Info(), nil
}

func (s *runServiceImpl) getRun(runID string) (*Run, error) {
	run, err := s.runs.Get(runID)
	if err != nil {
		return nil, err
	}
	_ = s.runs.Touch(runID)
	return run, nil
}

// ListRuns returns all tracked runs, oldest first
func (s *runServiceImpl) ListRuns(ctx context.Context) ([]*RunInfo, error) {
	runs := s.runs.List()
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})

	result := make([]*RunInfo, 0, len(runs))
	for _, r := range runs {
		result = append(result, r.Info())
	}
	return result, nil
}

// DeleteRun removes a finished run
func (s *runServiceImpl) DeleteRun(ctx context.Context, runID string) error {
	run, err := s.runs.Get(runID)
	if err != nil {
		return err
	}
	if run.Status() == StatusRunning {
		return fmt.Errorf("%w: %s", ErrRunInProgress, runID)
	}
	return s.runs.Delete(runID)
}

// GetMetrics returns the metrics record of a finished run. Failed runs
// report the partial metrics at the point they stopped.
func (s *runServiceImpl) GetMetrics(ctx context.Context, runID string) (*MetricsResponse, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}
	if run.Status() == StatusRunning {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, runID)
	}
	res := run.Result()
	if res == nil {
		return nil, fmt.Errorf("run %s produced no metrics: %w", runID, run.Err())
	}

	return &MetricsResponse{
		RunID:            runID,
		Outcome:          res.Outcome,
		OutcomeCode:      res.OutcomeCode,
		ElapsedMS:        res.Elapsed.Milliseconds(),
		Metrics:          res.Metrics,
		UndefinedMetrics: res.Undefined,
	}, nil
}

// GetTelemetry returns paginated per-step telemetry, including steps of a
// run still in progress
func (s *runServiceImpl) GetTelemetry(ctx context.Context, runID string, opts TelemetryOptions) (*TelemetryResponse, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}

	history := run.Telemetry()
	if info := run.Info(); len(history) == 0 && info.Status != StatusRunning && info.Iterations > 0 {
		sim, err := replay(ctx, run.Config, info.Iterations)
		if err != nil {
			return nil, fmt.Errorf("failed to replay run %s: %w", runID, err)
		}
		history = sim.Result().Telemetry
		run.RestoreTelemetry(history)
	}
	total := len(history)

	// Apply defaults
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultTelemetryLimit
	}
	if opts.Limit > maxTelemetryLimit {
		opts.Limit = maxTelemetryLimit
	}
	if opts.Order == "" {
		opts.Order = "asc"
	}

	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if end > total {
		end = total
	}

	steps := []engine.StepRecord{}
	if start < total {
		if opts.Order == "desc" {
			for i := total - 1 - start; i >= total-end; i-- {
				steps = append(steps, history[i])
			}
		} else {
			steps = append(steps, history[start:end]...)
		}
	}

	return &TelemetryResponse{
		RunID:       runID,
		Steps:       steps,
		TotalSteps:  total,
		Page:        opts.Page,
		PageSize:    opts.Limit,
		TotalPages:  totalPages,
		HasNext:     opts.Page < totalPages,
		HasPrevious: opts.Page > 1,
	}, nil
}

// GetFrame rebuilds the grid at an iteration by replaying the run.
// Runs are deterministic for a given config, so the replay matches the
// original exactly. Iteration 0 is the grid before the first step.
func (s *runServiceImpl) GetFrame(ctx context.Context, runID string, iteration int) (*FrameResponse, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}

	recorded := run.Info().Iterations
	if iteration < 0 || iteration > recorded {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrFrameOutOfRange, iteration, recorded)
	}

	sim, err := replay(ctx, run.Config, iteration)
	if err != nil {
		return nil, fmt.Errorf("failed to replay run %s: %w", runID, err)
	}

	snap := sim.Snapshot()
	return &FrameResponse{
		RunID:     runID,
		Iteration: snap.Iteration,
		Rows:      snap.Render(),
		Snapshot:  snap,
	}, nil
}

// replay rebuilds a simulation and ticks it to the given iteration
func replay(ctx context.Context, cfg engine.RunConfig, iteration int) (*engine.Simulation, error) {
	cfg.CaptureFrames = false
	sim, err := engine.NewSimulation(cfg)
	if err != nil {
		return nil, err
	}
	for sim.Iteration() < iteration {
		if sim.Iteration()%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if sim.Tick() {
			break
		}
	}
	return sim, nil
}

// RunBatch executes Runs simulations of one preset with consecutive seeds
// and aggregates their metrics
func (s *runServiceImpl) RunBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if req.Runs < 1 || req.Runs > MaxBatchRuns {
		return nil, fmt.Errorf("%w: runs must be between 1 and %d, got %d", ErrInvalidRequest, MaxBatchRuns, req.Runs)
	}
	name, cfg, err := s.resolveConfig(req.ConfigID, req.Overrides)
	if err != nil {
		return nil, err
	}

	baseSeed := cfg.Seed
	if req.BaseSeed != nil {
		baseSeed = *req.BaseSeed
	}
	parallel := req.Parallel
	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}

	logging.Info().
		Add(logging.Component("service")).
		Add(logging.ConfigName(name)).
		Add(logging.Count("runs", req.Runs)).
		Add(logging.Count("parallel", parallel)).
		Add(logging.Seed(baseSeed)).
		Msg("batch started")

	infos := make([]*RunInfo, req.Runs)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i := 0; i < req.Runs; i++ {
		g.Go(func() error {
			c := cfg
			c.Seed = baseSeed + int64(i)
			run, err := s.runs.Create(name, c)
			if err != nil {
				return fmt.Errorf("failed to create run %d: %w", i, err)
			}
			runErr := s.execute(gctx, run)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			s.finish(run, runErr, req.Save)
			infos[i] = run.Info()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]report.Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, report.Entry{Name: info.ID, Outcome: info.Outcome, Metrics: info.Metrics})
	}

	return &BatchResult{
		ConfigName: name,
		Runs:       infos,
		Summary:    report.Aggregate(entries),
	}, nil
}

// ListConfigs returns available run presets
func (s *runServiceImpl) ListConfigs(ctx context.Context) ([]*ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig loads a specific run preset
func (s *runServiceImpl) LoadConfig(ctx context.Context, configName string) (*engine.RunConfig, error) {
	return s.configs.LoadConfig(configName)
}

// SaveConfig validates and saves a run preset
func (s *runServiceImpl) SaveConfig(ctx context.Context, configName string, config *engine.RunConfig) error {
	if config == nil {
		return fmt.Errorf("%w: config is required", ErrInvalidRequest)
	}
	if err := engine.ValidateRunConfig(*config); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return s.configs.SaveConfig(configName, config)
}

// Close cancels background runs and waits for them to stop
func (s *runServiceImpl) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

// runObserver mirrors live steps into the run and the frame sink
type runObserver struct {
	run  *Run
	sink FrameSink
}

func (o *runObserver) OnStep(rec engine.StepRecord, snap *engine.Snapshot) {
	o.run.AppendStep(rec)
	if o.sink != nil {
		o.sink.BroadcastStep(o.run.ID, rec, snap)
	}
}

func (o *runObserver) OnFinish(engine.Outcome) {}
