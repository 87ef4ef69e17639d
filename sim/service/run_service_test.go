package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/cleaning-agent-sim/sim/engine"
	"github.com/wricardo/cleaning-agent-sim/sim/service"
)

// MockRunRegistry implements service.RunRegistry for testing
type MockRunRegistry struct {
	mu   sync.Mutex
	runs map[string]*service.Run
	next int
}

func NewMockRunRegistry() *MockRunRegistry {
	return &MockRunRegistry{runs: make(map[string]*service.Run)}
}

func (m *MockRunRegistry) Create(configName string, config engine.RunConfig) (*service.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	run := service.NewRun(fmt.Sprintf("run_%d", m.next), configName, config)
	m.runs[run.ID] = run
	return run, nil
}

func (m *MockRunRegistry) Get(id string) (*service.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", service.ErrRunNotFound, id)
	}
	return run, nil
}

func (m *MockRunRegistry) List() []*service.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*service.Run, 0, len(m.runs))
	for _, r := range m.runs {
		result = append(result, r)
	}
	return result
}

func (m *MockRunRegistry) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[id]; !ok {
		return fmt.Errorf("%w: %s", service.ErrRunNotFound, id)
	}
	delete(m.runs, id)
	return nil
}

func (m *MockRunRegistry) Touch(id string) error {
	run, err := m.Get(id)
	if err != nil {
		return err
	}
	run.Touch()
	return nil
}

// MockConfigManager implements service.ConfigManager for testing
type MockConfigManager struct {
	mu      sync.Mutex
	configs map[string]*engine.RunConfig
}

func testConfig() *engine.RunConfig {
	return &engine.RunConfig{
		Name:            "test",
		Description:     "Test configuration",
		Width:           8,
		Height:          8,
		ObstacleDensity: 0.1,
		DirtDensity:     0.2,
		SensorRange:     3,
		InitialEnergy:   200,
		IdleLimit:       30,
		Start:           engine.Position{X: 0, Y: 0},
		Seed:            5,
	}
}

func NewMockConfigManager() *MockConfigManager {
	return &MockConfigManager{configs: map[string]*engine.RunConfig{"test": testConfig()}}
}

func (m *MockConfigManager) LoadConfig(name string) (*engine.RunConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", service.ErrConfigNotFound, name)
	}
	c := *cfg
	return &c, nil
}

func (m *MockConfigManager) ListConfigs() ([]*service.ConfigInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*service.ConfigInfo
	for id, cfg := range m.configs {
		result = append(result, &service.ConfigInfo{ConfigID: id, Name: cfg.Name, Width: cfg.Width, Height: cfg.Height})
	}
	return result, nil
}

func (m *MockConfigManager) GetDefault() *engine.RunConfig {
	return testConfig()
}

func (m *MockConfigManager) SaveConfig(name string, config *engine.RunConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[name] = config
	return nil
}

// recordingSink implements service.FrameSink
type recordingSink struct {
	mu     sync.Mutex
	steps  map[string]int
	frames int
	events []string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{steps: make(map[string]int)}
}

func (r *recordingSink) BroadcastStep(runID string, rec engine.StepRecord, snap *engine.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[runID]++
	if snap != nil {
		r.frames++
	}
}

func (r *recordingSink) BroadcastEvent(runID string, eventType string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recordingSink) snapshot() (map[string]int, int, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := make(map[string]int, len(r.steps))
	for k, v := range r.steps {
		steps[k] = v
	}
	return steps, r.frames, append([]string(nil), r.events...)
}

// memoryStore implements service.ReportStore
type memoryStore struct {
	mu      sync.Mutex
	reports []*service.Report
}

func (m *memoryStore) Save(r *service.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

func newTestService(opts ...service.ServiceOption) (service.RunService, *MockRunRegistry) {
	runs := NewMockRunRegistry()
	svc := service.NewRunService(runs, NewMockConfigManager(), opts...)
	return svc, runs
}

func TestStartRun(t *testing.T) {
	svc, _ := newTestService()
	defer svc.Close()
	ctx := context.Background()

	t.Run("DefaultConfig", func(t *testing.T) {
		info, err := svc.StartRun(ctx, service.RunRequest{})
		require.NoError(t, err)
		assert.Equal(t, "test", info.ConfigName)
		assert.Equal(t, service.StatusCompleted, info.Status)
		assert.True(t, info.Outcome.Terminal(), "outcome %s should be terminal", info.Outcome)
		assert.Equal(t, info.Outcome.Code(), info.OutcomeCode)
		require.NotNil(t, info.Metrics)
		assert.Equal(t, info.Iterations+1, info.Metrics.Final.TotalSteps, "path includes the start cell")
		assert.Len(t, info.FinalGrid, 8)
		assert.NotNil(t, info.FinishedAt)
	})

	t.Run("NamedConfigWithOverrides", func(t *testing.T) {
		seed := int64(99)
		energy := 5.0
		info, err := svc.StartRun(ctx, service.RunRequest{
			ConfigID:  "test",
			Overrides: &service.RunOverrides{Seed: &seed, InitialEnergy: &energy},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(99), info.Config.Seed)
		assert.Equal(t, engine.BatteryDead, info.Outcome)
	})

	t.Run("UnknownConfig", func(t *testing.T) {
		_, err := svc.StartRun(ctx, service.RunRequest{ConfigID: "nope"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, service.ErrConfigNotFound))
		assert.Contains(t, err.Error(), "Available configs")
	})

	t.Run("InvalidOverride", func(t *testing.T) {
		density := 1.5
		_, err := svc.StartRun(ctx, service.RunRequest{Overrides: &service.RunOverrides{ObstacleDensity: &density}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, service.ErrInvalidRequest))
		assert.True(t, errors.Is(err, engine.ErrInvalidDensity))
	})

	t.Run("Deterministic", func(t *testing.T) {
		a, err := svc.StartRun(ctx, service.RunRequest{})
		require.NoError(t, err)
		b, err := svc.StartRun(ctx, service.RunRequest{})
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
		assert.Equal(t, a.Iterations, b.Iterations)
		assert.Equal(t, a.FinalGrid, b.FinalGrid)
	})
}

func TestStartRunIterationCap(t *testing.T) {
	svc, runs := newTestService(service.WithMaxIterations(3))
	defer svc.Close()
	ctx := context.Background()

	_, err := svc.StartRun(ctx, service.RunRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrIterationCap))

	list := runs.List()
	require.Len(t, list, 1)
	run := list[0]
	assert.Equal(t, service.StatusFailed, run.Status())

	metrics, err := svc.GetMetrics(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.Running, metrics.Outcome)
	assert.Equal(t, 4, metrics.Metrics.Final.TotalSteps)

	info, err := svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Contains(t, info.Error, "iteration cap")
	assert.Equal(t, 3, info.Iterations)
}

func TestStartRunCancelled(t *testing.T) {
	svc, _ := newTestService()
	defer svc.Close()

	energy := 1e9
	idle := 1_000_000
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.StartRun(ctx, service.RunRequest{Overrides: &service.RunOverrides{InitialEnergy: &energy, IdleLimit: &idle}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestStartRunAsync(t *testing.T) {
	sink := newRecordingSink()
	store := &memoryStore{}
	svc, _ := newTestService(service.WithFrameSink(sink), service.WithReportStore(store))
	defer svc.Close()
	ctx := context.Background()

	info, err := svc.StartRun(ctx, service.RunRequest{Async: true, CaptureFrames: true, Save: true})
	require.NoError(t, err)
	require.NotEmpty(t, info.ID)

	require.Eventually(t, func() bool {
		got, err := svc.GetRun(ctx, info.ID)
		return err == nil && got.Status == service.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	final, err := svc.GetRun(ctx, info.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.reports) == 1
	}, 5*time.Second, 10*time.Millisecond)

	steps, frames, events := sink.snapshot()
	assert.Equal(t, final.Iterations, steps[info.ID])
	assert.Equal(t, final.Iterations, frames)
	assert.Contains(t, events, "started")
	assert.Contains(t, events, "finished")

	store.mu.Lock()
	rep := store.reports[0]
	store.mu.Unlock()
	assert.Equal(t, info.ID, rep.ID)
	assert.Equal(t, final.Outcome, rep.Outcome)
}

func TestGetRunNotFound(t *testing.T) {
	svc, _ := newTestService()
	defer svc.Close()

	_, err := svc.GetRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, service.ErrRunNotFound))
}

func TestListAndDeleteRuns(t *testing.T) {
	svc, _ := newTestService()
	defer svc.Close()
	ctx := context.Background()

	first, err := svc.StartRun(ctx, service.RunRequest{})
	require.NoError(t, err)
	_, err = svc.StartRun(ctx, service.RunRequest{})
	require.NoError(t, err)

	list, err := svc.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, svc.DeleteRun(ctx, first.ID))
	list, err = svc.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	err = svc.DeleteRun(ctx, first.ID)
	assert.True(t, errors.Is(err, service.ErrRunNotFound))
}

func TestDeleteRunInProgress(t *testing.T) {
	runs := NewMockRunRegistry()
	svc := service.NewRunService(runs, NewMockConfigManager())
	defer svc.Close()

	run, err := runs.Create("test", *testConfig())
	require.NoError(t, err)

	err = svc.DeleteRun(context.Background(), run.ID)
	assert.True(t, errors.Is(err, service.ErrRunInProgress))

	_, err = svc.GetMetrics(context.Background(), run.ID)
	assert.True(t, errors.Is(err, service.ErrRunInProgress))
}

func TestStartRunFinishingOnTheCap(t *testing.T) {
	ctx := context.Background()

	uncapped, _ := newTestService()
	defer uncapped.Close()
	want, err := uncapped.StartRun(ctx, service.RunRequest{})
	require.NoError(t, err)
	require.True(t, want.Outcome.Terminal())
	require.Greater(t, want.Iterations, 1)

	// a run that meets its terminal condition on the last allowed step completes
	capped, _ := newTestService(service.WithMaxIterations(want.Iterations))
	defer capped.Close()
	got, err := capped.StartRun(ctx, service.RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, service.StatusCompleted, got.Status)
	assert.Equal(t, want.Outcome, got.Outcome)
	assert.Equal(t, want.Iterations, got.Iterations)
	assert.Empty(t, got.Error)

	short, _ := newTestService(service.WithMaxIterations(want.Iterations - 1))
	defer short.Close()
	_, err = short.StartRun(ctx, service.RunRequest{})
	assert.True(t, errors.Is(err, service.ErrIterationCap))
}

func TestGetTelemetry(t *testing.T) {
	svc, _ := newTestService()
	defer svc.Close()
	ctx := context.Background()

	info, err := svc.StartRun(ctx, service.RunRequest{})
	require.NoError(t, err)
	require.Greater(t, info.Iterations, 5)

	t.Run("Defaults", func(t *testing.T) {
		resp, err := svc.GetTelemetry(ctx, info.ID, service.TelemetryOptions{})
		require.NoError(t, err)
		assert.Equal(t, info.Iterations, resp.TotalSteps)
		assert.Equal(t, 1, resp.Page)
		assert.Equal(t, 20, resp.PageSize)
		assert.Equal(t, 1, resp.Steps[0].Iteration)
		assert.False(t, resp.HasPrevious)
	})

	t.Run("Descending", func(t *testing.T) {
		resp, err := svc.GetTelemetry(ctx, info.ID, service.TelemetryOptions{Limit: 5, Order: "desc"})
		require.NoError(t, err)
		require.Len(t, resp.Steps, 5)
		assert.Equal(t, info.Iterations, resp.Steps[0].Iteration)
		assert.Equal(t, info.Iterations-4, resp.Steps[4].Iteration)
		assert.True(t, resp.HasNext)
	})

	t.Run("SecondPage", func(t *testing.T) {
		resp, err := svc.GetTelemetry(ctx, info.ID, service.TelemetryOptions{Page: 2, Limit: 5})
		require.NoError(t, err)
		require.NotEmpty(t, resp.Steps)
		assert.Equal(t, 6, resp.Steps[0].Iteration)
		assert.True(t, resp.HasPrevious)
	})

	t.Run("LimitClamped", func(t *testing.T) {
		resp, err := svc.GetTelemetry(ctx, info.ID, service.TelemetryOptions{Limit: 1000})
		require.NoError(t, err)
		assert.Equal(t, 100, resp.PageSize)
	})

	t.Run("PastEnd", func(t *testing.T) {
		resp, err := svc.GetTelemetry(ctx, info.ID, service.TelemetryOptions{Page: 10_000})
		require.NoError(t, err)
		assert.Empty(t, resp.Steps)
		assert.False(t, resp.HasNext)
	})
}

func TestGetFrame(t *testing.T) {
	svc, _ := newTestService()
	defer svc.Close()
	ctx := context.Background()

	info, err := svc.StartRun(ctx, service.RunRequest{})
	require.NoError(t, err)

	initial, err := svc.GetFrame(ctx, info.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, initial.Iteration)
	// the start cell is cleaned on placement
	assert.InDelta(t, info.Metrics.Initial.DirtySpots, len(initial.Snapshot.Dirt), 1)
	assert.Equal(t, engine.Position{X: 0, Y: 0}, initial.Snapshot.Agent)

	last, err := svc.GetFrame(ctx, info.ID, info.Iterations)
	require.NoError(t, err)
	assert.Equal(t, info.FinalGrid, last.Rows)

	_, err = svc.GetFrame(ctx, info.ID, info.Iterations+1)
	assert.True(t, errors.Is(err, service.ErrFrameOutOfRange))
	_, err = svc.GetFrame(ctx, info.ID, -1)
	assert.True(t, errors.Is(err, service.ErrFrameOutOfRange))
}

func TestRunBatch(t *testing.T) {
	store := &memoryStore{}
	svc, _ := newTestService(service.WithReportStore(store))
	defer svc.Close()
	ctx := context.Background()

	base := int64(100)
	res, err := svc.RunBatch(ctx, service.BatchRequest{Runs: 6, BaseSeed: &base, Parallel: 2, Save: true})
	require.NoError(t, err)
	assert.Equal(t, "test", res.ConfigName)
	require.Len(t, res.Runs, 6)
	for i, r := range res.Runs {
		assert.Equal(t, base+int64(i), r.Config.Seed)
		assert.True(t, r.Outcome.Terminal())
	}
	assert.Equal(t, 6, res.Summary.Runs)

	total := 0
	for _, n := range res.Summary.Outcomes {
		total += n
	}
	assert.Equal(t, 6, total)

	steps, ok := res.Summary.Metric("total_steps")
	require.True(t, ok)
	assert.Equal(t, 6, steps.N)
	assert.Len(t, store.reports, 6)

	t.Run("InvalidCount", func(t *testing.T) {
		_, err := svc.RunBatch(ctx, service.BatchRequest{Runs: 0})
		assert.True(t, errors.Is(err, service.ErrInvalidRequest))
		_, err = svc.RunBatch(ctx, service.BatchRequest{Runs: service.MaxBatchRuns + 1})
		assert.True(t, errors.Is(err, service.ErrInvalidRequest))
	})
}

func TestConfigOperations(t *testing.T) {
	svc, _ := newTestService()
	defer svc.Close()
	ctx := context.Background()

	configs, err := svc.ListConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "test", configs[0].ConfigID)

	cfg := testConfig()
	cfg.Name = "saved"
	require.NoError(t, svc.SaveConfig(ctx, "saved", cfg))

	loaded, err := svc.LoadConfig(ctx, "saved")
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Name)

	bad := testConfig()
	bad.Width = 0
	err = svc.SaveConfig(ctx, "bad", bad)
	assert.True(t, errors.Is(err, service.ErrInvalidRequest))
	assert.True(t, errors.Is(err, engine.ErrInvalidSize))

	err = svc.SaveConfig(ctx, "nil", nil)
	assert.True(t, errors.Is(err, service.ErrInvalidRequest))
}

func TestRunOverridesApply(t *testing.T) {
	var nilOverrides *service.RunOverrides
	base := *testConfig()
	assert.Equal(t, base, nilOverrides.Apply(base))

	off := false
	w := 4
	got := (&service.RunOverrides{Width: &w, PathSearch: &off}).Apply(base)
	assert.Equal(t, 4, got.Width)
	require.NotNil(t, got.Tuning)
	assert.False(t, got.Tuning.PathSearch)
	assert.Nil(t, base.Tuning, "Apply must not mutate the base tuning")
	assert.True(t, strings.EqualFold(got.Name, base.Name))
}
