package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wricardo/cleaning-agent-sim/sim/engine"
	"github.com/wricardo/cleaning-agent-sim/sim/report"
	"github.com/wricardo/cleaning-agent-sim/sim/service"
	"github.com/wricardo/cleaning-agent-sim/transport/websocket"
)

// MockRunService implements service.RunService for testing
type MockRunService struct {
	StartRunFunc     func(ctx context.Context, req service.RunRequest) (*service.RunInfo, error)
	GetRunFunc       func(ctx context.Context, runID string) (*service.RunInfo, error)
	ListRunsFunc     func(ctx context.Context) ([]*service.RunInfo, error)
	DeleteRunFunc    func(ctx context.Context, runID string) error
	GetMetricsFunc   func(ctx context.Context, runID string) (*service.MetricsResponse, error)
	GetTelemetryFunc func(ctx context.Context, runID string, opts service.TelemetryOptions) (*service.TelemetryResponse, error)
	GetFrameFunc     func(ctx context.Context, runID string, iteration int) (*service.FrameResponse, error)
	RunBatchFunc     func(ctx context.Context, req service.BatchRequest) (*service.BatchResult, error)
	ListConfigsFunc  func(ctx context.Context) ([]*service.ConfigInfo, error)
	LoadConfigFunc   func(ctx context.Context, configName string) (*engine.RunConfig, error)
	SaveConfigFunc   func(ctx context.Context, configName string, config *engine.RunConfig) error
}

func (m *MockRunService) StartRun(ctx context.Context, req service.RunRequest) (*service.RunInfo, error) {
	if m.StartRunFunc != nil {
		return m.StartRunFunc(ctx, req)
	}
	return &service.RunInfo{
		ID:         "test-run",
		ConfigName: "classic",
		Status:     service.StatusCompleted,
		Outcome:    engine.GoalComplete,
		CreatedAt:  time.Now(),
	}, nil
}

func (m *MockRunService) GetRun(ctx context.Context, runID string) (*service.RunInfo, error) {
	if m.GetRunFunc != nil {
		return m.GetRunFunc(ctx, runID)
	}
	return &service.RunInfo{ID: runID, ConfigName: "classic", CreatedAt: time.Now()}, nil
}

func (m *MockRunService) ListRuns(ctx context.Context) ([]*service.RunInfo, error) {
	if m.ListRunsFunc != nil {
		return m.ListRunsFunc(ctx)
	}
	return []*service.RunInfo{}, nil
}

func (m *MockRunService) DeleteRun(ctx context.Context, runID string) error {
	if m.DeleteRunFunc != nil {
		return m.DeleteRunFunc(ctx, runID)
	}
	return nil
}

func (m *MockRunService) GetMetrics(ctx context.Context, runID string) (*service.MetricsResponse, error) {
	if m.GetMetricsFunc != nil {
		return m.GetMetricsFunc(ctx, runID)
	}
	return &service.MetricsResponse{RunID: runID, Metrics: &engine.Metrics{}}, nil
}

func (m *MockRunService) GetTelemetry(ctx context.Context, runID string, opts service.TelemetryOptions) (*service.TelemetryResponse, error) {
	if m.GetTelemetryFunc != nil {
		return m.GetTelemetryFunc(ctx, runID, opts)
	}
	return &service.TelemetryResponse{RunID: runID, Page: opts.Page, PageSize: opts.Limit, TotalPages: 1}, nil
}

func (m *MockRunService) GetFrame(ctx context.Context, runID string, iteration int) (*service.FrameResponse, error) {
	if m.GetFrameFunc != nil {
		return m.GetFrameFunc(ctx, runID, iteration)
	}
	return &service.FrameResponse{RunID: runID, Iteration: iteration, Rows: []string{"A.", "*#"}}, nil
}

func (m *MockRunService) RunBatch(ctx context.Context, req service.BatchRequest) (*service.BatchResult, error) {
	if m.RunBatchFunc != nil {
		return m.RunBatchFunc(ctx, req)
	}
	return &service.BatchResult{ConfigName: "classic", Summary: report.Aggregate(nil)}, nil
}

func (m *MockRunService) ListConfigs(ctx context.Context) ([]*service.ConfigInfo, error) {
	if m.ListConfigsFunc != nil {
		return m.ListConfigsFunc(ctx)
	}
	return []*service.ConfigInfo{}, nil
}

func (m *MockRunService) LoadConfig(ctx context.Context, configName string) (*engine.RunConfig, error) {
	if m.LoadConfigFunc != nil {
		return m.LoadConfigFunc(ctx, configName)
	}
	cfg := engine.DefaultRunConfig()
	cfg.Name = configName
	return &cfg, nil
}

func (m *MockRunService) SaveConfig(ctx context.Context, configName string, config *engine.RunConfig) error {
	if m.SaveConfigFunc != nil {
		return m.SaveConfigFunc(ctx, configName, config)
	}
	return nil
}

func (m *MockRunService) Close() error { return nil }

// Test helpers
func setupTestServer(t *testing.T, mockService *MockRunService) *Server {
	t.Helper()
	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	return NewServer(mockService, hub)
}

func makeRequest(method, path string, body interface{}) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewBuffer(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
}

func serve(t *testing.T, mockService *MockRunService, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	server := setupTestServer(t, mockService)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

// Run Tests

func TestStartRun(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    interface{}
		setupMock      func(*testing.T, *MockRunService)
		expectedStatus int
		validateResp   func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:           "Start run with default config",
			requestBody:    nil,
			expectedStatus: http.StatusCreated,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp service.RunInfo
				parseResponse(t, w, &resp)
				if resp.ID != "test-run" {
					t.Errorf("Expected run ID test-run, got %s", resp.ID)
				}
				if resp.Outcome != engine.GoalComplete {
					t.Errorf("Expected outcome goal_complete, got %s", resp.Outcome)
				}
			},
		},
		{
			name: "Start run with overrides",
			requestBody: map[string]interface{}{
				"config_id": "cluttered",
				"overrides": map[string]interface{}{"seed": 9, "initial_energy": 50},
				"save":      true,
			},
			setupMock: func(t *testing.T, m *MockRunService) {
				m.StartRunFunc = func(ctx context.Context, req service.RunRequest) (*service.RunInfo, error) {
					if req.ConfigID != "cluttered" {
						t.Errorf("Expected config cluttered, got %s", req.ConfigID)
					}
					if req.Overrides == nil || req.Overrides.Seed == nil || *req.Overrides.Seed != 9 {
						t.Errorf("Seed override not decoded: %+v", req.Overrides)
					}
					if req.Overrides != nil && (req.Overrides.InitialEnergy == nil || *req.Overrides.InitialEnergy != 50) {
						t.Errorf("Energy override not decoded: %+v", req.Overrides)
					}
					if !req.Save {
						t.Error("Expected save flag")
					}
					return &service.RunInfo{ID: "r1", ConfigName: req.ConfigID}, nil
				}
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:        "Async run is accepted",
			requestBody: map[string]interface{}{"async": true},
			setupMock: func(t *testing.T, m *MockRunService) {
				m.StartRunFunc = func(ctx context.Context, req service.RunRequest) (*service.RunInfo, error) {
					return &service.RunInfo{ID: "r2", Status: service.StatusRunning}, nil
				}
			},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:        "Unknown config",
			requestBody: map[string]string{"config_id": "missing"},
			setupMock: func(t *testing.T, m *MockRunService) {
				m.StartRunFunc = func(ctx context.Context, req service.RunRequest) (*service.RunInfo, error) {
					return nil, fmt.Errorf("%w: 'missing'", service.ErrConfigNotFound)
				}
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:        "Invalid override",
			requestBody: map[string]interface{}{"overrides": map[string]interface{}{"width": 0}},
			setupMock: func(t *testing.T, m *MockRunService) {
				m.StartRunFunc = func(ctx context.Context, req service.RunRequest) (*service.RunInfo, error) {
					return nil, fmt.Errorf("%w: %w", service.ErrInvalidRequest, engine.ErrInvalidSize)
				}
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:        "Iteration cap",
			requestBody: nil,
			setupMock: func(t *testing.T, m *MockRunService) {
				m.StartRunFunc = func(ctx context.Context, req service.RunRequest) (*service.RunInfo, error) {
					return nil, fmt.Errorf("run r3: %w", service.ErrIterationCap)
				}
			},
			expectedStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockRunService{}
			if tt.setupMock != nil {
				tt.setupMock(t, mockService)
			}

			w := serve(t, mockService, makeRequest("POST", "/api/runs", tt.requestBody))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.validateResp != nil {
				tt.validateResp(t, w)
			}
		})
	}
}

func TestStartRunInvalidBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/runs", strings.NewReader("{not json"))
	w := serve(t, &MockRunService{}, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestListRuns(t *testing.T) {
	now := time.Now()
	runs := func() []*service.RunInfo {
		return []*service.RunInfo{
			{ID: "a", Outcome: engine.Idle, CreatedAt: now.Add(-3 * time.Hour), LastAccessedAt: now.Add(-1 * time.Hour)},
			{ID: "b", Outcome: engine.GoalComplete, CreatedAt: now.Add(-2 * time.Hour), LastAccessedAt: now.Add(-3 * time.Hour)},
			{ID: "c", Outcome: engine.Idle, CreatedAt: now.Add(-1 * time.Hour), LastAccessedAt: now.Add(-2 * time.Hour)},
		}
	}

	tests := []struct {
		name        string
		query       string
		expectedIDs []string
	}{
		{name: "Default sort by accessed desc", query: "", expectedIDs: []string{"a", "c", "b"}},
		{name: "Sort by created asc", query: "?sort=created&order=asc", expectedIDs: []string{"a", "b", "c"}},
		{name: "Limit", query: "?sort=created&limit=2", expectedIDs: []string{"c", "b"}},
		{name: "Filter by outcome", query: "?outcome=idle&sort=created", expectedIDs: []string{"c", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockRunService{
				ListRunsFunc: func(ctx context.Context) ([]*service.RunInfo, error) {
					return runs(), nil
				},
			}

			w := serve(t, mockService, makeRequest("GET", "/api/runs"+tt.query, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}

			var resp struct {
				Count int               `json:"count"`
				Total int               `json:"total"`
				Runs  []service.RunInfo `json:"runs"`
			}
			parseResponse(t, w, &resp)

			if resp.Total != 3 {
				t.Errorf("Expected total 3, got %d", resp.Total)
			}
			if resp.Count != len(tt.expectedIDs) {
				t.Fatalf("Expected %d runs, got %d", len(tt.expectedIDs), resp.Count)
			}
			for i, id := range tt.expectedIDs {
				if resp.Runs[i].ID != id {
					t.Errorf("Position %d: expected %s, got %s", i, id, resp.Runs[i].ID)
				}
			}
		})
	}
}

func TestGetRun(t *testing.T) {
	mockService := &MockRunService{
		GetRunFunc: func(ctx context.Context, runID string) (*service.RunInfo, error) {
			if runID == "known" {
				return &service.RunInfo{ID: runID, FinalGrid: []string{"A."}}, nil
			}
			return nil, fmt.Errorf("%w: '%s'", service.ErrRunNotFound, runID)
		},
	}

	w := serve(t, mockService, makeRequest("GET", "/api/runs/known", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp service.RunInfo
	parseResponse(t, w, &resp)
	if len(resp.FinalGrid) != 1 || resp.FinalGrid[0] != "A." {
		t.Errorf("Unexpected final grid %v", resp.FinalGrid)
	}

	w = serve(t, mockService, makeRequest("GET", "/api/runs/unknown", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestDeleteRun(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{name: "Deleted", err: nil, expectedStatus: http.StatusOK},
		{name: "Not found", err: service.ErrRunNotFound, expectedStatus: http.StatusNotFound},
		{name: "In progress", err: service.ErrRunInProgress, expectedStatus: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockRunService{
				DeleteRunFunc: func(ctx context.Context, runID string) error {
					return tt.err
				},
			}

			w := serve(t, mockService, makeRequest("DELETE", "/api/runs/r1", nil))
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

// Result Tests

func TestGetMetrics(t *testing.T) {
	mockService := &MockRunService{
		GetMetricsFunc: func(ctx context.Context, runID string) (*service.MetricsResponse, error) {
			return &service.MetricsResponse{
				RunID:   runID,
				Outcome: engine.BatteryDead,
				Metrics: &engine.Metrics{
					Final: engine.FinalState{TotalSteps: 12, DirtCleaned: 3},
				},
				UndefinedMetrics: []string{"energy_per_dirt_spot"},
			}, nil
		},
	}

	w := serve(t, mockService, makeRequest("GET", "/api/runs/r1/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	parseResponse(t, w, &resp)
	metrics, ok := resp["metrics"].(map[string]interface{})
	if !ok {
		t.Fatalf("metrics missing: %v", resp)
	}
	for _, section := range []string{"initial_conditions", "current_state", "performance_metrics"} {
		if _, ok := metrics[section]; !ok {
			t.Errorf("Expected metrics section %s", section)
		}
	}

	mockService.GetMetricsFunc = func(ctx context.Context, runID string) (*service.MetricsResponse, error) {
		return nil, service.ErrRunInProgress
	}
	w = serve(t, mockService, makeRequest("GET", "/api/runs/r1/metrics", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestGetTelemetry(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected service.TelemetryOptions
	}{
		{name: "Defaults", query: "", expected: service.TelemetryOptions{Page: 1, Limit: 20, Order: "asc"}},
		{name: "Explicit", query: "?page=3&limit=5&order=desc", expected: service.TelemetryOptions{Page: 3, Limit: 5, Order: "desc"}},
		{name: "Invalid values fall back", query: "?page=-1&limit=abc&order=sideways", expected: service.TelemetryOptions{Page: 1, Limit: 20, Order: "asc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got service.TelemetryOptions
			mockService := &MockRunService{
				GetTelemetryFunc: func(ctx context.Context, runID string, opts service.TelemetryOptions) (*service.TelemetryResponse, error) {
					got = opts
					return &service.TelemetryResponse{RunID: runID}, nil
				},
			}

			w := serve(t, mockService, makeRequest("GET", "/api/runs/r1/telemetry"+tt.query, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}
			if got != tt.expected {
				t.Errorf("Expected options %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestGetFrame(t *testing.T) {
	mockService := &MockRunService{
		GetFrameFunc: func(ctx context.Context, runID string, iteration int) (*service.FrameResponse, error) {
			if iteration > 10 {
				return nil, fmt.Errorf("%w: %d", service.ErrFrameOutOfRange, iteration)
			}
			return &service.FrameResponse{RunID: runID, Iteration: iteration, Rows: []string{"A*", ".#"}}, nil
		},
	}

	t.Run("JSON", func(t *testing.T) {
		w := serve(t, mockService, makeRequest("GET", "/api/runs/r1/frames/4", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var resp service.FrameResponse
		parseResponse(t, w, &resp)
		if resp.Iteration != 4 || len(resp.Rows) != 2 {
			t.Errorf("Unexpected frame %+v", resp)
		}
	})

	t.Run("Text", func(t *testing.T) {
		w := serve(t, mockService, makeRequest("GET", "/api/runs/r1/frames/0?format=text", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		if w.Body.String() != "A*\n.#\n" {
			t.Errorf("Unexpected text frame %q", w.Body.String())
		}
	})

	t.Run("Out of range", func(t *testing.T) {
		w := serve(t, mockService, makeRequest("GET", "/api/runs/r1/frames/99", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})

	t.Run("Not a number", func(t *testing.T) {
		w := serve(t, mockService, makeRequest("GET", "/api/runs/r1/frames/last", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}

// Batch Tests

func TestRunBatch(t *testing.T) {
	mockService := &MockRunService{
		RunBatchFunc: func(ctx context.Context, req service.BatchRequest) (*service.BatchResult, error) {
			if req.Runs <= 0 {
				return nil, fmt.Errorf("%w: runs must be positive", service.ErrInvalidRequest)
			}
			entries := make([]report.Entry, req.Runs)
			for i := range entries {
				entries[i] = report.Entry{Outcome: engine.GoalComplete, Metrics: &engine.Metrics{}}
			}
			return &service.BatchResult{ConfigName: req.ConfigID, Summary: report.Aggregate(entries)}, nil
		},
	}

	w := serve(t, mockService, makeRequest("POST", "/api/batches", map[string]interface{}{"config_id": "classic", "runs": 4}))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp service.BatchResult
	parseResponse(t, w, &resp)
	if resp.Summary.Runs != 4 || resp.Summary.Outcomes[string(engine.GoalComplete)] != 4 {
		t.Errorf("Unexpected summary %+v", resp.Summary)
	}

	w = serve(t, mockService, makeRequest("POST", "/api/batches", map[string]interface{}{"runs": 0}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

// Configuration Tests

func TestListConfigs(t *testing.T) {
	mockService := &MockRunService{
		ListConfigsFunc: func(ctx context.Context) ([]*service.ConfigInfo, error) {
			return []*service.ConfigInfo{
				{ConfigID: "classic", Name: "classic", Width: 10, Height: 10},
				{ConfigID: "dense", Name: "dense", Width: 20, Height: 20},
			}, nil
		},
	}

	w := serve(t, mockService, makeRequest("GET", "/api/configs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp []service.ConfigInfo
	parseResponse(t, w, &resp)
	if len(resp) != 2 {
		t.Errorf("Expected 2 configs, got %d", len(resp))
	}
}

func TestGetConfig(t *testing.T) {
	var requested string
	mockService := &MockRunService{
		LoadConfigFunc: func(ctx context.Context, configName string) (*engine.RunConfig, error) {
			requested = configName
			if configName == "missing" {
				return nil, service.ErrConfigNotFound
			}
			cfg := engine.DefaultRunConfig()
			cfg.Name = configName
			return &cfg, nil
		},
	}

	w := serve(t, mockService, makeRequest("GET", "/api/configs/dense.yaml", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if requested != "dense" {
		t.Errorf("Expected extension to be stripped, got %s", requested)
	}

	w = serve(t, mockService, makeRequest("GET", "/api/configs/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestCreateConfig(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		saveErr        error
		expectedStatus int
	}{
		{
			name:           "Valid config",
			body:           map[string]interface{}{"name": "custom", "width": 5, "height": 5, "sensor_range": 2, "initial_energy": 100, "idle_limit": 10},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Missing name",
			body:           map[string]interface{}{"width": 5},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Rejected by validation",
			body:           map[string]interface{}{"name": "broken", "width": 0},
			saveErr:        fmt.Errorf("%w: %w", service.ErrInvalidRequest, engine.ErrInvalidSize),
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockRunService{
				SaveConfigFunc: func(ctx context.Context, configName string, config *engine.RunConfig) error {
					if configName != config.Name {
						t.Errorf("Name mismatch: %s vs %s", configName, config.Name)
					}
					return tt.saveErr
				},
			}

			w := serve(t, mockService, makeRequest("POST", "/api/configs", tt.body))
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

// Misc Tests

func TestHealth(t *testing.T) {
	w := serve(t, &MockRunService{}, makeRequest("GET", "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp map[string]interface{}
	parseResponse(t, w, &resp)
	if resp["status"] != "healthy" {
		t.Errorf("Expected healthy, got %v", resp["status"])
	}
}

func TestWebSocketRequiresRun(t *testing.T) {
	mockService := &MockRunService{
		GetRunFunc: func(ctx context.Context, runID string) (*service.RunInfo, error) {
			return nil, service.ErrRunNotFound
		},
	}

	w := serve(t, mockService, makeRequest("GET", "/ws", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 without run, got %d", w.Code)
	}

	w = serve(t, mockService, makeRequest("GET", "/ws?run=nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown run, got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{service.ErrRunNotFound, http.StatusNotFound},
		{service.ErrConfigNotFound, http.StatusNotFound},
		{service.ErrRunInProgress, http.StatusConflict},
		{service.ErrIterationCap, http.StatusUnprocessableEntity},
		{service.ErrFrameOutOfRange, http.StatusBadRequest},
		{engine.ErrInvalidDensity, http.StatusBadRequest},
		{engine.ErrOutOfBoundsStart, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", service.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.expected {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.expected)
		}
	}
}
