package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wricardo/cleaning-agent-sim/logging"
	"github.com/wricardo/cleaning-agent-sim/sim/engine"
	"github.com/wricardo/cleaning-agent-sim/sim/service"
	"github.com/wricardo/cleaning-agent-sim/transport/websocket"
)

// Server represents the REST API server
type Server struct {
	service service.RunService
	hub     *websocket.Hub
	router  *mux.Router
}

// NewServer creates a new API server
func NewServer(runService service.RunService, hub *websocket.Hub) *Server {
	s := &Server{
		service: runService,
		hub:     hub,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Runs
	api.HandleFunc("/runs", s.handleStartRun).Methods("POST")
	api.HandleFunc("/runs", s.handleListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handleDeleteRun).Methods("DELETE")

	// Results
	api.HandleFunc("/runs/{id}/metrics", s.handleGetMetrics).Methods("GET")
	api.HandleFunc("/runs/{id}/telemetry", s.handleGetTelemetry).Methods("GET")
	api.HandleFunc("/runs/{id}/frames/{iteration}", s.handleGetFrame).Methods("GET")

	// Batches
	api.HandleFunc("/batches", s.handleRunBatch).Methods("POST")

	// Configuration
	api.HandleFunc("/configs", s.handleListConfigs).Methods("GET")
	api.HandleFunc("/configs", s.handleCreateConfig).Methods("POST")
	api.HandleFunc("/configs/{name}", s.handleGetConfig).Methods("GET")

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps service and engine errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrRunNotFound), errors.Is(err, service.ErrConfigNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrIterationCap):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrFrameOutOfRange),
		errors.Is(err, engine.ErrInvalidSize),
		errors.Is(err, engine.ErrInvalidDensity),
		errors.Is(err, engine.ErrOutOfBoundsStart),
		errors.Is(err, engine.ErrInvalidConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Error().
			Add(logging.Component("api")).
			Add(logging.Str("path", r.URL.Path)).
			Add(logging.ErrorField(err)).
			Msg("request failed")
	}
	respondError(w, status, err.Error())
}

// Run Handlers

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req service.RunRequest

	// An empty body starts the default preset
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	info, err := s.service.StartRun(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if req.Async {
		status = http.StatusAccepted
	}

	logging.Info().
		Add(logging.Component("api")).
		Add(logging.RunID(info.ID)).
		Add(logging.ConfigName(info.ConfigName)).
		Add(logging.Str("status", string(info.Status))).
		Msg("run requested")

	respondJSON(w, status, info)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.ListRuns(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	total := len(runs)

	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "accessed" (default)
	order := query.Get("order")    // "asc", "desc" (default: "desc")
	limitStr := query.Get("limit") // number of runs to return

	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}

	if outcome := query.Get("outcome"); outcome != "" {
		filtered := runs[:0]
		for _, run := range runs {
			if string(run.Outcome) == outcome {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}

	sort.SliceStable(runs, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = runs[i].CreatedAt, runs[j].CreatedAt
		} else {
			ti, tj = runs[i].LastAccessedAt, runs[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	limit := len(runs)
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(runs) {
			limit = l
		}
	}
	runs = runs[:limit]

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(runs),
		"total": total,
		"runs":  runs,
		"sort":  sortBy,
		"order": order,
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	info, err := s.service.GetRun(r.Context(), runID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	if err := s.service.DeleteRun(r.Context(), runID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Run %s deleted", runID),
	})
}

// Result Handlers

func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	metrics, err := s.service.GetMetrics(r.Context(), runID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleGetTelemetry(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	opts := service.TelemetryOptions{
		Page:  1,
		Limit: 20,
		Order: "asc",
	}

	query := r.URL.Query()
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			opts.Page = p
		}
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			opts.Limit = l
		}
	}

	if order := query.Get("order"); order == "asc" || order == "desc" {
		opts.Order = order
	}

	telemetry, err := s.service.GetTelemetry(r.Context(), runID, opts)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, telemetry)
}

func (s *Server) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	runID := vars["id"]

	iteration, err := strconv.Atoi(vars["iteration"])
	if err != nil || iteration < 0 {
		respondError(w, http.StatusBadRequest, "iteration must be a non-negative integer")
		return
	}

	frame, err := s.service.GetFrame(r.Context(), runID, iteration)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, strings.Join(frame.Rows, "\n"))
		return
	}

	respondJSON(w, http.StatusOK, frame)
}

// Batch Handler

func (s *Server) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	var req service.BatchRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := s.service.RunBatch(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	logging.Info().
		Add(logging.Component("api")).
		Add(logging.ConfigName(result.ConfigName)).
		Add(logging.Count("runs", result.Summary.Runs)).
		Msg("batch finished")

	respondJSON(w, http.StatusOK, result)
}

// Configuration Handlers

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.service.ListConfigs(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, configs)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	configName := mux.Vars(r)["name"]

	// Extensions are resolved by the config manager
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		configName = strings.TrimSuffix(configName, ext)
	}

	config, err := s.service.LoadConfig(r.Context(), configName)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, config)
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var runConfig engine.RunConfig

	if err := json.NewDecoder(r.Body).Decode(&runConfig); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if runConfig.Name == "" {
		respondError(w, http.StatusBadRequest, "Config name is required")
		return
	}

	if err := s.service.SaveConfig(r.Context(), runConfig.Name, &runConfig); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":   "Configuration saved successfully",
		"config_id": runConfig.Name,
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run")
	if runID == "" {
		http.Error(w, "run parameter required", http.StatusBadRequest)
		return
	}

	if _, err := s.service.GetRun(r.Context(), runID); err != nil {
		http.Error(w, "Invalid run", http.StatusNotFound)
		return
	}

	s.hub.ServeWS(w, r, runID)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "healthy",
	}
	if s.hub != nil {
		resp["ws_clients"] = s.hub.ClientCount()
		resp["ws_dropped"] = s.hub.Dropped()
	}
	respondJSON(w, http.StatusOK, resp)
}
