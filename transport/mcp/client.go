package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/cleaning-agent-sim/sim/engine"
	"github.com/wricardo/cleaning-agent-sim/sim/report"
	"github.com/wricardo/cleaning-agent-sim/sim/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Batches of large grids can take a while
			Timeout: 2 * time.Minute,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Cleaning Agent Simulator",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Cleaning Agent Simulator - MCP Interface

This is a thin client that proxies all requests to the REST API server.

A single cleaning agent (A) explores a grid with obstacles (#) and dirt (*),
spending energy on every step until all dirt is gone, it stays idle too long,
or its battery runs out.

AVAILABLE TOOLS:
- list_configs: List run presets
- run_simulation: Run a preset to completion, optionally with overrides
- get_run: Outcome, metrics and final grid of a run
- list_runs: List stored runs
- run_telemetry: Per-step records of a run with pagination
- render_frame: Grid at any iteration of a run
- run_batch: Run a preset many times with consecutive seeds and aggregate
- simulation_rules: How the agent senses, moves and spends energy

Runs are deterministic: the same preset and seed always give the same result.`),
	)

	c.registerTools()
}

func idProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Run ID",
	}
}

// overrideProperties are the preset fields a caller may replace
func overrideProperties() map[string]interface{} {
	return map[string]interface{}{
		"config_id": map[string]interface{}{
			"type":        "string",
			"description": "Preset to run (optional, defaults to the server default)",
		},
		"seed": map[string]interface{}{
			"type":        "integer",
			"description": "Random seed override",
		},
		"width": map[string]interface{}{
			"type":        "integer",
			"description": "Grid width override",
		},
		"height": map[string]interface{}{
			"type":        "integer",
			"description": "Grid height override",
		},
		"obstacle_density": map[string]interface{}{
			"type":        "number",
			"description": "Obstacle density in [0,1]",
		},
		"dirt_density": map[string]interface{}{
			"type":        "number",
			"description": "Dirt density in [0,1]",
		},
		"sensor_range": map[string]interface{}{
			"type":        "integer",
			"description": "Sensor range in cells",
		},
		"initial_energy": map[string]interface{}{
			"type":        "number",
			"description": "Starting energy",
		},
		"idle_limit": map[string]interface{}{
			"type":        "integer",
			"description": "Consecutive steps without dirt before the run stops",
		},
		"path_search": map[string]interface{}{
			"type":        "boolean",
			"description": "Enable bounded path search toward dirt in sensor range",
		},
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available run presets",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListConfigs)

	runProps := overrideProperties()
	runProps["save"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Persist the run report",
	}
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "run_simulation",
		Description: "Run a preset to completion and return its outcome, metrics and final grid",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: runProps,
		},
	}, c.handleRunSimulation)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_run",
		Description: "Get the outcome, metrics and final grid of a run",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": idProperty(),
			},
			Required: []string{"run_id"},
		},
	}, c.handleGetRun)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_runs",
		Description: "List stored runs, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum runs to return",
				},
				"outcome": map[string]interface{}{
					"type":        "string",
					"enum":        []string{string(engine.GoalComplete), string(engine.Idle), string(engine.BatteryDead)},
					"description": "Only runs with this outcome",
				},
			},
		},
	}, c.handleListRuns)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "run_telemetry",
		Description: "Per-step telemetry of a run: position, direction, dirt found, energy",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": idProperty(),
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "Page number (default 1)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Steps per page (default 20, max 100)",
				},
				"order": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"asc", "desc"},
					"description": "Step order (default asc)",
				},
			},
			Required: []string{"run_id"},
		},
	}, c.handleRunTelemetry)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "render_frame",
		Description: "Render the grid of a run at an iteration (0 is the initial grid)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": idProperty(),
				"iteration": map[string]interface{}{
					"type":        "integer",
					"description": "Iteration to render",
				},
			},
			Required: []string{"run_id", "iteration"},
		},
	}, c.handleRenderFrame)

	batchProps := overrideProperties()
	delete(batchProps, "seed")
	batchProps["runs"] = map[string]interface{}{
		"type":        "integer",
		"description": "Number of runs (1-1000)",
	}
	batchProps["base_seed"] = map[string]interface{}{
		"type":        "integer",
		"description": "Seed of the first run; run i uses base_seed+i",
	}
	batchProps["parallel"] = map[string]interface{}{
		"type":        "integer",
		"description": "Concurrent runs (default: CPU count)",
	}
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "run_batch",
		Description: "Run a preset many times with consecutive seeds and summarise outcomes and metrics",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: batchProps,
			Required:   []string{"runs"},
		},
	}, c.handleRunBatch)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "simulation_rules",
		Description: "Explain how the agent senses, decides, moves and spends energy, and when a run ends",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleSimulationRules)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// overridesFrom collects the override arguments present in the request
func overridesFrom(request mcp.CallToolRequest) *service.RunOverrides {
	args := request.GetArguments()
	o := &service.RunOverrides{}
	set := false

	intArg := func(key string) *int {
		if _, ok := args[key]; !ok {
			return nil
		}
		v := request.GetInt(key, 0)
		set = true
		return &v
	}
	floatArg := func(key string) *float64 {
		if _, ok := args[key]; !ok {
			return nil
		}
		v := request.GetFloat(key, 0)
		set = true
		return &v
	}

	o.Width = intArg("width")
	o.Height = intArg("height")
	o.SensorRange = intArg("sensor_range")
	o.IdleLimit = intArg("idle_limit")
	o.ObstacleDensity = floatArg("obstacle_density")
	o.DirtDensity = floatArg("dirt_density")
	o.InitialEnergy = floatArg("initial_energy")
	if _, ok := args["seed"]; ok {
		seed := int64(request.GetInt("seed", 0))
		o.Seed = &seed
		set = true
	}
	if _, ok := args["path_search"]; ok {
		ps := request.GetBool("path_search", true)
		o.PathSearch = &ps
		set = true
	}

	if !set {
		return nil
	}
	return o
}

// Tool handlers

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []service.ConfigInfo
	err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Presets:\n\n")
	for _, config := range configs {
		fmt.Fprintf(&b, "• %s\n  %s\n  Grid: %dx%d, Obstacles: %.0f%%, Dirt: %.0f%%, Energy: %.0f\n\n",
			config.ConfigID, config.Description, config.Width, config.Height,
			config.ObstacleDensity*100, config.DirtDensity*100, config.InitialEnergy)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleRunSimulation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body := service.RunRequest{
		ConfigID:  request.GetString("config_id", ""),
		Overrides: overridesFrom(request),
		Save:      request.GetBool("save", false),
	}

	var info service.RunInfo
	if err := c.apiCall(ctx, "POST", "/api/runs", body, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRunInfo(&info)), nil
}

func (c *Client) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var info service.RunInfo
	if err := c.apiCall(ctx, "GET", "/api/runs/"+url.PathEscape(runID), nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRunInfo(&info)), nil
}

func (c *Client) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := url.Values{}
	params.Set("sort", "created")
	if limit := request.GetInt("limit", 0); limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if outcome := request.GetString("outcome", ""); outcome != "" {
		params.Set("outcome", outcome)
	}

	var response struct {
		Count int               `json:"count"`
		Total int               `json:"total"`
		Runs  []service.RunInfo `json:"runs"`
	}

	if err := c.apiCall(ctx, "GET", "/api/runs?"+params.Encode(), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Runs (%d of %d):\n\n", response.Count, response.Total)
	for _, r := range response.Runs {
		fmt.Fprintf(&b, "- %s (Config: %s, Seed: %d, Status: %s, Outcome: %s, Iterations: %d, Created: %s)\n",
			r.ID, r.ConfigName, r.Config.Seed, r.Status, r.Outcome, r.Iterations, r.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleRunTelemetry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	params := url.Values{}
	if page := request.GetInt("page", 0); page > 0 {
		params.Set("page", fmt.Sprint(page))
	}
	if limit := request.GetInt("limit", 0); limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if order := request.GetString("order", ""); order != "" {
		params.Set("order", order)
	}

	path := fmt.Sprintf("/api/runs/%s/telemetry", url.PathEscape(runID))
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var telemetry service.TelemetryResponse
	if err := c.apiCall(ctx, "GET", path, nil, &telemetry); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatTelemetry(&telemetry)), nil
}

func (c *Client) handleRenderFrame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := request.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	iteration, err := request.RequireInt("iteration")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var frame service.FrameResponse
	path := fmt.Sprintf("/api/runs/%s/frames/%d", url.PathEscape(runID), iteration)
	if err := c.apiCall(ctx, "GET", path, nil, &frame); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s, iteration %d\n\n", frame.RunID, frame.Iteration)
	b.WriteString(formatGrid(frame.Rows))
	if frame.Snapshot != nil {
		fmt.Fprintf(&b, "\nAgent: (%d,%d)  Dirt left: %d  Path length: %d\n",
			frame.Snapshot.Agent.X, frame.Snapshot.Agent.Y, len(frame.Snapshot.Dirt), len(frame.Snapshot.Path))
	}
	b.WriteString("\nLegend: A agent, # obstacle, * dirt, o cleaned path, . clean\n")

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleRunBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := request.RequireInt("runs")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := service.BatchRequest{
		ConfigID:  request.GetString("config_id", ""),
		Overrides: overridesFrom(request),
		Runs:      runs,
		Parallel:  request.GetInt("parallel", 0),
	}
	if _, ok := request.GetArguments()["base_seed"]; ok {
		seed := int64(request.GetInt("base_seed", 0))
		body.BaseSeed = &seed
	}

	var result service.BatchResult
	if err := c.apiCall(ctx, "POST", "/api/batches", body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatBatch(&result)), nil
}

func (c *Client) handleSimulationRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t := engine.DefaultTuning()
	rules := fmt.Sprintf(`Cleaning Agent Simulator - Rules

GRID LEGEND:
• A = Agent
• # = Obstacle (never entered)
• * = Dirt
• o = Clean cell on the agent's path
• . = Clean cell

EACH STEP:
1. Scan the 8 neighbouring cells (fewer at the border). Obstacles seen are recorded.
2. Choose a destination in priority order:
   a. A random unvisited dirty neighbour
   b. A random visited dirty neighbour
   c. The first step of a bounded path search toward the nearest dirt in sensor range
   d. A random unvisited clean neighbour
   e. A random visited clean neighbour, or stay put when boxed in
3. Arriving on dirt cleans it. The cell the agent leaves is clean.

ENERGY COSTS (default tuning):
• Straight move: %.1f
• Diagonal move: %.1f
• Staying put: 0
• Scan: %.1f every step
• Cleaning effort: %.1f x uniform(%.1f, %.1f) every step

TERMINATION (checked before every step, first match wins):
1. goal_complete (code 2): the grid started with dirt and none is left
2. idle (code 0): the agent went idle_limit steps in a row without finding dirt
3. battery_dead (code 1): energy reached 0

PATH SEARCH:
Breadth-first over the square window of sensor_range around the agent,
avoiding obstacles. Only the first step is taken, then the agent re-plans.
If the dirt is unreachable inside the window the agent takes a random step
from the furthest point explored.

METRICS:
• percent_dirt_cleaned, dirt_cleaned_per_step, coverage_efficiency
• energy_per_dirt_spot, energy_per_step, percent_energy_consumed
A ratio with a zero denominator is reported as null (undefined).

REPRODUCIBILITY:
A preset plus a seed fully determines the run, including every frame.
`, t.MoveStraight, t.MoveDiagonal, t.Scan, t.CleanBase, t.CleanEffortMin, t.CleanEffortMax)

	return mcp.NewToolResultText(rules), nil
}

// Formatting helpers

func formatGrid(rows []string) string {
	if len(rows) == 0 {
		return "(no grid)\n"
	}
	return strings.Join(rows, "\n") + "\n"
}

func formatRunInfo(info *service.RunInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\nConfig: %s (seed %d, %dx%d)\nStatus: %s\n",
		info.ID, info.ConfigName, info.Config.Seed, info.Config.Width, info.Config.Height, info.Status)

	switch info.Outcome {
	case engine.GoalComplete:
		b.WriteString("🎉 GOAL COMPLETE: all dirt cleaned\n")
	case engine.Idle:
		b.WriteString("💤 IDLE: no dirt found for too long\n")
	case engine.BatteryDead:
		b.WriteString("🔋 BATTERY DEAD: energy exhausted\n")
	default:
		fmt.Fprintf(&b, "Outcome: %s\n", info.Outcome)
	}
	fmt.Fprintf(&b, "Iterations: %d (%d ms)\n", info.Iterations, info.ElapsedMS)
	if info.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", info.Error)
	}

	if m := info.Metrics; m != nil {
		b.WriteString("\nInitial conditions:\n")
		fmt.Fprintf(&b, "  Dirty spots: %d, Obstacles: %d, Energy: %.2f\n",
			m.Initial.DirtySpots, m.Initial.Obstacles, m.Initial.Energy)
		b.WriteString("Final state:\n")
		fmt.Fprintf(&b, "  Cleaned: %d, Pending: %d, Steps: %d, Cells visited: %d, Obstacle encounters: %d\n",
			m.Final.DirtCleaned, m.Final.PendingDirt, m.Final.TotalSteps, m.Final.UniqueCellsVisited, m.Final.ObstacleEncounters)
		fmt.Fprintf(&b, "  Energy left: %.2f, Consumed: %.2f\n", m.Final.Energy, m.Final.EnergyConsumed)
		b.WriteString("Performance:\n")
		p := m.Performance
		fmt.Fprintf(&b, "  Dirt cleaned: %s%%\n", p.PercentDirtCleaned)
		fmt.Fprintf(&b, "  Energy consumed: %s%%\n", p.PercentEnergyConsumed)
		fmt.Fprintf(&b, "  Dirt per step: %s\n", p.DirtCleanedPerStep)
		fmt.Fprintf(&b, "  Coverage efficiency: %s\n", p.CoverageEfficiency)
		fmt.Fprintf(&b, "  Energy per dirt spot: %s\n", p.EnergyPerDirtSpot)
		fmt.Fprintf(&b, "  Energy per step: %s\n", p.EnergyPerStep)
	}
	if len(info.UndefinedMetrics) > 0 {
		fmt.Fprintf(&b, "Undefined: %s\n", strings.Join(info.UndefinedMetrics, ", "))
	}

	if len(info.FinalGrid) > 0 {
		b.WriteString("\nFinal grid:\n")
		b.WriteString(formatGrid(info.FinalGrid))
	}
	return b.String()
}

func formatTelemetry(t *service.TelemetryResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Telemetry for %s (Page %d/%d) - Total steps: %d\n\n",
		t.RunID, t.Page, t.TotalPages, t.TotalSteps)

	for _, s := range t.Steps {
		status := "·"
		if s.DirtFound {
			status = "✓"
		}
		move := s.Direction
		if !s.Moved {
			move = "STAY"
		}
		fmt.Fprintf(&b, "%d. %s (%d,%d)->(%d,%d) %s cost=%.2f energy=%.2f dirt_left=%d\n",
			s.Iteration, move, s.From.X, s.From.Y, s.To.X, s.To.Y, status, s.StepCost, s.Energy, s.RemainingDirt)
	}
	if t.HasNext {
		fmt.Fprintf(&b, "\nMore steps on page %d\n", t.Page+1)
	}
	return b.String()
}

func formatBatch(result *service.BatchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch of %d runs on %s\n\n", result.Summary.Runs, result.ConfigName)
	if err := report.WriteTable(&b, result.Summary); err != nil {
		fmt.Fprintf(&b, "failed to render summary: %v\n", err)
	}
	return b.String()
}
