// Package mcp exposes the simulator to AI agents over the Model Context Protocol.
//
// The client is a thin proxy: every tool call becomes a REST request against
// the api package, so stdio and HTTP transports see the same runs.
//
// MCP Tools:
//   - list_configs: List run presets
//   - run_simulation: Run a preset (with optional overrides) to completion
//   - get_run: Outcome, metrics and final grid of a run
//   - list_runs: Stored runs, optionally filtered by outcome
//   - run_telemetry: Paginated per-step records
//   - render_frame: Grid at any iteration, rebuilt by deterministic replay
//   - run_batch: N runs with consecutive seeds plus an aggregate table
//   - simulation_rules: Decision priorities, energy costs and termination rules
//
// Transport Modes:
//   - Stdio: cleansim mcp
//   - HTTP: POST /mcp on cleansim server
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
