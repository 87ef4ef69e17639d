// Package api provides the HTTP REST API for the cleaning agent simulator.
//
// Endpoints:
//
// Runs:
//   - POST /api/runs - Start a run (sync by default, "async": true streams over /ws)
//   - GET /api/runs - List runs (sort=created|accessed, order=asc|desc, limit, outcome)
//   - GET /api/runs/{id} - Get run details including the final grid
//   - DELETE /api/runs/{id} - Delete a finished run
//
// Results:
//   - GET /api/runs/{id}/metrics - Initial conditions, final state and performance metrics
//   - GET /api/runs/{id}/telemetry - Per-step records with pagination (page, limit, order)
//   - GET /api/runs/{id}/frames/{iteration} - Grid at an iteration (format=text for plain rows)
//
// Batches:
//   - POST /api/batches - Run a preset N times with consecutive seeds and aggregate
//
// Configuration:
//   - GET /api/configs - List presets
//   - GET /api/configs/{name} - Load a preset
//   - POST /api/configs - Save a preset
//
// Other:
//   - GET /api/health - Liveness plus websocket counters
//   - GET /ws?run={id} - Live step stream for a run
//
// Start request:
//
//	{
//	  "config_id": "classic",
//	  "overrides": {"seed": 7, "initial_energy": 300},
//	  "async": false,
//	  "capture_frames": false,
//	  "save": true
//	}
//
// Errors are returned as JSON:
//
//	{"error": "run not found: 'abc'"}
//
// Status codes: 400 for invalid requests, configs and frame ranges; 404 for
// unknown runs and presets; 409 when a run is still in progress; 422 when a
// run hits the iteration cap.
package api
