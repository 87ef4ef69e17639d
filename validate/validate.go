// Package validate checks run preset files before they are used. It checks:
//   - JSON or YAML structure
//   - Grid size, densities, start position, energy and idle limit
//   - Layout characters and row widths for fixed maps ('.', '#', '*')
//   - Reachability: dirt that no path from the start can reach
//   - Energy: a battery too small to survive the first step
package validate

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/cleaning-agent-sim/sim/config"
	"github.com/wricardo/cleaning-agent-sim/sim/engine"
)

// Result captures the outcome of validating a single file.
// Warnings never make a preset invalid; Info is only filled for valid presets.
type Result struct {
	File     string   `json:"file"`
	Name     string   `json:"name,omitempty"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Info     []string `json:"info,omitempty"`
}

func (r *Result) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// File loads and validates a single preset file
func File(path string) Result {
	result := Result{File: filepath.Base(path), Valid: true}

	data, err := os.ReadFile(path)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	cfg, err := config.Decode(path, data)
	if err != nil {
		result.fail("%v", err)
		return result
	}
	result.Name = cfg.Name
	if result.Name == "" {
		result.Name = strings.TrimSuffix(result.File, filepath.Ext(result.File))
	}

	Config(*cfg, &result)
	return result
}

// Config validates an already decoded preset into result
func Config(cfg engine.RunConfig, result *Result) {
	if err := engine.ValidateRunConfig(cfg); err != nil {
		result.fail("%v", err)
		return
	}

	var env *engine.Environment
	if len(cfg.Layout) > 0 {
		var err error
		env, err = engine.FromLayout(cfg.Layout)
		if err != nil {
			result.fail("%v", err)
			return
		}
		if env.Grid().At(cfg.Start) == engine.Obstacle {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Start (%d,%d) is an obstacle in the layout; it is cleared when the agent is placed", cfg.Start.X, cfg.Start.Y))
		}
		checkReachability(env, cfg.Start, result)
	}

	tuning := cfg.EffectiveTuning()
	if cfg.InitialEnergy < tuning.MinStepCost() {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("initial_energy %.2f is below the cheapest step (%.2f); the battery dies on the first step", cfg.InitialEnergy, tuning.MinStepCost()))
	}

	if !result.Valid {
		return
	}

	result.Info = append(result.Info, fmt.Sprintf("✓ Name: %s", cfg.Name))
	result.Info = append(result.Info, fmt.Sprintf("✓ Grid: %dx%d", cfg.Width, cfg.Height))
	if env != nil {
		result.Info = append(result.Info, fmt.Sprintf("✓ Layout: %d obstacles, %d dirty cells", len(env.InitialObstacles()), len(env.InitialDirt())))
	} else {
		total := float64(cfg.Width * cfg.Height)
		obstacles := int(math.Floor(total * cfg.ObstacleDensity))
		dirt := int(math.Floor(total * cfg.DirtDensity))
		if obstacles+dirt > int(total) {
			dirt = int(total) - obstacles
		}
		result.Info = append(result.Info, fmt.Sprintf("✓ Random: %d obstacles, %d dirty cells", obstacles, dirt))
		if dirt == 0 {
			result.Warnings = append(result.Warnings, "No dirt is generated; the run can only end idle or with a dead battery")
		}
	}
	result.Info = append(result.Info, fmt.Sprintf("✓ Start: (%d,%d)", cfg.Start.X, cfg.Start.Y))
	result.Info = append(result.Info, fmt.Sprintf("✓ Energy: %.2f, Sensor range: %d, Idle limit: %d", cfg.InitialEnergy, cfg.SensorRange, cfg.IdleLimit))
}

// checkReachability floods from start over non-obstacle cells using the
// agent's eight move directions and reports dirt left outside the flood.
func checkReachability(env *engine.Environment, start engine.Position, result *Result) {
	grid := env.Grid()
	dirt := env.InitialDirt()
	if len(dirt) == 0 {
		result.Warnings = append(result.Warnings, "Layout has no dirt; the run can only end idle or with a dead battery")
		return
	}

	visited := map[engine.Position]bool{start: true}
	queue := []engine.Position{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, d := range engine.Compass() {
			next := current.Add(d)
			if visited[next] || !grid.InBounds(next) || grid.At(next) == engine.Obstacle {
				continue
			}
			visited[next] = true
			queue = append(queue, next)
		}
	}

	var unreachable []string
	for _, p := range dirt {
		if !visited[p] {
			unreachable = append(unreachable, fmt.Sprintf("(%d,%d)", p.X, p.Y))
		}
	}

	if len(unreachable) > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Reachability: %d/%d dirty cells unreachable from start, goal_complete is impossible: %s",
				len(unreachable), len(dirt), strings.Join(unreachable, " ")))
		return
	}
	result.Info = append(result.Info, fmt.Sprintf("✓ Reachability: all %d dirty cells reachable from start", len(dirt)))
}

// Dir validates every preset file in dir, sorted by file name
func Dir(dir string) ([]Result, error) {
	var files []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("error finding config files: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	results := make([]Result, 0, len(files))
	for _, file := range files {
		results = append(results, File(file))
	}
	return results, nil
}

// AllValid reports whether every result is valid
func AllValid(results []Result) bool {
	for _, r := range results {
		if !r.Valid {
			return false
		}
	}
	return true
}
