package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/wricardo/cleaning-agent-sim/sim/engine"
	"github.com/wricardo/cleaning-agent-sim/sim/report"
	"github.com/wricardo/cleaning-agent-sim/sim/service"
	"github.com/wricardo/cleaning-agent-sim/validate"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// overrideFlags are shared by run and batch
func overrideFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "preset name (default preset when empty)"},
		&cli.IntFlag{Name: "width", Usage: "grid width"},
		&cli.IntFlag{Name: "height", Usage: "grid height"},
		&cli.FloatFlag{Name: "obstacle-density", Usage: "obstacle density in [0,1]"},
		&cli.FloatFlag{Name: "dirt-density", Usage: "dirt density in [0,1]"},
		&cli.IntFlag{Name: "sensor-range", Usage: "sensor range in cells"},
		&cli.FloatFlag{Name: "energy", Usage: "initial energy"},
		&cli.IntFlag{Name: "idle-limit", Usage: "consecutive dirt-free iterations before the run ends idle"},
		&cli.StringFlag{Name: "start", Usage: "start position as X,Y"},
		&cli.BoolFlag{Name: "path-search", Value: true, Usage: "search for a path to the nearest known dirt"},
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: formatText, Usage: "output format (text, json or yaml)"},
		&cli.StringFlag{Name: "save", Usage: "save reports to `DIR` (defaults to --reports-dir when empty)"},
	}
}

// overridesFrom collects every override flag the user set. It returns nil
// when none is set so the preset is used untouched.
func overridesFrom(cmd *cli.Command) (*service.RunOverrides, error) {
	o := &service.RunOverrides{}
	set := false

	if cmd.IsSet("width") {
		v := cmd.Int("width")
		o.Width, set = &v, true
	}
	if cmd.IsSet("height") {
		v := cmd.Int("height")
		o.Height, set = &v, true
	}
	if cmd.IsSet("obstacle-density") {
		v := cmd.Float("obstacle-density")
		o.ObstacleDensity, set = &v, true
	}
	if cmd.IsSet("dirt-density") {
		v := cmd.Float("dirt-density")
		o.DirtDensity, set = &v, true
	}
	if cmd.IsSet("sensor-range") {
		v := cmd.Int("sensor-range")
		o.SensorRange, set = &v, true
	}
	if cmd.IsSet("energy") {
		v := cmd.Float("energy")
		o.InitialEnergy, set = &v, true
	}
	if cmd.IsSet("idle-limit") {
		v := cmd.Int("idle-limit")
		o.IdleLimit, set = &v, true
	}
	if cmd.IsSet("start") {
		p, err := parsePosition(cmd.String("start"))
		if err != nil {
			return nil, err
		}
		o.Start, set = &p, true
	}
	if cmd.IsSet("seed") {
		v := cmd.Int64("seed")
		o.Seed, set = &v, true
	}
	if cmd.IsSet("path-search") {
		v := cmd.Bool("path-search")
		o.PathSearch, set = &v, true
	}

	if !set {
		return nil, nil
	}
	return o, nil
}

func parsePosition(s string) (engine.Position, error) {
	var p engine.Position
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d,%d", &p.X, &p.Y); err != nil {
		return p, fmt.Errorf("invalid start %q, want X,Y: %w", s, err)
	}
	return p, nil
}

func checkFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// saveOptions points the report store at --save when it names a directory
func saveOptions(cmd *cli.Command) (serviceOptions, bool) {
	opts := optionsFrom(cmd)
	if !cmd.IsSet("save") {
		return opts, false
	}
	if dir := cmd.String("save"); dir != "" {
		opts.ReportsDir = dir
	}
	return opts, true
}

func runCommand() *cli.Command {
	flags := append(overrideFlags(),
		&cli.Int64Flag{Name: "seed", Aliases: []string{"s"}, Usage: "random seed"},
		&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "draw the grid after every step"},
		&cli.DurationFlag{Name: "delay", Value: 100 * time.Millisecond, Usage: "pause between frames with --watch"},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "run one preset to completion and print its metrics",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format := cmd.String("format")
			if err := checkFormat(format); err != nil {
				return err
			}
			overrides, err := overridesFrom(cmd)
			if err != nil {
				return err
			}

			opts, save := saveOptions(cmd)
			watch := cmd.Bool("watch")
			if watch {
				opts.Sink = newTerminalSink(cmd.Root().Writer, cmd.Duration("delay"))
			}

			svcs, err := initializeServices(opts)
			if err != nil {
				return err
			}
			defer svcs.Service.Close()

			info, err := svcs.Service.StartRun(ctx, service.RunRequest{
				ConfigID:      cmd.String("config"),
				Overrides:     overrides,
				CaptureFrames: watch,
				Save:          save,
			})
			if err != nil {
				return err
			}
			return writeRun(cmd.Root().Writer, info, format)
		},
	}
}

func batchCommand() *cli.Command {
	flags := append(overrideFlags(),
		&cli.IntFlag{Name: "runs", Aliases: []string{"n"}, Value: 10, Usage: "number of runs"},
		&cli.IntFlag{Name: "parallel", Aliases: []string{"p"}, Usage: "concurrent runs (defaults to CPU count)"},
		&cli.Int64Flag{Name: "base-seed", Usage: "seed of the first run; run i uses base-seed+i (defaults to the preset seed)"},
	)

	return &cli.Command{
		Name:  "batch",
		Usage: "run a preset many times with consecutive seeds and print the aggregate",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format := cmd.String("format")
			if err := checkFormat(format); err != nil {
				return err
			}
			overrides, err := overridesFrom(cmd)
			if err != nil {
				return err
			}

			opts, save := saveOptions(cmd)
			svcs, err := initializeServices(opts)
			if err != nil {
				return err
			}
			defer svcs.Service.Close()

			req := service.BatchRequest{
				ConfigID:  cmd.String("config"),
				Overrides: overrides,
				Runs:      cmd.Int("runs"),
				Parallel:  cmd.Int("parallel"),
				Save:      save,
			}
			if cmd.IsSet("base-seed") {
				seed := cmd.Int64("base-seed")
				req.BaseSeed = &seed
			}

			result, err := svcs.Service.RunBatch(ctx, req)
			if err != nil {
				return err
			}
			return writeBatch(cmd.Root().Writer, result, format)
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "check preset files (all of --config-dir when no file is given)",
		ArgsUsage: "[FILE...]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var results []validate.Result
			if cmd.Args().Len() == 0 {
				var err error
				results, err = validate.Dir(cmd.String("config-dir"))
				if err != nil {
					return err
				}
			} else {
				for _, path := range cmd.Args().Slice() {
					results = append(results, validate.File(path))
				}
			}

			if len(results) == 0 {
				return cli.Exit("no preset files found", 1)
			}

			writeValidation(cmd.Root().Writer, results)
			if !validate.AllValid(results) {
				return cli.Exit("validation failed", 1)
			}
			return nil
		},
	}
}

// reportOf converts run info into the persisted report shape, which carries
// YAML tags for every field.
func reportOf(info *service.RunInfo) *service.Report {
	rep := &service.Report{
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

func encode(w io.Writer, v interface{}, format string) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func writeRun(w io.Writer, info *service.RunInfo, format string) error {
	if format != formatText {
		return encode(w, reportOf(info), format)
	}

	fmt.Fprintf(w, "Run %s (%s, seed %d)\n", info.ID, info.ConfigName, info.Config.Seed)
	fmt.Fprintf(w, "Outcome: %s (code %d) after %d iterations in %d ms\n\n",
		info.Outcome, info.OutcomeCode, info.Iterations, info.ElapsedMS)
	for _, row := range info.FinalGrid {
		fmt.Fprintln(w, row)
	}
	if info.Metrics == nil {
		return nil
	}
	fmt.Fprintln(w)
	return writeMetrics(w, info.Metrics)
}

func writeMetrics(w io.Writer, m *engine.Metrics) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "initial_conditions")
	fmt.Fprintf(tw, "  dirty_spots\t%d\n", m.Initial.DirtySpots)
	fmt.Fprintf(tw, "  obstacles\t%d\n", m.Initial.Obstacles)
	fmt.Fprintf(tw, "  energy\t%.2f\n", m.Initial.Energy)
	fmt.Fprintln(tw, "current_state")
	fmt.Fprintf(tw, "  pending_dirt\t%d\n", m.Final.PendingDirt)
	fmt.Fprintf(tw, "  dirt_cleaned\t%d\n", m.Final.DirtCleaned)
	fmt.Fprintf(tw, "  total_steps\t%d\n", m.Final.TotalSteps)
	fmt.Fprintf(tw, "  unique_cells_visited\t%d\n", m.Final.UniqueCellsVisited)
	fmt.Fprintf(tw, "  obstacle_encounters\t%d\n", m.Final.ObstacleEncounters)
	fmt.Fprintf(tw, "  energy\t%.2f\n", m.Final.Energy)
	fmt.Fprintf(tw, "  energy_consumed\t%.2f\n", m.Final.EnergyConsumed)
	fmt.Fprintln(tw, "performance_metrics")
	p := m.Performance
	fmt.Fprintf(tw, "  percent_dirt_cleaned\t%s\n", p.PercentDirtCleaned)
	fmt.Fprintf(tw, "  percent_energy_consumed\t%s\n", p.PercentEnergyConsumed)
	fmt.Fprintf(tw, "  dirt_cleaned_per_step\t%s\n", p.DirtCleanedPerStep)
	fmt.Fprintf(tw, "  coverage_efficiency\t%s\n", p.CoverageEfficiency)
	fmt.Fprintf(tw, "  energy_per_dirt_spot\t%s\n", p.EnergyPerDirtSpot)
	fmt.Fprintf(tw, "  energy_per_step\t%s\n", p.EnergyPerStep)
	fmt.Fprintf(tw, "  percent_energy_per_dirt_spot\t%s\n", p.PercentEnergyPerDirtSpot)
	fmt.Fprintf(tw, "  percent_energy_per_step\t%s\n", p.PercentEnergyPerStep)
	return tw.Flush()
}

func writeBatch(w io.Writer, result *service.BatchResult, format string) error {
	if format != formatText {
		return encode(w, result.Summary, format)
	}
	fmt.Fprintf(w, "Batch of %d runs on %s\n\n", result.Summary.Runs, result.ConfigName)
	return report.WriteTable(w, result.Summary)
}

func writeValidation(w io.Writer, results []validate.Result) {
	valid := 0
	for _, r := range results {
		if r.Valid {
			valid++
			fmt.Fprintf(w, "✅ %s (%s)\n", r.File, r.Name)
		} else {
			fmt.Fprintf(w, "❌ %s\n", r.File)
		}
		for _, e := range r.Errors {
			fmt.Fprintf(w, "   ✗ %s\n", e)
		}
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "   ⚠️  %s\n", warn)
		}
		for _, i := range r.Info {
			fmt.Fprintf(w, "   %s\n", i)
		}
	}
	fmt.Fprintf(w, "\n%d/%d presets valid\n", valid, len(results))
}
