// Command analyze prints aggregate statistics over saved run reports. It
// reads every report in a directory, optionally filters by preset or
// outcome, and prints the outcome counts and per-metric statistics either
// for all runs together or grouped by preset.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/cleaning-agent-sim/logging"
	"github.com/wricardo/cleaning-agent-sim/sim/engine"
	"github.com/wricardo/cleaning-agent-sim/sim/report"
	"github.com/wricardo/cleaning-agent-sim/sim/runs"
	"github.com/wricardo/cleaning-agent-sim/sim/service"
)

// Filter selects which reports are aggregated. Empty fields match everything.
type Filter struct {
	Config  string
	Outcome engine.Outcome
}

func (f Filter) match(rep *service.Report) bool {
	if f.Config != "" && rep.ConfigName != f.Config {
		return false
	}
	if f.Outcome != "" && rep.Outcome != f.Outcome {
		return false
	}
	return true
}

// Group is the aggregate of one preset's runs
type Group struct {
	Config  string         `json:"config"`
	Summary report.Summary `json:"summary"`
}

func main() {
	logging.Init(logging.Config{Level: "warn", Format: "console", Output: os.Stderr})

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		logging.Error().Add(logging.ErrorField(err)).Msg("analyze failed")
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "aggregate saved run reports",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "reports-dir", Aliases: []string{"d"}, Value: "reports", Usage: "directory holding run reports", Sources: cli.EnvVars("CLEANSIM_REPORTS_DIR")},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "only runs of this preset"},
			&cli.StringFlag{Name: "outcome", Usage: "only runs with this outcome (goal_complete, idle, battery_dead)"},
			&cli.BoolFlag{Name: "by-config", Usage: "one table per preset"},
			&cli.BoolFlag{Name: "json", Usage: "print JSON instead of tables"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			reports, err := loadReports(cmd.String("reports-dir"))
			if err != nil {
				return err
			}

			filter := Filter{Config: cmd.String("config"), Outcome: engine.Outcome(cmd.String("outcome"))}
			groups := analyze(reports, filter, cmd.Bool("by-config"))
			if cmd.Bool("json") {
				enc := json.NewEncoder(cmd.Root().Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(groups)
			}
			return writeGroups(cmd.Root().Writer, groups)
		},
	}
}

// loadReports reads every report in dir. A missing dir is an error rather
// than an empty result.
func loadReports(dir string) ([]*service.Report, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("reports directory %s: %w", dir, err)
	}
	store, err := runs.NewFileStore(dir, runs.FormatJSON)
	if err != nil {
		return nil, err
	}
	return store.List()
}

// analyze filters reports and aggregates them, per preset when byConfig is set.
// Groups are ordered by preset name.
func analyze(reports []*service.Report, filter Filter, byConfig bool) []Group {
	grouped := make(map[string][]report.Entry)
	for _, rep := range reports {
		if !filter.match(rep) {
			continue
		}
		key := "all"
		if byConfig {
			key = rep.ConfigName
		}
		grouped[key] = append(grouped[key], rep.Entry())
	}

	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]Group, 0, len(names))
	for _, name := range names {
		groups = append(groups, Group{Config: name, Summary: report.Aggregate(grouped[name])})
	}
	return groups
}

func writeGroups(w io.Writer, groups []Group) error {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No matching reports")
		return nil
	}
	for i, g := range groups {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "=== %s ===\n", g.Config)
		if err := report.WriteTable(w, g.Summary); err != nil {
			return err
		}
	}
	return nil
}
