// Command cleansim runs the cleaning agent simulator.
//
// Subcommands:
//  1. "run" – run one preset to completion and print its metrics
//  2. "batch" – run a preset many times with consecutive seeds and print the aggregate
//  3. "validate" – check preset files before use
//  4. "server" – HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  5. "mcp" – MCP stdio server that spins up an internal HTTP API if none is available
//
// Flags control the preset and report directories, logging, and optional
// ngrok tunneling for easy external access during development.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/cleaning-agent-sim/logging"
	"github.com/wricardo/cleaning-agent-sim/sim/config"
	"github.com/wricardo/cleaning-agent-sim/sim/runs"
	"github.com/wricardo/cleaning-agent-sim/sim/service"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Cleaning Agent Simulator"
)

func main() {
	// Load .env file if it exists before flags read their env sources
	envErr := godotenv.Load()

	app := newApp()
	err := app.Run(context.Background(), os.Args)

	if envErr != nil && !os.IsNotExist(envErr) {
		logging.Warn().Add(logging.ErrorField(envErr)).Msg("error loading .env file")
	}
	if err != nil {
		logging.Error().Add(logging.ErrorField(err)).Msg("cleansim failed")
		os.Exit(1)
	}
}

// newApp builds the command tree. Root flags are inherited by every subcommand.
func newApp() *cli.Command {
	return &cli.Command{
		Name:    "cleansim",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config-dir",
				Value:   "configs",
				Usage:   "directory containing run presets",
				Sources: cli.EnvVars("CLEANSIM_CONFIG_DIR", "CONFIG_DIR"),
			},
			&cli.StringFlag{
				Name:    "reports-dir",
				Value:   "reports",
				Usage:   "directory saved run reports are written to",
				Sources: cli.EnvVars("CLEANSIM_REPORTS_DIR"),
			},
			&cli.StringFlag{
				Name:    "report-format",
				Value:   runs.FormatJSON,
				Usage:   "saved report format (json or yaml)",
				Sources: cli.EnvVars("CLEANSIM_REPORT_FORMAT"),
			},
			&cli.IntFlag{
				Name:    "max-iterations",
				Value:   service.DefaultMaxIterations,
				Usage:   "safety cap on iterations per run",
				Sources: cli.EnvVars("CLEANSIM_MAX_ITERATIONS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level (trace, debug, info, warn, error)",
				Sources: cli.EnvVars("CLEANSIM_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "console",
				Usage:   "log format (console or json)",
				Sources: cli.EnvVars("CLEANSIM_LOG_FORMAT"),
			},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			runCommand(),
			batchCommand(),
			validateCommand(),
			serverCommand(),
			mcpCommand(),
		},
	}
}

// setupLogging sends logs to stderr so stdout stays clean for results and
// for the MCP stdio protocol.
func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	logging.Init(logging.Config{
		Level:  cmd.String("log-level"),
		Format: cmd.String("log-format"),
		Output: os.Stderr,
	})
	return ctx, nil
}

// serviceOptions selects the directories and collaborators wired into the run service
type serviceOptions struct {
	ConfigDir     string
	ReportsDir    string
	ReportFormat  string
	MaxIterations int
	Sink          service.FrameSink
}

func optionsFrom(cmd *cli.Command) serviceOptions {
	return serviceOptions{
		ConfigDir:     cmd.String("config-dir"),
		ReportsDir:    cmd.String("reports-dir"),
		ReportFormat:  cmd.String("report-format"),
		MaxIterations: cmd.Int("max-iterations"),
	}
}

// services bundles the run service with the registry the cleanup routine prunes
type services struct {
	Service  service.RunService
	Registry *runs.Manager
	Store    *runs.FileStore
}

// initializeServices wires config and run managers, the report store and the run service.
// Reports already in the store are restored so they can be listed and replayed.
func initializeServices(opts serviceOptions) (*services, error) {
	configManager, err := config.NewManager(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	store, err := runs.NewFileStore(opts.ReportsDir, opts.ReportFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create report store: %w", err)
	}

	registry := runs.NewManagerWithStore(store)
	if _, err := registry.LoadPersisted(); err != nil {
		logging.Warn().
			Add(logging.Component("main")).
			Add(logging.ErrorField(err)).
			Msg("failed to load persisted runs")
	}

	svcOpts := []service.ServiceOption{
		service.WithReportStore(store),
		service.WithMaxIterations(opts.MaxIterations),
	}
	if opts.Sink != nil {
		svcOpts = append(svcOpts, service.WithFrameSink(opts.Sink))
	}

	return &services{
		Service:  service.NewRunService(registry, configManager, svcOpts...),
		Registry: registry,
		Store:    store,
	}, nil
}

// runCleanupRoutine periodically removes runs that have not been accessed
// within maxAge. It returns when ctx is done.
func runCleanupRoutine(ctx context.Context, registry *runs.Manager, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := registry.CleanupExpired(maxAge); removed > 0 {
				logging.Info().
					Add(logging.Component("main")).
					Add(logging.Count("removed", removed)).
					Msg("cleaned up expired runs")
			}
		}
	}
}
