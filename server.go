package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/cleaning-agent-sim/api"
	"github.com/wricardo/cleaning-agent-sim/logging"
	"github.com/wricardo/cleaning-agent-sim/sim/engine"
	"github.com/wricardo/cleaning-agent-sim/transport/mcp"
	"github.com/wricardo/cleaning-agent-sim/transport/websocket"
)

// terminalSink redraws the grid on w after every step of a watched run
type terminalSink struct {
	w     io.Writer
	delay time.Duration
}

func newTerminalSink(w io.Writer, delay time.Duration) *terminalSink {
	return &terminalSink{w: w, delay: delay}
}

func (t *terminalSink) BroadcastStep(runID string, rec engine.StepRecord, snap *engine.Snapshot) {
	if snap == nil {
		return
	}
	fmt.Fprint(t.w, "\033[H\033[2J")
	fmt.Fprintf(t.w, "run %s  iteration %d  %s  energy %.2f  dirt left %d\n\n",
		runID, rec.Iteration, rec.Direction, rec.Energy, rec.RemainingDirt)
	for _, row := range snap.Render() {
		fmt.Fprintln(t.w, row)
	}
	fmt.Fprintln(t.w)
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
}

func (t *terminalSink) BroadcastEvent(runID string, eventType string, data interface{}) {}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "HTTP server with REST API, WebSocket, and MCP endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host", Sources: cli.EnvVars("CLEANSIM_HOST")},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port", Sources: cli.EnvVars("CLEANSIM_PORT", "PORT")},
			&cli.BoolFlag{Name: "ngrok", Usage: "enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain", Sources: cli.EnvVars("NGROK_DOMAIN")},
			&cli.DurationFlag{Name: "cleanup-interval", Value: time.Hour, Usage: "how often idle runs are pruned"},
			&cli.DurationFlag{Name: "max-age", Value: 24 * time.Hour, Usage: "runs not accessed for this long are pruned"},
		},
		Action: runHTTPServer,
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:    "mcp",
		Aliases: []string{"stdio-mcp"},
		Usage:   "MCP stdio server, backed by an external API or an internal one",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api-url", Value: "http://localhost:8080", Usage: "API server to reuse when it is up", Sources: cli.EnvVars("CLEANSIM_API_URL")},
		},
		Action: runStdioMCP,
	}
}

// mcpHandler serves single JSON-RPC messages over HTTP POST
func mcpHandler(client *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := client.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

// newRouter mounts the API at root and the MCP proxy at /mcp
func newRouter(apiServer *api.Server, client *mcp.Client) *http.ServeMux {
	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", mcpHandler(client))
	return mainRouter
}

// runHTTPServer starts the HTTP server with REST API, WebSocket hub, and an /mcp proxy endpoint.
// If ngrok is enabled it also provisions a public tunnel.
func runHTTPServer(ctx context.Context, cmd *cli.Command) error {
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	opts := optionsFrom(cmd)
	opts.Sink = hub
	svcs, err := initializeServices(opts)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", cmd.String("host"), cmd.Int("port"))
	mcpClient := mcp.NewClient(fmt.Sprintf("http://%s", addr))
	mainRouter := newRouter(api.NewServer(svcs.Service, hub), mcpClient)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runCleanupRoutine(ctx, svcs.Registry, cmd.Duration("cleanup-interval"), cmd.Duration("max-age"))

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		logging.Info().
			Add(logging.Component("main")).
			Add(logging.Str("addr", addr)).
			Add(logging.Str("version", Version)).
			Msg("HTTP server listening")
		logging.Info().Add(logging.Str("url", fmt.Sprintf("http://%s/api", addr))).Msg("REST API")
		logging.Info().Add(logging.Str("url", fmt.Sprintf("ws://%s/ws?run=<run_id>", addr))).Msg("WebSocket")
		logging.Info().Add(logging.Str("url", fmt.Sprintf("http://%s/mcp", addr))).Msg("MCP endpoint")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	if cmd.Bool("ngrok") {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveNgrok(ctx, cmd.String("ngrok-auth"), cmd.String("ngrok-domain"), mainRouter)
		}()
	}

	<-ctx.Done()
	logging.Info().Add(logging.Component("main")).Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error().Add(logging.Component("main")).Add(logging.ErrorField(err)).Msg("HTTP server shutdown error")
	}
	if err := svcs.Service.Close(); err != nil {
		logging.Error().Add(logging.Component("main")).Add(logging.ErrorField(err)).Msg("run service close error")
	}

	wg.Wait()
	logging.Info().Add(logging.Component("main")).Msg("server stopped")

	select {
	case err := <-serveErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	default:
		return nil
	}
}

// serveNgrok exposes handler through an ngrok tunnel until ctx is done
func serveNgrok(ctx context.Context, authToken, domain string, handler http.Handler) {
	if authToken == "" {
		logging.Warn().
			Add(logging.Component("ngrok")).
			Msg("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		logging.Error().Add(logging.Component("ngrok")).Add(logging.ErrorField(err)).Msg("failed to start ngrok tunnel")
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logging.Warn().Add(logging.Component("ngrok")).Add(logging.ErrorField(err)).Msg("failed to close ngrok tunnel")
		}
	}()

	ngrokURL := tun.URL()
	logging.Info().Add(logging.Component("ngrok")).Add(logging.Str("url", ngrokURL)).Msg("ngrok tunnel established")
	logging.Info().Add(logging.Component("ngrok")).Add(logging.Str("url", ngrokURL+"/mcp")).Msg("MCP endpoint (ngrok)")

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		logging.Error().Add(logging.Component("ngrok")).Add(logging.ErrorField(err)).Msg("ngrok server error")
	}
	logging.Info().Add(logging.Component("ngrok")).Msg("ngrok tunnel closed")
}

// apiAvailable reports whether an API server answers the health check at baseURL
func apiAvailable(baseURL string) bool {
	testClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := testClient.Get(baseURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// startInternalAPI serves the API on a random loopback port and returns its base URL
func startInternalAPI(cmd *cli.Command) (string, func(), error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("failed to get available port: %w", err)
	}

	hub := websocket.NewHub()
	go hub.Run()

	opts := optionsFrom(cmd)
	opts.Sink = hub
	svcs, err := initializeServices(opts)
	if err != nil {
		listener.Close()
		hub.Stop()
		return "", nil, err
	}

	httpServer := &http.Server{Handler: api.NewServer(svcs.Service, hub)}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Add(logging.Component("main")).Add(logging.ErrorField(err)).Msg("internal HTTP server error")
		}
	}()

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
		svcs.Service.Close()
		hub.Stop()
	}
	return fmt.Sprintf("http://%s", listener.Addr().String()), cleanup, nil
}

// runStdioMCP runs an MCP stdio server. It reuses the API at --api-url if it
// is up, otherwise it starts an internal HTTP API and targets that.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	baseURL := cmd.String("api-url")

	if apiAvailable(baseURL) {
		logging.Info().Add(logging.Component("mcp")).Add(logging.Str("url", baseURL)).Msg("using external API server")
	} else {
		internalURL, cleanup, err := startInternalAPI(cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		baseURL = internalURL
		logging.Info().Add(logging.Component("mcp")).Add(logging.Str("url", baseURL)).Msg("using internal API server")
	}

	mcpClient := mcp.NewClient(baseURL)
	logging.Info().Add(logging.Component("mcp")).Msg("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
