// Command startlights runs the start lights reaction trial server.
//
// It supports two modes:
//  1. "server" (default) runs the HTTP server exposing the REST API, the
//     WebSocket hub, and an /mcp HTTP endpoint
//  2. "stdio-mcp" runs an MCP stdio server and spins up an internal HTTP API
//     if none is available
//
// Settings come from an optional YAML file, STARTLIGHTS_* environment
// variables and command line flags, in increasing order of precedence.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/startlights/api"
	"github.com/wricardo/startlights/game/config"
	"github.com/wricardo/startlights/game/engine"
	"github.com/wricardo/startlights/game/loop"
	"github.com/wricardo/startlights/game/records"
	"github.com/wricardo/startlights/game/service"
	"github.com/wricardo/startlights/game/session"
	"github.com/wricardo/startlights/logging"
	"github.com/wricardo/startlights/settings"
	"github.com/wricardo/startlights/transport/mcp"
	"github.com/wricardo/startlights/transport/upload"
	"github.com/wricardo/startlights/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Start Lights Reaction Trial Server"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newCommand builds the CLI. Running without a subcommand starts the server.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "startlights",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "settings",
				Usage:   "Settings file (YAML)",
				Sources: cli.EnvVars("STARTLIGHTS_SETTINGS"),
			},
			&cli.StringFlag{Name: "host", Usage: "HTTP server host"},
			&cli.IntFlag{Name: "port", Usage: "HTTP server port"},
			&cli.StringFlag{
				Name:    "config-dir",
				Usage:   "Directory containing trial configurations",
				Sources: cli.EnvVars("CONFIG_DIR"),
			},
			&cli.StringFlag{Name: "static-dir", Usage: "Directory of static web files"},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
			&cli.StringFlag{Name: "upload-endpoint", Usage: "Backend URL completed sessions are POSTed to"},
			&cli.StringFlag{Name: "sqlite", Usage: "SQLite database for completed sessions (empty disables)"},
			&cli.StringFlag{Name: "archive-dir", Usage: "Directory for JSON session archives (empty disables)"},
			&cli.BoolFlag{
				Name:    "ngrok",
				Usage:   "Enable ngrok tunnel",
				Sources: cli.EnvVars("NGROK_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "ngrok-auth",
				Usage:   "Ngrok auth token",
				Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "ngrok-domain",
				Usage:   "Custom ngrok domain (optional)",
				Sources: cli.EnvVars("NGROK_DOMAIN"),
			},
		},
		Action: runServerCommand,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint",
				Action:  runServerCommand,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "Run MCP stdio server with internal HTTP server",
				Action:  runStdioCommand,
			},
		},
	}
}

// loadSettings reads the settings file and environment, then applies flags
// the user set explicitly.
func loadSettings(cmd *cli.Command) (*settings.Loader, settings.Settings, error) {
	loader, err := settings.Load(cmd.String("settings"), nil)
	if err != nil {
		return nil, settings.Settings{}, err
	}
	s := *loader.Settings()
	applyFlags(cmd, &s)
	return loader, s, nil
}

func applyFlags(cmd *cli.Command, s *settings.Settings) {
	if cmd.IsSet("host") {
		s.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		s.Server.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("static-dir") {
		s.Server.StaticDir = cmd.String("static-dir")
	}
	if cmd.IsSet("config-dir") {
		s.Configs.Directory = cmd.String("config-dir")
	}
	if cmd.Bool("debug") {
		s.Logging.Level = "debug"
	}
	if cmd.IsSet("upload-endpoint") {
		s.Upload.Endpoint = cmd.String("upload-endpoint")
	}
	if cmd.IsSet("sqlite") {
		s.Upload.SQLitePath = cmd.String("sqlite")
	}
	if cmd.IsSet("archive-dir") {
		s.Upload.ArchiveDir = cmd.String("archive-dir")
	}
	if cmd.Bool("ngrok") {
		s.Ngrok.Enabled = true
	}
	if cmd.IsSet("ngrok-auth") {
		s.Ngrok.Authtoken = cmd.String("ngrok-auth")
	}
	if cmd.IsSet("ngrok-domain") {
		s.Ngrok.Domain = cmd.String("ngrok-domain")
	}
}

func runServerCommand(ctx context.Context, cmd *cli.Command) error {
	loader, s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.New(s.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting "+AppName, zap.String("version", Version), zap.String("mode", "server"),
		zap.String("settings", loader.File()))
	loader.Watch()

	a, err := newApp(s, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	a.start(ctx)
	defer a.shutdown()

	return runHTTPServer(ctx, a)
}

func runStdioCommand(ctx context.Context, cmd *cli.Command) error {
	_, s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	// MCP hosts capture stderr as plain text.
	s.Logging.Color = false
	logger, err := logging.New(s.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	return runStdioMCPWithInternalServer(ctx, s, logger)
}

// app holds the wired services of one process.
type app struct {
	settings   settings.Settings
	logger     *zap.Logger
	loop       *loop.Loop
	configs    *config.Manager
	sessions   *session.Manager
	hub        *websocket.Hub
	dispatcher *upload.Dispatcher
	store      *records.SQLiteStore
	service    service.GameService
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// newApp wires the loop, config and session managers, upload sinks, the
// websocket hub and the game service.
func newApp(s settings.Settings, logger *zap.Logger) (*app, error) {
	a := &app{settings: s, logger: logger}

	configManager, err := config.NewManager(s.Configs.Directory, logger.Named("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}
	a.configs = configManager

	sinks, recordStore, err := a.openSinks()
	if err != nil {
		return nil, err
	}
	a.dispatcher = upload.NewDispatcher(logger.Named("upload"), s.Upload.Timeout, sinks...)

	a.loop = loop.New(logger.Named("loop"))
	a.hub = websocket.NewHub(logger.Named("websocket"))
	aggregator := engine.NewAggregator()

	a.sessions = session.NewManager(session.Runtime{
		Loop:       a.loop,
		Aggregator: aggregator,
		Uploader:   a.dispatcher,
		Notifier:   service.NotifierFactory(a.hub),
		Logger:     logger.Named("session"),
	})

	opts := []service.Option{service.WithLogger(logger.Named("service"))}
	if recordStore != nil {
		opts = append(opts, service.WithRecords(recordStore))
	}
	a.service = service.NewGameService(a.sessions, a.configs, a.loop, aggregator, opts...)
	a.hub.SetActions(a.service)

	return a, nil
}

// openSinks builds the upload sinks from settings. The SQLite store, or the
// file archive when there is no database, also serves record listings.
func (a *app) openSinks() ([]upload.Sink, service.RecordStore, error) {
	var (
		sinks []upload.Sink
		store service.RecordStore
	)

	u := a.settings.Upload
	if u.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(u.SQLitePath), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err := records.OpenSQLite(u.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		a.store = db
		sinks = append(sinks, db)
		store = db
	}

	if u.ArchiveDir != "" {
		archive, err := records.NewFileArchive(u.ArchiveDir)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, archive)
		if store == nil {
			store = archive
		}
	}

	if u.Endpoint != "" {
		opts := []upload.HTTPOption{upload.WithHTTPClient(&http.Client{Timeout: u.Timeout})}
		if u.Token != "" {
			opts = append(opts, upload.WithToken(u.Token))
		}
		sink, err := upload.NewHTTPSink(u.Endpoint, opts...)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, sink)
	}

	return sinks, store, nil
}

// start runs the background goroutines: event loop, hub, config watcher and
// session cleanup. They stop in shutdown.
func (a *app) start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(4)
	go func() {
		defer a.wg.Done()
		// The loop ends through Close so queued engine closes still run.
		if err := a.loop.Run(context.Background()); err != nil {
			a.logger.Error("event loop stopped", zap.Error(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		a.hub.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		if err := a.configs.Watch(ctx); err != nil {
			a.logger.Warn("config watcher disabled", zap.Error(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		sessionCleanupRoutine(ctx, a.sessions, a.settings.Sessions, a.logger)
	}()
}

// shutdown closes sessions, flushes uploads and closes the record store.
func (a *app) shutdown() {
	closed := a.sessions.CloseAll()
	a.loop.Close()
	a.cancel()
	a.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), a.settings.Upload.Timeout)
	defer cancel()
	if err := a.dispatcher.Close(ctx); err != nil {
		a.logger.Warn("pending uploads cancelled", zap.Error(err))
	}
	sent, failures := a.dispatcher.Stats()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close record store", zap.Error(err))
		}
	}
	a.logger.Info("Shutdown complete", zap.Int("sessions_closed", closed),
		zap.Int("uploads_sent", sent), zap.Int("upload_failures", failures))
}

// handler returns the HTTP handler serving the API, websocket and /mcp.
func (a *app) handler(baseURL string) http.Handler {
	mcpClient := mcp.NewClient(baseURL)
	return api.NewServer(a.service, a.hub,
		api.WithLogger(a.logger.Named("api")),
		api.WithStaticDir(a.settings.Server.StaticDir),
		api.WithHandler("/mcp", mcpClient.HTTPHandler()),
	)
}

// runHTTPServer serves until ctx is done. If ngrok is enabled it also
// provisions a public tunnel.
func runHTTPServer(ctx context.Context, a *app) error {
	addr := a.settings.Server.Addr()
	handler := a.handler(fmt.Sprintf("http://%s", addr))

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		a.logger.Info("HTTP server listening", zap.String("addr", addr),
			zap.String("api", fmt.Sprintf("http://%s/api", addr)),
			zap.String("websocket", fmt.Sprintf("ws://%s/ws?session=<session_id>", addr)),
			zap.String("mcp", fmt.Sprintf("http://%s/mcp", addr)))

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	if a.settings.Ngrok.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, a.settings.Ngrok, handler, a.logger.Named("ngrok"))
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	wg.Wait()
	a.logger.Info("Server stopped")
	return runErr
}

// runNgrok serves handler through an ngrok tunnel until ctx is done.
func runNgrok(ctx context.Context, cfg settings.NgrokConfig, handler http.Handler, logger *zap.Logger) {
	if cfg.Authtoken == "" {
		logger.Warn("Ngrok enabled but no auth token provided (use --ngrok-auth or NGROK_AUTHTOKEN)")
		return
	}

	logger.Info("Starting ngrok tunnel")

	var tunnel ngrokConfig.Tunnel
	if cfg.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.Domain))
		logger.Info("Using custom ngrok domain", zap.String("domain", cfg.Domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.Authtoken))
	if err != nil {
		logger.Error("Failed to start ngrok tunnel", zap.Error(err))
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Error("Failed to close ngrok tunnel", zap.Error(err))
		}
	}()

	url := tun.URL()
	logger.Info("Ngrok tunnel established", zap.String("url", url),
		zap.String("api", url+"/api"),
		zap.String("websocket", url+"/ws?session=<session_id>"),
		zap.String("mcp", url+"/mcp"))

	if err := http.Serve(tun, handler); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		logger.Error("Ngrok server error", zap.Error(err))
	}
	logger.Info("Ngrok tunnel closed")
}

// sessionCleanupRoutine periodically removes sessions that have not been
// accessed within the retention window.
func sessionCleanupRoutine(ctx context.Context, manager *session.Manager, cfg settings.SessionsConfig, logger *zap.Logger) {
	if cfg.CleanupInterval <= 0 || cfg.MaxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := manager.CleanupExpiredSessions(cfg.MaxIdle); removed > 0 {
				logger.Info("Cleaned up expired sessions", zap.Int("count", removed))
			}
		}
	}
}

// runStdioMCPWithInternalServer runs an MCP stdio server. It reuses an
// external API if one answers at the configured URL; otherwise it starts an
// internal HTTP API on a random loopback port and targets that.
func runStdioMCPWithInternalServer(ctx context.Context, s settings.Settings, logger *zap.Logger) error {
	externalURL := s.Server.ExternalURL
	baseURL := externalURL

	if !apiAvailable(externalURL) {
		logger.Info("No external API server found, starting internal HTTP server",
			zap.String("checked", externalURL))

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		baseURL = fmt.Sprintf("http://%s", listener.Addr().String())

		a, err := newApp(s, logger)
		if err != nil {
			listener.Close()
			return fmt.Errorf("failed to initialize services: %w", err)
		}
		a.start(ctx)
		defer a.shutdown()

		httpServer := &http.Server{Handler: a.handler(baseURL)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
				logger.Error("Internal HTTP server error", zap.Error(err))
			}
		}()
		defer httpServer.Close()
	} else {
		logger.Info("External API server found, using it for MCP", zap.String("url", externalURL))
	}

	mcpClient := mcp.NewClient(baseURL)
	logger.Info("MCP stdio server ready", zap.String("api", baseURL))

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// apiAvailable reports whether an API server answers its health check.
func apiAvailable(baseURL string) bool {
	if baseURL == "" {
		return false
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
