package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sheetsync/internal/api"
	"sheetsync/internal/config"
	"sheetsync/internal/core"
	"sheetsync/internal/logging"
	sheetsyncmcp "sheetsync/internal/mcp"
	"sheetsync/internal/notify"
	"sheetsync/internal/scan"
	"sheetsync/internal/store"
	"sheetsync/internal/taskfile"
	"sheetsync/internal/upload"
)

var cfg = config.Load()

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler with the HTTP API, the MCP server or both",
	RunE:  runServe,
}

func init() {
	cfg.BindFlags(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Finalize(); err != nil {
		return err
	}

	// stdout belongs to the MCP stdio transport.
	var logOut io.Writer = os.Stdout
	if cfg.Server.Mode != "http" {
		logOut = os.Stderr
	}
	logger := logging.New(cfg.Log.Level, logOut)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	lister, err := scan.New(cfg.Lister)
	if err != nil {
		return err
	}
	if cfg.Sync.Endpoint == "" {
		logger.Warn("no sync endpoint configured, every upload will fail")
	}
	syncer := upload.New(upload.Options{
		Endpoint:   cfg.Sync.Endpoint,
		Timeout:    cfg.Sync.Timeout,
		RatePerSec: cfg.Sync.RatePerSec,
	})

	scheduler := core.NewScheduler(lister, syncer, st, logger, core.Options{
		Location:     cfg.Location(),
		LogRetention: cfg.Log.Retention,
		WeekStart:    cfg.WeekStart,
	})
	defer scheduler.Destroy()
	scheduler.OnExecuted(executionCallback(st, scheduler, logger))
	scheduler.Start(ctx)

	tasks, err := st.LoadTasks(ctx)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	if err := scheduler.InitializeTasks(tasks); err != nil {
		logger.Error("initialize tasks", "err", err)
	}

	if cfg.TasksFile != "" {
		watcher := taskfile.NewWatcher(cfg.TasksFile, st, scheduler, logger)
		if err := watcher.Load(ctx); err != nil {
			logger.Error("import task file", "path", cfg.TasksFile, "err", err)
		}
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				logger.Error("watch task file", "path", cfg.TasksFile, "err", err)
			}
		}()
	}

	mcpServer := sheetsyncmcp.NewMCPServer(st, scheduler, logger)

	switch cfg.Server.Mode {
	case "mcp":
		return runMCPMode(ctx, mcpServer, logger)
	case "both":
		return runBothMode(ctx, mcpServer, st, scheduler, lister, logger)
	default:
		return runHTTPMode(ctx, mcpServer, st, scheduler, lister, logger)
	}
}

// executionCallback persists run outcomes and pushes a notification for
// failed runs to every configured notifier.
func executionCallback(st *store.Store, scheduler *core.Scheduler, logger *slog.Logger) core.ExecutionCallback {
	var notifiers []notify.Notifier
	if cfg.Notification.Bark.Enabled {
		bark, err := notify.NewBarkNotifier(cfg.Notification.Bark.URL)
		if err != nil {
			logger.Warn("bark notifier disabled", "err", err)
		} else {
			notifiers = append(notifiers, bark)
		}
	}

	var notifier notify.Notifier = &notify.NoOpNotifier{}
	if len(notifiers) > 0 {
		notifier = notify.NewMultiNotifier(notifiers...)
	}
	lookup := func(taskID string) string {
		if t, ok := scheduler.Task(taskID); ok {
			return t.Name
		}
		return ""
	}
	return notify.Chain(st.UpdateTaskResult, notify.OnFailure(notifier, lookup))
}

func newHTTPServer(mcpServer *sheetsyncmcp.MCPServer, st *store.Store, scheduler *core.Scheduler, lister core.FileLister, logger *slog.Logger) *api.Server {
	return api.NewServer(api.Options{
		Addr:      cfg.Server.Addr,
		AuthToken: cfg.Server.AuthToken,
		WeekStart: cfg.WeekStart,
		MCP:       mcpServer.Handler(),
	}, st, scheduler, lister, logger)
}

// runHTTPMode serves the REST API with MCP over streamable HTTP at /mcp.
func runHTTPMode(ctx context.Context, mcpServer *sheetsyncmcp.MCPServer, st *store.Store, scheduler *core.Scheduler, lister core.FileLister, logger *slog.Logger) error {
	server := newHTTPServer(mcpServer, st, scheduler, lister, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case runErr = <-serverErr:
		logger.Error("server error", "err", runErr)
	}
	shutdownHTTP(server, logger)
	return runErr
}

// runMCPMode serves MCP over stdio only.
func runMCPMode(ctx context.Context, mcpServer *sheetsyncmcp.MCPServer, logger *slog.Logger) error {
	mcpErr := make(chan error, 1)
	go func() { mcpErr <- mcpServer.Run() }()

	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
		return nil
	case err := <-mcpErr:
		if err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	}
}

// runBothMode serves MCP over stdio next to the HTTP API.
func runBothMode(ctx context.Context, mcpServer *sheetsyncmcp.MCPServer, st *store.Store, scheduler *core.Scheduler, lister core.FileLister, logger *slog.Logger) error {
	mcpErr := make(chan error, 1)
	go func() { mcpErr <- mcpServer.Run() }()

	server := newHTTPServer(mcpServer, st, scheduler, lister, logger)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case runErr = <-serverErr:
		logger.Error("server error", "err", runErr)
	case err := <-mcpErr:
		if err != nil {
			runErr = fmt.Errorf("mcp server: %w", err)
			logger.Error("mcp server error", "err", err)
		}
	}
	shutdownHTTP(server, logger)
	logger.Info("shutdown complete")
	return runErr
}

func shutdownHTTP(server *api.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
}
