// Package main provides the ClearPath local sync daemon. The hosting
// application talks to it over REST/WebSocket on localhost and keeps
// working offline; the daemon drains pending mutations to the remote
// backend whenever connectivity allows.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/clearpath-app/backend/cmd/syncd/handlers"
	"github.com/clearpath-app/backend/internal/db"
	"github.com/clearpath-app/backend/internal/logging"
	"github.com/clearpath-app/backend/internal/services"
	syncpkg "github.com/clearpath-app/backend/internal/sync"
	"github.com/clearpath-app/backend/internal/sync/scheduler"
)

type daemonOptions struct {
	dataDir       string
	port          int
	backendURL    string
	apiKey        string
	authToken     string
	logFile       string
	debug         bool
	syncInterval  time.Duration
	probeURL      string
	probeInterval time.Duration
	startOffline  bool
}

func main() {
	opts := &daemonOptions{}

	rootCmd := &cobra.Command{
		Use:   "syncd",
		Short: "ClearPath local sync daemon",
		Long: `syncd keeps ClearPath usable without connectivity. Records are stored
in a local SQLite database and mutations are queued; a background scheduler
drains the queue to the remote backend whenever the network allows.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
		SilenceUsage: true,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&opts.dataDir, "data-dir", defaultDataDir(), "directory for the local database and logs")
	flags.IntVar(&opts.port, "port", 8090, "localhost port to serve on")
	flags.StringVar(&opts.backendURL, "backend-url", "", "remote backend base URL (empty disables remote sync)")
	flags.StringVar(&opts.apiKey, "api-key", os.Getenv("CLEARPATH_API_KEY"), "remote backend API key")
	flags.StringVar(&opts.authToken, "auth-token", os.Getenv("CLEARPATH_AUTH_TOKEN"), "bearer token for the remote backend")
	flags.StringVar(&opts.logFile, "log-file", "", "log file path (empty logs to stdout)")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.DurationVar(&opts.syncInterval, "sync-interval", time.Minute, "background queue drain interval")
	flags.StringVar(&opts.probeURL, "probe-url", "", "URL probed for connectivity (empty disables probing)")
	flags.DurationVar(&opts.probeInterval, "probe-interval", 30*time.Second, "connectivity probe interval")
	flags.BoolVar(&opts.startOffline, "start-offline", false, "assume no connectivity until told otherwise")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("CLEARPATH_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".clearpath")
}

// initLogging configures the global logger, rotating the log file when one
// is requested.
func initLogging(opts *daemonOptions) {
	var out io.Writer = os.Stdout
	if opts.logFile != "" {
		out = &lumberjack.Logger{
			Filename:   opts.logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	level := logging.LevelInfo
	if opts.debug {
		level = logging.LevelDebug
	}
	logging.Init(out, level)
}

func run(ctx context.Context, opts *daemonOptions) error {
	initLogging(opts)

	database, err := db.Open(opts.dataDir)
	if err != nil {
		return fmt.Errorf("failed to open local database: %w", err)
	}
	defer database.Close()

	if err := db.NewMigrator(database.DB).Up(); err != nil {
		return fmt.Errorf("failed to migrate local database: %w", err)
	}

	repo := db.NewRepository(database.DB)
	defer repo.Close()

	// Remote sync is optional; without a backend URL the daemon still
	// persists and queues locally.
	var remote syncpkg.RemoteStore
	if opts.backendURL != "" {
		remote = syncpkg.NewRestClient(opts.backendURL, opts.apiKey, syncpkg.StaticToken(opts.authToken))
	}

	monitor := syncpkg.NewMonitor(!opts.startOffline)
	engine := syncpkg.NewEngine(repo, remote, syncpkg.DefaultCapabilities{}, monitor.IsOnline)
	monitor.SetEngine(engine)

	svc := services.NewOfflineService(repo, engine, monitor.IsOnline)

	sched := scheduler.New(engine, repo, monitor, &scheduler.Config{Interval: opts.syncInterval})
	sched.Start(ctx)
	defer sched.Stop()

	if opts.probeURL != "" {
		prober := syncpkg.NewProber(monitor, opts.probeURL, opts.probeInterval)
		prober.Start(ctx)
		defer prober.Stop()
	}

	hub := NewWSHub()
	monitor.AddListener(func(online bool) {
		hub.BroadcastNetworkStatus(online)
	})

	mux := buildMux(svc, engine, monitor, hub)

	addr := fmt.Sprintf("127.0.0.1:%d", opts.port)
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("ClearPath sync daemon starting", map[string]interface{}{
			"addr":     addr,
			"data_dir": opts.dataDir,
			"remote":   opts.backendURL != "",
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logging.Info("ClearPath sync daemon shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildMux wires the REST and WebSocket surface.
func buildMux(svc *services.OfflineService, engine syncpkg.SyncEngine, monitor *syncpkg.Monitor, hub *WSHub) *http.ServeMux {
	recordsHandler := handlers.NewRecordsHandler(svc)
	syncHandler := handlers.NewSyncHandler(svc, engine, monitor)
	syncHandler.SetWebSocketHub(hub)
	maintenanceHandler := handlers.NewMaintenanceHandler(svc)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/progress", recordsHandler.Progress)
	mux.HandleFunc("/api/cravings", recordsHandler.Cravings)
	mux.HandleFunc("/api/tasks", recordsHandler.Tasks)
	mux.HandleFunc("/api/consumption", recordsHandler.Consumption)
	mux.HandleFunc("/api/records", recordsHandler.Delete)

	mux.HandleFunc("/api/sync/status", syncHandler.GetStatus)
	mux.HandleFunc("/api/sync/now", syncHandler.TriggerSync)
	mux.HandleFunc("/api/network", syncHandler.Network)

	mux.HandleFunc("/api/maintenance/cleanup", maintenanceHandler.Cleanup)
	mux.HandleFunc("/api/maintenance/all", maintenanceHandler.ClearAll)
	mux.HandleFunc("/api/storage/stats", maintenanceHandler.StorageStats)
	mux.HandleFunc("/api/metrics", maintenanceHandler.Metrics)
	mux.HandleFunc("/api/users/data", maintenanceHandler.ClearUser)

	mux.HandleFunc("/ws", HandleWebSocket(hub))

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"clearpath-syncd"}`))
	})

	return mux
}
