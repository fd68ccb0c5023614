/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the staffing engine: configuration, store,
  services, detection scheduler and HTTP server, with graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Open the SQLite store (migrations run here)
  3. Build the staffing and notification services
  4. Register every detection job with the scheduler
  5. Wire post-commit hooks (duplicate check, overload trigger)
  6. Serve HTTP and run the scheduler until a signal arrives

COMMAND-LINE FLAGS:
  -config  YAML configuration file (optional)
  -env     .env file (default: .env, missing file is fine)
  -port    HTTP server port, overrides the file
  -db      SQLite database path, overrides the file
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and wait for in-flight jobs
  4. Close database connection

EXAMPLES:
  # Run with a config file
  ./server -config=./staffing.yaml

  # Run with in-memory database on a different port
  STAFFING_JWT_SECRET=dev ./server -db=":memory:" -port=3000

SEE ALSO:
  - config/config.go: Configuration precedence and environment variables
  - api/server.go: Router configuration
  - scheduler/scheduler.go: Job runner
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/warp/staffing-engine/api"
	"github.com/warp/staffing-engine/config"
	"github.com/warp/staffing-engine/detection"
	"github.com/warp/staffing-engine/generic"
	"github.com/warp/staffing-engine/metrics"
	"github.com/warp/staffing-engine/notification"
	"github.com/warp/staffing-engine/scheduler"
	"github.com/warp/staffing-engine/staffing"
	"github.com/warp/staffing-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "", "YAML configuration file")
	envFile := flag.String("env", "", "dotenv file (default .env)")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := config.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheus(reg, "staffing")

	// Services
	var clock generic.Clock // wall clock, UTC
	staff := staffing.NewService(store, clock, logger.With("component", "staffing"))
	notes := notification.NewService(store, clock, logger.With("component", "notification"), collector)
	detector := detection.New(store, notes, clock, logger.With("component", "detection"), collector)

	sched := scheduler.New(logger.With("component", "scheduler"), collector)
	if err := registerJobs(sched, detector, cfg.Scheduler); err != nil {
		return err
	}
	staff.SetHooks(detector.Hooks(func(ctx context.Context) {
		if err := sched.Trigger(ctx, detection.JobOverload); err != nil {
			logger.Warn("overload trigger not scheduled", "error", err)
		}
	}))

	// HTTP
	handler := api.NewHandler(staff, notes, sched, logger.With("component", "api"))
	router := api.NewRouter(handler, api.RouterConfig{
		Auth:           api.NewAuthenticator(cfg.Auth.JWTSecret),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        collector.Handler(),
		Health:         store.Ping,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.Database.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	if cfg.Scheduler.Enabled {
		sched.Start(gctx)
	} else {
		logger.Info("scheduler disabled, jobs run on manual trigger only")
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		sched.Stop()
		if err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// registerJobs schedules every detector job at its configured interval.
// Jobs without an interval (duplicates) stay manual-trigger only.
func registerJobs(s *scheduler.Scheduler, d *detection.Detector, cfg config.SchedulerConfig) error {
	intervals := cfg.Intervals()
	for _, job := range d.Jobs() {
		spec := scheduler.TaskSpec{
			Name:       job.Name,
			Interval:   intervals[job.Name],
			RunOnStart: job.Name == detection.JobCleanup,
			Run:        job.Run,
		}
		if err := s.Register(spec); err != nil {
			return fmt.Errorf("failed to register job %s: %w", job.Name, err)
		}
	}
	return nil
}
