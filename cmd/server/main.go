/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the scheduling engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment configuration, apply flag overrides
  2. Initialize SQLite store
  3. Wire booking and workforce services over the store
  4. Configure HTTP router and start the background poller
  5. Start server with graceful shutdown

CONFIGURATION:
  Environment variables (flags override):
    PORT             HTTP server port (default: 8080)
    DB_PATH          SQLite database path (default: scheduling.db)
    LOG_LEVEL        zerolog level: debug, info, warn, error (default: info)
    TENANTS          Comma-separated tenant ids the poller sweeps
    POLL_INTERVAL    Poller tick interval (default: 1m)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the poller and close the database
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/scheduling.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Sweep two tenants
  TENANTS=chapel-hill,riverside ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/poller.go: Background timeout/reminder sweep
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/evermore/scheduling-engine/api"
	"github.com/evermore/scheduling-engine/booking"
	"github.com/evermore/scheduling-engine/generic"
	"github.com/evermore/scheduling-engine/store/sqlite"
	"github.com/evermore/scheduling-engine/workforce"
)

type config struct {
	Port         int           `env:"PORT" envDefault:"8080"`
	DBPath       string        `env:"DB_PATH" envDefault:"scheduling.db"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	Tenants      []string      `env:"TENANTS" envSeparator:","`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1m"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse environment: %v\n", err)
		os.Exit(1)
	}

	// Flags override environment.
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	logLevel := flag.String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	// Wire services. The SQLite store implements every port.
	notifier := generic.NopNotifier{}
	bookingSvc := booking.NewService(store, store, store, notifier)
	workforceSvc := workforce.NewService(store, store, store, store, notifier)

	handler := api.NewHandler(bookingSvc, workforceSvc, store, store, store, notifier)
	router := api.NewRouter(handler)

	// Background poller for auto-release and reminders
	tenants := make([]generic.TenantID, len(cfg.Tenants))
	for i, t := range cfg.Tenants {
		tenants[i] = generic.TenantID(t)
	}
	poller := api.NewPoller(bookingSvc, store, store, notifier, log, tenants)
	if cfg.PollInterval > 0 {
		poller.TickInterval = cfg.PollInterval
	}
	if len(tenants) > 0 {
		poller.Start()
		defer poller.Stop()
	} else {
		log.Warn().Msg("no tenants configured, poller not started")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", *port).Str("db", *dbPath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("server stopped")
}
