// Command dispatchd runs the phone ride-booking dispatch agent: a webhook
// server that walks callers through booking a ride, one spoken turn at a
// time, and appends confirmed bookings to a booking store.
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

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/ridelinehq/dispatchd/internal/address"
	"github.com/ridelinehq/dispatchd/internal/bookings"
	"github.com/ridelinehq/dispatchd/internal/config"
	"github.com/ridelinehq/dispatchd/internal/dialog"
	"github.com/ridelinehq/dispatchd/internal/gateway"
	"github.com/ridelinehq/dispatchd/internal/health"
	"github.com/ridelinehq/dispatchd/internal/interp"
	"github.com/ridelinehq/dispatchd/internal/interp/anyllm"
	"github.com/ridelinehq/dispatchd/internal/interp/openai"
	"github.com/ridelinehq/dispatchd/internal/notify"
	"github.com/ridelinehq/dispatchd/internal/observe"
	"github.com/ridelinehq/dispatchd/internal/resilience"
	"github.com/ridelinehq/dispatchd/internal/session"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "dispatchd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "dispatchd: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("dispatchd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// --- Session store ---
	sessions, memStore, err := buildSessionStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to build session store", "err", err)
		return 1
	}
	defer sessions.Close()

	// --- Booking store ---
	store, err := buildBookingStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to build booking store", "err", err)
		return 1
	}
	defer store.Close()

	// --- Interpreter ---
	provider, err := buildInterpreterProvider(cfg)
	if err != nil {
		slog.Error("failed to build interpreter provider", "err", err)
		return 1
	}
	adapter := interp.New(provider,
		interp.WithTimeout(cfg.Interpreter.Timeout.Std()),
		interp.WithBreaker(resilience.New(resilience.Config{Name: "interpreter"})),
		interp.WithMetrics(metrics),
	)

	// --- Address corrector ---
	corrector := address.New(cfg.AddressIndex.BaseURL,
		address.WithTimeout(cfg.AddressIndex.Timeout.Std()),
		address.WithMinSimilarity(cfg.AddressIndex.MinSimilarity),
		address.WithMetrics(metrics),
	)

	// --- Event publisher (optional) ---
	var events *notify.Publisher
	if cfg.Events.NATSURL != "" {
		events, err = notify.New(cfg.Events.NATSURL, cfg.Events.NATSToken, cfg.Events.Subject, logger)
		if err != nil {
			slog.Error("failed to connect event publisher", "err", err)
			return 1
		}
		defer events.Close()
		slog.Info("event publisher connected", "subject", cfg.Events.Subject)
	}

	ctrl := dialog.New(sessions, adapter, corrector, store,
		dialog.WithPublisher(events),
		dialog.WithMetrics(metrics),
	)

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: gateway.NewServer(ctrl, buildHealth(sessions, store), metrics),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("gateway listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway server: %w", err)
		}
		return nil
	})

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
		g.Go(func() error {
			slog.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if memStore != nil {
		g.Go(func() error {
			return memStore.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildSessionStore returns the configured session store. The second return
// is non-nil only for the in-memory backend, whose TTL janitor must be run
// by the caller.
func buildSessionStore(ctx context.Context, cfg *config.Config) (session.Store, *session.MemoryStore, error) {
	switch cfg.Sessions.Backend {
	case config.SessionsRedis:
		s, err := session.NewRedisStore(ctx, cfg.Sessions.RedisURL, cfg.Sessions.TTL.Std())
		if err != nil {
			return nil, nil, err
		}
		slog.Info("session store: redis")
		return s, nil, nil
	default:
		s := session.NewMemoryStore(session.WithTTL(cfg.Sessions.TTL.Std()))
		slog.Info("session store: memory", "ttl", cfg.Sessions.TTL.Std())
		return s, s, nil
	}
}

// buildBookingStore returns the configured confirmed-booking store.
func buildBookingStore(ctx context.Context, cfg *config.Config) (bookings.Store, error) {
	switch cfg.Bookings.Backend {
	case config.BookingsPostgres:
		s, err := bookings.NewPostgresStore(ctx, cfg.Bookings.PostgresDSN)
		if err != nil {
			return nil, err
		}
		slog.Info("booking store: postgres")
		return s, nil
	default:
		s, err := bookings.NewCSVStore(cfg.Bookings.CSVPath)
		if err != nil {
			return nil, err
		}
		slog.Info("booking store: csv", "path", cfg.Bookings.CSVPath)
		return s, nil
	}
}

// buildInterpreterProvider constructs the configured model backend.
func buildInterpreterProvider(cfg *config.Config) (interp.Provider, error) {
	ic := cfg.Interpreter
	switch ic.Provider {
	case "openai":
		var opts []openai.Option
		if ic.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(ic.BaseURL))
		}
		opts = append(opts, openai.WithTimeout(ic.Timeout.Std()))
		return openai.New(ic.APIKey, ic.Model, opts...)
	case "anyllm":
		var opts []anyllmlib.Option
		if ic.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(ic.APIKey))
		}
		if ic.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(ic.BaseURL))
		}
		// The model string carries the backend: "ollama/llama3" selects the
		// ollama backend with model llama3; a bare model uses openai.
		backend, model := splitModel(ic.Model)
		return anyllm.New(backend, model, opts...)
	default:
		return nil, fmt.Errorf("unknown interpreter provider %q", ic.Provider)
	}
}

// splitModel splits "backend/model" into its parts, defaulting the backend
// to openai.
func splitModel(s string) (backend, model string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return s[:i], s[i+1:]
		}
	}
	return "openai", s
}

// buildHealth wires readiness checkers for the backends that can be probed.
func buildHealth(sessions session.Store, store bookings.Store) *health.Handler {
	var checkers []health.Checker

	checkers = append(checkers, health.Checker{
		Name: "session_store",
		Check: func(ctx context.Context) error {
			_, err := sessions.Count(ctx)
			return err
		},
	})

	if pg, ok := store.(*bookings.PostgresStore); ok {
		checkers = append(checkers, health.Checker{Name: "booking_store", Check: pg.Ping})
	}
	if rs, ok := sessions.(*session.RedisStore); ok {
		checkers = append(checkers, health.Checker{Name: "redis", Check: rs.Ping})
	}

	return health.New(checkers...)
}

// newLogger builds the process logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
