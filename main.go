package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/jonboulle/clockwork"

	"walkin-queue-coordinator/internal/api"
	"walkin-queue-coordinator/internal/audit"
	"walkin-queue-coordinator/internal/domain"
	"walkin-queue-coordinator/internal/infrastructure/repository"
	"walkin-queue-coordinator/internal/notify"
	"walkin-queue-coordinator/internal/queue"
	"walkin-queue-coordinator/internal/realtime"
	"walkin-queue-coordinator/internal/reputation"
	"walkin-queue-coordinator/internal/verification"
	"walkin-queue-coordinator/pkg/circuit"
	"walkin-queue-coordinator/pkg/config"
	"walkin-queue-coordinator/pkg/container"
	"walkin-queue-coordinator/pkg/database"
	"walkin-queue-coordinator/pkg/events"
	"walkin-queue-coordinator/pkg/health"
	"walkin-queue-coordinator/pkg/logging"
	"walkin-queue-coordinator/pkg/retry"
)

func main() {
	// Build container and register providers
	c := container.New()

	// Config (singleton)
	_ = c.Provide(func() *config.Config { return config.Load() }, true)

	// Logger (singleton)
	_ = c.Provide(func(cfg *config.Config) (*logging.Logger, error) {
		return logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: cfg.LogOutput})
	}, true)

	// Clock (singleton); injectable everywhere so tests control time
	_ = c.Provide(func() clockwork.Clock { return clockwork.NewRealClock() }, true)

	// Database (singleton)
	_ = c.Provide(func(cfg *config.Config) (*database.DB, error) {
		return database.NewWithConfig(cfg.DatabaseURL, cfg)
	}, true)

	// Repository and UoW factory (singletons)
	_ = c.Provide(func(db *database.DB) domain.Repository { return repository.NewSQLRepository(db) }, true)
	_ = c.Provide(func(db *database.DB) domain.UnitOfWorkFactory { return repository.NewSQLUnitOfWorkFactory(db) }, true)

	// Event store (singleton)
	_ = c.Provide(func(db *database.DB) (events.Store, error) { return events.NewSQLEventStore(db) }, true)

	// Reputation, verification and audit (singletons)
	_ = c.Provide(func(repo domain.Repository, clock clockwork.Clock, log *logging.Logger) *reputation.Store {
		return reputation.NewStore(repo, clock, log)
	}, true)
	_ = c.Provide(func(reps *reputation.Store, repo domain.Repository, clock clockwork.Clock, log *logging.Logger) *verification.Engine {
		return verification.NewEngine(reps, repo, clock, log)
	}, true)
	_ = c.Provide(func(repo domain.Repository, clock clockwork.Clock, log *logging.Logger) *audit.Writer {
		return audit.NewWriter(repo, clock, log)
	}, true)

	// Realtime bus with its offline buffer (singleton)
	_ = c.Provide(func(cfg *config.Config, repo domain.Repository, clock clockwork.Clock, log *logging.Logger) *realtime.Bus {
		buf := realtime.NewBuffer(cfg.BufferMaxMessages, cfg.BufferMaxAge, clock)
		resolveOwner := func(ctx context.Context, venueID string) (string, error) {
			v, err := repo.GetVenueCtx(ctx, venueID)
			if err != nil {
				return "", err
			}
			return v.OwnerUserID, nil
		}
		return realtime.NewBus(buf, resolveOwner, clock, log)
	}, true)

	// Per-channel circuit breakers (singleton); shared with health checks
	_ = c.Provide(func(cfg *config.Config, clock clockwork.Clock, log *logging.Logger) notify.Breakers {
		return notify.Breakers{
			Realtime: circuit.New(circuit.Config{Name: "realtime", FailureThreshold: cfg.RealtimeBreakerThreshold, ResetTimeout: cfg.RealtimeBreakerReset}, clock, log),
			SMS:      circuit.New(circuit.Config{Name: "sms", FailureThreshold: cfg.SMSBreakerThreshold, ResetTimeout: cfg.SMSBreakerReset}, clock, log),
			Push:     circuit.New(circuit.Config{Name: "push", FailureThreshold: cfg.PushBreakerThreshold, ResetTimeout: cfg.PushBreakerReset}, clock, log),
		}
	}, true)

	// Notification dispatcher (singleton)
	_ = c.Provide(func(cfg *config.Config, bus *realtime.Bus, repo domain.Repository, auditw *audit.Writer, breakers notify.Breakers, clock clockwork.Clock, log *logging.Logger) (*notify.Dispatcher, error) {
		renderer, err := notify.NewRenderer(cfg.TemplateFile)
		if err != nil {
			return nil, err
		}
		sms := notify.NewSMSSender(notify.SMSConfig{
			Endpoint:    cfg.SMSProviderURL,
			APIKey:      cfg.SMSAPIKey,
			SenderID:    cfg.SMSSenderID,
			CountryCode: cfg.SMSCountryCode,
			Timeout:     cfg.SMSRequestTimeout,
		}, log)
		push := notify.NewWebPushSender(notify.WebPushConfig{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
		}, repo, log)
		return notify.NewDispatcher(renderer, bus, sms, push, repo, auditw, breakers, retry.DefaultPolicy(), clock, log), nil
	}, true)

	// Queue orchestrator (singleton)
	_ = c.Provide(func(repo domain.Repository, uow domain.UnitOfWorkFactory, reps *reputation.Store, verifier *verification.Engine, auditw *audit.Writer, dispatcher *notify.Dispatcher, bus *realtime.Bus, clock clockwork.Clock, log *logging.Logger) *queue.Service {
		positions := queue.NewPositionEngine(repo, bus, clock, log)
		return queue.NewService(repo, uow, reps, verifier, auditw, dispatcher, bus, positions, clock, log)
	}, true)

	// Resolve config and logger early; failures here go to the standard logger
	var cfg *config.Config
	if err := c.Resolve(&cfg); err != nil {
		stdlog.Fatal("config resolve:", err)
	}
	if err := cfg.Validate(); err != nil {
		stdlog.Fatal("invalid config:", err)
	}
	var log *logging.Logger
	if err := c.Resolve(&log); err != nil {
		stdlog.Fatal("logger resolve:", err)
	}
	log.Info("starting walk-in queue coordinator", logging.String("env", cfg.Env), logging.String("port", cfg.Port))

	var (
		db       *database.DB
		repo     domain.Repository
		bus      *realtime.Bus
		breakers notify.Breakers
		svc      *queue.Service
		clock    clockwork.Clock
	)
	if err := c.Resolve(&db); err != nil {
		log.Error("db resolve", logging.Err(err))
		os.Exit(1)
	}
	if err := c.Resolve(&repo); err != nil {
		log.Error("repo resolve", logging.Err(err))
		os.Exit(1)
	}
	if err := c.Resolve(&bus); err != nil {
		log.Error("bus resolve", logging.Err(err))
		os.Exit(1)
	}
	if err := c.Resolve(&breakers); err != nil {
		log.Error("breakers resolve", logging.Err(err))
		os.Exit(1)
	}
	if err := c.Resolve(&svc); err != nil {
		log.Error("service resolve", logging.Err(err))
		os.Exit(1)
	}
	if err := c.Resolve(&clock); err != nil {
		log.Error("clock resolve", logging.Err(err))
		os.Exit(1)
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Bootstrap(bootCtx); err != nil {
		bootCancel()
		log.Error("schema bootstrap", logging.Err(err))
		os.Exit(1)
	}
	bootCancel()

	// Wire the durable event store into the orchestrator
	if err := c.Invoke(func(s *queue.Service, es events.Store) { s.SetEventStore(es) }); err != nil {
		log.Warn("event store init failed", logging.Err(err))
	}

	// Graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	// Background sweepers for stalled entries
	queue.NewNoShowSweeper(svc, cfg.NoShowSweepInterval, cfg.NoShowAfter, clock, log).Start(ctx)
	queue.NewPendingSweeper(svc, cfg.PendingSweepInterval, cfg.PendingVerifyTimeout, clock, log).Start(ctx)

	// HTTP boundary
	auth := api.NewAuth(cfg.AuthSecret, clock)
	limits := api.NewRateLimits(cfg.CheckInLimit, cfg.CheckInWindow, cfg.NotifyLimit, cfg.NotifyWindow, cfg.GeneralLimit, cfg.GeneralWindow)
	var reps *reputation.Store
	if err := c.Resolve(&reps); err != nil {
		log.Error("reputation resolve", logging.Err(err))
		os.Exit(1)
	}
	handlers := api.NewHandlers(svc, reps, repo, limits, clock, log)

	checks := health.NewManager(5*time.Second, clock, log)
	checks.Register(health.NewDatabaseChecker(db))
	checks.Register(health.NewBusChecker(bus))
	checks.Register(health.NewBreakerChecker("breaker-sms", breakers.SMS))
	checks.Register(health.NewBreakerChecker("breaker-push", breakers.Push))
	checks.Register(health.NewBreakerChecker("breaker-realtime", breakers.Realtime))
	if cfg.SMSProviderURL != "" {
		checks.Register(health.NewHTTPChecker("sms-provider", cfg.SMSProviderURL, cfg.SMSRequestTimeout))
	}

	router := api.NewRouter(handlers, auth, limits, bus, checks, cfg.MetricsEnabled, cfg.MetricsPath)

	// Config watcher for hot-reload of the runtime tunables
	cw := config.NewWatcher(cfg.ConfigReloadInterval)
	cw.Start()
	defer cw.Close()
	go func() {
		for chg := range cw.Subscribe() {
			if chg.Err != nil {
				log.Warn("config reload failed", logging.Err(chg.Err))
				continue
			}
			n := chg.New
			limits.Apply(n.CheckInLimit, n.CheckInWindow, n.NotifyLimit, n.NotifyWindow, n.GeneralLimit, n.GeneralWindow)
			log.Info("config applied", logging.Any("fields", chg.Fields))
		}
	}()

	// No Read/WriteTimeout here; the websocket endpoint holds connections
	// open indefinitely. Header reads are still bounded.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http server listening", logging.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server", logging.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown", logging.Err(err))
	}
	if err := db.Close(); err != nil {
		log.Warn("database close", logging.Err(err))
	}
	log.Info("shutdown complete")
}
