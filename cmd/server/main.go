package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"

	"github.com/eternisai/leadgen-assistant/internal/api"
	"github.com/eternisai/leadgen-assistant/internal/auth"
	"github.com/eternisai/leadgen-assistant/internal/backend"
	"github.com/eternisai/leadgen-assistant/internal/config"
	"github.com/eternisai/leadgen-assistant/internal/events"
	"github.com/eternisai/leadgen-assistant/internal/generation"
	"github.com/eternisai/leadgen-assistant/internal/leads"
	"github.com/eternisai/leadgen-assistant/internal/logger"
	"github.com/eternisai/leadgen-assistant/internal/metrics"
	"github.com/eternisai/leadgen-assistant/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
	log := appLogger.WithComponent("main")

	log.Info("setting gin mode", slog.String("mode", cfg.GinMode))
	gin.SetMode(cfg.GinMode)

	m := metrics.New()

	// Auth session, rehydrated from disk and validated before first use.
	authStore := auth.NewStore(cfg.AuthStateFile, nil, appLogger)
	if err := authStore.Load(); err != nil {
		log.Error("failed to load auth state", slog.String("error", err.Error()))
	}

	client := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, appLogger,
		backend.WithTokenSource(authStore),
		backend.WithUnauthorizedHook(authStore.Clear))
	authStore.SetAuthenticator(client)

	if err := authStore.Initialize(); err != nil {
		log.Error("failed to initialize auth state", slog.String("error", err.Error()))
	}
	log.Info("auth state initialized", slog.Bool("authenticated", authStore.IsAuthenticated()))

	// Leads view.
	leadOpts := []leads.Option{leads.WithLoadObserver(m.SetLeadsLoaded)}
	if s, ok := initialSort(cfg); ok {
		leadOpts = append(leadOpts, leads.WithSort(s))
	}
	leadsVM := leads.NewViewModel(client, appLogger, leadOpts...)

	// Completion events, mirrored onto NATS when configured.
	bus := events.NewLocalBus(appLogger)
	bus.Subscribe(func(ctx context.Context, ev events.GenerationCompleted) {
		if !authStore.IsAuthenticated() {
			return
		}
		if err := leadsVM.Load(ctx); err != nil {
			log.Warn("leads refresh after generation failed",
				slog.String("session_id", ev.SessionID),
				slog.String("error", err.Error()))
		}
	})

	var natsPublisher *events.NATSPublisher
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL,
			nats.Name("leadgen-assistant-"+logger.GetInstanceID()),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		if err != nil {
			log.Error("failed to connect to NATS, continuing without it", slog.String("error", err.Error()))
		} else {
			defer nc.Drain()
			natsPublisher = events.NewNATSPublisher(nc, appLogger, logger.GetInstanceID())
			if err := natsPublisher.Listen(bus); err != nil {
				log.Error("failed to listen for NATS events", slog.String("error", err.Error()))
			}
		}
	}

	var publishers []events.Publisher
	publishers = append(publishers, bus)
	if natsPublisher != nil {
		publishers = append(publishers, natsPublisher)
	}
	fanout := events.NewFanout(appLogger, publishers...)

	// Generation sessions.
	questions := generation.DefaultQuestions()
	if cfg.Conversation != nil && len(cfg.Conversation.Questions) > 0 {
		overrides := make([]generation.Question, 0, len(cfg.Conversation.Questions))
		for _, q := range cfg.Conversation.Questions {
			overrides = append(overrides, generation.Question{Key: q.Key, Prompt: q.Prompt})
		}
		if questions, err = generation.MergePrompts(overrides); err != nil {
			log.Error("invalid conversation script", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sessions := generation.NewManager(client, generation.Options{
		Questions:       questions,
		DefaultCount:    cfg.DefaultRequestedCount,
		PollInterval:    cfg.GenerationPollInterval,
		PollTimeout:     cfg.GenerationPollTimeout,
		MaxPollFailures: cfg.GenerationMaxPollFailures,
		Observer:        m,
		Precheck: func(ctx context.Context, p generation.Parameters) error {
			user, err := authStore.RefreshProfile(ctx)
			if err != nil {
				// Fall back to the cached profile.
				var ok bool
				if user, ok = authStore.User(); !ok {
					return auth.ErrNotAuthenticated
				}
			}
			return auth.CheckQuota(user, p.RequestedCount)
		},
		OnComplete: func(c generation.Completion) {
			ev := events.GenerationCompleted{
				SessionID:   c.SessionID,
				UserID:      c.UserID,
				JobID:       c.JobID,
				LeadsCount:  c.LeadsCount,
				CompletedAt: time.Now().UTC(),
				InstanceID:  logger.GetInstanceID(),
			}
			_ = fanout.Publish(context.Background(), ev)
		},
	}, cfg.GenerationMaxSessions, appLogger)
	sessions.OnActiveChange(m.SetActiveSessions)
	sessions.StartSweeper(cfg.GenerationSessionIdleTTL, time.Minute)

	// Initial load and optional scheduled refresh.
	if authStore.IsAuthenticated() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.BackendTimeout)
		if err := leadsVM.Load(ctx); err != nil {
			log.Warn("initial leads load failed", slog.String("error", err.Error()))
		}
		cancel()
	}

	var refresher *scheduler.Refresher
	if cfg.LeadsRefreshCron != "" {
		refresher, err = scheduler.NewRefresher(cfg.LeadsRefreshCron, authenticatedLoader{authStore, leadsVM}, cfg.BackendTimeout, appLogger)
		if err != nil {
			log.Error("invalid leads refresh schedule", slog.String("error", err.Error()))
			os.Exit(1)
		}
		refresher.Start()
	}

	streams := api.NewStreamHub(appLogger)
	router := api.NewRouter(api.Deps{
		Sessions:       sessions,
		Leads:          leadsVM,
		Auth:           authStore,
		Streams:        streams,
		Metrics:        m,
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         appLogger,
	})

	port := ":" + cfg.Port
	srv := &http.Server{
		Addr:              port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("🔁  lead generation assistant listening", slog.String("addr", port), slog.String("backend", cfg.BackendURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("🛑 shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if refresher != nil {
		if err := refresher.Stop(ctx); err != nil {
			log.Warn("leads refresher did not stop in time", slog.String("error", err.Error()))
		}
	}

	streams.CloseAll()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	if err := sessions.Shutdown(ctx); err != nil {
		log.Warn("session manager did not stop in time", slog.String("error", err.Error()))
	}

	if err := bus.Wait(ctx); err != nil {
		log.Warn("event handlers did not finish in time", slog.String("error", err.Error()))
	}

	if natsPublisher != nil {
		if err := natsPublisher.Stop(); err != nil {
			log.Warn("failed to stop NATS publisher", slog.String("error", err.Error()))
		}
	}

	log.Info("✅ server exited")
}

// authenticatedLoader skips scheduled refreshes while nobody is logged in.
type authenticatedLoader struct {
	store *auth.Store
	vm    *leads.ViewModel
}

func (l authenticatedLoader) Load(ctx context.Context) error {
	if !l.store.IsAuthenticated() {
		return nil
	}
	return l.vm.Load(ctx)
}

func initialSort(cfg *config.Config) (leads.Sort, bool) {
	if cfg.Conversation == nil || cfg.Conversation.DefaultSort.Field == "" {
		return leads.Sort{}, false
	}

	field, err := leads.ParseSortField(cfg.Conversation.DefaultSort.Field)
	if err != nil {
		return leads.Sort{}, false
	}
	dir := leads.Descending
	if cfg.Conversation.DefaultSort.Direction == string(leads.Ascending) {
		dir = leads.Ascending
	}
	return leads.Sort{Field: field, Direction: dir}, true
}
