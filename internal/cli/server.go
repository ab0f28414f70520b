package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/broadcast"
	"trivia-live-service/internal/config"
	"trivia-live-service/internal/infra/memory"
	pgloader "trivia-live-service/internal/infra/postgres"
	redisinfra "trivia-live-service/internal/infra/redis"
	"trivia-live-service/internal/logging"
	"trivia-live-service/internal/metrics"
	transport "trivia-live-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New("trivia-live", cfg.Log.Level, cfg.Log.Pretty && !cfg.IsProduction())

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger, false); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuestionSetLoader = memory.NewStaticQuestionSetLoader(memory.SampleQuestionSets())
	if pool != nil {
		loader = pgloader.NewQuestionSetLoader(pool)
	}

	setTTL := config.TTLDuration(cfg.QuestionSets.TTL, 10*time.Minute)
	var questionSets app.QuestionSetRepository
	if redisClient != nil {
		questionSets = redisinfra.NewQuestionSetRepository(redisClient, loader, setTTL)
	} else {
		questionSets = memory.NewQuestionSetRepository(loader, setTTL)
	}

	var store app.SessionRepository
	if redisClient != nil {
		store = redisinfra.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 30*time.Minute), logger)
	} else {
		store = memory.NewSessionStore()
	}

	hub := broadcast.NewHub(logger, m, config.TTLDuration(cfg.Game.BroadcastTimeout, broadcast.DefaultSendTimeout))
	service := app.NewGameService(store, questionSets, hub, app.Options{
		MaxPlayers:       cfg.Game.MaxPlayers,
		TimeBudget:       config.TTLDuration(cfg.Game.TimeBudget, 10*time.Minute),
		WatchdogInterval: config.TTLDuration(cfg.Game.WatchdogInterval, app.DefaultWatchdogInterval),
		Retention:        config.TTLDuration(cfg.Game.Retention, 30*time.Minute),
		Logger:           logger,
		Metrics:          m,
	})

	router := transport.NewRouter(
		transport.NewGameHandler(service),
		transport.NewWSHandler(service, logger),
		logger,
		transport.RouterConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		},
	)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would cut long-lived WebSocket connections.
		IdleTimeout: 60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("starting trivia service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return service.RunReaper(groupCtx, config.TTLDuration(cfg.Game.ReapInterval, time.Minute))
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
		defer cancel()
		return shutdownServer(shutdownCtx, server, service, store, logger)
	})
	return group.Wait()
}

func shutdownServer(ctx context.Context, server *http.Server, service *app.GameService, store app.SessionRepository, logger zerolog.Logger) error {
	err := server.Shutdown(ctx)
	for _, session := range store.List() {
		service.DeleteSession(session.ID())
	}
	if err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	return err
}
