package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pool-quiz-service/internal/app"
	"pool-quiz-service/internal/config"
	"pool-quiz-service/internal/domain"
	"pool-quiz-service/internal/infra/memory"
	pgloader "pool-quiz-service/internal/infra/postgres"
	redisinfra "pool-quiz-service/internal/infra/redis"
	transport "pool-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	clock := clockwork.NewRealClock()
	settings := app.Settings{
		QuestionDuration: cfg.Game.QuestionDuration,
		LobbyTTL:         config.Duration(cfg.Game.LobbyTTL, 30*time.Minute),
		RevealDelay:      config.Duration(cfg.Game.RevealDelay, 3*time.Second),
	}
	factory := func(pin, quizID string) *app.Session {
		return app.NewSession(pin, quizID, settings, clock)
	}

	var registry app.SessionRegistry
	if redisClient != nil {
		sessionTTL := config.Duration(cfg.Redis.TTL, settings.LobbyTTL)
		registry = redisinfra.NewSessionRegistry(redisClient, factory, sessionTTL)
	} else {
		registry = memory.NewSessionRegistry(factory)
	}

	hub := transport.NewHub(logger)
	engine := app.NewGameService(registry, quizRepo, hub, clock, settings, logger)
	wsHandler := transport.NewWSHandler(engine, hub, logger)
	apiHandler := transport.NewAPIHandler(engine, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	apiHandler.Register(mux)

	sweeper, err := startSweeper(engine, config.Duration(cfg.Game.SweepInterval, time.Minute), logger)
	if err != nil {
		return err
	}
	defer func() { _ = sweeper.Shutdown() }()

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("port", finalPort).Msg("starting pool quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// startSweeper reclaims expired WAITING lobbies on a fixed cadence.
func startSweeper(engine *app.GameService, interval time.Duration, logger zerolog.Logger) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if n := engine.SweepExpired(); n > 0 {
				logger.Info().Int("sessions", n).Msg("reclaimed expired lobbies")
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	sched.Start()
	return sched, nil
}

// sampleQuizzes provides demo data for running without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:         "quiz-1",
			AccessMode: domain.AccessGeneral,
			Questions: []domain.Question{
				{
					ID:            "q1",
					Content:       "What is 2 + 2?",
					Options:       []string{"3", "4", "5"},
					CorrectOption: "4",
				},
				{
					ID:            "q2",
					Content:       "Which planet is known as the red planet?",
					Options:       []string{"Venus", "Mars", "Jupiter"},
					CorrectOption: "Mars",
				},
			},
		},
	}
}
