package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"

	"tutor-live-service/internal/app"
	"tutor-live-service/internal/auth"
	"tutor-live-service/internal/availability"
	"tutor-live-service/internal/config"
	"tutor-live-service/internal/infra/events"
	"tutor-live-service/internal/infra/memory"
	"tutor-live-service/internal/infra/postgres"
	redisstore "tutor-live-service/internal/infra/redis"
	"tutor-live-service/internal/logger"
	"tutor-live-service/internal/seed"
	transport "tutor-live-service/internal/transport/http"
)

const shutdownTimeout = 5 * time.Second

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz and doubt server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, *port)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

// stores holds the storage backends picked from config.
type stores struct {
	rooms     app.RoomRegistry
	questions app.QuestionStore
	doubts    app.DoubtStore
	chat      app.ChatStore
	results   transport.ResultReader
	writers   []events.ResultStore

	liveRooms *redisstore.RoomRegistry
	closers   []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores prefers Postgres and Redis when configured and falls back to
// process memory for everything else.
func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	s := &stores{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		s.closers = append(s.closers, func() { _ = redisClient.Close() })
	}

	var (
		pool *pgxpool.Pool
		db   *bun.DB
	)
	if cfg.Postgres.URL != "" {
		db = postgres.OpenBun(cfg.Postgres.URL)
		s.closers = append(s.closers, func() { _ = db.Close() })
		if _, err := postgres.Migrate(ctx, db); err != nil {
			s.close()
			return nil, err
		}
		var err error
		pool, err = postgres.OpenPool(ctx, cfg.Postgres.URL)
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 24*time.Hour)
	resultsTTL := config.TTLDuration(cfg.Quiz.ResultsTTL, time.Hour)
	if redisClient != nil {
		s.questions = memory.NewQuestionStore(redisstore.NewQuestionStore(redisClient, quizTTL), config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
		s.liveRooms = redisstore.NewRoomRegistry(redisClient, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
		s.rooms = s.liveRooms
	} else {
		s.questions = memory.NewQuestionStore(nil, quizTTL)
		s.rooms = memory.NewRoomRegistry()
	}

	if pool != nil {
		s.doubts = postgres.NewDoubtStore(pool)
	} else {
		s.doubts = memory.NewDoubtStore()
	}

	if db != nil {
		s.chat = postgres.NewChatStore(db)
	} else {
		s.chat = memory.NewChatStore()
	}

	if db != nil {
		pg := postgres.NewResultStore(db)
		s.results = pg
		s.writers = append(s.writers, pg)
	}
	if redisClient != nil {
		rs := redisstore.NewResultStore(redisClient, resultsTTL)
		if s.results == nil {
			s.results = rs
		}
		s.writers = append(s.writers, rs)
	}
	if len(s.writers) == 0 {
		mem := memory.NewResultStore()
		s.results = mem
		s.writers = append(s.writers, mem)
	}
	return s, nil
}

func runServer(ctx context.Context, cfg config.Config) error {
	log := logger.Named("server")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	publisher, subscriber, err := events.NewPubSub(events.Transport{
		KafkaBrokers:  cfg.Events.KafkaBrokers,
		ConsumerGroup: cfg.Events.ConsumerGroup,
	}, events.NewLoggerAdapter(logger.Named("events")))
	if err != nil {
		return err
	}
	recorder := events.NewResultRecorder(subscriber, cfg.Events.ResultsTopic, logger.Named("results"), st.writers...)

	hub := transport.NewHub(logger.Named("hub"))
	coordinator := app.NewCoordinator(st.rooms, st.questions, hub,
		app.WithResultSink(events.NewResultPublisher(publisher, cfg.Events.ResultsTopic)),
		app.WithCoordinatorLogger(logger.Named("coordinator")),
		app.WithQuestionTimeout(cfg.Quiz.QuestionTimeout),
	)
	doubts := app.NewDoubtService(st.doubts, availability.NewIndex(), hub,
		app.WithDoubtLogger(logger.Named("doubts")),
		app.WithDoubtChannels(hub),
	)
	chat := app.NewChatService(doubts, st.chat, hub,
		app.WithChatLogger(logger.Named("chat")),
		app.WithHistoryLimit(cfg.Chat.HistoryLimit),
	)

	if cfg.Seed.Path != "" {
		fixtures, err := seed.Load(cfg.Seed.Path)
		if err != nil {
			return err
		}
		targets := seed.Targets{Teachers: doubts, Doubts: st.doubts, Questions: st.questions}
		if err := seed.Apply(ctx, fixtures, targets, time.Now()); err != nil {
			return err
		}
		log.Info().Str("path", cfg.Seed.Path).
			Int("teachers", len(fixtures.Teachers)).
			Int("doubts", len(fixtures.Doubts)).
			Int("quizzes", len(fixtures.Quizzes)).
			Msg("seed fixtures loaded")
	}

	authn := auth.New(cfg.Auth.Casdoor)
	gin.SetMode(gin.ReleaseMode)
	router := transport.NewRouter(transport.RouterDeps{
		WS:      transport.NewWSHandler(hub, app.NewMux(coordinator, chat), authn, logger.Named("ws")),
		Doubts:  doubts,
		Rooms:   coordinator,
		Results: st.results,
		Chat:    chat,
		Auth:    authn,
		Log:     logger.Named("http"),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("starting tutor live service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return recorder.Run(gctx)
	})
	if st.liveRooms != nil {
		g.Go(func() error {
			ticker := time.NewTicker(config.TTLDuration(cfg.Redis.TTL, 10*time.Minute) / 2)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if err := st.liveRooms.Touch(gctx); err != nil {
						log.Warn().Err(err).Msg("failed to refresh live room markers")
					}
				}
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if closeErr := errors.Join(publisher.Close(), subscriber.Close()); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close result pub/sub")
		}
		return err
	})
	return g.Wait()
}
