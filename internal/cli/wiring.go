package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fils-quiz-bot/internal/app"
	"fils-quiz-bot/internal/config"
	"fils-quiz-bot/internal/content"
	"fils-quiz-bot/internal/delivery"
	"fils-quiz-bot/internal/domain"
	"fils-quiz-bot/internal/infra/memory"
	pgstore "fils-quiz-bot/internal/infra/postgres"
	pgmigrations "fils-quiz-bot/internal/infra/postgres/migrations"
	infraredis "fils-quiz-bot/internal/infra/redis"
	"fils-quiz-bot/internal/infra/sqlite"
	"fils-quiz-bot/internal/logging"
	"fils-quiz-bot/internal/telegram"
	transport "fils-quiz-bot/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const updateDedupTTL = 24 * time.Hour

// persistence is what the bot and the dashboard need from a user store.
type persistence interface {
	app.UserStore
	transport.AdminStore
}

// contentCache is implemented by both quiz repositories.
type contentCache interface {
	Invalidate(ctx context.Context, quizID string) error
}

// runtime is the fully wired bot shared by the webhook and polling entry points.
type runtime struct {
	cfg        config.Config
	logger     *zap.Logger
	client     *telegram.Client
	service    *app.BotService
	dispatcher *delivery.Dispatcher
	updates    *telegram.UpdateHandler
	feed       *app.LeadFeed
	store      persistence
	reloadQuiz func(ctx context.Context) (domain.Quiz, error)
	ready      map[string]transport.Pinger
	closers    []func()
	background []func(ctx context.Context)
}

func loadConfig(path, portFlag string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	if portFlag != "" {
		cfg.Server.Port = portFlag
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return cfg, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

func buildRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, logger: logger, ready: map[string]transport.Pinger{}}
	ok := false
	defer func() {
		if !ok {
			rt.close()
		}
	}()

	var opts []telegram.ClientOption
	if cfg.Telegram.APIBase != "" {
		opts = append(opts, telegram.WithAPIBase(cfg.Telegram.APIBase))
	}
	client, err := telegram.NewClient(cfg.Telegram.BotToken, opts...)
	if err != nil {
		return nil, err
	}
	rt.client = client

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = redisClient.Close() })
		rt.ready["redis"] = transport.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		db := pgstore.OpenDB(cfg.Postgres.URL)
		rt.closers = append(rt.closers, func() { _ = db.Close() })
		applied, err := pgmigrations.Up(ctx, db)
		if err != nil {
			return nil, err
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", zap.Strings("migrations", applied))
		}
		store := pgstore.NewStore(db)
		rt.store = store
		rt.ready["postgres"] = store

		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres pool: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
	} else if cfg.SQLite.Path != "" {
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = store.Close() })
		rt.store = store
		rt.ready["sqlite"] = store
	} else {
		logger.Warn("no database configured, users are kept in memory")
		rt.store = memory.NewUserStore()
	}

	var loader memory.QuizLoader = content.NewFileLoader(cfg.Quiz.ContentPath)
	if cfg.Quiz.Source == "postgres" {
		if pool == nil {
			return nil, errors.New("quiz.source=postgres needs postgres.url")
		}
		loader = pgstore.NewQuizLoader(pool)
	}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 5*time.Minute)
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var (
		quizzes  app.QuizRepository
		cache    contentCache
		sessions app.SessionRepository
		dedup    telegram.Deduper
	)
	if redisClient != nil {
		repo := infraredis.NewQuizRepository(redisClient, loader, quizTTL)
		quizzes, cache = repo, repo
		redisSessions := infraredis.NewSessionStore(redisClient, sessionTTL)
		sessions = redisSessions
		dedup = infraredis.NewDeduper(redisClient, updateDedupTTL)
		rt.background = append(rt.background, func(ctx context.Context) {
			pruneEvery(ctx, time.Hour, func() {
				if n := redisSessions.Prune(); n > 0 {
					logger.Debug("pruned idle sessions", zap.Int("count", n))
				}
			})
		})
	} else {
		repo := memory.NewQuizRepository(loader, quizTTL)
		quizzes, cache = repo, repo
		sessions = memory.NewSessionStore()
		dedup = memory.NewDeduper(updateDedupTTL)
	}

	rt.reloadQuiz = func(ctx context.Context) (domain.Quiz, error) {
		quiz, err := loader.LoadQuiz(ctx, cfg.Quiz.ID)
		if err != nil {
			return domain.Quiz{}, err
		}
		if err := quiz.Validate(); err != nil {
			return domain.Quiz{}, err
		}
		return quiz, cache.Invalidate(ctx, cfg.Quiz.ID)
	}

	rt.feed = app.NewLeadFeed(cfg.Leads.FeedSize)
	sinks := []delivery.NamedSink{{Name: "feed", Sink: rt.feed}}
	if cfg.Telegram.ManagerChatID != 0 {
		sinks = append(sinks, delivery.NamedSink{Name: "telegram", Sink: telegram.NewLeadNotifier(client, cfg.Telegram.ManagerChatID)})
	} else {
		logger.Warn("MANAGER_CHAT_ID not set, leads only reach the dashboard")
	}
	if email := cfg.Leads.Email; email.From != "" && len(email.To) > 0 {
		sink, err := delivery.NewSESLeadSink(ctx, email.Region, email.From, email.To)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, delivery.NamedSink{Name: "email", Sink: sink})
	}

	rt.dispatcher = delivery.NewDispatcher(client, delivery.Delays{
		Question: config.TTLDuration(cfg.Delivery.QuestionDelay, 0),
		Result:   config.TTLDuration(cfg.Delivery.ResultDelay, 0),
		FollowUp: cfg.FollowUpDelay(),
	}, logger.Named("delivery"))

	rt.service = app.NewBotService(cfg.Quiz.ID, sessions, quizzes, rt.dispatcher,
		app.WithLeadSink(delivery.NewLeadFanOut(sinks...)),
		app.WithUserStore(rt.store),
		app.WithLogger(logger.Named("bot")),
		app.WithLeadTimeout(config.TTLDuration(cfg.Delivery.LeadTimeout, 30*time.Second)),
	)

	// broken quiz content must stop the process before any user sees it
	quiz, err := rt.service.Quiz(ctx)
	if err != nil {
		return nil, fmt.Errorf("quiz content: %w", err)
	}
	logger.Info("quiz content loaded",
		zap.String("quiz_id", quiz.ID),
		zap.Int("questions", len(quiz.Questions)),
		zap.Int("catalog", len(quiz.Catalog)))

	rt.updates = telegram.NewUpdateHandler(rt.service, client, dedup, logger.Named("telegram"))
	ok = true
	return rt, nil
}

// dashboard builds the admin UI when a password is configured.
func (rt *runtime) dashboard() *transport.Dashboard {
	if rt.cfg.Admin.Password == "" {
		rt.logger.Info("ADMIN_PASSWORD not set, dashboard disabled")
		return nil
	}
	secret := rt.cfg.Admin.SessionSecret
	if secret == "" {
		secret = rt.cfg.Telegram.BotToken
	}
	dash, err := transport.NewDashboard(transport.DashboardConfig{
		Password:      rt.cfg.Admin.Password,
		SessionSecret: secret,
		SessionTTL:    config.TTLDuration(rt.cfg.Admin.SessionTTL, 12*time.Hour),
		Reload:        rt.reloadQuiz,
	}, rt.store, rt.feed, rt.client, rt.logger.Named("admin"))
	if err != nil {
		rt.logger.Warn("dashboard disabled", zap.Error(err))
		return nil
	}
	return dash
}

func (rt *runtime) startBackground(ctx context.Context) {
	for _, fn := range rt.background {
		go fn(ctx)
	}
}

// shutdown drains lead handoffs and queued messages, then releases connections.
func (rt *runtime) shutdown(ctx context.Context) {
	rt.service.Wait()
	if err := rt.dispatcher.Close(ctx); err != nil {
		rt.logger.Warn("dispatcher did not drain in time", zap.Error(err))
	}
	rt.close()
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func pruneEvery(ctx context.Context, every time.Duration, fn func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
