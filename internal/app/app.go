package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"smartmail/internal/api"
	"smartmail/internal/config"
	"smartmail/internal/gmail"
	"smartmail/internal/httpserver"
	"smartmail/internal/llm"
	"smartmail/internal/repository"
	"smartmail/internal/service/classify"
	"smartmail/internal/service/ingest"
	"smartmail/internal/service/respond"
	"smartmail/pkg/db"
	"smartmail/pkg/mq"
	"smartmail/pkg/otel"
	redisx "smartmail/pkg/redis"
	"smartmail/pkg/util"
)

const (
	serviceName = "smartmail"
	version     = "1.0.0"
)

// App 组合根：所有长连接在这里创建一次，向下传递
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    repository.EmailStore
	Ingest   *ingest.Service
	Classify *classify.Service
	Respond  *respond.Service
	Handler  *api.Handler

	publisher *mq.Publisher
	closers   []func()
}

// OpenStore opens the configured backend. The returned func releases it.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.EmailStore, func(), error) {
	policy, err := repository.ParsePolicy(cfg.Store.ClassificationPolicy)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Store.Driver {
	case "postgres":
		pool, err := db.NewConnection(cfg.DB, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("DB initialization failed: %w", err)
		}
		store, err := repository.NewPostgresStore(ctx, pool, policy, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	case "sqlite":
		store, err := repository.NewSQLiteStore(ctx, cfg.Store.SQLitePath, policy, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// New 按配置装配全部依赖。失败时已打开的资源会被释放
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// OpenTelemetry
	shutdown, err := otel.Init(cfg.Otel, serviceName, version, logger)
	if err != nil {
		return nil, fmt.Errorf("otel init failed: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	// Store
	store, closeStore, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, closeStore)

	// Redis（可选，用于事件去重）
	var dedup *util.Deduper
	if cfg.Redis.Enabled {
		rdb, err := redisx.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis initialization failed: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		dedup = util.NewDeduper(rdb, cfg.Redis.DedupTTL, logger)
		logger.Info("Redis dedup enabled", zap.String("addr", cfg.Redis.Addr))
	}

	// MQ Publisher（可选）
	var events ingest.Publisher
	if cfg.MQ.Enabled {
		publisher, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to init MQ publisher: %w", err)
		}
		a.publisher = publisher
		a.closers = append(a.closers, publisher.Close)
		events = publisher
		logger.Info("MQ publisher enabled")
	}

	// Gmail
	svc, err := gmail.NewService(ctx, cfg.Gmail)
	if err != nil {
		return nil, fmt.Errorf("gmail initialization failed: %w", err)
	}
	mail := gmail.NewClient(svc, cfg.Gmail, store, logger)

	// LLM：分类和回复共用一个熔断器
	gemini := llm.NewGeminiClient(cfg.LLM, logger)

	a.Ingest = ingest.NewService(mail, store, gmail.Provider, events, dedup, logger)
	a.Classify = classify.NewService(store, gemini.With("classify", cfg.LLM.ClassifierTemperature), events, logger)
	a.Respond = respond.NewService(store, gemini.With("respond", cfg.LLM.ResponderTemperature), mail, events, logger)

	a.Handler = api.NewHandler(a.Ingest, a.Classify, a.Respond, store, api.Options{
		FetchLimit:    10,
		ClassifyLimit: cfg.Classifier.DefaultLimit,
		ClassifyDelay: cfg.Classifier.Delay,
	}, logger)

	return a, nil
}

// Router builds the HTTP surface over the assembled services.
func (a *App) Router() *httpserver.Router {
	var events httpserver.Connectivity
	if a.publisher != nil {
		events = a.publisher
	}
	return httpserver.NewRouter(a.Handler, a.Store, events, a.Config.JWT.Secret, a.Logger)
}

// Close 逆序释放资源
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
