package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/hitoshi/cinefeed/internal/browse"
	"github.com/hitoshi/cinefeed/internal/catalog"
	"github.com/hitoshi/cinefeed/internal/config"
	"github.com/hitoshi/cinefeed/internal/content"
	"github.com/hitoshi/cinefeed/internal/database"
	"github.com/hitoshi/cinefeed/internal/detail"
	"github.com/hitoshi/cinefeed/internal/feed"
	"github.com/hitoshi/cinefeed/internal/handler"
	"github.com/hitoshi/cinefeed/internal/metrics"
	"github.com/hitoshi/cinefeed/internal/middleware"
	"github.com/hitoshi/cinefeed/internal/model"
	"github.com/hitoshi/cinefeed/internal/personalization"
	"github.com/hitoshi/cinefeed/internal/repository"
	"github.com/hitoshi/cinefeed/internal/search"
	"github.com/hitoshi/cinefeed/internal/security"
)

// App はワイヤリング済みのアプリケーション。
type App struct {
	Handler  http.Handler
	Service  *browse.Service
	Registry *prometheus.Registry

	rateLimiter *middleware.RateLimiter
	db          *sql.DB
}

// Close はApp が保持するリソースを解放する。
func (a *App) Close() error {
	a.rateLimiter.Stop()
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Build は設定から全依存関係を構築する。
// パーソナライズ状態はここで読み込むが、フィードは最初の要求まで読み込まない。
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	collector := metrics.NewCollector(reg)

	// 2. カタログAPIクライアント
	rotator, err := catalog.NewRotator(cfg.CatalogAPIKeys)
	if err != nil {
		return nil, err
	}
	guard := security.NewOutboundGuard()
	var limiter *rate.Limiter
	if cfg.CatalogRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.CatalogRateLimit), cfg.CatalogRateBurst)
	}
	catalogClient := catalog.NewClient(
		guard.NewCatalogClient(cfg.CatalogTimeout),
		rotator,
		logger,
		catalog.Options{
			BaseURL: cfg.CatalogBaseURL,
			Limiter: limiter,
			Metrics: collector,
		},
	)
	normalizer := content.NewNormalizer(cfg.ImageBaseURL, security.NewTextSanitizer())

	// 3. パーソナライズ状態のストレージ
	kv, db, err := openKeyValueStore(cfg)
	if err != nil {
		return nil, err
	}
	store, err := personalization.Open(ctx, kv, logger, collector, personalization.Options{
		ResumeCapacity: cfg.ResumeMaxEntries,
	})
	if err != nil {
		closeDB(db)
		return nil, fmt.Errorf("failed to open personalization store: %w", err)
	}

	// 4. フィード・検索・詳細
	categories, err := loadCategories(cfg)
	if err != nil {
		closeDB(db)
		return nil, err
	}
	trailers := detail.NewLoader(catalogClient, cfg.VideoSite, logger)
	orchestrator := feed.NewOrchestrator(
		catalogClient, normalizer, trailers, store, categories, logger,
		feed.Options{
			CategoryTimeout: cfg.CategoryTimeout,
			MaxConcurrent:   cfg.FeedMaxConcurrent,
			MaxItems:        cfg.CategoryMaxItems,
			Metrics:         collector,
		},
	)
	engine := search.NewEngine(catalogClient, normalizer, store, logger, search.Options{
		Debounce: cfg.SearchDebounce,
		MaxItems: cfg.CategoryMaxItems,
		Metrics:  collector,
	})
	service := browse.NewService(orchestrator, engine, trailers, store, logger)

	// 5. ルーター
	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		// configのRateLimitGeneralはreq/min単位なのでreq/secに変換する
		rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rlCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	rateLimiter := middleware.NewRateLimiter(rlCfg)

	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            logger,
		Metrics:           collector,
		Gatherer:          reg,
		Browse:            service,
	})

	logger.Info("application wired",
		slog.Int("categories", len(categories)),
		slog.Int("watchlist", len(store.Watchlist())),
		slog.Int("resume", len(store.ResumeList())),
	)

	return &App{
		Handler:     router,
		Service:     service,
		Registry:    reg,
		rateLimiter: rateLimiter,
		db:          db,
	}, nil
}

// openKeyValueStore は設定されたバックエンドのKeyValueStoreを開く。
// SQLiteの場合は開いたDBも返す。
func openKeyValueStore(cfg *config.Config) (repository.KeyValueStore, *sql.DB, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendSQLite:
		path := sqlitePath(cfg)
		db, err := database.Open(path)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.RunMigrations(path); err != nil {
			db.Close()
			return nil, nil, err
		}
		slog.Info("sqlite storage ready", slog.String("path", path))
		return repository.NewSQLiteKVRepo(db), db, nil
	default:
		return repository.NewFileKVRepo(afero.NewOsFs(), cfg.StoragePath, cfg.StorageQuotaBytes), nil, nil
	}
}

// loadCategories はカテゴリ定義を読み込む。ファイル未指定の場合は組み込みの既定値。
func loadCategories(cfg *config.Config) ([]model.Category, error) {
	if cfg.CategoriesFile == "" {
		return feed.DefaultCategories(), nil
	}
	categories, err := feed.LoadCategories(cfg.CategoriesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	return categories, nil
}

func closeDB(db *sql.DB) {
	if db != nil {
		db.Close()
	}
}
