package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/cinefeed/internal/metrics"
	"github.com/hitoshi/cinefeed/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector

	// Gatherer が設定されている場合は /metrics を公開する
	Gatherer prometheus.Gatherer

	// ブラウズ
	Browse BrowseServiceInterface
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status string `json:"status"`
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Metrics → Recovery → SecurityHeaders → CORS → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var collector metrics.MetricsCollector = metrics.Nop{}
	if deps.Metrics != nil {
		collector = deps.Metrics
	}

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	browseHandler := NewBrowseHandler(deps.Browse)

	// --- レート制限不要のルート ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- API ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/feed", func(r chi.Router) {
			r.Get("/", browseHandler.GetFeed)
			// 再読み込みはカタログAPIへのリクエストを伴うため専用のレート制限を追加
			r.With(deps.RateLimiter.ReloadMiddleware()).Post("/reload", browseHandler.ReloadFeed)
		})

		r.Get("/api/search", browseHandler.Search)

		r.Route("/api/titles/{kind}/{id}", func(r chi.Router) {
			r.Get("/", browseHandler.GetTitle)
			r.Get("/trailer", browseHandler.GetTrailer)
		})

		r.Route("/api/watchlist", func(r chi.Router) {
			r.Get("/", browseHandler.ListWatchlist)
			r.Post("/toggle", browseHandler.ToggleWatchlist)
		})

		r.Get("/api/resume", browseHandler.ListResume)
		r.Post("/api/progress", browseHandler.RecordProgress)
	})

	return r
}
