package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/cinefeed/internal/metrics"
	"github.com/hitoshi/cinefeed/internal/middleware"
	"github.com/hitoshi/cinefeed/internal/model"
)

// newTestRouter はテスト用のRouterDepsでルーターを生成する。
func newTestRouter(t *testing.T, svc BrowseServiceInterface, reloadBurst int) (http.Handler, *prometheus.Registry) {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Inf,
		GeneralBurst:    1,
		ReloadRate:      rate.Limit(0.001),
		ReloadBurst:     reloadBurst,
		CleanupInterval: time.Hour,
	})
	t.Cleanup(rl.Stop)

	reg := prometheus.NewRegistry()
	router := NewRouter(&RouterDeps{
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Metrics:           metrics.NewCollector(reg),
		Gatherer:          reg,
		Browse:            svc,
	})
	return router, reg
}

func TestNewRouter_RoutesResolve(t *testing.T) {
	svc := &mockBrowseService{
		selectTitleFn: func(ctx context.Context, key model.ContentKey) (model.Content, error) {
			return model.Content{ID: key.ID, Kind: key.Kind}, nil
		},
		getTrailerFn: func(ctx context.Context, id int64, kind model.MediaKind) (string, bool) {
			return "abc", true
		},
	}
	router, _ := newTestRouter(t, svc, 10)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/api/feed", "", http.StatusOK},
		{http.MethodPost, "/api/feed/reload", "", http.StatusOK},
		{http.MethodGet, "/api/search?q=matrix", "", http.StatusOK},
		{http.MethodGet, "/api/titles/movie/603", "", http.StatusOK},
		{http.MethodGet, "/api/titles/tv/1399/trailer", "", http.StatusOK},
		{http.MethodGet, "/api/watchlist", "", http.StatusOK},
		{http.MethodPost, "/api/watchlist/toggle", `{"content":{"id":1,"mediaKind":"movie"}}`, http.StatusOK},
		{http.MethodGet, "/api/resume", "", http.StatusOK},
		{http.MethodPost, "/api/progress", `{"content":{"id":1,"mediaKind":"movie"},"fraction":0.5}`, http.StatusOK},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
		{http.MethodDelete, "/api/watchlist", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestNewRouter_SetsRequestIDAndSecurityHeaders(t *testing.T) {
	router, _ := newTestRouter(t, &mockBrowseService{}, 10)

	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("X-Request-ID ヘッダーが設定されていない")
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want http://localhost:3000", got)
	}
}

func TestNewRouter_ReloadHasDedicatedRateLimit(t *testing.T) {
	router, _ := newTestRouter(t, &mockBrowseService{}, 1)

	doReload := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/feed/reload", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if got := doReload(); got != http.StatusOK {
		t.Fatalf("1回目の status = %d, want %d", got, http.StatusOK)
	}
	if got := doReload(); got != http.StatusTooManyRequests {
		t.Errorf("2回目の status = %d, want %d", got, http.StatusTooManyRequests)
	}

	// 通常のAPIは再読み込みの制限を受けない
	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("GET /api/feed status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestNewRouter_MetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, &mockBrowseService{}, 10)

	// 1件リクエストしてHTTPステータスのメトリクスを発生させる
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/feed", nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "cinefeed_http_responses_total") {
		t.Error("response should contain cinefeed_http_responses_total metric")
	}
}

func TestNewRouter_NoMetricsWithoutGatherer(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer rl.Stop()

	router := NewRouter(&RouterDeps{
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		Browse:            &mockBrowseService{},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
