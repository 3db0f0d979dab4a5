package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiterConfig(generalRate rate.Limit, generalBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     generalRate,
		GeneralBurst:    generalBurst,
		ReloadRate:      1,
		ReloadBurst:     1,
		CleanupInterval: 1 * time.Minute,
	}
}

// requestFrom は指定した接続元アドレスからのリクエストを生成する。
func requestFrom(method, path, remoteAddr string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	return req
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// --- GeneralMiddleware (API全般) のテスト ---

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(2, 5))
	defer rl.Stop()

	handlerCallCount := 0
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(http.MethodGet, "/api/feed", "127.0.0.1:50000"))

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 2))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	// バースト分（2回）は通る。ポートが違っても同じクライアントとして数える
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(http.MethodGet, "/api/feed", "127.0.0.1:"+strconv.Itoa(50000+i)))

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	// 3回目はレート制限に引っかかる
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodGet, "/api/feed", "127.0.0.1:50009"))

	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusTooManyRequests)
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfterHeader(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestFrom(http.MethodGet, "/api/feed", "127.0.0.1:1"))

	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, requestFrom(http.MethodGet, "/api/feed", "127.0.0.1:1"))

	if w2.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w2.Result().StatusCode, http.StatusTooManyRequests)
	}

	retryAfter := w2.Result().Header.Get("Retry-After")
	if retryAfter == "" {
		t.Fatal("expected Retry-After header to be present")
	}

	// Retry-Afterは数値（秒）であること
	retrySeconds, err := strconv.Atoi(retryAfter)
	if err != nil {
		t.Errorf("Retry-After header should be a number, got %q", retryAfter)
	}
	if retrySeconds < 1 {
		t.Errorf("Retry-After = %d, should be at least 1", retrySeconds)
	}
}

func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	// クライアントAがバーストを消費
	handler.ServeHTTP(httptest.NewRecorder(), requestFrom(http.MethodGet, "/api/feed", "10.0.0.1:1234"))

	wA := httptest.NewRecorder()
	handler.ServeHTTP(wA, requestFrom(http.MethodGet, "/api/feed", "10.0.0.1:1234"))
	if wA.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("client A: status = %d, want %d", wA.Result().StatusCode, http.StatusTooManyRequests)
	}

	// クライアントBは影響を受けない
	wB := httptest.NewRecorder()
	handler.ServeHTTP(wB, requestFrom(http.MethodGet, "/api/feed", "10.0.0.2:1234"))
	if wB.Result().StatusCode != http.StatusOK {
		t.Errorf("client B: status = %d, want %d", wB.Result().StatusCode, http.StatusOK)
	}

	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", rl.GeneralLimiterCount())
	}
}

// --- ReloadMiddleware のテスト ---

func TestReloadRateLimit_Returns429WhenLimitExceeded(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	cfg.ReloadBurst = 2
	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.ReloadMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(http.MethodPost, "/api/feed/reload", "127.0.0.1:1"))
		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodPost, "/api/feed/reload", "127.0.0.1:1"))
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusTooManyRequests)
	}
	// 0.1 req/sec なので1トークンの補充に10秒
	if got := w.Result().Header.Get("Retry-After"); got != "10" {
		t.Errorf("Retry-After = %q, want %q", got, "10")
	}
}

func TestReloadRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	general := rl.GeneralMiddleware()(okHandler())
	reload := rl.ReloadMiddleware()(okHandler())

	// API全般のバーストを消費
	general.ServeHTTP(httptest.NewRecorder(), requestFrom(http.MethodGet, "/api/feed", "127.0.0.1:1"))
	w := httptest.NewRecorder()
	general.ServeHTTP(w, requestFrom(http.MethodGet, "/api/feed", "127.0.0.1:1"))
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Fatalf("general: status = %d, want %d", w.Result().StatusCode, http.StatusTooManyRequests)
	}

	// 再読み込みのリミッターは独立している
	w2 := httptest.NewRecorder()
	reload.ServeHTTP(w2, requestFrom(http.MethodPost, "/api/feed/reload", "127.0.0.1:1"))
	if w2.Result().StatusCode != http.StatusOK {
		t.Errorf("reload: status = %d, want %d", w2.Result().StatusCode, http.StatusOK)
	}
	if rl.ReloadLimiterCount() != 1 {
		t.Errorf("ReloadLimiterCount = %d, want 1", rl.ReloadLimiterCount())
	}
}

func TestRateLimitMiddleware_429ResponseIsJSON(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	// バースト消費
	handler.ServeHTTP(httptest.NewRecorder(), requestFrom(http.MethodGet, "/api/feed", "127.0.0.1:1"))

	// 429レスポンス
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, requestFrom(http.MethodGet, "/api/feed", "127.0.0.1:1"))

	resp := w2.Result()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want %q", contentType, "application/json")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want %q", body.Code, "RATE_LIMIT_EXCEEDED")
	}
	if body.Message == "" {
		t.Error("expected 'message' field in error response")
	}
	if body.Category != "system" {
		t.Errorf("category = %q, want %q", body.Category, "system")
	}
}

// --- クリーンアップのテスト ---

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	cfg := testRateLimiterConfig(2, 5)
	cfg.CleanupInterval = 50 * time.Millisecond // テスト用に短く

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), requestFrom(http.MethodGet, "/api/feed", "127.0.0.1:1"))

	if rl.GeneralLimiterCount() == 0 {
		t.Fatal("expected at least one limiter entry")
	}

	// エントリのTTLはクリーンアップ間隔の2倍（100ms）。300ms待てば削除されている
	time.Sleep(300 * time.Millisecond)

	if count := rl.GeneralLimiterCount(); count != 0 {
		t.Errorf("expected 0 limiter entries after cleanup, got %d", count)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

// --- ミドルウェアチェーンとの統合テスト ---

func TestRateLimitMiddleware_InChainWithRequestIDAndCORS(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 2))
	defer rl.Stop()

	// CORS -> RequestID -> RateLimit -> Handler
	handler := NewCORSMiddleware("http://localhost:3000")(
		NewRequestIDMiddleware()(
			rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{"request_id": RequestIDFromContext(r.Context())})
			})),
		),
	)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(http.MethodGet, "/api/feed", "127.0.0.1:1"))

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, http.StatusOK)
		}
		var body map[string]string
		json.NewDecoder(w.Result().Body).Decode(&body)
		if body["request_id"] == "" {
			t.Errorf("request %d: request_id is empty", i)
		}
	}

	// 3回目は429。レート制限のレスポンスにもCORSヘッダーとリクエストIDが付く
	w3 := httptest.NewRecorder()
	handler.ServeHTTP(w3, requestFrom(http.MethodGet, "/api/feed", "127.0.0.1:1"))

	if w3.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("request 3: status = %d, want %d", w3.Result().StatusCode, http.StatusTooManyRequests)
	}
	if w3.Result().Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("429 レスポンスに CORS ヘッダーが無い")
	}
	if w3.Result().Header.Get(RequestIDHeader) == "" {
		t.Error("429 レスポンスにリクエストIDが無い")
	}
}

// --- デフォルト設定値のテスト ---

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != 2.0 { // 120/60 = 2
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.ReloadRate == 0 {
		t.Error("ReloadRate should not be 0")
	}
	if cfg.ReloadBurst != 3 {
		t.Errorf("ReloadBurst = %d, want 3", cfg.ReloadBurst)
	}
}
