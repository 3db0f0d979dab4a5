// Package catalog はカタログAPI（TMDB v3互換）のクライアントを提供する。
// APIキーのローテーション、レート制限からの復旧、型付きエラーを含む。
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"github.com/hitoshi/cinefeed/internal/metrics"
	"github.com/hitoshi/cinefeed/internal/model"
)

const (
	// DefaultBaseURL はカタログAPIのデフォルトのベースURL。
	DefaultBaseURL = "https://api.themoviedb.org/3"
	// credentialParam はAPIキーを渡すクエリパラメータ名。
	credentialParam = "api_key"
	// maxBodySize はレスポンスボディの最大読み取りサイズ（5MB）。
	maxBodySize = 5 << 20
	// redacted はログ・エラーに出力するAPIキーの代替文字列。
	redacted = "REDACTED"
)

// Options はClientの任意設定。
type Options struct {
	// BaseURL はカタログAPIのベースURL。空の場合はDefaultBaseURL。
	BaseURL string
	// Limiter は送信ペースを制御するリミッター。nilの場合は無制限。
	Limiter *rate.Limiter
	// Metrics はメトリクス収集先。nilの場合は記録しない。
	Metrics metrics.MetricsCollector
}

// Client はカタログAPIのクライアント。
// キャッシュは持たず、呼び出しごとにリクエストを送信する。
type Client struct {
	httpClient *http.Client
	rotator    *Rotator
	limiter    *rate.Limiter
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, rotator *Rotator, logger *slog.Logger, opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	var collector metrics.MetricsCollector = metrics.Nop{}
	if opts.Metrics != nil {
		collector = opts.Metrics
	}
	return &Client{
		httpClient: httpClient,
		rotator:    rotator,
		limiter:    limiter,
		metrics:    collector,
		logger:     logger,
		baseURL:    baseURL,
	}
}

// Fetch は一覧系エンドポイント（results配列を返すもの）を取得する。
// endpointはパスとクエリ（例: "/discover/movie?with_genres=28"）。
func (c *Client) Fetch(ctx context.Context, endpoint string) (*ResultPage, error) {
	var page ResultPage
	if err := c.get(ctx, endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// FetchVideos はタイトルの動画一覧を取得する。
func (c *Client) FetchVideos(ctx context.Context, id int64, kind model.MediaKind) (*VideoList, error) {
	endpoint := fmt.Sprintf("/%s/%d/videos", kind.UpstreamPath(), id)
	var list VideoList
	if err := c.get(ctx, endpoint, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// get はAPIキーを付与してリクエストし、レスポンスをoutにデコードする。
// 429を受けた場合は次のキーに切り替えて再試行する。試行回数はキーの数までで、
// 最後のキーでも429の場合はQuotaExhaustedErrorを返す。
func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	attempts := uint(c.rotator.Len())

	err := retry.Do(
		func() error {
			return c.attempt(ctx, endpoint, out)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var rl *rateLimitedError
			return errors.As(err, &rl)
		}),
		retry.OnRetry(func(n uint, err error) {
			var rl *rateLimitedError
			// 最後の試行の後は切り替えない
			if !errors.As(err, &rl) || n+1 >= attempts {
				return
			}
			_, rotated := c.rotator.AdvanceFrom(rl.observed)
			if rotated {
				c.metrics.RecordCredentialRotation()
			}
			c.logger.Warn("カタログAPIのレート制限を受けたためAPIキーを切り替えます",
				slog.String("endpoint", endpoint),
				slog.Int("attempt", int(n)+1),
				slog.Bool("rotated", rotated),
			)
		}),
	)
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return &TransportError{Endpoint: endpoint, Err: ctxErr}
	}

	var rl *rateLimitedError
	if errors.As(err, &rl) {
		c.metrics.RecordQuotaExhausted()
		c.logger.Error("全てのAPIキーがレート制限されています",
			slog.String("endpoint", endpoint),
			slog.Int("attempts", int(attempts)),
		)
		return &QuotaExhaustedError{Endpoint: endpoint, Attempts: int(attempts)}
	}

	var (
		transportErr *TransportError
		upstreamErr  *UpstreamError
		decodeErr    *DecodeError
	)
	if errors.As(err, &transportErr) || errors.As(err, &upstreamErr) || errors.As(err, &decodeErr) {
		return err
	}
	return &TransportError{Endpoint: endpoint, Err: err}
}

// attempt は現在のAPIキーで1回だけリクエストを実行する。
func (c *Client) attempt(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &TransportError{Endpoint: endpoint, Err: err}
	}

	observed, credential := c.rotator.Current()

	reqURL, err := c.buildURL(endpoint, credential)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: fmt.Errorf("リクエストURLの構築に失敗しました: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Cinefeed/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordCatalogLatency(time.Since(start))
	if err != nil {
		c.metrics.RecordCatalogTransportError()
		err = redactURLError(err)
		c.logger.Error("カタログAPIの呼び出しに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	c.metrics.RecordCatalogStatus(resp.StatusCode)

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return &rateLimitedError{observed: observed}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("カタログAPIがエラーステータスを返しました",
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		return &UpstreamError{Endpoint: endpoint, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("カタログAPIのレスポンスのパースに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return &DecodeError{Endpoint: endpoint, Err: err}
	}

	return nil
}

// buildURL はベースURLとエンドポイントを連結し、APIキーをクエリに付与する。
// エンドポイントに既存のクエリがある場合は保持する。
func (c *Client) buildURL(endpoint, credential string) (string, error) {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(credentialParam, credential)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redactURLError はurl.Errorに含まれるURLからAPIキーを伏せる。
func redactURLError(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	return &url.Error{Op: uerr.Op, URL: redactURL(uerr.URL), Err: uerr.Err}
}

// redactURL はURL文字列のAPIキーを伏せた文字列を返す。
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has(credentialParam) {
		q.Set(credentialParam, redacted)
		u.RawQuery = q.Encode()
	}
	return u.String()
}
