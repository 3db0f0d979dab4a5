// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// カタログクライアント、フィード、検索、パーソナライズ層から利用する。
type MetricsCollector interface {
	RecordCatalogStatus(statusCode int)
	RecordCatalogTransportError()
	RecordCatalogLatency(duration time.Duration)
	RecordCredentialRotation()
	RecordQuotaExhausted()
	RecordCategoryFallback(categoryID string)
	RecordHeroFallback()
	RecordSearch(superseded bool)
	RecordPersistFailure(key string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	catalogStatus    *prometheus.CounterVec
	catalogTransport prometheus.Counter
	catalogLatency   prometheus.Histogram
	rotations        prometheus.Counter
	quotaExhausted   prometheus.Counter
	categoryFallback *prometheus.CounterVec
	heroFallback     prometheus.Counter
	searches         *prometheus.CounterVec
	persistFail      *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		catalogStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinefeed_catalog_requests_total",
			Help: "カタログAPIへのリクエスト数（HTTPステータス別）",
		}, []string{"status_code"}),
		catalogTransport: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cinefeed_catalog_transport_errors_total",
			Help: "カタログAPIへの通信エラーの合計数",
		}),
		catalogLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cinefeed_catalog_latency_seconds",
			Help:    "カタログAPIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cinefeed_credential_rotations_total",
			Help: "レート制限によるAPIキー切り替えの合計数",
		}),
		quotaExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cinefeed_quota_exhausted_total",
			Help: "全APIキーがレート制限された回数",
		}),
		categoryFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinefeed_category_fallback_total",
			Help: "代替コンテンツに置き換えたカテゴリ数（カテゴリ別）",
		}, []string{"category"}),
		heroFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cinefeed_hero_fallback_total",
			Help: "ヒーローを代替コンテンツに置き換えた回数",
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinefeed_search_requests_total",
			Help: "検索リクエスト数（結果別: completed / superseded）",
		}, []string{"outcome"}),
		persistFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinefeed_persist_failures_total",
			Help: "ローカルストレージへの書き込み失敗数（キー別）",
		}, []string{"key"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cinefeed_http_responses_total",
			Help: "UI向けAPIのレスポンス数（HTTPステータス別）",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.catalogStatus,
		c.catalogTransport,
		c.catalogLatency,
		c.rotations,
		c.quotaExhausted,
		c.categoryFallback,
		c.heroFallback,
		c.searches,
		c.persistFail,
		c.httpStatus,
	)

	return c
}

// RecordCatalogStatus はカタログAPIのHTTPステータスコードを記録する。
func (c *Collector) RecordCatalogStatus(statusCode int) {
	c.catalogStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordCatalogTransportError はカタログAPIへの通信エラーを記録する。
func (c *Collector) RecordCatalogTransportError() {
	c.catalogTransport.Inc()
}

// RecordCatalogLatency はカタログAPIリクエストのレイテンシを記録する。
func (c *Collector) RecordCatalogLatency(duration time.Duration) {
	c.catalogLatency.Observe(duration.Seconds())
}

// RecordCredentialRotation はAPIキーの切り替えを記録する。
func (c *Collector) RecordCredentialRotation() {
	c.rotations.Inc()
}

// RecordQuotaExhausted は全APIキーのレート制限到達を記録する。
func (c *Collector) RecordQuotaExhausted() {
	c.quotaExhausted.Inc()
}

// RecordCategoryFallback はカテゴリの代替コンテンツ使用を記録する。
func (c *Collector) RecordCategoryFallback(categoryID string) {
	c.categoryFallback.WithLabelValues(categoryID).Inc()
}

// RecordHeroFallback はヒーローの代替コンテンツ使用を記録する。
func (c *Collector) RecordHeroFallback() {
	c.heroFallback.Inc()
}

// RecordSearch は検索リクエストの結果を記録する。
func (c *Collector) RecordSearch(superseded bool) {
	outcome := "completed"
	if superseded {
		outcome = "superseded"
	}
	c.searches.WithLabelValues(outcome).Inc()
}

// RecordPersistFailure はローカルストレージへの書き込み失敗を記録する。
func (c *Collector) RecordPersistFailure(key string) {
	c.persistFail.WithLabelValues(key).Inc()
}

// RecordHTTPStatus はUI向けAPIのHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。メトリクスが不要な構成とテストで使う。
type Nop struct{}

func (Nop) RecordCatalogStatus(int) {}
func (Nop) RecordCatalogTransportError() {}
func (Nop) RecordCatalogLatency(time.Duration) {}
func (Nop) RecordCredentialRotation() {}
func (Nop) RecordQuotaExhausted() {}
func (Nop) RecordCategoryFallback(string) {}
func (Nop) RecordHeroFallback() {}
func (Nop) RecordSearch(bool) {}
func (Nop) RecordPersistFailure(string) {}
func (Nop) RecordHTTPStatus(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
