// Package search はデバウンス付きのタイトル検索を提供する。
// 新しい検索が来ると古い検索は待機中・通信中を問わず破棄され、
// 古いレスポンスが新しい結果を上書きすることはない。
package search

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/cinefeed/internal/catalog"
	"github.com/hitoshi/cinefeed/internal/content"
	"github.com/hitoshi/cinefeed/internal/metrics"
	"github.com/hitoshi/cinefeed/internal/model"
)

// DefaultDebounce は最後の入力から検索を送信するまでの待ち時間。
const DefaultDebounce = 500 * time.Millisecond

// searchEndpoint は映画・シリーズ・人物を横断検索するエンドポイント。
const searchEndpoint = "/search/multi"

// ErrSuperseded はより新しい検索によって破棄されたことを表す。
var ErrSuperseded = errors.New("search: superseded by a newer query")

// Fetcher は一覧系エンドポイントの取得インターフェース。catalog.Clientが実装する。
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) (*catalog.ResultPage, error)
}

// SnapshotSource はパーソナライズ状態のスナップショットを提供する。
type SnapshotSource interface {
	Snapshot() model.Snapshot
}

// Result は検索結果。Generationは検索ごとに単調増加する番号。
type Result struct {
	Query      string          `json:"query"`
	Items      []model.Content `json:"items"`
	Generation uint64          `json:"generation"`
}

// Options はEngineの任意設定。
type Options struct {
	Debounce time.Duration
	MaxItems int
	Metrics  metrics.MetricsCollector
}

// Engine は検索の世代管理とデバウンスを行う。
type Engine struct {
	fetcher    Fetcher
	normalizer *content.Normalizer
	snapshots  SnapshotSource
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	debounce   time.Duration
	maxItems   int

	mu         sync.Mutex
	generation uint64
	pending    *pendingSearch
	latest     Result
}

// pendingSearch は最新世代の検索。新しい検索が来るとsupersededが閉じられる。
type pendingSearch struct {
	generation uint64
	query      string
	superseded chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewEngine はEngineを生成する。
func NewEngine(fetcher Fetcher, normalizer *content.Normalizer, snapshots SnapshotSource, logger *slog.Logger, opts Options) *Engine {
	e := &Engine{
		fetcher:    fetcher,
		normalizer: normalizer,
		snapshots:  snapshots,
		logger:     logger,
		metrics:    opts.Metrics,
		debounce:   opts.Debounce,
		maxItems:   opts.MaxItems,
		latest:     Result{Items: []model.Content{}},
	}
	if e.debounce <= 0 {
		e.debounce = DefaultDebounce
	}
	if e.maxItems <= 0 {
		e.maxItems = content.DefaultLimit
	}
	if e.metrics == nil {
		e.metrics = metrics.Nop{}
	}
	return e
}

// Search は検索を実行して結果を返す。デバウンス中またはリクエスト中により新しい
// 検索が来た場合はErrSupersededを返す。空のクエリは通信せずに空の結果を返す。
// 通信の失敗は空の結果として扱い、エラーにはしない。
func (e *Engine) Search(ctx context.Context, query string) (Result, error) {
	p := e.begin(ctx, query)
	return e.run(ctx, p)
}

// Submit は結果を待たずに検索を開始する。結果はLatestで取得する。
// 世代番号は呼び出し順に割り当てる。
func (e *Engine) Submit(query string) {
	ctx := context.Background()
	p := e.begin(ctx, query)
	go func() {
		_, _ = e.run(ctx, p)
	}()
}

// Latest は最後に公開された検索結果を返す。
func (e *Engine) Latest() Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneResult(e.latest)
}

// Reannotate は保持している検索結果の派生フラグをスナップショットから再計算する。
func (e *Engine) Reannotate(snap model.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.latest.Items = content.AnnotateAll(e.latest.Items, snap)
}

// AttachTrailer は保持している検索結果のうちキーが一致するタイトルにトレーラーを設定する。
func (e *Engine) AttachTrailer(key model.ContentKey, trailerKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, c := range e.latest.Items {
		if c.Key() == key {
			e.latest.Items[i] = c.WithTrailer(trailerKey)
		}
	}
}

// begin は新しい世代を発行し、前の世代を破棄する。
func (e *Engine) begin(ctx context.Context, query string) *pendingSearch {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.generation++
	if e.pending != nil {
		close(e.pending.superseded)
		e.pending.cancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	p := &pendingSearch{
		generation: e.generation,
		query:      query,
		superseded: make(chan struct{}),
		ctx:        reqCtx,
		cancel:     cancel,
	}
	e.pending = p
	return p
}

func (e *Engine) run(ctx context.Context, p *pendingSearch) (Result, error) {
	defer e.finish(p)

	q := strings.TrimSpace(p.query)
	if q == "" {
		res, ok := e.publish(Result{Query: p.query, Items: []model.Content{}, Generation: p.generation})
		if !ok {
			return e.superseded()
		}
		return res, nil
	}

	timer := time.NewTimer(e.debounce)
	defer timer.Stop()
	select {
	case <-p.superseded:
		return e.superseded()
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-timer.C:
	}

	items := []model.Content{}
	page, err := e.fetcher.Fetch(p.ctx, searchEndpoint+"?query="+url.QueryEscape(q))
	switch {
	case isClosed(p.superseded):
		return e.superseded()
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		e.logger.Warn("検索に失敗したため空の結果を返します",
			slog.String("query", q),
			slog.String("error", err.Error()),
		)
	default:
		items = e.normalizer.NormalizeAll(page.Results, e.snapshots.Snapshot(), e.maxItems)
	}

	res, ok := e.publish(Result{Query: p.query, Items: items, Generation: p.generation})
	if !ok {
		return e.superseded()
	}
	e.metrics.RecordSearch(false)
	return res, nil
}

// publish は世代が最新の場合だけ結果を保持する。古い世代の結果は捨てる。
// 取得中に変わったパーソナライズ状態はロック内で反映し直す。
func (e *Engine) publish(res Result) (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if res.Generation != e.generation {
		return Result{}, false
	}
	res.Items = content.AnnotateAll(res.Items, e.snapshots.Snapshot())
	e.latest = cloneResult(res)
	return res, true
}

func (e *Engine) finish(p *pendingSearch) {
	p.cancel()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending == p {
		e.pending = nil
	}
}

func (e *Engine) superseded() (Result, error) {
	e.metrics.RecordSearch(true)
	return Result{}, ErrSuperseded
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func cloneResult(r Result) Result {
	items := make([]model.Content, len(r.Items))
	copy(items, r.Items)
	r.Items = items
	return r
}
