// Package feed はホームフィード（ヒーローとカテゴリ行）の構築を提供する。
// カテゴリは並行に読み込み、失敗したカテゴリだけを代替コンテンツに置き換える。
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/hitoshi/cinefeed/internal/catalog"
	"github.com/hitoshi/cinefeed/internal/content"
	"github.com/hitoshi/cinefeed/internal/metrics"
	"github.com/hitoshi/cinefeed/internal/model"
)

const (
	// DefaultCategoryTimeout は1カテゴリの読み込みのタイムアウト。
	DefaultCategoryTimeout = 8 * time.Second
	// DefaultMaxConcurrent はカテゴリを同時に読み込む最大数。
	DefaultMaxConcurrent = 4
)

// Fetcher は一覧系エンドポイントの取得インターフェース。catalog.Clientが実装する。
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string) (*catalog.ResultPage, error)
}

// TrailerLoader はトレーラー取得のインターフェース。detail.Loaderが実装する。
type TrailerLoader interface {
	GetTrailer(ctx context.Context, id int64, kind model.MediaKind) (string, bool)
}

// SnapshotSource はパーソナライズ状態のスナップショットを提供する。
type SnapshotSource interface {
	Snapshot() model.Snapshot
}

// Options はOrchestratorの任意設定。
type Options struct {
	CategoryTimeout time.Duration
	MaxConcurrent   int
	MaxItems        int
	Metrics         metrics.MetricsCollector
	Now             func() time.Time
}

// Orchestrator はフィードの読み込みを統括する。
type Orchestrator struct {
	fetcher    Fetcher
	normalizer *content.Normalizer
	trailers   TrailerLoader
	store      SnapshotSource
	categories []model.Category
	logger     *slog.Logger

	timeout       time.Duration
	maxConcurrent int
	maxItems      int
	metrics       metrics.MetricsCollector
	now           func() time.Time
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(
	fetcher Fetcher,
	normalizer *content.Normalizer,
	trailers TrailerLoader,
	store SnapshotSource,
	categories []model.Category,
	logger *slog.Logger,
	opts Options,
) *Orchestrator {
	o := &Orchestrator{
		fetcher:       fetcher,
		normalizer:    normalizer,
		trailers:      trailers,
		store:         store,
		categories:    append([]model.Category(nil), categories...),
		logger:        logger,
		timeout:       opts.CategoryTimeout,
		maxConcurrent: opts.MaxConcurrent,
		maxItems:      opts.MaxItems,
		metrics:       opts.Metrics,
		now:           opts.Now,
	}
	if o.timeout <= 0 {
		o.timeout = DefaultCategoryTimeout
	}
	if o.maxConcurrent <= 0 {
		o.maxConcurrent = DefaultMaxConcurrent
	}
	if o.maxItems <= 0 {
		o.maxItems = content.DefaultLimit
	}
	if o.metrics == nil {
		o.metrics = metrics.Nop{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Categories は設定済みのカテゴリを表示順で返す。
func (o *Orchestrator) Categories() []model.Category {
	return append([]model.Category(nil), o.categories...)
}

// LoadFeed はヒーローと全カテゴリを読み込んでFeedを返す。
// 全カテゴリとヒーローのトレーラーが揃うまで返らない。失敗はFeedの中で代替コンテンツとして表れ、
// エラーは返さない。呼び出しのたびにFeedを丸ごと作り直す。
func (o *Orchestrator) LoadFeed(ctx context.Context) *model.Feed {
	start := time.Now()
	snap := o.store.Snapshot()
	memo := newEndpointMemo(o.fetcher)

	hero, heroFallback := o.loadHero(ctx, memo, snap)

	// ヒーローのトレーラーはカテゴリの読み込みと並行して取得する
	var trailerWG conc.WaitGroup
	if hero.TrailerKey == nil {
		trailerWG.Go(func() {
			if key, ok := o.trailers.GetTrailer(ctx, hero.ID, hero.Kind); ok {
				hero = hero.WithTrailer(key)
			}
		})
	}

	rows := make([]model.Row, len(o.categories))
	p := pool.New().WithMaxGoroutines(o.maxConcurrent)
	for i, cat := range o.categories {
		p.Go(func() {
			rows[i] = o.loadRow(ctx, memo, cat, snap)
		})
	}
	p.Wait()

	if r := trailerWG.WaitAndRecover(); r != nil {
		o.logger.Error("ヒーローのトレーラー取得中にパニックが発生しました",
			slog.String("panic", r.String()),
		)
	}

	feed := &model.Feed{
		Hero:     &hero,
		Rows:     rows,
		LoadedAt: o.now().UTC(),
	}

	fallbackRows := 0
	for _, row := range rows {
		if row.Fallback {
			fallbackRows++
		}
	}
	if heroFallback || fallbackRows > 0 {
		feed.Advisory = fallbackAdvisory
	}

	o.logger.Info("フィードを読み込みました",
		slog.Int("categories", len(rows)),
		slog.Int("fallback_rows", fallbackRows),
		slog.Bool("hero_fallback", heroFallback),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return feed
}

// Reannotate はフィードのコピーを返す。派生フラグをスナップショットから再計算し、
// パーソナライズ行はスナップショットから作り直す。
// 作り直した行にも、元のフィードで取得済みのトレーラーを引き継ぐ。
func (o *Orchestrator) Reannotate(feed *model.Feed, snap model.Snapshot) *model.Feed {
	if feed == nil {
		return nil
	}
	out := feed.Clone()
	trailers := knownTrailers(out)
	if out.Hero != nil {
		hero := content.Annotate(*out.Hero, snap)
		out.Hero = &hero
	}
	for i := range out.Rows {
		row := &out.Rows[i]
		if row.Category.Personalized() {
			*row = personalRow(row.Category, snap)
			for j, c := range row.Items {
				if key, ok := trailers[c.Key()]; ok {
					row.Items[j] = c.WithTrailer(key)
				}
			}
			continue
		}
		row.Items = content.AnnotateAll(row.Items, snap)
	}
	return out
}

// knownTrailers はフィード内で既に取得済みのトレーラーキーを集める。
func knownTrailers(feed *model.Feed) map[model.ContentKey]string {
	trailers := make(map[model.ContentKey]string)
	add := func(c model.Content) {
		if c.TrailerKey != nil && *c.TrailerKey != "" {
			trailers[c.Key()] = *c.TrailerKey
		}
	}
	if feed.Hero != nil {
		add(*feed.Hero)
	}
	for _, row := range feed.Rows {
		for _, c := range row.Items {
			add(c)
		}
	}
	return trailers
}

// loadHero はトレンドの先頭（正規化できる最初のタイトル）をヒーローにする。
// 取得できない場合は代替のヒーローを返し、fallback=trueとなる。
func (o *Orchestrator) loadHero(ctx context.Context, memo *endpointMemo, snap model.Snapshot) (model.Content, bool) {
	hctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	page, err := memo.fetch(hctx, TrendingEndpoint)
	if err == nil {
		for _, rec := range page.Results {
			c, nerr := o.normalizer.Normalize(rec, snap)
			if nerr == nil {
				return c, false
			}
		}
		err = errors.New("トレンドに表示できるタイトルがありません")
	}

	o.metrics.RecordHeroFallback()
	o.logger.Warn("ヒーローの読み込みに失敗したため代替コンテンツを使用します",
		slog.String("error", err.Error()),
	)
	return content.Annotate(fallbackHero(), snap), true
}

// loadRow は1カテゴリを読み込む。失敗（エラー、タイムアウト、パニック）した場合は
// そのカテゴリだけを代替コンテンツに置き換える。
func (o *Orchestrator) loadRow(ctx context.Context, memo *endpointMemo, cat model.Category, snap model.Snapshot) model.Row {
	if cat.Personalized() {
		return personalRow(cat, snap)
	}

	var (
		items   []model.Content
		err     error
		catcher panics.Catcher
	)
	catcher.Try(func() {
		cctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()
		items, err = o.fetchCategory(cctx, memo, cat, snap)
	})
	if r := catcher.Recovered(); r != nil {
		err = r.AsError()
	}

	if err != nil {
		o.metrics.RecordCategoryFallback(cat.ID)
		o.logger.Warn("カテゴリの読み込みに失敗したため代替コンテンツを使用します",
			slog.String("category", cat.ID),
			slog.String("error", err.Error()),
		)
		return model.Row{
			Category: cat,
			Items:    content.AnnotateAll(fallbackTitles(), snap),
			Fallback: true,
		}
	}
	return model.Row{Category: cat, Items: items}
}

func (o *Orchestrator) fetchCategory(ctx context.Context, memo *endpointMemo, cat model.Category, snap model.Snapshot) ([]model.Content, error) {
	page, err := memo.fetch(ctx, cat.Endpoint)
	if err != nil {
		return nil, err
	}
	return o.normalizer.NormalizeAll(page.Results, snap, o.maxItems), nil
}

// personalRow はスナップショットからウォッチリスト行または視聴途中行を作る。
func personalRow(cat model.Category, snap model.Snapshot) model.Row {
	var items []model.Content
	switch cat.Source {
	case model.CategorySourceWatchlist:
		items = make([]model.Content, 0, len(snap.Watchlist))
		for _, e := range snap.Watchlist {
			items = append(items, content.Annotate(e.Content(), snap))
		}
	case model.CategorySourceResume:
		items = make([]model.Content, 0, len(snap.Resume))
		for _, e := range snap.Resume {
			items = append(items, content.Annotate(e.Content(), snap))
		}
	}
	return model.Row{Category: cat, Items: items}
}

// endpointMemo は1回のLoadFeedの中で同じエンドポイントを1度だけ取得する。
type endpointMemo struct {
	fetcher Fetcher

	mu    sync.Mutex
	calls map[string]*memoCall
}

type memoCall struct {
	once sync.Once
	page *catalog.ResultPage
	err  error
}

func newEndpointMemo(fetcher Fetcher) *endpointMemo {
	return &endpointMemo{fetcher: fetcher, calls: make(map[string]*memoCall)}
}

func (m *endpointMemo) fetch(ctx context.Context, endpoint string) (*catalog.ResultPage, error) {
	m.mu.Lock()
	call, ok := m.calls[endpoint]
	if !ok {
		call = &memoCall{err: errors.New("エンドポイントの取得が完了しませんでした")}
		m.calls[endpoint] = call
	}
	m.mu.Unlock()

	call.once.Do(func() {
		call.page, call.err = m.fetcher.Fetch(ctx, endpoint)
		if call.err == nil && call.page == nil {
			call.err = errors.New("空のレスポンス")
		}
	})
	return call.page, call.err
}
