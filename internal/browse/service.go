// Package browse はUI境界のファサードを提供する。
// 表示中のフィードと検索結果を保持し、UIからの操作（タイトル選択、ウォッチリスト、
// 視聴進捗、検索）を各コンポーネントに振り分ける。
package browse

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/cinefeed/internal/model"
	"github.com/hitoshi/cinefeed/internal/personalization"
	"github.com/hitoshi/cinefeed/internal/search"
)

// persistAdvisory は保存に失敗したがメモリ上の状態は更新された場合の案内。
const persistAdvisory = "変更を保存できませんでした。このセッション中は反映されますが、再起動後は失われます。"

// FeedLoader はフィードの読み込みと再注釈のインターフェース。feed.Orchestratorが実装する。
type FeedLoader interface {
	LoadFeed(ctx context.Context) *model.Feed
	Reannotate(feed *model.Feed, snap model.Snapshot) *model.Feed
}

// Searcher は検索エンジンのインターフェース。search.Engineが実装する。
type Searcher interface {
	Search(ctx context.Context, query string) (search.Result, error)
	Latest() search.Result
	Reannotate(snap model.Snapshot)
	AttachTrailer(key model.ContentKey, trailerKey string)
}

// TrailerLoader はトレーラー取得のインターフェース。detail.Loaderが実装する。
type TrailerLoader interface {
	GetTrailer(ctx context.Context, id int64, kind model.MediaKind) (string, bool)
}

// PersonalStore はパーソナライズ状態のインターフェース。personalization.Storeが実装する。
type PersonalStore interface {
	ToggleWatchlist(ctx context.Context, c model.Content) (bool, error)
	RecordProgress(ctx context.Context, c model.Content, fraction float64) (model.ResumeEntry, error)
	Snapshot() model.Snapshot
	Watchlist() []model.WatchlistEntry
	ResumeList() []model.ResumeEntry
}

// ToggleResult はウォッチリスト切り替えの結果。
type ToggleResult struct {
	InWatchlist bool   `json:"inWatchlist"`
	Persisted   bool   `json:"persisted"`
	Advisory    string `json:"advisory,omitempty"`
}

// ProgressResult は視聴進捗記録の結果。
type ProgressResult struct {
	Entry     model.ResumeEntry `json:"entry"`
	Persisted bool              `json:"persisted"`
	Advisory  string            `json:"advisory,omitempty"`
}

// Service はUI境界のサービス層。
type Service struct {
	feeds    FeedLoader
	searcher Searcher
	trailers TrailerLoader
	store    PersonalStore
	logger   *slog.Logger

	loadMu sync.Mutex
	mu     sync.RWMutex
	feed   *model.Feed
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	feeds FeedLoader,
	searcher Searcher,
	trailers TrailerLoader,
	store PersonalStore,
	logger *slog.Logger,
) *Service {
	return &Service{
		feeds:    feeds,
		searcher: searcher,
		trailers: trailers,
		store:    store,
		logger:   logger,
	}
}

// LoadFeed はフィードを読み込み、保持しているフィードを置き換える。
func (s *Service) LoadFeed(ctx context.Context) *model.Feed {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.loadLocked(ctx)
}

// CurrentFeed は保持しているフィードを返す。未読み込みの場合は一度だけ読み込む。
func (s *Service) CurrentFeed(ctx context.Context) *model.Feed {
	if f := s.heldFeed(); f != nil {
		return f
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if f := s.heldFeed(); f != nil {
		return f
	}
	return s.loadLocked(ctx)
}

func (s *Service) loadLocked(ctx context.Context) *model.Feed {
	loaded := s.feeds.LoadFeed(ctx)

	// 読み込み中に変更されたパーソナライズ状態を反映する。
	// スナップショットの取得から差し替えまでをロック内で行い、
	// 並行する変更の再注釈と順序を揃える。
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feed = s.feeds.Reannotate(loaded, s.store.Snapshot())
	return s.feed.Clone()
}

func (s *Service) heldFeed() *model.Feed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.feed == nil {
		return nil
	}
	return s.feed.Clone()
}

// Search は検索語の変更を検索エンジンに渡す。
func (s *Service) Search(ctx context.Context, query string) (search.Result, error) {
	return s.searcher.Search(ctx, query)
}

// LatestSearch は最後に公開された検索結果を返す。
func (s *Service) LatestSearch() search.Result {
	return s.searcher.Latest()
}

// SelectTitle は表示中のフィードまたは検索結果からタイトルを探して返す。
// トレーラーが未取得の場合は取得し、保持しているフィードと検索結果にも反映する。
func (s *Service) SelectTitle(ctx context.Context, key model.ContentKey) (model.Content, error) {
	c, ok := s.find(key)
	if !ok {
		return model.Content{}, model.NewTitleNotFoundError(key)
	}
	if c.TrailerKey != nil {
		return c, nil
	}

	trailerKey, ok := s.trailers.GetTrailer(ctx, c.ID, c.Kind)
	if !ok {
		return c, nil
	}
	c = c.WithTrailer(trailerKey)

	s.mu.Lock()
	if s.feed != nil {
		s.feed = attachTrailer(s.feed, key, trailerKey)
	}
	s.mu.Unlock()
	s.searcher.AttachTrailer(key, trailerKey)

	return c, nil
}

// GetTrailer はタイトルのトレーラーキーを返す。
func (s *Service) GetTrailer(ctx context.Context, id int64, kind model.MediaKind) (string, bool) {
	return s.trailers.GetTrailer(ctx, id, kind)
}

// ToggleWatchlist はウォッチリストを切り替え、保持しているビューを再注釈する。
// 保存に失敗した場合もメモリ上の変更は有効で、Persisted=falseと案内を返す。
func (s *Service) ToggleWatchlist(ctx context.Context, c model.Content) (ToggleResult, error) {
	in, err := s.store.ToggleWatchlist(ctx, c)
	persisted, err := s.checkPersist(err)
	if err != nil {
		return ToggleResult{}, err
	}
	s.reannotate()

	res := ToggleResult{InWatchlist: in, Persisted: persisted}
	if !persisted {
		res.Advisory = persistAdvisory
	}
	return res, nil
}

// RecordProgress は視聴進捗を記録し、保持しているビューを再注釈する。
func (s *Service) RecordProgress(ctx context.Context, c model.Content, fraction float64) (ProgressResult, error) {
	entry, err := s.store.RecordProgress(ctx, c, fraction)
	persisted, err := s.checkPersist(err)
	if err != nil {
		return ProgressResult{}, err
	}
	s.reannotate()

	res := ProgressResult{Entry: entry, Persisted: persisted}
	if !persisted {
		res.Advisory = persistAdvisory
	}
	return res, nil
}

// Watchlist はウォッチリストを返す。
func (s *Service) Watchlist() []model.WatchlistEntry {
	return s.store.Watchlist()
}

// ResumeList は視聴途中リストを返す。
func (s *Service) ResumeList() []model.ResumeEntry {
	return s.store.ResumeList()
}

// checkPersist は保存失敗を状態変更済みとして扱い、それ以外のエラーはそのまま返す。
func (s *Service) checkPersist(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	var perr *personalization.PersistError
	if errors.As(err, &perr) {
		s.logger.Warn("パーソナライズ状態を保存できませんでした",
			slog.String("key", perr.Key),
			slog.String("error", perr.Err.Error()),
		)
		return false, nil
	}
	return false, err
}

// reannotate は同じタイトルを表示する全てのビューに最新の状態を反映する。
// スナップショットはロック内で取得し、古い状態で上書きしないようにする。
func (s *Service) reannotate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.store.Snapshot()
	if s.feed != nil {
		s.feed = s.feeds.Reannotate(s.feed, snap)
	}
	s.searcher.Reannotate(snap)
}

func (s *Service) find(key model.ContentKey) (model.Content, bool) {
	s.mu.RLock()
	if s.feed != nil {
		if c, ok := s.feed.Find(key); ok {
			s.mu.RUnlock()
			return c, true
		}
	}
	s.mu.RUnlock()

	for _, c := range s.searcher.Latest().Items {
		if c.Key() == key {
			return c, true
		}
	}
	return model.Content{}, false
}

// attachTrailer はキーが一致する全てのタイトルにトレーラーを設定したフィードのコピーを返す。
func attachTrailer(f *model.Feed, key model.ContentKey, trailerKey string) *model.Feed {
	out := f.Clone()
	if out.Hero != nil && out.Hero.Key() == key {
		hero := out.Hero.WithTrailer(trailerKey)
		out.Hero = &hero
	}
	for i := range out.Rows {
		for j, c := range out.Rows[i].Items {
			if c.Key() == key {
				out.Rows[i].Items[j] = c.WithTrailer(trailerKey)
			}
		}
	}
	return out
}
