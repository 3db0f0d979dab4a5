// Package personalization はウォッチリストと視聴途中リストを管理し、
// ローカルストレージに永続化する。
package personalization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/hitoshi/cinefeed/internal/metrics"
	"github.com/hitoshi/cinefeed/internal/model"
	"github.com/hitoshi/cinefeed/internal/repository"
)

// 永続化キー。値はJSON配列でスキーマバージョンは持たない。
const (
	KeyWatchlist  = "watchlist"
	KeyResumeList = "resume_list"
)

// DefaultResumeCapacity は視聴途中リストの最大件数。
const DefaultResumeCapacity = 20

var (
	// ErrInvalidFraction は視聴進捗が数値でない（NaN）場合のエラー。
	ErrInvalidFraction = errors.New("personalization: progress fraction is not a number")
	// ErrInvalidContent は種別が不明などキーを決められないタイトルのエラー。
	ErrInvalidContent = errors.New("personalization: content has no valid key")
)

// PersistError はローカルストレージへの書き込み失敗を表す。
// メモリ上の状態は変更済みで、ロールバックはしない。
type PersistError struct {
	Key string
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("ローカルストレージへの保存に失敗しました (%s): %v", e.Key, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Options はStoreの任意設定。
type Options struct {
	// ResumeCapacity は視聴途中リストの上限。0以下の場合はDefaultResumeCapacity。
	ResumeCapacity int
	// Now は現在時刻の取得関数。nilの場合はtime.Now。
	Now func() time.Time
}

// Store はパーソナライズ状態を保持する。
// 状態遷移と永続化するJSONは同じクリティカルセクション内で作る。
type Store struct {
	kv       repository.KeyValueStore
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
	capacity int
	now      func() time.Time

	mu        sync.RWMutex
	watchlist []model.WatchlistEntry
	resume    []model.ResumeEntry
}

// Open はローカルストレージから両リストを読み込んでStoreを生成する。
// 解釈できない値は空として扱い、古い形式（種別なし）は映画として読み込む。
func Open(ctx context.Context, kv repository.KeyValueStore, logger *slog.Logger, collector metrics.MetricsCollector, opts Options) (*Store, error) {
	if collector == nil {
		collector = metrics.Nop{}
	}
	s := &Store{
		kv:       kv,
		logger:   logger,
		metrics:  collector,
		capacity: opts.ResumeCapacity,
		now:      opts.Now,
	}
	if s.capacity <= 0 {
		s.capacity = DefaultResumeCapacity
	}
	if s.now == nil {
		s.now = time.Now
	}

	watchData, ok, err := kv.Get(ctx, KeyWatchlist)
	if err != nil {
		return nil, fmt.Errorf("ウォッチリストの読み込みに失敗しました: %w", err)
	}
	if ok {
		s.watchlist = s.decodeWatchlist(watchData)
	}

	resumeData, ok, err := kv.Get(ctx, KeyResumeList)
	if err != nil {
		return nil, fmt.Errorf("視聴途中リストの読み込みに失敗しました: %w", err)
	}
	if ok {
		s.resume = s.decodeResume(resumeData)
	}

	logger.Info("パーソナライズ状態を読み込みました",
		slog.Int("watchlist", len(s.watchlist)),
		slog.Int("resume_list", len(s.resume)),
	)
	return s, nil
}

// ToggleWatchlist はタイトルがウォッチリストにあれば削除し、無ければ末尾に追加する。
// 変更後に含まれているかどうかを返す。
func (s *Store) ToggleWatchlist(ctx context.Context, c model.Content) (bool, error) {
	if !c.Kind.Valid() {
		return false, ErrInvalidContent
	}
	key := c.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]model.WatchlistEntry, 0, len(s.watchlist)+1)
	removed := false
	for _, e := range s.watchlist {
		if e.Key() == key {
			removed = true
			continue
		}
		next = append(next, e)
	}
	if !removed {
		next = append(next, model.WatchlistEntry{
			TitleSnapshot: model.SnapshotOf(c),
			AddedAt:       s.now().UTC(),
		})
	}
	s.watchlist = next

	return !removed, s.persist(ctx, KeyWatchlist, next)
}

// RecordProgress は視聴進捗を記録する。進捗は[0,1]に丸め、エントリを先頭へ移動し、
// 上限を超えた古いエントリを削除する。
func (s *Store) RecordProgress(ctx context.Context, c model.Content, fraction float64) (model.ResumeEntry, error) {
	if math.IsNaN(fraction) {
		return model.ResumeEntry{}, ErrInvalidFraction
	}
	if !c.Kind.Valid() {
		return model.ResumeEntry{}, ErrInvalidContent
	}
	entry := model.ResumeEntry{
		TitleSnapshot: model.SnapshotOf(c),
		Fraction:      clamp(fraction),
		LastWatchedAt: s.now().UTC(),
	}
	key := c.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]model.ResumeEntry, 0, min(len(s.resume)+1, s.capacity))
	next = append(next, entry)
	for _, e := range s.resume {
		if len(next) >= s.capacity {
			break
		}
		if e.Key() == key {
			continue
		}
		next = append(next, e)
	}
	s.resume = next

	return entry, s.persist(ctx, KeyResumeList, next)
}

// Snapshot は現在の状態の不変コピーを返す。
func (s *Store) Snapshot() model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.NewSnapshot(s.watchlist, s.resume)
}

// Watchlist はウォッチリストのコピーを追加順で返す。
func (s *Store) Watchlist() []model.WatchlistEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.WatchlistEntry, len(s.watchlist))
	copy(out, s.watchlist)
	return out
}

// ResumeList は視聴途中リストのコピーを新しい順で返す。
func (s *Store) ResumeList() []model.ResumeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ResumeEntry, len(s.resume))
	copy(out, s.resume)
	return out
}

// persist はリストをJSONにして書き込む。呼び出し側でロックを保持すること。
func (s *Store) persist(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err == nil {
		err = s.kv.Put(ctx, key, data)
	}
	if err != nil {
		s.metrics.RecordPersistFailure(key)
		s.logger.Warn("ローカルストレージへの保存に失敗しました。変更はメモリ上のみに反映されます",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return &PersistError{Key: key, Err: err}
	}
	return nil
}

// decodeEntries は保存済みの配列を1件ずつデコードする。
// 解釈できないエントリだけを読み飛ばし、配列自体が不正な場合はエラーを返す。
func decodeEntries[T any](data []byte) ([]T, int, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, 0, err
	}
	out := make([]T, 0, len(items))
	skipped := 0
	for _, item := range items {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			skipped++
			continue
		}
		out = append(out, v)
	}
	return out, skipped, nil
}

func (s *Store) decodeWatchlist(data []byte) []model.WatchlistEntry {
	raw, skipped, err := decodeEntries[model.WatchlistEntry](data)
	if err != nil {
		s.logger.Warn("保存済みのウォッチリストを解釈できないため空として扱います",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if skipped > 0 {
		s.logger.Warn("解釈できないウォッチリストのエントリを読み飛ばしました",
			slog.Int("skipped", skipped),
		)
	}

	seen := make(map[model.ContentKey]struct{}, len(raw))
	out := make([]model.WatchlistEntry, 0, len(raw))
	for _, e := range raw {
		kind, ok := storedKind(e.Kind)
		if !ok || e.ID <= 0 {
			continue
		}
		e.Kind = kind
		if !e.ReleaseDate.IsSet() {
			e.ReleaseDate = nil
		}
		if _, dup := seen[e.Key()]; dup {
			continue
		}
		seen[e.Key()] = struct{}{}
		out = append(out, e)
	}
	return out
}

func (s *Store) decodeResume(data []byte) []model.ResumeEntry {
	raw, skipped, err := decodeEntries[model.ResumeEntry](data)
	if err != nil {
		s.logger.Warn("保存済みの視聴途中リストを解釈できないため空として扱います",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if skipped > 0 {
		s.logger.Warn("解釈できない視聴途中リストのエントリを読み飛ばしました",
			slog.Int("skipped", skipped),
		)
	}

	seen := make(map[model.ContentKey]struct{}, len(raw))
	out := make([]model.ResumeEntry, 0, min(len(raw), s.capacity))
	for _, e := range raw {
		if len(out) >= s.capacity {
			break
		}
		kind, ok := storedKind(e.Kind)
		if !ok || e.ID <= 0 {
			continue
		}
		e.Kind = kind
		if !e.ReleaseDate.IsSet() {
			e.ReleaseDate = nil
		}
		if _, dup := seen[e.Key()]; dup {
			continue
		}
		seen[e.Key()] = struct{}{}
		e.Fraction = clamp(e.Fraction)
		out = append(out, e)
	}
	return out
}

// storedKind は保存済みエントリの種別を解釈する。種別の無い古い形式は映画とみなす。
func storedKind(k model.MediaKind) (model.MediaKind, bool) {
	if k == "" {
		return model.MediaKindMovie, true
	}
	parsed, err := model.ParseMediaKind(string(k))
	if err != nil {
		return "", false
	}
	return parsed, true
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
