// Package model はドメインモデルを定義する。
package model

import "time"

// TitleSnapshot は保存時点のタイトル表示情報のコピー。
// 上流データが後から変わっても保存済みエントリには影響しない。
type TitleSnapshot struct {
	ID          int64     `json:"id"`
	Kind        MediaKind `json:"mediaKind"`
	Title       string    `json:"title"`
	Synopsis    string    `json:"synopsis,omitempty"`
	BackdropURL *string   `json:"backdropUrl,omitempty"`
	PosterURL   *string   `json:"posterUrl,omitempty"`
	Rating      *float64  `json:"rating,omitempty"`
	ReleaseDate *Date     `json:"releaseDate,omitempty"`
}

// SnapshotOf はContentから表示情報のコピーを作る。
// ポインタフィールドも複製し、元のContentと共有しない。
func SnapshotOf(c Content) TitleSnapshot {
	return TitleSnapshot{
		ID:          c.ID,
		Kind:        c.Kind,
		Title:       c.Title,
		Synopsis:    c.Synopsis,
		BackdropURL: cloneString(c.BackdropURL),
		PosterURL:   cloneString(c.PosterURL),
		Rating:      cloneFloat(c.Rating),
		ReleaseDate: cloneDate(c.ReleaseDate),
	}
}

// Key はタイトルの一意キーを返す。
func (s TitleSnapshot) Key() ContentKey {
	return ContentKey{ID: s.ID, Kind: s.Kind}
}

// Content はスナップショットからContentを復元する。派生フラグは未設定。
func (s TitleSnapshot) Content() Content {
	return Content{
		ID:          s.ID,
		Kind:        s.Kind,
		Title:       s.Title,
		Synopsis:    s.Synopsis,
		BackdropURL: cloneString(s.BackdropURL),
		PosterURL:   cloneString(s.PosterURL),
		Rating:      cloneFloat(s.Rating),
		ReleaseDate: cloneDate(s.ReleaseDate),
	}
}

// WatchlistEntry はウォッチリストの1件を表す。
type WatchlistEntry struct {
	TitleSnapshot
	AddedAt time.Time `json:"addedAt"`
}

// ResumeEntry は視聴途中リストの1件を表す。
type ResumeEntry struct {
	TitleSnapshot
	Fraction      float64   `json:"progress"`
	LastWatchedAt time.Time `json:"lastWatchedAt"`
}

// Snapshot はウォッチリストと視聴途中リストの不変コピー。
// 正規化時の派生フラグ計算とパーソナライズ行の構築に使う。
type Snapshot struct {
	Watchlist []WatchlistEntry
	Resume    []ResumeEntry

	watchIndex  map[ContentKey]struct{}
	resumeIndex map[ContentKey]float64
}

// NewSnapshot は渡されたスライスを複製し、キー索引を構築したSnapshotを返す。
func NewSnapshot(watchlist []WatchlistEntry, resume []ResumeEntry) Snapshot {
	s := Snapshot{
		Watchlist:   make([]WatchlistEntry, len(watchlist)),
		Resume:      make([]ResumeEntry, len(resume)),
		watchIndex:  make(map[ContentKey]struct{}, len(watchlist)),
		resumeIndex: make(map[ContentKey]float64, len(resume)),
	}
	copy(s.Watchlist, watchlist)
	copy(s.Resume, resume)
	for _, e := range watchlist {
		s.watchIndex[e.Key()] = struct{}{}
	}
	for _, e := range resume {
		if _, ok := s.resumeIndex[e.Key()]; !ok {
			s.resumeIndex[e.Key()] = e.Fraction
		}
	}
	return s
}

// InWatchlist はキーがウォッチリストに含まれるかを返す。
func (s Snapshot) InWatchlist(key ContentKey) bool {
	_, ok := s.watchIndex[key]
	return ok
}

// ResumeFraction はキーの視聴進捗を返す。未視聴の場合は0。
func (s Snapshot) ResumeFraction(key ContentKey) float64 {
	return s.resumeIndex[key]
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneDate(p *Date) *Date {
	if !p.IsSet() {
		return nil
	}
	v := *p
	return &v
}
