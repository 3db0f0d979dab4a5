// Package model はドメインモデルを定義する。
package model

import "time"

// CategorySource はカテゴリのコンテンツ取得元を表す。
type CategorySource string

const (
	// CategorySourceNetwork はカタログAPIから取得するカテゴリ。
	CategorySourceNetwork CategorySource = "network"
	// CategorySourceWatchlist はウォッチリストを表示するカテゴリ。
	CategorySourceWatchlist CategorySource = "watchlist"
	// CategorySourceResume は視聴途中リストを表示するカテゴリ。
	CategorySourceResume CategorySource = "resume"
)

// Category はホームフィードの行を定義する静的設定。
// 起動時に定義され、以降は変更しない。
type Category struct {
	ID       string         `json:"id" yaml:"id"`
	Title    string         `json:"title" yaml:"title"`
	Endpoint string         `json:"endpoint,omitempty" yaml:"endpoint"`
	Source   CategorySource `json:"source" yaml:"source"`
}

// Personalized はパーソナライズ状態から構築するカテゴリかどうかを返す。
func (c Category) Personalized() bool {
	return c.Source == CategorySourceWatchlist || c.Source == CategorySourceResume
}

// Row はフィード内の1行（カテゴリとそのコンテンツ）を表す。
type Row struct {
	Category Category  `json:"category"`
	Items    []Content `json:"items"`
	Fallback bool      `json:"fallback"`
}

// Feed はホームフィード全体を表す。
// 読み込みのたびに丸ごと再構築され、行の順序は設定順を維持する。
type Feed struct {
	Hero     *Content  `json:"hero"`
	Rows     []Row     `json:"rows"`
	Advisory string    `json:"advisory,omitempty"`
	LoadedAt time.Time `json:"loadedAt"`
}

// Row はカテゴリIDで行を検索する。
func (f *Feed) Row(categoryID string) (*Row, bool) {
	for i := range f.Rows {
		if f.Rows[i].Category.ID == categoryID {
			return &f.Rows[i], true
		}
	}
	return nil, false
}

// Find はフィード内（ヒーローと全行）からキーに一致するタイトルを探す。
func (f *Feed) Find(key ContentKey) (Content, bool) {
	if f.Hero != nil && f.Hero.Key() == key {
		return *f.Hero, true
	}
	for _, row := range f.Rows {
		for _, c := range row.Items {
			if c.Key() == key {
				return c, true
			}
		}
	}
	return Content{}, false
}

// Clone は行とコンテンツのスライスを複製したコピーを返す。
func (f *Feed) Clone() *Feed {
	out := &Feed{
		Advisory: f.Advisory,
		LoadedAt: f.LoadedAt,
		Rows:     make([]Row, len(f.Rows)),
	}
	if f.Hero != nil {
		hero := *f.Hero
		out.Hero = &hero
	}
	for i, row := range f.Rows {
		items := make([]Content, len(row.Items))
		copy(items, row.Items)
		out.Rows[i] = Row{Category: row.Category, Items: items, Fallback: row.Fallback}
	}
	return out
}
