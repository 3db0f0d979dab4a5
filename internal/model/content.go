// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MediaKind はタイトルの種別（映画/シリーズ）を表す。
type MediaKind string

const (
	// MediaKindMovie は映画。
	MediaKindMovie MediaKind = "movie"
	// MediaKindSeries はTVシリーズ。
	MediaKindSeries MediaKind = "series"
)

// ParseMediaKind は文字列からMediaKindを解析する。
// カタログAPIのパス表記（tv）も受け付ける。
func ParseMediaKind(s string) (MediaKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie":
		return MediaKindMovie, nil
	case "series", "tv":
		return MediaKindSeries, nil
	default:
		return "", fmt.Errorf("unknown media kind: %q", s)
	}
}

// Valid は既知の種別かどうかを返す。
func (k MediaKind) Valid() bool {
	return k == MediaKindMovie || k == MediaKindSeries
}

// UpstreamPath はカタログAPIのパスセグメント（movie / tv）を返す。
func (k MediaKind) UpstreamPath() string {
	if k == MediaKindSeries {
		return "tv"
	}
	return "movie"
}

// ContentKey はタイトルの一意キー。IDは映画とシリーズで衝突しうるため種別と組で扱う。
type ContentKey struct {
	ID   int64
	Kind MediaKind
}

// String は "movie:603" 形式の文字列を返す。
func (k ContentKey) String() string {
	return string(k.Kind) + ":" + strconv.FormatInt(k.ID, 10)
}

// Content は正規化済みのタイトルを表す。
// 値として扱い、UI側でインプレース変更しない。
type Content struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Synopsis       string    `json:"synopsis"`
	BackdropURL    *string   `json:"backdropUrl,omitempty"`
	PosterURL      *string   `json:"posterUrl,omitempty"`
	Rating         *float64  `json:"rating,omitempty"`
	ReleaseDate    *Date     `json:"releaseDate,omitempty"`
	Kind           MediaKind `json:"mediaKind"`
	TrailerKey     *string   `json:"trailerKey,omitempty"`
	InWatchlist    bool      `json:"inWatchlist"`
	ResumeFraction float64   `json:"resumeFraction"`
}

// Key はタイトルの一意キーを返す。
func (c Content) Key() ContentKey {
	return ContentKey{ID: c.ID, Kind: c.Kind}
}

// WithTrailer はトレーラーキーを設定したコピーを返す。
func (c Content) WithTrailer(key string) Content {
	if key == "" {
		c.TrailerKey = nil
		return c
	}
	c.TrailerKey = &key
	return c
}

// Date は時刻を持たない暦日を表す。JSONでは "2006-01-02" 形式で入出力する。
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// ParseDate は "YYYY-MM-DD" 形式の文字列を解析する。
// 空文字列や不正な形式の場合はnilを返す。
func ParseDate(s string) *Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &Date{Time: t}
}

// String は "YYYY-MM-DD" 形式の文字列を返す。
func (d Date) String() string {
	return d.Format(dateLayout)
}

// IsSet は日付が存在するかを返す。nilとゼロ値は未設定とみなす。
func (d *Date) IsSet() bool {
	return d != nil && !d.IsZero()
}

// MarshalJSON はjson.Marshalerを実装する。ゼロ値はnullになる。
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(d.String())), nil
}

// UnmarshalJSON はjson.Unmarshalerを実装する。
// null と空文字列は未設定（ゼロ値）として受け付ける。
func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("invalid date: %s", b)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	d.Time = t
	return nil
}
