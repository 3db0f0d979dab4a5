// Package content はカタログAPIの生レコードを表示用のContentに正規化する。
package content

import (
	"errors"
	"math"
	"strings"

	"github.com/hitoshi/cinefeed/internal/catalog"
	"github.com/hitoshi/cinefeed/internal/model"
	"github.com/hitoshi/cinefeed/internal/security"
)

// ErrUnsupportedRecord は映画・シリーズ以外（人物など）のレコードを表す。
var ErrUnsupportedRecord = errors.New("content: unsupported record type")

const (
	// DefaultImageBaseURL は画像ホストのデフォルトのベースURL。
	DefaultImageBaseURL = "https://image.tmdb.org/t/p/original"
	// DefaultLimit は1つの結果一覧から正規化する最大件数。
	DefaultLimit = 20
)

// 上流のmedia_typeタグ。
const (
	mediaTypeMovie = "movie"
	mediaTypeTV    = "tv"
)

// Normalizer は生レコードをContentに変換する。状態を持たず並行利用できる。
type Normalizer struct {
	imageBaseURL string
	sanitizer    security.TextSanitizer
}

// NewNormalizer はNormalizerを生成する。imageBaseURLが空の場合はDefaultImageBaseURLを使う。
func NewNormalizer(imageBaseURL string, sanitizer security.TextSanitizer) *Normalizer {
	imageBaseURL = strings.TrimRight(imageBaseURL, "/")
	if imageBaseURL == "" {
		imageBaseURL = DefaultImageBaseURL
	}
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	return &Normalizer{imageBaseURL: imageBaseURL, sanitizer: sanitizer}
}

// Normalize は1件の生レコードをContentに変換し、スナップショットから派生フラグを設定する。
func (n *Normalizer) Normalize(rec catalog.RawRecord, snap model.Snapshot) (model.Content, error) {
	kind, err := detectKind(rec)
	if err != nil {
		return model.Content{}, err
	}

	c := model.Content{
		ID:          rec.ID,
		Kind:        kind,
		Title:       n.pickTitle(rec, kind),
		Synopsis:    n.sanitizer.Clean(rec.Overview),
		BackdropURL: n.imageURL(rec.BackdropPath),
		PosterURL:   n.imageURL(rec.PosterPath),
		Rating:      rating(rec.VoteAverage),
	}

	if kind == model.MediaKindMovie {
		c.ReleaseDate = model.ParseDate(rec.ReleaseDate)
	} else {
		c.ReleaseDate = model.ParseDate(rec.FirstAirDate)
	}

	return Annotate(c, snap), nil
}

// NormalizeAll はレコードを順に正規化する。非対応のレコードは読み飛ばし、
// 最大limit件（0以下の場合はDefaultLimit）まで返す。
func (n *Normalizer) NormalizeAll(records []catalog.RawRecord, snap model.Snapshot, limit int) []model.Content {
	if limit <= 0 {
		limit = DefaultLimit
	}
	out := make([]model.Content, 0, min(len(records), limit))
	for _, rec := range records {
		if len(out) >= limit {
			break
		}
		c, err := n.Normalize(rec, snap)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Annotate はスナップショットからInWatchlistとResumeFractionを再計算したコピーを返す。
func Annotate(c model.Content, snap model.Snapshot) model.Content {
	key := c.Key()
	c.InWatchlist = snap.InWatchlist(key)
	c.ResumeFraction = snap.ResumeFraction(key)
	return c
}

// AnnotateAll はスライスの各要素にAnnotateを適用した新しいスライスを返す。
func AnnotateAll(items []model.Content, snap model.Snapshot) []model.Content {
	out := make([]model.Content, len(items))
	for i, c := range items {
		out[i] = Annotate(c, snap)
	}
	return out
}

// detectKind はmedia_typeタグを優先して種別を判定する。
// タグが無い場合はtitleフィールドの有無で判定する（映画はtitle、シリーズはname）。
func detectKind(rec catalog.RawRecord) (model.MediaKind, error) {
	switch strings.ToLower(rec.MediaType) {
	case mediaTypeMovie:
		return model.MediaKindMovie, nil
	case mediaTypeTV:
		return model.MediaKindSeries, nil
	case "":
		if rec.Title != nil {
			return model.MediaKindMovie, nil
		}
		return model.MediaKindSeries, nil
	default:
		return "", ErrUnsupportedRecord
	}
}

// pickTitle は種別に応じた優先順で、整形後に空にならない最初の候補を返す。
// タグとして解釈されて消える候補（例: "<Untitled>"）は次の候補に譲る。
func (n *Normalizer) pickTitle(rec catalog.RawRecord, kind model.MediaKind) string {
	candidates := []*string{rec.Title, rec.Name, rec.OriginalTitle, rec.OriginalName}
	if kind == model.MediaKindSeries {
		candidates = []*string{rec.Name, rec.Title, rec.OriginalName, rec.OriginalTitle}
	}
	for _, p := range candidates {
		if p == nil {
			continue
		}
		if cleaned := n.sanitizer.Clean(*p); cleaned != "" {
			return cleaned
		}
	}
	return ""
}

// imageURL は相対パスに画像ホストのプレフィックスを付ける。パスが無ければnil。
func (n *Normalizer) imageURL(path *string) *string {
	if path == nil {
		return nil
	}
	p := strings.TrimSpace(*path)
	if p == "" {
		return nil
	}
	u := n.imageBaseURL + "/" + strings.TrimLeft(p, "/")
	return &u
}

func rating(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || *v < 0 || *v > 10 {
		return nil
	}
	r := *v
	return &r
}
