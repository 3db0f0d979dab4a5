// Package detail はタイトル詳細（トレーラー）の遅延取得を提供する。
package detail

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/cinefeed/internal/catalog"
	"github.com/hitoshi/cinefeed/internal/model"
)

const (
	// DefaultVideoSite はトレーラーとして採用する動画サイト。
	DefaultVideoSite = "YouTube"
	// trailerType はトレーラーを表す動画種別。
	trailerType = "Trailer"
)

// VideoFetcher は動画一覧の取得インターフェース。catalog.Clientが実装する。
type VideoFetcher interface {
	FetchVideos(ctx context.Context, id int64, kind model.MediaKind) (*catalog.VideoList, error)
}

// Loader はトレーラーキーを取得する。同じタイトルへの同時呼び出しは1回のリクエストにまとめる。
type Loader struct {
	fetcher VideoFetcher
	site    string
	logger  *slog.Logger
	group   singleflight.Group
}

// NewLoader はLoaderを生成する。siteが空の場合はDefaultVideoSite。
func NewLoader(fetcher VideoFetcher, site string, logger *slog.Logger) *Loader {
	if site == "" {
		site = DefaultVideoSite
	}
	return &Loader{fetcher: fetcher, site: site, logger: logger}
}

// GetTrailer はタイトルのトレーラーキーを返す。
// 取得失敗やトレーラーが無い場合はok=falseを返し、エラーにはしない。
func (l *Loader) GetTrailer(ctx context.Context, id int64, kind model.MediaKind) (string, bool) {
	key := model.ContentKey{ID: id, Kind: kind}.String()

	// 先に呼び出した側のキャンセルで他の呼び出しまで失敗しないよう、キャンセルは切り離す
	ch := l.group.DoChan(key, func() (any, error) {
		list, err := l.fetcher.FetchVideos(context.WithoutCancel(ctx), id, kind)
		if err != nil {
			return "", err
		}
		return l.pickTrailer(list.Results), nil
	})

	select {
	case <-ctx.Done():
		return "", false
	case res := <-ch:
		if res.Err != nil {
			l.logger.Warn("トレーラーの取得に失敗しました",
				slog.String("title", key),
				slog.String("error", res.Err.Error()),
			)
			return "", false
		}
		trailer, _ := res.Val.(string)
		return trailer, trailer != ""
	}
}

// pickTrailer は対応サイトの最初のトレーラーのキーを返す。
func (l *Loader) pickTrailer(videos []catalog.Video) string {
	for _, v := range videos {
		if v.Type == trailerType && strings.EqualFold(v.Site, l.site) && v.Key != "" {
			return v.Key
		}
	}
	return ""
}
