package detail

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/cinefeed/internal/catalog"
	"github.com/hitoshi/cinefeed/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// mockFetcher はテスト用のVideoFetcher。
type mockFetcher struct {
	fetchFn func(ctx context.Context, id int64, kind model.MediaKind) (*catalog.VideoList, error)
}

func (m *mockFetcher) FetchVideos(ctx context.Context, id int64, kind model.MediaKind) (*catalog.VideoList, error) {
	return m.fetchFn(ctx, id, kind)
}

func videos(vs ...catalog.Video) *catalog.VideoList {
	return &catalog.VideoList{Results: vs}
}

func TestGetTrailer_PicksFirstTrailerOnSupportedSite(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, id int64, kind model.MediaKind) (*catalog.VideoList, error) {
			if id != 66732 || kind != model.MediaKindSeries {
				t.Errorf("FetchVideos(%d, %s), want (66732, series)", id, kind)
			}
			return videos(
				catalog.Video{Key: "teaser", Site: "YouTube", Type: "Teaser"},
				catalog.Video{Key: "vimeo", Site: "Vimeo", Type: "Trailer"},
				catalog.Video{Key: "b9EkMc79ZSU", Site: "YouTube", Type: "Trailer"},
				catalog.Video{Key: "second", Site: "YouTube", Type: "Trailer"},
			), nil
		},
	}
	var buf bytes.Buffer
	l := NewLoader(fetcher, "", newTestLogger(&buf))

	key, ok := l.GetTrailer(context.Background(), 66732, model.MediaKindSeries)
	if !ok || key != "b9EkMc79ZSU" {
		t.Errorf("GetTrailer = (%q, %v), want (b9EkMc79ZSU, true)", key, ok)
	}
}

func TestGetTrailer_NoTrailer(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, id int64, kind model.MediaKind) (*catalog.VideoList, error) {
			return videos(catalog.Video{Key: "clip", Site: "YouTube", Type: "Clip"}), nil
		},
	}
	var buf bytes.Buffer
	l := NewLoader(fetcher, "YouTube", newTestLogger(&buf))

	if key, ok := l.GetTrailer(context.Background(), 603, model.MediaKindMovie); ok {
		t.Errorf("GetTrailer = (%q, true), want absent", key)
	}
}

func TestGetTrailer_FetchErrorIsAbsence(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, id int64, kind model.MediaKind) (*catalog.VideoList, error) {
			return nil, &catalog.UpstreamError{Endpoint: "/movie/603/videos", Status: 404}
		},
	}
	var buf bytes.Buffer
	l := NewLoader(fetcher, "YouTube", newTestLogger(&buf))

	if _, ok := l.GetTrailer(context.Background(), 603, model.MediaKindMovie); ok {
		t.Error("取得失敗時は ok = false であるべき")
	}
	if !bytes.Contains(buf.Bytes(), []byte("トレーラーの取得に失敗しました")) {
		t.Error("失敗がログに出力されていない")
	}
}

func TestGetTrailer_ConfiguredSite(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, id int64, kind model.MediaKind) (*catalog.VideoList, error) {
			return videos(
				catalog.Video{Key: "yt", Site: "YouTube", Type: "Trailer"},
				catalog.Video{Key: "vm", Site: "Vimeo", Type: "Trailer"},
			), nil
		},
	}
	var buf bytes.Buffer
	l := NewLoader(fetcher, "Vimeo", newTestLogger(&buf))

	if key, _ := l.GetTrailer(context.Background(), 1, model.MediaKindMovie); key != "vm" {
		t.Errorf("GetTrailer = %q, want vm", key)
	}
}

func TestGetTrailer_CoalescesConcurrentLookups(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, id int64, kind model.MediaKind) (*catalog.VideoList, error) {
			calls.Add(1)
			<-release
			return videos(catalog.Video{Key: "vKQi3bBA1y8", Site: "YouTube", Type: "Trailer"}), nil
		},
	}
	var buf bytes.Buffer
	l := NewLoader(fetcher, "YouTube", newTestLogger(&buf))

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = l.GetTrailer(context.Background(), 603, model.MediaKindMovie)
		}(i)
	}

	// 全員が待機に入るまで待ってから解放する
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("FetchVideos 呼び出し回数 = %d, want 1", calls.Load())
	}
	for i, r := range results {
		if r != "vKQi3bBA1y8" {
			t.Errorf("results[%d] = %q", i, r)
		}
	}
}

func TestGetTrailer_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, id int64, kind model.MediaKind) (*catalog.VideoList, error) {
			<-release
			return nil, errors.New("unreachable")
		},
	}
	var buf bytes.Buffer
	l := NewLoader(fetcher, "YouTube", newTestLogger(&buf))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := l.GetTrailer(ctx, 603, model.MediaKindMovie); ok {
		t.Error("キャンセル時は ok = false であるべき")
	}
}
