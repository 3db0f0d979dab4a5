package feed

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/cinefeed/internal/model"
)

// カテゴリID。パーソナライズ行とトレンド行はフィード構築で特別に扱う。
const (
	CategoryTrending         = "trending"
	CategoryContinueWatching = "continue-watching"
	CategoryMyList           = "my-list"
)

// TrendingEndpoint はトレンド一覧のエンドポイント。ヒーローの候補もここから選ぶ。
const TrendingEndpoint = "/trending/all/day"

// DefaultCategories は組み込みのカテゴリ設定を表示順で返す。
func DefaultCategories() []model.Category {
	return []model.Category{
		{ID: CategoryTrending, Title: "Trending Now", Endpoint: TrendingEndpoint, Source: model.CategorySourceNetwork},
		{ID: CategoryContinueWatching, Title: "Continue Watching", Source: model.CategorySourceResume},
		{ID: CategoryMyList, Title: "My List", Source: model.CategorySourceWatchlist},
		{ID: "popular-movies", Title: "Popular Movies", Endpoint: "/movie/popular", Source: model.CategorySourceNetwork},
		{ID: "top-rated", Title: "Top Rated", Endpoint: "/movie/top_rated", Source: model.CategorySourceNetwork},
		{ID: "netflix-originals", Title: "Netflix Originals", Endpoint: "/discover/tv?with_networks=213", Source: model.CategorySourceNetwork},
		{ID: "action", Title: "Action Movies", Endpoint: "/discover/movie?with_genres=28", Source: model.CategorySourceNetwork},
		{ID: "comedy", Title: "Comedy Movies", Endpoint: "/discover/movie?with_genres=35", Source: model.CategorySourceNetwork},
		{ID: "horror", Title: "Horror Movies", Endpoint: "/discover/movie?with_genres=27", Source: model.CategorySourceNetwork},
		{ID: "romance", Title: "Romance Movies", Endpoint: "/discover/movie?with_genres=10749", Source: model.CategorySourceNetwork},
		{ID: "documentaries", Title: "Documentaries", Endpoint: "/discover/movie?with_genres=99", Source: model.CategorySourceNetwork},
	}
}

// categoriesFile はカテゴリ設定ファイル（YAML）の構造。
type categoriesFile struct {
	Categories []model.Category `yaml:"categories"`
}

// LoadCategories はYAMLファイルからカテゴリ設定を読み込み、検証する。
// sourceを省略したカテゴリはnetworkとして扱う。
//
//	categories:
//	  - id: trending
//	    title: Trending Now
//	    endpoint: /trending/all/day
//	  - id: my-list
//	    title: My List
//	    source: watchlist
func LoadCategories(path string) ([]model.Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ設定ファイルの読み込みに失敗しました: %w", err)
	}
	return ParseCategories(data)
}

// ParseCategories はYAMLのカテゴリ設定を解析し、検証する。
func ParseCategories(data []byte) ([]model.Category, error) {
	var file categoriesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("カテゴリ設定の解析に失敗しました: %w", err)
	}
	for i := range file.Categories {
		if file.Categories[i].Source == "" {
			file.Categories[i].Source = model.CategorySourceNetwork
		}
	}
	if err := ValidateCategories(file.Categories); err != nil {
		return nil, err
	}
	return file.Categories, nil
}

// ValidateCategories はカテゴリ設定を検証する。
// IDは一意かつ空でなく、networkカテゴリは"/"で始まるエンドポイントを持つ必要がある。
func ValidateCategories(categories []model.Category) error {
	if len(categories) == 0 {
		return errors.New("カテゴリが1つも定義されていません")
	}
	seen := make(map[string]struct{}, len(categories))
	for i, c := range categories {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("カテゴリ #%d のIDが空です", i+1)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("カテゴリIDが重複しています: %s", c.ID)
		}
		seen[c.ID] = struct{}{}

		switch c.Source {
		case model.CategorySourceNetwork:
			if !strings.HasPrefix(c.Endpoint, "/") {
				return fmt.Errorf("カテゴリ %s のエンドポイントが不正です: %q", c.ID, c.Endpoint)
			}
		case model.CategorySourceWatchlist, model.CategorySourceResume:
		default:
			return fmt.Errorf("カテゴリ %s の取得元が不正です: %q", c.ID, c.Source)
		}
	}
	return nil
}
