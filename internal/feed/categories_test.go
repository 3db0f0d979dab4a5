package feed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hitoshi/cinefeed/internal/model"
)

func TestDefaultCategories_AreValid(t *testing.T) {
	cats := DefaultCategories()
	if err := ValidateCategories(cats); err != nil {
		t.Fatalf("DefaultCategories が不正: %v", err)
	}
	if len(cats) != 11 {
		t.Errorf("件数 = %d, want 11", len(cats))
	}
	if cats[0].ID != CategoryTrending || cats[0].Endpoint != TrendingEndpoint {
		t.Errorf("先頭のカテゴリ = %+v, want trending", cats[0])
	}
}

func TestParseCategories(t *testing.T) {
	data := []byte(`
categories:
  - id: trending
    title: Trending Now
    endpoint: /trending/all/day
  - id: my-list
    title: My List
    source: watchlist
  - id: anime
    title: Anime
    endpoint: /discover/tv?with_genres=16
`)
	cats, err := ParseCategories(data)
	if err != nil {
		t.Fatalf("ParseCategories がエラーを返した: %v", err)
	}
	if len(cats) != 3 {
		t.Fatalf("件数 = %d, want 3", len(cats))
	}
	if cats[0].Source != model.CategorySourceNetwork {
		t.Errorf("source省略時 = %q, want network", cats[0].Source)
	}
	if cats[1].Source != model.CategorySourceWatchlist || !cats[1].Personalized() {
		t.Errorf("cats[1] = %+v, want watchlist", cats[1])
	}
	if cats[2].Endpoint != "/discover/tv?with_genres=16" {
		t.Errorf("cats[2].Endpoint = %q", cats[2].Endpoint)
	}
}

func TestParseCategories_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"空", "categories: []"},
		{"YAMLとして不正", "categories: [\n"},
		{"ID重複", "categories:\n  - {id: a, endpoint: /a}\n  - {id: a, endpoint: /b}"},
		{"ID空", "categories:\n  - {id: '', endpoint: /a}"},
		{"エンドポイント無し", "categories:\n  - {id: a}"},
		{"相対エンドポイント", "categories:\n  - {id: a, endpoint: movie/popular}"},
		{"未知のsource", "categories:\n  - {id: a, source: favorites}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCategories([]byte(tt.yaml)); err == nil {
				t.Error("エラーが返されるべき")
			}
		})
	}
}

func TestLoadCategories_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.yaml")
	if err := os.WriteFile(path, []byte("categories:\n  - {id: popular, title: Popular, endpoint: /movie/popular}\n"), 0o600); err != nil {
		t.Fatalf("ファイルの書き込みに失敗: %v", err)
	}

	cats, err := LoadCategories(path)
	if err != nil {
		t.Fatalf("LoadCategories がエラーを返した: %v", err)
	}
	if len(cats) != 1 || cats[0].ID != "popular" {
		t.Errorf("cats = %+v", cats)
	}

	if _, err := LoadCategories(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("存在しないファイルでエラーが返されるべき")
	}
}
