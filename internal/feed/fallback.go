package feed

import "github.com/hitoshi/cinefeed/internal/model"

// fallbackAdvisory はフォールバックを使った読み込みでUIに一度だけ表示する案内。
const fallbackAdvisory = "コンテンツの読み込みに失敗したため、代替データを表示しています。"

// fallbackHeroTrailer はフォールバックのヒーローに付けるトレーラーキー。
const fallbackHeroTrailer = "b9EkMc79ZSU"

const fallbackImageBase = "https://image.tmdb.org/t/p/original/"

func imageURL(path string) *string {
	u := fallbackImageBase + path
	return &u
}

func rating(v float64) *float64 { return &v }

// fallbackHero はトレンドを取得できない場合のヒーロー。
func fallbackHero() model.Content {
	hero := model.Content{
		ID:          66732,
		Kind:        model.MediaKindSeries,
		Title:       "Stranger Things",
		Synopsis:    "When a young boy vanishes, a small town uncovers a mystery involving secret experiments, terrifying supernatural forces, and one strange little girl.",
		BackdropURL: imageURL("56v2KjBlU4XaOv9rVYEQypROD7P.jpg"),
		PosterURL:   imageURL("49WJfeN0moxb9IPfGn8AIqMGskD.jpg"),
		Rating:      rating(8.7),
		ReleaseDate: model.ParseDate("2016-07-15"),
	}
	return hero.WithTrailer(fallbackHeroTrailer)
}

// fallbackTitles はカテゴリの取得に失敗した場合に表示する固定のタイトル。
// 呼び出しごとに新しいスライスを返す。
func fallbackTitles() []model.Content {
	return []model.Content{
		{
			ID:          155,
			Kind:        model.MediaKindMovie,
			Title:       "The Dark Knight",
			Synopsis:    "Batman faces the Joker.",
			BackdropURL: imageURL("hqkIcbrOHL86UncnHIsHVcVmzue.jpg"),
			PosterURL:   imageURL("qJ2tW6WMUDux911r6m7haRef0WH.jpg"),
			Rating:      rating(9.0),
			ReleaseDate: model.ParseDate("2008-07-18"),
		},
		{
			ID:          27205,
			Kind:        model.MediaKindMovie,
			Title:       "Inception",
			Synopsis:    "A thief who steals corporate secrets.",
			BackdropURL: imageURL("s3TBrRGB1iav7gFOCNx3H31MoES.jpg"),
			PosterURL:   imageURL("9gk7adHYeDvHkCSEqAvQNLV5Uge.jpg"),
			Rating:      rating(8.8),
			ReleaseDate: model.ParseDate("2010-07-16"),
		},
		{
			ID:          157336,
			Kind:        model.MediaKindMovie,
			Title:       "Interstellar",
			Synopsis:    "A team of explorers travel through a wormhole.",
			BackdropURL: imageURL("rAiYTfKGqDCRIIqo664sY9XZIvQ.jpg"),
			PosterURL:   imageURL("gEU2QniE6E77NI6lCU6MxlNBvIx.jpg"),
			Rating:      rating(8.6),
			ReleaseDate: model.ParseDate("2014-11-07"),
		},
		{
			ID:          680,
			Kind:        model.MediaKindMovie,
			Title:       "Pulp Fiction",
			Synopsis:    "The lives of two mob hitmen intersect.",
			BackdropURL: imageURL("4cDFJr4HnXN5AdPw4AKrmLlMWdO.jpg"),
			PosterURL:   imageURL("d5iIlFn5s0ImszYzBPb8JPIfbXD.jpg"),
			Rating:      rating(8.9),
			ReleaseDate: model.ParseDate("1994-10-14"),
		},
		{
			ID:          603,
			Kind:        model.MediaKindMovie,
			Title:       "The Matrix",
			Synopsis:    "A computer hacker learns about reality.",
			BackdropURL: imageURL("fNG7i7RqMErkcqhohV2a6cV1Ehy.jpg"),
			PosterURL:   imageURL("f89U3ADr1oiB1s9GkdPOEpXUk5H.jpg"),
			Rating:      rating(8.7),
			ReleaseDate: model.ParseDate("1999-03-31"),
		},
	}
}
