package catalog

// RawRecord はカタログAPIの結果配列に含まれる1件の生レコード。
// 映画は title/release_date、シリーズは name/first_air_date を持つ。
// フィールドの有無で種別を判定するため、文字列はポインタで受ける。
type RawRecord struct {
	ID            int64    `json:"id"`
	MediaType     string   `json:"media_type,omitempty"`
	Title         *string  `json:"title,omitempty"`
	Name          *string  `json:"name,omitempty"`
	OriginalTitle *string  `json:"original_title,omitempty"`
	OriginalName  *string  `json:"original_name,omitempty"`
	Overview      string   `json:"overview,omitempty"`
	BackdropPath  *string  `json:"backdrop_path,omitempty"`
	PosterPath    *string  `json:"poster_path,omitempty"`
	VoteAverage   *float64 `json:"vote_average,omitempty"`
	ReleaseDate   string   `json:"release_date,omitempty"`
	FirstAirDate  string   `json:"first_air_date,omitempty"`
}

// ResultPage は一覧系エンドポイントのレスポンス。
type ResultPage struct {
	Page         int         `json:"page"`
	Results      []RawRecord `json:"results"`
	TotalPages   int         `json:"total_pages"`
	TotalResults int         `json:"total_results"`
}

// Video は動画一覧の1件。
type Video struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Site string `json:"site"`
	Type string `json:"type"`
}

// VideoList は /{movie|tv}/{id}/videos のレスポンス。
type VideoList struct {
	ID      int64   `json:"id"`
	Results []Video `json:"results"`
}
