package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/cinefeed/internal/browse"
	"github.com/hitoshi/cinefeed/internal/model"
	"github.com/hitoshi/cinefeed/internal/personalization"
	"github.com/hitoshi/cinefeed/internal/search"
)

// maxRequestBodySize はリクエストボディの最大サイズ（64KB）。
const maxRequestBodySize = 64 << 10

// BrowseServiceInterface はブラウズハンドラーが必要とするサービスインターフェース。
// browse.Serviceが実装する。
type BrowseServiceInterface interface {
	CurrentFeed(ctx context.Context) *model.Feed
	LoadFeed(ctx context.Context) *model.Feed
	Search(ctx context.Context, query string) (search.Result, error)
	SelectTitle(ctx context.Context, key model.ContentKey) (model.Content, error)
	GetTrailer(ctx context.Context, id int64, kind model.MediaKind) (string, bool)
	ToggleWatchlist(ctx context.Context, c model.Content) (browse.ToggleResult, error)
	RecordProgress(ctx context.Context, c model.Content, fraction float64) (browse.ProgressResult, error)
	Watchlist() []model.WatchlistEntry
	ResumeList() []model.ResumeEntry
}

// BrowseHandler はUI向けAPIのHTTPハンドラー。
type BrowseHandler struct {
	service BrowseServiceInterface
}

// NewBrowseHandler はBrowseHandlerを生成する。
func NewBrowseHandler(service BrowseServiceInterface) *BrowseHandler {
	return &BrowseHandler{service: service}
}

// --- リクエスト・レスポンス型 ---

// toggleWatchlistRequest はウォッチリスト切り替えリクエストのボディ。
type toggleWatchlistRequest struct {
	Content *model.Content `json:"content"`
}

// recordProgressRequest は視聴進捗記録リクエストのボディ。
type recordProgressRequest struct {
	Content  *model.Content `json:"content"`
	Fraction *float64       `json:"fraction"`
}

// supersededResponse はより新しい検索に置き換えられた検索のレスポンス。
type supersededResponse struct {
	Superseded bool `json:"superseded"`
}

// trailerResponse はトレーラー取得のレスポンス。
type trailerResponse struct {
	TrailerKey string `json:"trailerKey"`
}

// GetFeed は現在のフィードを返す。未読み込みの場合は読み込む。
// GET /api/feed
func (h *BrowseHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.CurrentFeed(r.Context()))
}

// ReloadFeed はフィードを再読み込みする。
// POST /api/feed/reload
func (h *BrowseHandler) ReloadFeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.LoadFeed(r.Context()))
}

// Search は検索語の変更を受け付ける。デバウンス中に新しい検索が来た場合は
// {"superseded": true} を返す。
// GET /api/search?q=xxx
func (h *BrowseHandler) Search(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if errors.Is(err, search.ErrSuperseded) {
		writeJSON(w, http.StatusOK, supersededResponse{Superseded: true})
		return
	}
	if err != nil {
		// クライアントが切断した場合はレスポンスを書かない
		if r.Context().Err() != nil {
			return
		}
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetTitle は表示中のタイトルを選択し、トレーラー付きで返す。
// GET /api/titles/{kind}/{id}
func (h *BrowseHandler) GetTitle(w http.ResponseWriter, r *http.Request) {
	key, apiErr := parseTitleKey(r)
	if apiErr != nil {
		handleServiceError(w, r, apiErr)
		return
	}

	c, err := h.service.SelectTitle(r.Context(), key)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetTrailer はタイトルのトレーラーキーを返す。
// GET /api/titles/{kind}/{id}/trailer
func (h *BrowseHandler) GetTrailer(w http.ResponseWriter, r *http.Request) {
	key, apiErr := parseTitleKey(r)
	if apiErr != nil {
		handleServiceError(w, r, apiErr)
		return
	}

	trailerKey, ok := h.service.GetTrailer(r.Context(), key.ID, key.Kind)
	if !ok {
		handleServiceError(w, r, model.NewTrailerNotFoundError(key))
		return
	}
	writeJSON(w, http.StatusOK, trailerResponse{TrailerKey: trailerKey})
}

// ToggleWatchlist はタイトルのウォッチリスト登録を切り替える。
// 保存に失敗した場合も200で persisted:false と案内を返す。
// POST /api/watchlist/toggle
func (h *BrowseHandler) ToggleWatchlist(w http.ResponseWriter, r *http.Request) {
	var req toggleWatchlistRequest
	if apiErr := decodeBody(w, r, &req); apiErr != nil {
		handleServiceError(w, r, apiErr)
		return
	}
	if apiErr := validateContent(req.Content); apiErr != nil {
		handleServiceError(w, r, apiErr)
		return
	}

	res, err := h.service.ToggleWatchlist(r.Context(), *req.Content)
	if err != nil {
		handleServiceError(w, r, mapStoreError(err, req.Content))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RecordProgress は視聴進捗を記録する。進捗は0から1に丸められる。
// POST /api/progress
func (h *BrowseHandler) RecordProgress(w http.ResponseWriter, r *http.Request) {
	var req recordProgressRequest
	if apiErr := decodeBody(w, r, &req); apiErr != nil {
		handleServiceError(w, r, apiErr)
		return
	}
	if apiErr := validateContent(req.Content); apiErr != nil {
		handleServiceError(w, r, apiErr)
		return
	}
	if req.Fraction == nil {
		handleServiceError(w, r, model.NewInvalidProgressError())
		return
	}

	res, err := h.service.RecordProgress(r.Context(), *req.Content, *req.Fraction)
	if err != nil {
		handleServiceError(w, r, mapStoreError(err, req.Content))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListWatchlist はウォッチリストを返す。
// GET /api/watchlist
func (h *BrowseHandler) ListWatchlist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Watchlist())
}

// ListResume は視聴途中リストを返す。
// GET /api/resume
func (h *BrowseHandler) ListResume(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.ResumeList())
}

// parseTitleKey はURLパラメータ {kind}/{id} からタイトルキーを解析する。
func parseTitleKey(r *http.Request) (model.ContentKey, *model.APIError) {
	kindStr := chi.URLParam(r, "kind")
	kind, err := model.ParseMediaKind(kindStr)
	if err != nil {
		return model.ContentKey{}, model.NewInvalidMediaKindError(kindStr)
	}

	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return model.ContentKey{}, model.NewInvalidTitleIDError(idStr)
	}
	return model.ContentKey{ID: id, Kind: kind}, nil
}

// decodeBody はJSONボディをデコードする。
func decodeBody(w http.ResponseWriter, r *http.Request, v any) *model.APIError {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewInvalidRequestError("JSONを解析できません")
	}
	return nil
}

// validateContent はリクエストで受け取ったタイトルを検証する。
func validateContent(c *model.Content) *model.APIError {
	if c == nil {
		return model.NewInvalidRequestError("content は必須です")
	}
	if !c.Kind.Valid() {
		return model.NewInvalidMediaKindError(string(c.Kind))
	}
	if c.ID <= 0 {
		return model.NewInvalidTitleIDError(strconv.FormatInt(c.ID, 10))
	}
	return nil
}

// mapStoreError はパーソナライズ層の入力エラーをAPIErrorに変換する。
func mapStoreError(err error, c *model.Content) error {
	switch {
	case errors.Is(err, personalization.ErrInvalidContent):
		return model.NewInvalidMediaKindError(string(c.Kind))
	case errors.Is(err, personalization.ErrInvalidFraction):
		return model.NewInvalidProgressError()
	default:
		return err
	}
}
