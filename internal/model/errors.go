// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, content, storage, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeInvalidMediaKind = "INVALID_MEDIA_KIND"
	ErrCodeInvalidTitleID   = "INVALID_TITLE_ID"
	ErrCodeInvalidProgress  = "INVALID_PROGRESS"
	ErrCodeTitleNotFound    = "TITLE_NOT_FOUND"
	ErrCodeTrailerNotFound  = "TRAILER_NOT_FOUND"
)

// NewInvalidRequestError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストの形式を確認してください。",
	}
}

// NewInvalidMediaKindError は種別が不正な場合のエラーを生成する。
func NewInvalidMediaKindError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMediaKind,
		Message:  fmt.Sprintf("無効な種別です: %s", kind),
		Category: "validation",
		Action:   "種別には movie または series（tv）を指定してください。",
	}
}

// NewInvalidTitleIDError はタイトルIDが不正な場合のエラーを生成する。
func NewInvalidTitleIDError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTitleID,
		Message:  fmt.Sprintf("無効なタイトルIDです: %s", id),
		Category: "validation",
		Action:   "タイトルIDには正の整数を指定してください。",
	}
}

// NewInvalidProgressError は視聴進捗が数値として不正な場合のエラーを生成する。
func NewInvalidProgressError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProgress,
		Message:  "視聴進捗の値が不正です。",
		Category: "validation",
		Action:   "進捗には0から1の数値を指定してください。",
	}
}

// NewTitleNotFoundError は表示中のフィード・検索結果にタイトルが無い場合のエラーを生成する。
func NewTitleNotFoundError(key ContentKey) *APIError {
	return &APIError{
		Code:     ErrCodeTitleNotFound,
		Message:  fmt.Sprintf("指定されたタイトルが見つかりません: %s", key),
		Category: "content",
		Action:   "フィードを再読み込みしてから再度お試しください。",
	}
}

// NewTrailerNotFoundError はトレーラーが存在しない場合のエラーを生成する。
func NewTrailerNotFoundError(key ContentKey) *APIError {
	return &APIError{
		Code:     ErrCodeTrailerNotFound,
		Message:  fmt.Sprintf("トレーラーが見つかりません: %s", key),
		Category: "content",
		Action:   "このタイトルにはトレーラーがありません。",
	}
}
