package catalog

import (
	"errors"
	"fmt"
)

// TransportError はネットワーク到達不能・タイムアウトなど通信レベルの失敗を表す。
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("カタログAPIへの通信に失敗しました (%s): %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError はカタログAPIが成功以外のステータスを返したことを表す。
type UpstreamError struct {
	Endpoint string
	Status   int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("カタログAPIがステータス %d を返しました (%s)", e.Status, e.Endpoint)
}

// DecodeError はレスポンスを期待する構造として解釈できなかったことを表す。
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("カタログAPIのレスポンスのパースに失敗しました (%s): %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// QuotaExhaustedError は全APIキーがレート制限されたことを表す。
type QuotaExhaustedError struct {
	Endpoint string
	Attempts int
}

func (e *QuotaExhaustedError) Error() string {
	return fmt.Sprintf("全てのAPIキーがレート制限されています (%s, %d回試行)", e.Endpoint, e.Attempts)
}

// rateLimitedError は1回の試行が429を受けたことを表す内部エラー。
// 失敗時に観測したキー位置を保持し、切り替えの基点に使う。
type rateLimitedError struct {
	observed int
}

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on credential #%d", e.observed)
}

// IsRateLimited はエラーがレート制限起因（全キー枯渇）かどうかを返す。
func IsRateLimited(err error) bool {
	var q *QuotaExhaustedError
	return errors.As(err, &q)
}
