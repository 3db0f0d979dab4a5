package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はカタログAPIから受け取ったテキスト（タイトル・あらすじ）を
// プレーンテキストに整形する。
type TextSanitizer interface {
	// Clean は全てのHTMLタグを除去し、エンティティを復元し、
	// 連続する空白を1つにまとめて前後の空白を取り除く。
	// 同一入力に対して常に同一出力を返す。
	Clean(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはゴルーチン間で共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
// タグを一切許可しないStrictPolicyを使う。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Clean はテキストをプレーンテキストに整形する。
func (s *textSanitizer) Clean(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyは&などをエスケープして返すため、表示用に元に戻す
	stripped := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.Join(strings.Fields(stripped), " ")
}
