package catalog

import (
	"errors"
	"strings"
	"sync/atomic"
)

// ErrNoCredentials はAPIキーが1つも設定されていない場合のエラー。
var ErrNoCredentials = errors.New("catalog: at least one API credential is required")

// Rotator は順序付きのAPIキー集合と現在位置を保持する。
// 位置はプロセス内で共有され、レート制限時にのみ進む。永続化はしない。
type Rotator struct {
	credentials []string
	index       atomic.Int64
}

// NewRotator はRotatorを生成する。空白のみの要素は除外し、残りが空ならエラーを返す。
func NewRotator(credentials []string) (*Rotator, error) {
	var creds []string
	for _, c := range credentials {
		if c = strings.TrimSpace(c); c != "" {
			creds = append(creds, c)
		}
	}
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}
	return &Rotator{credentials: creds}, nil
}

// Len はAPIキーの数を返す。
func (r *Rotator) Len() int {
	return len(r.credentials)
}

// Current は現在位置とそのAPIキーを返す。
func (r *Rotator) Current() (int, string) {
	i := int(r.index.Load())
	return i, r.credentials[i]
}

// Advance は位置を1つ進め（末尾の次は先頭）、新しいAPIキーを返す。
// 読み取りと書き込みは1回のCASで行い、並行呼び出しでも進み幅が失われない。
func (r *Rotator) Advance() string {
	n := int64(len(r.credentials))
	for {
		cur := r.index.Load()
		next := (cur + 1) % n
		if r.index.CompareAndSwap(cur, next) {
			return r.credentials[next]
		}
	}
}

// AdvanceFrom は失敗したリクエストが観測した位置から1つ進める。
// 既に別のリクエストが切り替え済みの場合は進めずに現在のAPIキーを返す。
// 同じキーで同時に429を受けた複数のリクエストが、まだ有効なキーを飛ばすのを防ぐ。
func (r *Rotator) AdvanceFrom(observed int) (string, bool) {
	n := int64(len(r.credentials))
	next := (int64(observed) + 1) % n
	if r.index.CompareAndSwap(int64(observed), next) {
		return r.credentials[next], true
	}
	_, cred := r.Current()
	return cred, false
}
