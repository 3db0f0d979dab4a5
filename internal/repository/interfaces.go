// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"regexp"
)

// ErrQuotaExceeded は書き込みが保存容量の上限を超える場合のエラー。
var ErrQuotaExceeded = errors.New("repository: storage quota exceeded")

// ErrInvalidKey はキーが許可された形式でない場合のエラー。
var ErrInvalidKey = errors.New("repository: invalid key")

// KeyValueStore はパーソナライズ状態（ウォッチリスト、視聴途中リスト）を
// キー単位のバイト列として保存するローカルストレージのインターフェース。
type KeyValueStore interface {
	// Get はキーの値を取得する。キーが存在しない場合はok=falseを返す。
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Put はキーの値を丸ごと置き換える。
	Put(ctx context.Context, key string, value []byte) error
}

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// validateKey はキーがファイル名・主キーとして安全な形式かを検証する。
func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return ErrInvalidKey
	}
	return nil
}
