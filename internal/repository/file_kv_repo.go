package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

const fileKVExt = ".json"

// FileKVRepo はキーごとに1ファイルを書くKeyValueStore。
// 書き込みは一時ファイルからのリネームで行い、途中状態のファイルを残さない。
// ブラウザのローカルストレージと同様に、全キー合計のバイト数に上限を設けられる。
type FileKVRepo struct {
	fs    afero.Fs
	dir   string
	quota int64

	mu sync.Mutex
}

// NewFileKVRepo はFileKVRepoを生成する。quotaBytesが0以下の場合は上限なし。
func NewFileKVRepo(fsys afero.Fs, dir string, quotaBytes int64) *FileKVRepo {
	return &FileKVRepo{fs: fsys, dir: dir, quota: quotaBytes}
}

// Get はキーの値を取得する。
func (r *FileKVRepo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	data, err := afero.ReadFile(r.fs, r.path(key))
	if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ローカルストレージの読み込みに失敗しました (%s): %w", key, err)
	}
	return data, true, nil
}

// Put はキーの値を置き換える。上限を超える場合はErrQuotaExceededを返し、既存の値は変更しない。
func (r *FileKVRepo) Put(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.fs.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("ストレージディレクトリの作成に失敗しました: %w", err)
	}

	if r.quota > 0 {
		used, err := r.usageExcluding(key)
		if err != nil {
			return err
		}
		if used+int64(len(value)) > r.quota {
			return fmt.Errorf("%w: %d bytes in use, %d bytes requested, limit %d", ErrQuotaExceeded, used, len(value), r.quota)
		}
	}

	final := r.path(key)
	tmp := final + ".tmp"
	if err := afero.WriteFile(r.fs, tmp, value, 0o600); err != nil {
		_ = r.fs.Remove(tmp)
		return fmt.Errorf("ローカルストレージへの書き込みに失敗しました (%s): %w", key, err)
	}
	if err := r.fs.Rename(tmp, final); err != nil {
		_ = r.fs.Remove(tmp)
		return fmt.Errorf("ローカルストレージへの書き込みに失敗しました (%s): %w", key, err)
	}
	return nil
}

// usageExcluding は指定キー以外の保存済みバイト数の合計を返す。
func (r *FileKVRepo) usageExcluding(key string) (int64, error) {
	entries, err := afero.ReadDir(r.fs, r.dir)
	if err != nil {
		return 0, fmt.Errorf("ストレージ使用量の取得に失敗しました: %w", err)
	}
	var total int64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileKVExt) || name == key+fileKVExt {
			continue
		}
		total += e.Size()
	}
	return total, nil
}

func (r *FileKVRepo) path(key string) string {
	return path.Join(r.dir, key+fileKVExt)
}
