package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteKVRepo はSQLiteのkv_entriesテーブルを使用したKeyValueStore。
// テーブルはdatabase.RunMigrationsで作成する。
type SQLiteKVRepo struct {
	db *sql.DB
}

// NewSQLiteKVRepo はSQLiteKVRepoを生成する。
func NewSQLiteKVRepo(db *sql.DB) *SQLiteKVRepo {
	return &SQLiteKVRepo{db: db}
}

// Get はキーの値を取得する。
func (r *SQLiteKVRepo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE key = ?`,
		key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ローカルストレージの読み込みに失敗しました (%s): %w", key, err)
	}
	return value, true, nil
}

// Put はキーの値をUPSERTする。
func (r *SQLiteKVRepo) Put(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, updated_at)
		 VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("ローカルストレージへの書き込みに失敗しました (%s): %w", key, err)
	}
	return nil
}
