package database

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4"
)

func TestRunMigrations_Up(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cinefeed.db")

	if err := RunMigrations(path); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open に失敗: %v", err)
	}
	defer db.Close()

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'kv_entries'`).Scan(&name)
	if err != nil {
		t.Fatalf("kv_entries テーブルが作成されていない: %v", err)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cinefeed.db")

	if err := RunMigrations(path); err != nil {
		t.Fatalf("1回目のマイグレーション実行に失敗: %v", err)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("2回目のマイグレーション実行に失敗: %v", err)
	}
}

func TestRunMigrations_Down(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cinefeed.db")

	m, err := NewMigrator(path)
	if err != nil {
		t.Fatalf("NewMigrator に失敗: %v", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		t.Fatalf("Up に失敗: %v", err)
	}
	if err := m.Down(); err != nil {
		t.Fatalf("Down に失敗: %v", err)
	}

	version, _, err := m.Version()
	if !errors.Is(err, migrate.ErrNilVersion) {
		t.Errorf("Down後のバージョン = %d, err = %v, want ErrNilVersion", version, err)
	}

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open に失敗: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'kv_entries'`).Scan(&count); err != nil {
		t.Fatalf("sqlite_master の参照に失敗: %v", err)
	}
	if count != 0 {
		t.Error("Down後も kv_entries テーブルが残っている")
	}
}

func TestSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cinefeed.db")

	version, dirty, err := SchemaVersion(path)
	if err != nil {
		t.Fatalf("未適用のSchemaVersionでエラー: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("未適用の SchemaVersion = (%d, %v), want (0, false)", version, dirty)
	}

	if err := RunMigrations(path); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}

	version, dirty, err = SchemaVersion(path)
	if err != nil {
		t.Fatalf("SchemaVersionでエラー: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("SchemaVersion = (%d, %v), want (1, false)", version, dirty)
	}
}
