package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hitoshi/cinefeed/internal/security"
)

// ストレージバックエンド
const (
	StorageBackendFile   = "file"
	StorageBackendSQLite = "sqlite"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Catalog
	CatalogAPIKeys   []string
	CatalogBaseURL   string
	ImageBaseURL     string
	CatalogTimeout   time.Duration
	CatalogRateLimit float64
	CatalogRateBurst int
	VideoSite        string

	// Feed
	CategoryTimeout   time.Duration
	CategoryMaxItems  int
	FeedMaxConcurrent int
	CategoriesFile    string

	// Search
	SearchDebounce time.Duration

	// Personalization
	ResumeMaxEntries  int
	StorageBackend    string
	StoragePath       string
	StorageQuotaBytes int64

	// Rate Limit
	RateLimitGeneral int

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// ENV_FILE（デフォルト .env）が存在する場合は先に読み込む。既に設定済みの環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := loadEnvFile(getEnvString("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.CatalogAPIKeys = splitList(os.Getenv("CATALOG_API_KEYS"))
	if len(cfg.CatalogAPIKeys) == 0 {
		missing = append(missing, "CATALOG_API_KEYS")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.CatalogBaseURL = getEnvString("CATALOG_BASE_URL", "https://api.themoviedb.org/3")
	cfg.ImageBaseURL = getEnvString("IMAGE_BASE_URL", "https://image.tmdb.org/t/p/original")
	cfg.CatalogTimeout = getEnvDuration("CATALOG_TIMEOUT", 10*time.Second)
	cfg.CatalogRateLimit = getEnvFloat("CATALOG_RATE_LIMIT", 0)
	cfg.CatalogRateBurst = getEnvInt("CATALOG_RATE_BURST", 10)
	cfg.VideoSite = getEnvString("VIDEO_SITE", "YouTube")
	cfg.CategoryTimeout = getEnvDuration("CATEGORY_TIMEOUT", 8*time.Second)
	cfg.CategoryMaxItems = getEnvInt("CATEGORY_MAX_ITEMS", 20)
	cfg.FeedMaxConcurrent = getEnvInt("FEED_MAX_CONCURRENT", 4)
	cfg.CategoriesFile = getEnvString("CATEGORIES_FILE", "")
	cfg.SearchDebounce = getEnvDuration("SEARCH_DEBOUNCE", 500*time.Millisecond)
	cfg.ResumeMaxEntries = getEnvInt("RESUME_MAX_ENTRIES", 20)
	cfg.StorageBackend = strings.ToLower(getEnvString("STORAGE_BACKEND", StorageBackendFile))
	cfg.StoragePath = getEnvString("STORAGE_PATH", "./data")
	cfg.StorageQuotaBytes = getEnvInt64("STORAGE_QUOTA_BYTES", 5242880)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.LogFile = getEnvString("LOG_FILE", "")
	cfg.LogMaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", 100)
	cfg.LogMaxBackups = getEnvInt("LOG_MAX_BACKUPS", 3)
	cfg.LogMaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", 14)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	guard := security.NewOutboundGuard()
	if err := guard.ValidateBaseURL(c.CatalogBaseURL); err != nil {
		return fmt.Errorf("invalid CATALOG_BASE_URL: %w", err)
	}
	if err := guard.ValidateBaseURL(c.ImageBaseURL); err != nil {
		return fmt.Errorf("invalid IMAGE_BASE_URL: %w", err)
	}
	switch c.StorageBackend {
	case StorageBackendFile, StorageBackendSQLite:
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND: %q (allowed: %s, %s)", c.StorageBackend, StorageBackendFile, StorageBackendSQLite)
	}
	return nil
}

// loadEnvFile は.envファイルを読み込む。ファイルが無い場合は何もしない。
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
