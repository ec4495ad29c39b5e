package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,notEmpty"`

	// OAuth
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID,notEmpty"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET,notEmpty"`
	// GoogleRedirectURL は認証サービス側のプロバイダコールバック（/auth/v1/callback）。
	GoogleRedirectURL string `env:"GOOGLE_REDIRECT_URL,notEmpty"`

	// Session
	SessionSecret string `env:"SESSION_SECRET,notEmpty"`
	SessionMaxAge int    `env:"SESSION_MAX_AGE" envDefault:"86400"`

	// Redis（未設定の場合はプロセス内通知のみ）
	RedisURL string `env:"REDIS_URL"`

	// Rate Limit（req/min）
	RateLimitGeneral   int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitDiagnosis int `env:"RATE_LIMIT_DIAGNOSIS" envDefault:"20"`

	// Account
	PasswordMinLength int `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`

	// Diagnosis
	DiagnosisDelay time.Duration `env:"DIAGNOSIS_DELAY" envDefault:"700ms"`
	UploadMaxBytes int64         `env:"UPLOAD_MAX_BYTES" envDefault:"10485760"`

	// Attachment storage (S3互換)
	S3Bucket          string `env:"S3_BUCKET"`
	S3Region          string `env:"S3_REGION" envDefault:"ap-northeast-1"`
	S3BaseEndpoint    string `env:"S3_BASE_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`

	// Worker
	ProvisionInterval      time.Duration `env:"PROFILE_PROVISION_INTERVAL" envDefault:"2s"`
	SiteCheckInterval      time.Duration `env:"SITE_CHECK_INTERVAL" envDefault:"5m"`
	SiteCheckTimeout       time.Duration `env:"SITE_CHECK_TIMEOUT" envDefault:"10s"`
	SiteCheckMaxSize       int64         `env:"SITE_CHECK_MAX_SIZE" envDefault:"1048576"`
	SiteCheckMaxConcurrent int           `env:"SITE_CHECK_MAX_CONCURRENT" envDefault:"4"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"24h"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort        string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL           string `env:"BASE_URL,notEmpty"`
	TrustProxyHeaders bool   `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	if cfg.PasswordMinLength < 1 {
		return nil, fmt.Errorf("PASSWORD_MIN_LENGTH must be positive, got %d", cfg.PasswordMinLength)
	}

	return cfg, nil
}

// UseS3 はS3への添付ファイル保存が有効かを返す。
func (c *Config) UseS3() bool {
	return c.S3Bucket != ""
}
