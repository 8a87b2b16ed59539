package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret          string
	SessionMaxAge          int
	SessionCleanupInterval time.Duration

	// Gate
	SignInReturnPath      string        // 未認証時のサインイン後の戻り先
	GateRefreshSeconds    int           // 解決中プレースホルダーの再評価間隔（秒）
	IdentityReadyInterval time.Duration // IDプロバイダーの初期解決を確認する間隔

	// Rate Limit
	RateLimitGeneral int // req/min/user
	RateLimitSignIn  int // req/min/client

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須変数の欠落と形式不正はまとめて1つのエラーで報告する。
func Load() (*Config, error) {
	_ = godotenv.Load()

	e := &env{}
	cfg := &Config{
		DatabaseURL:        e.required("DATABASE_URL"),
		GoogleClientID:     e.required("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: e.required("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  e.required("GOOGLE_REDIRECT_URL"),
		SessionSecret:      e.required("SESSION_SECRET"),
		BaseURL:            e.required("BASE_URL"),

		SessionMaxAge:          e.positiveInt("SESSION_MAX_AGE", 86400),
		SessionCleanupInterval: e.duration("SESSION_CLEANUP_INTERVAL", 24*time.Hour),
		SignInReturnPath:       e.str("SIGN_IN_RETURN_PATH", "/chat"),
		GateRefreshSeconds:     e.positiveInt("GATE_REFRESH_SECONDS", 2),
		IdentityReadyInterval:  e.duration("IDENTITY_READY_INTERVAL", 2*time.Second),
		RateLimitGeneral:       e.positiveInt("RATE_LIMIT_GENERAL", 120),
		RateLimitSignIn:        e.positiveInt("RATE_LIMIT_SIGN_IN", 20),
		LogLevel:               e.logLevel("LOG_LEVEL", slog.LevelInfo),
		ServerPort:             e.str("SERVER_PORT", "8080"),
		CookieDomain:           e.str("COOKIE_DOMAIN", ""),
		CORSAllowedOrigin:      e.str("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
	}
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	if p := cfg.SignInReturnPath; !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		e.invalid("SIGN_IN_RETURN_PATH", p, "must be an absolute path")
	}

	if err := e.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// env は環境変数を読みながら欠落と形式不正を溜める。
type env struct {
	missing []string
	errs    []error
}

func (e *env) invalid(key, value, why string) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q %s", key, value, why))
}

func (e *env) err() error {
	errs := e.errs
	if len(e.missing) > 0 {
		errs = append([]error{fmt.Errorf("required environment variables are not set: %v", e.missing)}, errs...)
	}
	return errors.Join(errs...)
}

func (e *env) required(key string) string {
	v := os.Getenv(key)
	if v == "" {
		e.missing = append(e.missing, key)
	}
	return v
}

func (e *env) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (e *env) positiveInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		e.invalid(key, v, "must be a positive integer")
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.invalid(key, v, "must be a positive duration such as 30s or 24h")
		return def
	}
	return d
}

// logLevel は debug / info / warn / error を受け付ける。
func (e *env) logLevel(key string, def slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		e.invalid(key, v, "must be one of debug, info, warn, error")
		return def
	}
	return l
}
