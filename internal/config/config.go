package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DocumentStore のバックエンド種別。
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL   string
	DocumentStore string
	MongoURI      string
	MongoDatabase string

	// Identity
	AuthTokenSecret string
	AuthTokenIssuer string

	// Horus
	HorusBaseURL string
	HorusToken   string
	RPCTimeout   time.Duration

	// Functions (自身のHTTP関数の呼び出し先とサービストークン)
	FunctionsBaseURL string
	FunctionsToken   string

	// Contentful
	ContentfulSpaceID     string
	ContentfulEnvironment string
	ContentfulAccessToken string

	// Omise
	OmisePublicKey string
	OmiseSecretKey string

	// Analytics
	AMQPURL           string
	AnalyticsExchange string

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Orders
	PlatformFeeBps     int
	AbandonedCartAfter time.Duration
	PasswordResetURL   string
	PasswordResetTTL   time.Duration

	// Rate Limit (1分あたりのリクエスト数)
	RateLimitPublic int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS (カンマ区切り、"*"ですべて許可)
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AuthTokenSecret = os.Getenv("AUTH_TOKEN_SECRET")
	if cfg.AuthTokenSecret == "" {
		missing = append(missing, "AUTH_TOKEN_SECRET")
	}

	cfg.HorusBaseURL = os.Getenv("HORUS_BASE_URL")
	if cfg.HorusBaseURL == "" {
		missing = append(missing, "HORUS_BASE_URL")
	}

	cfg.HorusToken = os.Getenv("HORUS_TOKEN")
	if cfg.HorusToken == "" {
		missing = append(missing, "HORUS_TOKEN")
	}

	cfg.DocumentStore = strings.ToLower(getEnvString("DOCUMENT_STORE", StorePostgres))
	cfg.MongoURI = os.Getenv("MONGO_URI")
	if cfg.DocumentStore == StoreMongo && cfg.MongoURI == "" {
		missing = append(missing, "MONGO_URI")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	switch cfg.DocumentStore {
	case StorePostgres, StoreMongo, StoreMemory:
	default:
		return nil, fmt.Errorf("invalid DOCUMENT_STORE %q (want postgres, mongo or memory)", cfg.DocumentStore)
	}

	// Optional fields with defaults
	cfg.MongoDatabase = getEnvString("MONGO_DATABASE", "tastiest")
	cfg.AuthTokenIssuer = getEnvString("AUTH_TOKEN_ISSUER", "")
	cfg.RPCTimeout = getEnvDuration("RPC_TIMEOUT", 10*time.Second)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.FunctionsBaseURL = getEnvString("FUNCTIONS_BASE_URL", "http://localhost:"+cfg.ServerPort)
	cfg.FunctionsToken = getEnvString("FUNCTIONS_TOKEN", "")
	cfg.ContentfulSpaceID = getEnvString("CONTENTFUL_SPACE_ID", "")
	cfg.ContentfulEnvironment = getEnvString("CONTENTFUL_ENVIRONMENT", "master")
	cfg.ContentfulAccessToken = getEnvString("CONTENTFUL_ACCESS_TOKEN", "")
	cfg.OmisePublicKey = getEnvString("OMISE_PUBLIC_KEY", "")
	cfg.OmiseSecretKey = getEnvString("OMISE_SECRET_KEY", "")
	cfg.AMQPURL = getEnvString("AMQP_URL", "")
	cfg.AnalyticsExchange = getEnvString("ANALYTICS_EXCHANGE", "analytics")
	cfg.SMTPHost = getEnvString("SMTP_HOST", "")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.SMTPFrom = getEnvString("SMTP_FROM", "noreply@tastiest.io")
	cfg.PlatformFeeBps = getEnvInt("PLATFORM_FEE_BPS", 250)
	cfg.AbandonedCartAfter = getEnvDuration("ABANDONED_CART_AFTER", time.Hour)
	cfg.PasswordResetURL = getEnvString("PASSWORD_RESET_URL", "https://tastiest.io/reset-password")
	cfg.PasswordResetTTL = getEnvDuration("PASSWORD_RESET_TTL", 30*time.Minute)
	cfg.RateLimitPublic = getEnvInt("RATE_LIMIT_PUBLIC", 30)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// PaymentsEnabled はOmiseの鍵が両方設定されているかを返す。
func (c *Config) PaymentsEnabled() bool {
	return c.OmisePublicKey != "" && c.OmiseSecretKey != ""
}

// CMSEnabled はContentfulの接続情報が設定されているかを返す。
func (c *Config) CMSEnabled() bool {
	return c.ContentfulSpaceID != "" && c.ContentfulAccessToken != ""
}

// MailEnabled はSMTPホストが設定されているかを返す。
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
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
