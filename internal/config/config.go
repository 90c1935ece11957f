package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"imagegen/internal/apperr"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
	ConnectTimeoutSec  int
	ApplicationName    string
}

// StorageConfig holds the S3-compatible object store settings.
// Endpoint is the backend base URL; AccessKey/SecretKey are the privileged service credential.
type StorageConfig struct {
	Endpoint        string
	AccessKey       string
	SecretKey       string
	Bucket          string
	Region          string
	UseSSL          bool
	SignedURLTTLSec int
}

// WebhookConfig holds the image generation webhook settings.
type WebhookConfig struct {
	URL           string
	TimeoutSec    int
	WaitNoticeSec int
}

// CopyConfig bounds the secure copy of a generated image.
type CopyConfig struct {
	FetchTimeoutSec  int
	UploadTimeoutSec int
	MaxSourceBytes   int64
	// AllowPrivateSources lets image URLs resolve to loopback or private networks (local development).
	AllowPrivateSources bool
}

// AuthConfig holds the token settings.
type AuthConfig struct {
	JWTSecret   string
	Issuer      string
	TokenTTLSec int
}

// RedisConfig is optional; an empty Addr selects the in-process guard.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Env             string
	Port            string
	LogLevel        string
	CORSAllowOrigin string
	Database        DatabaseConfig
	Storage         StorageConfig
	Webhook         WebhookConfig
	Copy            CopyConfig
	Auth            AuthConfig
	Redis           RedisConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
func Load() *AppConfig {
	return &AppConfig{
		Env:             getEnv("APP_ENV", "local"),
		Port:            getEnv("PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		CORSAllowOrigin: getEnv("CORS_ALLOW_ORIGIN", "*"),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
			ConnectTimeoutSec:  getEnvInt("DB_CONNECT_TIMEOUT_SEC", 5),
			ApplicationName:    getEnv("DB_APPLICATION_NAME", "imagegen"),
		},
		Storage: StorageConfig{
			Endpoint:        getEnv("STORAGE_ENDPOINT", ""),
			AccessKey:       getEnv("STORAGE_ACCESS_KEY", ""),
			SecretKey:       getEnv("STORAGE_SECRET_KEY", ""),
			Bucket:          getEnv("STORAGE_BUCKET", "generated-images"),
			Region:          getEnv("STORAGE_REGION", "us-east-1"),
			UseSSL:          getEnvBool("STORAGE_USE_SSL", false),
			SignedURLTTLSec: getEnvInt("SIGNED_URL_TTL_SEC", 3600),
		},
		Webhook: WebhookConfig{
			URL:           getEnv("WEBHOOK_URL", ""),
			TimeoutSec:    getEnvInt("WEBHOOK_TIMEOUT_SEC", 60),
			WaitNoticeSec: getEnvInt("WEBHOOK_WAIT_NOTICE_SEC", 3),
		},
		Copy: CopyConfig{
			FetchTimeoutSec:     getEnvInt("SOURCE_FETCH_TIMEOUT_SEC", 30),
			UploadTimeoutSec:    getEnvInt("UPLOAD_TIMEOUT_SEC", 30),
			MaxSourceBytes:      int64(getEnvInt("SOURCE_MAX_BYTES", 20<<20)),
			AllowPrivateSources: getEnvBool("SOURCE_ALLOW_PRIVATE", false),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", ""),
			Issuer:      getEnv("JWT_ISSUER", "imagegen"),
			TokenTTLSec: getEnvInt("JWT_TTL_SEC", 86400),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}
}

// Validate reports every required key that is unset, wrapped in apperr.ErrMissingConfig.
func (c *AppConfig) Validate() error {
	var missing []string
	require := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, key)
		}
	}
	require("DB_HOST", c.Database.Host)
	require("DB_USER", c.Database.User)
	require("DB_NAME", c.Database.Name)
	require("STORAGE_ENDPOINT", c.Storage.Endpoint)
	require("STORAGE_ACCESS_KEY", c.Storage.AccessKey)
	require("STORAGE_SECRET_KEY", c.Storage.SecretKey)
	require("STORAGE_BUCKET", c.Storage.Bucket)
	require("WEBHOOK_URL", c.Webhook.URL)
	require("JWT_SECRET", c.Auth.JWTSecret)

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", apperr.ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

// SignedURLTTL is the validity of minted read URLs.
func (c StorageConfig) SignedURLTTL() time.Duration {
	return time.Duration(c.SignedURLTTLSec) * time.Second
}

// Timeout is the upper bound of one webhook round trip.
func (c WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// WaitNotice is the delay after which a pending webhook call is reported as waiting.
func (c WebhookConfig) WaitNotice() time.Duration {
	return time.Duration(c.WaitNoticeSec) * time.Second
}

func (c CopyConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

func (c CopyConfig) UploadTimeout() time.Duration {
	return time.Duration(c.UploadTimeoutSec) * time.Second
}

func (c AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLSec) * time.Second
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
