package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// LLM
	LLMAPIKey     string
	LLMAPIURL     string
	LLMModel      string
	LLMTimeout    time.Duration
	LLMMaxRetries int

	// Site fetch
	SiteFetchTimeout time.Duration
	SiteFetchMaxSize int64

	// Planner
	PlannerInterval       time.Duration
	PlannerMaxConcurrent  int
	PlannerTimezone       string
	DeclinedRetentionDays int

	// Rate Limit
	RateLimitGeneral    int
	RateLimitGeneration int

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は未設定のものをまとめてエラーで返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	if cfg.LLMAPIKey == "" {
		missing = append(missing, "LLM_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.LLMAPIURL = strings.TrimRight(getEnvString("LLM_API_URL", "https://api.openai.com/v1"), "/")
	cfg.LLMModel = getEnvString("LLM_MODEL", "gpt-4o-mini")
	cfg.LLMTimeout = getEnvDuration("LLM_TIMEOUT", 60*time.Second)
	cfg.LLMMaxRetries = getEnvInt("LLM_MAX_RETRIES", 2)
	cfg.SiteFetchTimeout = getEnvDuration("SITE_FETCH_TIMEOUT", 10*time.Second)
	cfg.SiteFetchMaxSize = getEnvInt64("SITE_FETCH_MAX_SIZE", 2097152)
	cfg.PlannerInterval = getEnvDuration("PLANNER_INTERVAL", time.Hour)
	cfg.PlannerMaxConcurrent = getEnvInt("PLANNER_MAX_CONCURRENT", 5)
	cfg.PlannerTimezone = getEnvString("PLANNER_TIMEZONE", "UTC")
	cfg.DeclinedRetentionDays = getEnvInt("DECLINED_RETENTION_DAYS", 30)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitGeneration = getEnvInt("RATE_LIMIT_GENERATION", 10)
	cfg.SMTPHost = getEnvString("SMTP_HOST", "")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUser = getEnvString("SMTP_USER", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.SMTPFrom = getEnvString("SMTP_FROM", "")
	cfg.SMTPFromName = getEnvString("SMTP_FROM_NAME", "Content Planner")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// PlannerLocation はPLANNER_TIMEZONEのタイムゾーンを返す。
// 不正な名前の場合はUTCを返す。
func (c *Config) PlannerLocation() *time.Location {
	loc, err := time.LoadLocation(c.PlannerTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SMTPEnabled はメール通知に必要なSMTP設定が揃っているかを返す。
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
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
