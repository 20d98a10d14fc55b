package infra

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	GeminiGateway string
	GeminiModel   string
	GeminiAPIKeys []string

	AssetHost         string
	MaxReferenceBytes int64
	MaxStreamBytes    int64
	MaxShootLogBytes  int
	ReferenceTimeout  time.Duration
	AttemptTimeout    time.Duration
	RetryBackoff      time.Duration

	StorageDriver  string
	S3Bucket       string
	S3Region       string
	StoragePath    string
	StorageBaseURL string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. Credential presence is validated per job, not here:
// keys may come from the environment or from the database pool.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		GeminiGateway: getEnv("GEMINI_GATEWAY", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiAPIKeys: splitCSV(os.Getenv("GEMINI_API_KEYS")),

		AssetHost:         os.Getenv("ASSET_HOST"),
		MaxReferenceBytes: int64(getEnvInt("MAX_REFERENCE_BYTES", 20<<20)),
		MaxStreamBytes:    int64(getEnvInt("MAX_STREAM_BYTES", 32<<20)),
		MaxShootLogBytes:  getEnvInt("MAX_SHOOT_LOG_BYTES", 8<<10),
		ReferenceTimeout:  time.Second * time.Duration(getEnvInt("REFERENCE_TIMEOUT_SECONDS", 30)),
		AttemptTimeout:    time.Second * time.Duration(getEnvInt("ATTEMPT_TIMEOUT_SECONDS", 120)),
		RetryBackoff:      time.Millisecond * time.Duration(getEnvInt("RETRY_BACKOFF_MS", 800)),

		StorageDriver:  getEnv("STORAGE_DRIVER", "s3"),
		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3Region:       getEnv("S3_REGION", "ap-southeast-1"),
		StoragePath:    getEnv("STORAGE_PATH", "./data/assets"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   splitCSV(os.Getenv("ALLOWED_ORIGINS")),
	}

	// Single-key deployments keep working with the old variable name.
	if len(cfg.GeminiAPIKeys) == 0 {
		cfg.GeminiAPIKeys = splitCSV(os.Getenv("GEMINI_API_KEY"))
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
