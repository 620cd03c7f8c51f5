package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Image generation API
	ImageGenAPIKey      string
	ImageGenAPIBaseURL  string
	ImageGenCallTimeout time.Duration

	// Generation pipeline
	RetryMaxAttempts          int
	RetryBaseDelay            time.Duration
	RetryMaxDelay             time.Duration
	PipelineDeadline          time.Duration
	MaxParallelThemes         int
	StaleGenerationAfter      time.Duration
	StaleSweepSchedule        string
	ThemesFile                string
	PreviewWidth              int
	AutoApproveGeneratedImage bool

	// Supabase
	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseJWTSecret  string
	PublicBucket       string
	PrivateBucket      string
	SignedURLTTL       time.Duration

	// Payments webhook
	PaymentWebhookToken string

	// Database
	DatabaseURL string

	// Redis
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	GenerationStream string
	WorkerGroup      string
	WorkerName       string
	JobClaimInterval time.Duration

	// Server
	Port           string
	Environment    string
	BaseURL        string
	AllowedOrigins []string
}

// Load reads .env.<GO_ENV> (falling back to .env) and then the process environment.
func Load() (*Config, error) {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}
	if err := godotenv.Load(fmt.Sprintf(".env.%s", env)); err != nil {
		// Deployed environments set variables directly, so a missing .env is fine.
		_ = godotenv.Load()
	}

	hostname, _ := os.Hostname()

	cfg := &Config{
		ImageGenAPIKey:      getEnv("IMAGEGEN_API_KEY", ""),
		ImageGenAPIBaseURL:  getEnv("IMAGEGEN_API_BASE_URL", "https://api.portrait-gen.example.com/v1/"),
		ImageGenCallTimeout: getDuration("IMAGEGEN_CALL_TIMEOUT", 90*time.Second),

		RetryMaxAttempts:          getInt("GENERATION_RETRY_ATTEMPTS", 3),
		RetryBaseDelay:            getDuration("GENERATION_RETRY_BASE_DELAY", time.Second),
		RetryMaxDelay:             getDuration("GENERATION_RETRY_MAX_DELAY", 8*time.Second),
		PipelineDeadline:          getDuration("GENERATION_PIPELINE_DEADLINE", 15*time.Minute),
		MaxParallelThemes:         getInt("GENERATION_MAX_PARALLEL_THEMES", 4),
		StaleGenerationAfter:      getDuration("GENERATION_STALE_AFTER", 30*time.Minute),
		StaleSweepSchedule:        getEnv("STALE_SWEEP_SCHEDULE", "0 */5 * * * *"),
		ThemesFile:                getEnv("THEMES_FILE", ""),
		PreviewWidth:              getInt("PREVIEW_WIDTH", 1024),
		AutoApproveGeneratedImage: getBool("GENERATION_AUTO_APPROVE", false),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseJWTSecret:  getEnv("SUPABASE_JWT_SECRET", ""),
		PublicBucket:       getEnv("SUPABASE_PUBLIC_BUCKET", "portrait-previews"),
		PrivateBucket:      getEnv("SUPABASE_PRIVATE_BUCKET", "portrait-originals"),
		SignedURLTTL:       getDuration("SIGNED_URL_TTL", 15*time.Minute),

		PaymentWebhookToken: getEnv("PAYMENT_WEBHOOK_TOKEN", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getInt("REDIS_DB", 0),
		GenerationStream: getEnv("GENERATION_STREAM", "portraits:generate"),
		WorkerGroup:      getEnv("WORKER_GROUP", "portrait-workers"),
		WorkerName:       getEnv("WORKER_NAME", hostname),
		JobClaimInterval: getDuration("JOB_CLAIM_INTERVAL", 20*time.Minute),

		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", env),
		BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		AllowedOrigins: getList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ImageGenAPIKey == "" {
		return fmt.Errorf("IMAGEGEN_API_KEY is required")
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	if c.SupabaseJWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("GENERATION_RETRY_ATTEMPTS must be at least 1")
	}
	if c.MaxParallelThemes < 1 {
		return fmt.Errorf("GENERATION_MAX_PARALLEL_THEMES must be at least 1")
	}
	if c.IsProduction() && c.PaymentWebhookToken == "" {
		return fmt.Errorf("PAYMENT_WEBHOOK_TOKEN is required in production")
	}
	if c.PipelineDeadline <= 0 {
		return fmt.Errorf("GENERATION_PIPELINE_DEADLINE must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
