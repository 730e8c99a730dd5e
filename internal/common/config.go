package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Storage  StorageConfig
	Render   RenderConfig
	LLM      LLMConfig
	Worker   WorkerConfig
	Server   ServerConfig
	Log      LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// StorageConfig selects and configures the object store holding uploads and artifacts.
type StorageConfig struct {
	Backend   string // "minio" or "fs"
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Dir       string // root directory for the fs backend
}

// RenderConfig holds PDF rendering configuration
type RenderConfig struct {
	DPI           int
	MaxPages      int
	MaxFileSizeMB int
	Pdftoppm      string
	Tesseract     string
	OCRFallback   bool
}

// LLMConfig holds reasoning-model configuration
type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	PassTimeout time.Duration
}

// WorkerConfig holds polling and per-job limits
type WorkerConfig struct {
	PollInterval  time.Duration
	JobTimeout    time.Duration
	FallbackPages int
	WorkspaceDir  string
	Concurrency   int
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string
	GRPCAddr string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory is read first when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(getEnv("STORAGE_BACKEND", "minio")),
			Endpoint:  getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("STORAGE_ACCESS_KEY", ""),
			SecretKey: getEnv("STORAGE_SECRET_KEY", ""),
			UseSSL:    getEnvAsBool("STORAGE_USE_SSL", false),
			Bucket:    getEnv("STORAGE_BUCKET", "plans"),
			Dir:       getEnv("STORAGE_DIR", "./data/objects"),
		},
		Render: RenderConfig{
			DPI:           getEnvAsInt("PDF_DPI", 300),
			MaxPages:      getEnvAsInt("MAX_PAGES", 50),
			MaxFileSizeMB: getEnvAsInt("MAX_FILE_SIZE_MB", 50),
			Pdftoppm:      getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			OCRFallback:   getEnvAsBool("RENDER_OCR_FALLBACK", false),
		},
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Temperature: getEnvAsFloat("OPENAI_TEMPERATURE", 0.1),
			MaxTokens:   getEnvAsInt("OPENAI_MAX_TOKENS", 4000),
			PassTimeout: getEnvAsDuration("LLM_PASS_TIMEOUT", 3*time.Minute),
		},
		Worker: WorkerConfig{
			PollInterval:  getEnvAsDuration("POLL_INTERVAL", 5*time.Second),
			JobTimeout:    getEnvAsDuration("WORKER_JOB_TIMEOUT", 15*time.Minute),
			FallbackPages: getEnvAsInt("FALLBACK_PAGES", 10),
			WorkspaceDir:  getEnv("WORKSPACE_DIR", ""),
			Concurrency:   getEnvAsInt("WORKER_CONCURRENCY", 1),
		},
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8081"),
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// MaxFileSizeBytes is the download cap derived from MAX_FILE_SIZE_MB.
func (r RenderConfig) MaxFileSizeBytes() int64 {
	return int64(r.MaxFileSizeMB) * 1024 * 1024
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("5s") and bare integers, read as seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// Validate checks the settings every process needs. Callers that do not talk to
// the model (planctl status, dbhealth) use ValidateStore instead.
func (c *Config) Validate() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}
	v := NewValidator().
		Field("OPENAI_API_KEY", c.LLM.APIKey, Required).
		Field("OPENAI_MODEL", c.LLM.Model, Required).
		Field("PDF_DPI", c.Render.DPI, Positive).
		Field("MAX_PAGES", c.Render.MaxPages, Positive).
		Field("MAX_FILE_SIZE_MB", c.Render.MaxFileSizeMB, Positive).
		Field("OPENAI_MAX_TOKENS", c.LLM.MaxTokens, Positive).
		Field("LLM_PASS_TIMEOUT", c.LLM.PassTimeout, Positive).
		Field("POLL_INTERVAL", c.Worker.PollInterval, Positive).
		Field("WORKER_JOB_TIMEOUT", c.Worker.JobTimeout, Positive).
		Field("FALLBACK_PAGES", c.Worker.FallbackPages, Positive).
		Field("WORKER_CONCURRENCY", c.Worker.Concurrency, Positive)
	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}

// ValidateStore checks database and object-store settings only.
func (c *Config) ValidateStore() error {
	v := NewValidator().
		Field("DB_URL", c.Database.DSN, Required).
		Field("STORAGE_BACKEND", c.Storage.Backend, OneOf("minio", "fs")).
		Field("STORAGE_BUCKET", c.Storage.Bucket, Required)
	if c.Storage.Backend == "minio" {
		v.Field("STORAGE_ENDPOINT", c.Storage.Endpoint, Required)
	} else {
		v.Field("STORAGE_DIR", c.Storage.Dir, Required)
	}
	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
