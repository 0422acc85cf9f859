package common

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Storage   StorageConfig
	Extractor ExtractorConfig
	Analyzer  AnalyzerConfig
	Analysis  AnalysisConfig
	Queue     QueueConfig
	Upload    UploadConfig
	Inbox     InboxConfig
	LogLevel  slog.Level
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	SQLitePath       string // used when DSN is empty
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string
	GRPCAddr        string
	ShutdownTimeout time.Duration
}

// StorageConfig selects the document store backend.
type StorageConfig struct {
	Type      string // "local" | "s3"
	UploadDir string
	S3Bucket  string
	S3Region  string
	S3Prefix  string
}

// ExtractorConfig holds pdftotext/pdftoppm settings.
type ExtractorConfig struct {
	Pdftotext string
	Pdftoppm  string
	DPI       int
	MaxPages  int
}

// AnalyzerConfig holds LLM-related configuration
type AnalyzerConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
	MaxRetries  int
}

// AnalysisConfig drives the orchestrator.
type AnalysisConfig struct {
	DemoMode       bool
	MinTextChars   int
	FallbackDelay  time.Duration
	AdminListLimit int
}

// QueueConfig sizes the background worker pool and the recovery poller.
type QueueConfig struct {
	Workers          int
	Size             int
	ProcessTimeout   time.Duration
	SyncAnalysis     bool
	RecoveryInterval time.Duration
	RecoveryGrace    time.Duration
	StaleAfter       time.Duration
	MaxAttempts      int
}

// UploadConfig bounds accepted uploads.
type UploadConfig struct {
	MaxFileSizeMB int
}

// InboxConfig enables the watched drop directory.
type InboxConfig struct {
	Dir       string
	PatientID int64
	Debounce  time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			SQLitePath:       getEnv("DB_SQLITE_PATH", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8000"),
			GRPCAddr:        getEnv("GRPC_ADDR", ":8080"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Storage: StorageConfig{
			Type:      strings.ToLower(getEnv("STORAGE_TYPE", "local")),
			UploadDir: getEnv("UPLOAD_DIR", "./uploads"),
			S3Bucket:  getEnv("S3_BUCKET_NAME", ""),
			S3Region:  getEnv("AWS_REGION", "us-east-1"),
			S3Prefix:  getEnv("S3_PREFIX", "bills/"),
		},
		Extractor: ExtractorConfig{
			Pdftotext: getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:  getEnv("PDFTOPPM_BIN", "pdftoppm"),
			DPI:       getEnvAsInt("PDF_RENDER_DPI", 150),
			MaxPages:  getEnvAsInt("PDF_MAX_PAGES", 3),
		},
		Analyzer: AnalyzerConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.3),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
			MaxRetries:  getEnvAsInt("OPENAI_MAX_RETRIES", 3),
		},
		Analysis: AnalysisConfig{
			DemoMode:       getEnvAsBool("DEMO_MODE", false),
			MinTextChars:   getEnvAsInt("ANALYSIS_MIN_TEXT_CHARS", 50),
			FallbackDelay:  getEnvAsDuration("FALLBACK_DELAY", 0),
			AdminListLimit: getEnvAsInt("ADMIN_LIST_LIMIT", 100),
		},
		Queue: QueueConfig{
			Workers:          getEnvAsInt("QUEUE_WORKERS", 4),
			Size:             getEnvAsInt("QUEUE_SIZE", 256),
			ProcessTimeout:   getEnvAsDuration("QUEUE_PROCESS_TIMEOUT", 3*time.Minute),
			SyncAnalysis:     getEnvAsBool("SYNC_ANALYSIS", false),
			RecoveryInterval: getEnvAsDuration("RECOVERY_INTERVAL", time.Minute),
			RecoveryGrace:    getEnvAsDuration("RECOVERY_GRACE", 2*time.Minute),
			StaleAfter:       getEnvAsDuration("RECOVERY_STALE_AFTER", 10*time.Minute),
			MaxAttempts:      getEnvAsInt("RECOVERY_MAX_ATTEMPTS", 3),
		},
		Upload: UploadConfig{
			MaxFileSizeMB: getEnvAsInt("MAX_FILE_SIZE_MB", 10),
		},
		Inbox: InboxConfig{
			Dir:       getEnv("INBOX_DIR", ""),
			PatientID: getEnvAsInt64("INBOX_PATIENT_ID", 0),
			Debounce:  getEnvAsDuration("INBOX_DEBOUNCE", 500*time.Millisecond),
		},
		LogLevel: getEnvAsLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// AnalyzerEnabled reports whether the AI path should be attempted.
func (c *Config) AnalyzerEnabled() bool {
	return c.Analyzer.APIKey != "" && !c.Analysis.DemoMode
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsLevel(key string, defaultValue slog.Level) slog.Level {
	if value := os.Getenv(key); value != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(value)); err == nil {
			return lvl
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration. requireDB is false for
// commands that run against an in-memory store.
func (c *Config) Validate(requireDB bool) error {
	if requireDB && c.Database.DSN == "" && c.Database.SQLitePath == "" {
		return NewAppError(CodeConfig, "DB_URL or DB_SQLITE_PATH is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError(CodeConfig, "HTTP_ADDR is required", ErrInvalidInput)
	}
	switch c.Storage.Type {
	case "local":
		if c.Storage.UploadDir == "" {
			return NewAppError(CodeConfig, "UPLOAD_DIR is required for local storage", ErrInvalidInput)
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return NewAppError(CodeConfig, "S3_BUCKET_NAME is required for s3 storage", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfig, "STORAGE_TYPE must be local or s3", ErrInvalidInput)
	}
	if c.Analysis.MinTextChars <= 0 {
		return NewAppError(CodeConfig, "ANALYSIS_MIN_TEXT_CHARS must be positive", ErrInvalidInput)
	}
	if c.Upload.MaxFileSizeMB <= 0 {
		return NewAppError(CodeConfig, "MAX_FILE_SIZE_MB must be positive", ErrInvalidInput)
	}
	if c.Inbox.Dir != "" && c.Inbox.PatientID <= 0 {
		return NewAppError(CodeConfig, "INBOX_PATIENT_ID is required when INBOX_DIR is set", ErrInvalidInput)
	}
	return nil
}
