package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Jobs   JobsConfig
	Batch  BatchConfig
	OCR    OCRConfig
	Google GoogleConfig
}

// JobsConfig holds job-store-related configuration
type JobsConfig struct {
	DataDir        string
	RetentionHours int
}

// BatchConfig holds batch-orchestration configuration
type BatchConfig struct {
	MaxConcurrentRequests int
	SpreadsheetBatchSize  int
	MaxRetries            int
	RetryDelay            time.Duration
}

// OCRConfig holds document-extraction configuration
type OCRConfig struct {
	Pdftotext string
	Pdftoppm  string
	Tesseract string
	Lang      string
	DPI       int
	MaxPages  int
	Timeout   time.Duration
}

// GoogleConfig holds Drive/Sheets OAuth configuration
type GoogleConfig struct {
	ClientID       string
	ClientSecret   string
	TokenCachePath string
	AuthTimeout    time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Jobs: JobsConfig{
			DataDir:        getEnv("JOBS_DATA_DIR", defaultDataDir()),
			RetentionHours: getEnvAsInt("JOB_RETENTION_HOURS", 24),
		},
		Batch: BatchConfig{
			MaxConcurrentRequests: getEnvAsInt("MAX_CONCURRENT_REQUESTS", 10),
			SpreadsheetBatchSize:  getEnvAsInt("SPREADSHEET_BATCH_SIZE", 100),
			MaxRetries:            getEnvAsInt("MAX_RETRIES", 3),
			RetryDelay:            getEnvAsDuration("RETRY_DELAY", time.Second),
		},
		OCR: OCRConfig{
			Pdftotext: getEnv("PDFTOTEXT_PATH", "pdftotext"),
			Pdftoppm:  getEnv("PDFTOPPM_PATH", "pdftoppm"),
			Tesseract: getEnv("TESSERACT_PATH", "tesseract"),
			Lang:      getEnv("TESSERACT_LANG", "eng"),
			DPI:       getEnvAsInt("OCR_DPI", 300),
			MaxPages:  getEnvAsInt("OCR_MAX_PAGES", 0),
			Timeout:   getEnvAsDuration("OCR_TIMEOUT", 2*time.Minute),
		},
		Google: GoogleConfig{
			ClientID:       getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret:   getEnv("GOOGLE_CLIENT_SECRET", ""),
			TokenCachePath: getEnv("GOOGLE_TOKEN_CACHE", defaultTokenCachePath()),
			AuthTimeout:    getEnvAsDuration("GOOGLE_AUTH_TIMEOUT", 5*time.Minute),
		},
	}
}

// Sanitized clamps values that must stay within safe operating bounds.
func (c *Config) Sanitized() *Config {
	if c.Batch.MaxConcurrentRequests < 1 {
		c.Batch.MaxConcurrentRequests = 1
	}
	if c.Batch.SpreadsheetBatchSize < 1 {
		c.Batch.SpreadsheetBatchSize = 1
	}
	if c.Batch.MaxRetries < 1 {
		c.Batch.MaxRetries = 1
	}
	if c.Batch.RetryDelay < 100*time.Millisecond {
		c.Batch.RetryDelay = 100 * time.Millisecond
	}
	if c.Jobs.RetentionHours < 1 {
		c.Jobs.RetentionHours = 1
	}
	return c
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Jobs.DataDir == "" {
		return NewAppError("CONFIG_ERROR", "JOBS_DATA_DIR is required", ErrInvalidInput)
	}
	if c.Google.ClientID == "" {
		return NewAppError("CONFIG_ERROR", "GOOGLE_CLIENT_ID is required", ErrInvalidInput)
	}
	return nil
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.resume-batch"
	}
	return "./.resume-batch"
}

func defaultTokenCachePath() string {
	return defaultDataDir() + "/token.json"
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
