package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           int
	Password       string
	ViewerPassword string

	DatabasePath       string
	UploadDirectory    string
	MaxUploadMB        int64
	SpoolTTL           time.Duration // Upload spool entries older than this are swept
	SpoolSweepSchedule string        // cron spec for the spool sweep
	LogDirectory       string
	LogLevel           string

	ProcessingWorkers int // Images extracted in parallel during a batch import

	ImagingBackend string // "opencv" or "none"
	OCREngine      string // "gosseract" or "cli"
	TesseractPath  string
	TessdataPrefix string
	OCRLanguage    string

	MinConfidence      int           // Percent, 0-100
	FallbackDrop       int           // Percentage points removed for the fallback pass
	RecognitionTimeout time.Duration // Per recognition call
	EarlyStop          int           // Stop after this many distinct codes (0 disables)
	Schedule           string        // "default" or "exhaustive"

	CodePrefixes []string
	TargetHeight int
	MaxDimension int
}

// DefaultPassword is the admin password used when AUTH_PASSWORD is unset.
const DefaultPassword = "admin"

// Load reads configuration from the environment, honouring a .env file in
// the working directory when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:               getEnvAsInt("PORT", 8080),
		Password:           getEnv("AUTH_PASSWORD", DefaultPassword),
		ViewerPassword:     getEnv("AUTH_VIEWER_PASSWORD", ""),
		DatabasePath:       getEnv("DB_PATH", filepath.Join(".", "data", "codes.db")),
		UploadDirectory:    getEnv("UPLOAD_DIR", filepath.Join(".", "data", "uploads")),
		MaxUploadMB:        getEnvAsInt64("UPLOAD_MAX_MB", 64),
		SpoolTTL:           time.Duration(getEnvAsInt("SPOOL_TTL_MINUTES", 60)) * time.Minute,
		SpoolSweepSchedule: getEnv("SPOOL_SWEEP_SCHEDULE", "@every 10m"),
		LogDirectory:       getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		ProcessingWorkers:  getEnvAsInt("PROCESSING_WORKERS", 3),
		ImagingBackend:     getEnv("IMAGING_BACKEND", "opencv"),
		OCREngine:          getEnv("OCR_ENGINE", "gosseract"),
		TesseractPath:      getEnv("TESSERACT_PATH", "tesseract"),
		TessdataPrefix:     getEnv("TESSDATA_PREFIX", ""),
		OCRLanguage:        getEnv("OCR_LANGUAGE", "eng"),
		MinConfidence:      getEnvAsInt("OCR_MIN_CONFIDENCE", 60),
		FallbackDrop:       getEnvAsInt("OCR_FALLBACK_DROP", 20),
		RecognitionTimeout: time.Duration(getEnvAsInt("OCR_TIMEOUT", 30)) * time.Second,
		EarlyStop:          getEnvAsInt("EXTRACT_EARLY_STOP", 3),
		Schedule:           getEnv("EXTRACT_SCHEDULE", "default"),
		CodePrefixes:       getEnvAsList("CODE_PREFIXES", []string{"CQ", "TY"}),
		TargetHeight:       getEnvAsInt("TARGET_HEIGHT", 300),
		MaxDimension:       getEnvAsInt("MAX_DIMENSION", 4000),
	}
}

// UsesDefaultPassword reports whether the admin password was left at its
// built-in value.
func (c *Config) UsesDefaultPassword() bool {
	return c.Password == DefaultPassword
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
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
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
