package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Host string
	Port string

	// Database settings
	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	// Logging settings
	LogLevel  string
	LogFormat string

	// Cache settings
	CacheSize int
	CacheTTL  time.Duration

	// Identifier settings
	StateCode     string
	DistrictsFile string
	Timezone      *time.Location

	// Detail source (eCourts CNR search) settings
	ECourtsURL     string
	ScraperTimeout time.Duration
	HeadlessMode   bool
	UserAgent      string
	BrowserPath    string

	// Retrieval settings
	BlobBackend         string
	BlobPath            string
	FetchAPIURL         string
	FetchAPIKey         string
	AllowedDomains      []string
	MinDocumentBytes    int
	MaxRetrievalRetries int
	RetrievalTimeout    time.Duration

	// Extraction settings
	OCRAPIURL string
	OCRAPIKey string
	OCRModel  string

	// Classification settings
	LLMAPIURL           string
	LLMAPIKey           string
	LLMModel            string
	ClassifyMaxChars    int
	ClassifyMaxAttempts int
	ClassifyBaseDelay   time.Duration

	// Monitoring settings
	MonitorWindowDays    int
	MonitorInterval      time.Duration
	MonitorItemDelay     time.Duration
	PipelineItemDelay    time.Duration
	SchedulerLockTimeout time.Duration

	// Notification settings
	EmailAPIURL string
	EmailAPIKey string
	EmailFrom   string
	NotifyEmail string

	// API settings
	APIRateLimit    int
	APIRateWindow   time.Duration
	HeavyRateLimit  int
	HeavyRateWindow time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not an error if .env doesn't exist
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Host:           getEnv("HOST", "0.0.0.0"),
		Port:           getEnv("PORT", "8080"),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabasePath:   getEnv("DATABASE_PATH", "./data/court_cases.db"),
		DatabaseDSN:    getEnv("DATABASE_DSN", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		StateCode:      strings.ToUpper(getEnv("STATE_CODE", "DL")),
		DistrictsFile:  getEnv("DISTRICTS_FILE", ""),
		ECourtsURL:     getEnv("ECOURTS_URL", "https://services.ecourts.gov.in/ecourtindia_v6/"),
		UserAgent:      getEnv("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"),
		BrowserPath:    getEnv("ROD_BROWSER_PATH", ""),
		BlobBackend:    getEnv("BLOB_BACKEND", "fs"),
		BlobPath:       getEnv("BLOB_PATH", "./data/blobs"),
		FetchAPIURL:    getEnv("FETCH_API_URL", ""),
		FetchAPIKey:    getEnv("FETCH_API_KEY", ""),
		OCRAPIURL:      getEnv("OCR_API_URL", ""),
		OCRAPIKey:      getEnv("OCR_API_KEY", ""),
		OCRModel:       getEnv("OCR_MODEL", "mistral-ocr-latest"),
		LLMAPIURL:      getEnv("LLM_API_URL", "https://api.openai.com/v1/chat/completions"),
		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		EmailAPIURL:    getEnv("EMAIL_API_URL", "https://api.resend.com/emails"),
		EmailAPIKey:    getEnv("EMAIL_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", "alerts@localhost"),
		NotifyEmail:    getEnv("NOTIFY_EMAIL", ""),
		AllowedDomains: splitList(getEnv("ALLOWED_SOURCE_DOMAINS", "dcourts.gov.in,ecourts.gov.in")),
	}

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "Asia/Kolkata"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Timezone = loc

	// Parse integer values
	cfg.CacheSize, err = strconv.Atoi(getEnv("CACHE_SIZE", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_SIZE: %w", err)
	}

	if cfg.CacheTTL, err = minutes("CACHE_TTL", "30"); err != nil {
		return nil, err
	}

	if cfg.ScraperTimeout, err = seconds("SCRAPER_TIMEOUT", "60"); err != nil {
		return nil, err
	}

	cfg.HeadlessMode = getEnv("HEADLESS_MODE", "true") == "true"

	cfg.MinDocumentBytes, err = strconv.Atoi(getEnv("MIN_DOCUMENT_BYTES", "1024"))
	if err != nil {
		return nil, fmt.Errorf("invalid MIN_DOCUMENT_BYTES: %w", err)
	}

	cfg.MaxRetrievalRetries, err = strconv.Atoi(getEnv("MAX_RETRIEVAL_RETRIES", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_RETRIEVAL_RETRIES: %w", err)
	}

	if cfg.RetrievalTimeout, err = seconds("RETRIEVAL_TIMEOUT", "60"); err != nil {
		return nil, err
	}

	cfg.ClassifyMaxChars, err = strconv.Atoi(getEnv("CLASSIFY_MAX_CHARS", "30000"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLASSIFY_MAX_CHARS: %w", err)
	}

	cfg.ClassifyMaxAttempts, err = strconv.Atoi(getEnv("CLASSIFY_MAX_ATTEMPTS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLASSIFY_MAX_ATTEMPTS: %w", err)
	}

	if cfg.ClassifyBaseDelay, err = seconds("CLASSIFY_BASE_DELAY", "2"); err != nil {
		return nil, err
	}

	cfg.MonitorWindowDays, err = strconv.Atoi(getEnv("MONITOR_WINDOW_DAYS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid MONITOR_WINDOW_DAYS: %w", err)
	}

	if cfg.MonitorInterval, err = minutes("MONITOR_INTERVAL", "360"); err != nil {
		return nil, err
	}

	if cfg.MonitorItemDelay, err = seconds("MONITOR_ITEM_DELAY", "5"); err != nil {
		return nil, err
	}

	if cfg.PipelineItemDelay, err = seconds("PIPELINE_ITEM_DELAY", "2"); err != nil {
		return nil, err
	}

	if cfg.SchedulerLockTimeout, err = minutes("SCHEDULER_LOCK_TIMEOUT", "30"); err != nil {
		return nil, err
	}

	cfg.APIRateLimit, err = strconv.Atoi(getEnv("API_RATE_LIMIT", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid API_RATE_LIMIT: %w", err)
	}

	if cfg.APIRateWindow, err = seconds("API_RATE_WINDOW", "60"); err != nil {
		return nil, err
	}

	cfg.HeavyRateLimit, err = strconv.Atoi(getEnv("HEAVY_RATE_LIMIT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid HEAVY_RATE_LIMIT: %w", err)
	}

	if cfg.HeavyRateWindow, err = seconds("HEAVY_RATE_WINDOW", "60"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that individual parsers cannot.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER: %s", c.DatabaseDriver)
	}

	switch c.BlobBackend {
	case "fs", "badger":
	default:
		return fmt.Errorf("unsupported BLOB_BACKEND: %s", c.BlobBackend)
	}

	if len(c.StateCode) != 2 {
		return fmt.Errorf("STATE_CODE must be two letters")
	}
	if c.MonitorWindowDays < 1 {
		return fmt.Errorf("MONITOR_WINDOW_DAYS must be positive")
	}
	if c.MaxRetrievalRetries < 1 {
		return fmt.Errorf("MAX_RETRIEVAL_RETRIES must be positive")
	}
	if c.ClassifyMaxAttempts < 1 {
		return fmt.Errorf("CLASSIFY_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func seconds(key, defaultValue string) (time.Duration, error) {
	n, err := strconv.Atoi(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(n) * time.Second, nil
}

func minutes(key, defaultValue string) (time.Duration, error) {
	n, err := strconv.Atoi(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(n) * time.Minute, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
