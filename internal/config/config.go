package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

// Scope selects which settings are mandatory
type Scope int

const (
	// ScopeBot is the long-running userbot; Telegram settings are required
	ScopeBot Scope = iota
	// ScopeCLI is the operator tool; Telegram settings are optional
	ScopeCLI
)

// Load loads configuration from environment variables
// It first attempts to load from .env file, then reads environment variables
func Load(scope Scope) (*models.Config, error) {
	// Try to load .env file (optional, ignore error if not found)
	_ = godotenv.Load()

	r := &reader{}
	config := &models.Config{
		// Telegram settings
		TelegramToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		OperatorChatID:   r.getInt64("OPERATOR_CHAT_ID", 0),
		MonitoredChatIDs: r.getInt64List("MONITORED_CHAT_IDS"),

		// Storage settings
		StorageBackend: models.StorageBackend(strings.ToLower(getEnv("STORAGE_BACKEND", string(models.StorageAuto)))),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		SupabaseURL:    getEnv("SUPABASE_URL", ""),
		SupabaseKey:    getEnv("SUPABASE_KEY", ""),
		StorageTimeout: r.getDuration("STORAGE_TIMEOUT", 10*time.Second),
		AutoMigrate:    r.getBool("AUTO_MIGRATE", false),

		// Classification settings
		TriggersFile:   getEnv("TRIGGERS_FILE", ""),
		RegexThreshold: r.requireFloat("REGEX_THRESHOLD"),

		// LLM settings
		LLMProvider:         models.LLMProvider(strings.ToLower(getEnv("LLM_PROVIDER", string(models.LLMProviderNone)))),
		LLMAPIKey:           getEnv("LLM_API_KEY", ""),
		LLMBaseURL:          getEnv("LLM_BASE_URL", ""),
		LLMModel:            getEnv("LLM_MODEL", ""),
		LLMTimeout:          r.getDuration("LLM_TIMEOUT", 30*time.Second),
		LLMEscalateNoMatch:  r.getBool("LLM_ESCALATE_NO_MATCH", true),
		LLMMinTextLength:    r.getInt("LLM_MIN_TEXT_LENGTH", 20),
		LLMDailyBudgetUSD:   r.getFloat("LLM_DAILY_BUDGET_USD", 0),
		LLMRequestsPerMin:   r.getInt("LLM_REQUESTS_PER_MINUTE", 0),
		LLMInputPricePer1K:  r.getFloat("LLM_INPUT_PRICE_PER_1K", 0.00015),
		LLMOutputPricePer1K: r.getFloat("LLM_OUTPUT_PRICE_PER_1K", 0.0006),
		LLMCacheTTL:         r.getDuration("LLM_CACHE_TTL", 24*time.Hour),
		RedisURL:            getEnv("REDIS_URL", ""),

		// App settings
		Timezone:      getEnv("TIMEZONE", "Europe/Moscow"),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		Environment:   getEnv("ENVIRONMENT", "production"),
		IngestWorkers: r.getInt("INGEST_WORKERS", 4),
		ExportDir:     getEnv("EXPORT_DIR", "exports"),

		// Error alerting
		ErrorAlertThreshold: r.getInt("ERROR_ALERT_THRESHOLD", 10),
		ErrorAlertWindow:    r.getDuration("ERROR_ALERT_WINDOW", time.Hour),

		// Schedules
		DailyReportCron: getEnv("DAILY_REPORT_CRON", "0 9 * * *"),
		ExportCron:      getEnv("EXPORT_CRON", ""),
		ReprocessCron:   getEnv("REPROCESS_CRON", "*/15 * * * *"),
	}

	if config.LLMEnabled() {
		config.LLMUncertainMin = r.requireFloat("LLM_UNCERTAIN_MIN")
		config.LLMAcceptThreshold = r.requireFloat("LLM_ACCEPT_THRESHOLD")
	}

	if err := r.err(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// Validate configuration
	if err := validate(config, scope); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validate checks if all required configuration values are set
func validate(cfg *models.Config, scope Scope) error {
	if scope == ScopeBot {
		if cfg.TelegramToken == "" {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
		}
		if cfg.OperatorChatID == 0 {
			return fmt.Errorf("OPERATOR_CHAT_ID is required")
		}
	}

	switch cfg.StorageBackend {
	case models.StorageAuto:
		if cfg.DatabaseURL == "" && cfg.SupabaseURL == "" {
			return fmt.Errorf("DATABASE_URL or SUPABASE_URL is required")
		}
		if cfg.SupabaseURL != "" && cfg.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_KEY is required when SUPABASE_URL is set")
		}
	case models.StorageMemory:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be one of: auto, memory; got %s", cfg.StorageBackend)
	}

	if cfg.RegexThreshold <= 0 {
		return fmt.Errorf("REGEX_THRESHOLD must be positive, got %v", cfg.RegexThreshold)
	}

	switch cfg.LLMProvider {
	case models.LLMProviderNone:
	case models.LLMProviderOpenAI, models.LLMProviderGemini:
		if cfg.LLMAPIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required for LLM_PROVIDER=%s", cfg.LLMProvider)
		}
		if cfg.LLMUncertainMin < 0 || cfg.LLMUncertainMin > cfg.RegexThreshold {
			return fmt.Errorf("LLM_UNCERTAIN_MIN must be in [0, REGEX_THRESHOLD], got %v", cfg.LLMUncertainMin)
		}
		if cfg.LLMAcceptThreshold < 0 || cfg.LLMAcceptThreshold > 1 {
			return fmt.Errorf("LLM_ACCEPT_THRESHOLD must be in [0, 1], got %v", cfg.LLMAcceptThreshold)
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of: none, openai, gemini; got %s", cfg.LLMProvider)
	}

	// Validate positive values
	if cfg.StorageTimeout <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT must be positive, got %s", cfg.StorageTimeout)
	}
	if cfg.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive, got %s", cfg.LLMTimeout)
	}
	if cfg.IngestWorkers <= 0 {
		return fmt.Errorf("INGEST_WORKERS must be positive, got %d", cfg.IngestWorkers)
	}
	if cfg.ErrorAlertThreshold < 0 {
		return fmt.Errorf("ERROR_ALERT_THRESHOLD must not be negative, got %d", cfg.ErrorAlertThreshold)
	}
	if cfg.ErrorAlertWindow <= 0 {
		return fmt.Errorf("ERROR_ALERT_WINDOW must be positive, got %s", cfg.ErrorAlertWindow)
	}
	if cfg.LLMMinTextLength < 0 {
		return fmt.Errorf("LLM_MIN_TEXT_LENGTH must not be negative, got %d", cfg.LLMMinTextLength)
	}
	if cfg.LLMDailyBudgetUSD < 0 || cfg.LLMRequestsPerMin < 0 || cfg.LLMInputPricePer1K < 0 || cfg.LLMOutputPricePer1K < 0 {
		return fmt.Errorf("LLM budget, rate and prices must not be negative")
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q is invalid: %w", cfg.Timezone, err)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error; got %s", cfg.LogLevel)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for key, spec := range map[string]string{
		"DAILY_REPORT_CRON": cfg.DailyReportCron,
		"EXPORT_CRON":       cfg.ExportCron,
		"REPROCESS_CRON":    cfg.ReprocessCron,
	} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("%s is invalid: %w", key, err)
		}
	}

	return nil
}

// getEnv retrieves environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// reader parses typed variables and remembers the first malformed one
type reader struct {
	first error
}

func (r *reader) fail(key, value string, err error) {
	if r.first == nil {
		r.first = fmt.Errorf("%s=%q is invalid: %w", key, value, err)
	}
}

func (r *reader) err() error { return r.first }

func (r *reader) getInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		r.fail(key, valueStr, err)
		return defaultValue
	}
	return value
}

func (r *reader) getInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		r.fail(key, valueStr, err)
		return defaultValue
	}
	return value
}

// getInt64List parses a comma separated list of ids
func (r *reader) getInt64List(key string) []int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			r.fail(key, valueStr, err)
			return nil
		}
		out = append(out, value)
	}
	return out
}

func (r *reader) getFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		r.fail(key, valueStr, err)
		return defaultValue
	}
	return value
}

// requireFloat fails when the variable is unset; thresholds have no defaults
func (r *reader) requireFloat(key string) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		if r.first == nil {
			r.first = fmt.Errorf("%s is required", key)
		}
		return 0
	}
	return r.getFloat(key, 0)
}

func (r *reader) getBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		r.fail(key, valueStr, err)
		return defaultValue
	}
	return value
}

// getDuration accepts Go durations ("15s") or plain seconds ("15")
func (r *reader) getDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		r.fail(key, valueStr, err)
		return defaultValue
	}
	return value
}
