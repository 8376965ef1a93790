package models

import "time"

// ChatKind represents the kind of a monitored conversation
type ChatKind string

const (
	ChatKindDirect  ChatKind = "direct"
	ChatKindGroup   ChatKind = "group"
	ChatKindChannel ChatKind = "channel"
)

// Valid reports whether k is one of the known chat kinds
func (k ChatKind) Valid() bool {
	switch k {
	case ChatKindDirect, ChatKindGroup, ChatKindChannel:
		return true
	}
	return false
}

// DetectionMethod represents how an order was detected
type DetectionMethod string

const (
	DetectedByRegex DetectionMethod = "regex"
	DetectedByLLM   DetectionMethod = "llm"
)

// String returns string representation of DetectionMethod
func (m DetectionMethod) String() string {
	return string(m)
}

// FeedbackType is the operator verdict attached to an order
type FeedbackType string

const (
	FeedbackAccept FeedbackType = "accept"
	FeedbackReject FeedbackType = "reject"
)

// Valid reports whether f is a known feedback type
func (f FeedbackType) Valid() bool {
	return f == FeedbackAccept || f == FeedbackReject
}

// StorageBackend selects the persistence wiring
type StorageBackend string

const (
	// StorageAuto uses the direct store when DATABASE_URL is set and the REST store otherwise
	StorageAuto StorageBackend = "auto"
	// StorageMemory keeps everything in process memory (dry runs, local testing)
	StorageMemory StorageBackend = "memory"
)

// LLMProvider selects the second-tier classifier implementation
type LLMProvider string

const (
	LLMProviderNone   LLMProvider = "none"
	LLMProviderOpenAI LLMProvider = "openai"
	LLMProviderGemini LLMProvider = "gemini"
)

// Config represents application configuration
type Config struct {
	// Telegram settings
	TelegramToken    string
	OperatorChatID   int64
	MonitoredChatIDs []int64 // Empty means every chat the bot can see

	// Storage settings
	StorageBackend StorageBackend
	DatabaseURL    string // Direct connection, optional
	SupabaseURL    string
	SupabaseKey    string
	StorageTimeout time.Duration
	AutoMigrate    bool

	// Classification settings
	TriggersFile   string
	RegexThreshold float64

	// LLM settings
	LLMProvider         LLMProvider
	LLMAPIKey           string
	LLMBaseURL          string
	LLMModel            string
	LLMTimeout          time.Duration
	LLMUncertainMin     float64
	LLMAcceptThreshold  float64
	LLMEscalateNoMatch  bool
	LLMMinTextLength    int
	LLMDailyBudgetUSD   float64
	LLMRequestsPerMin   int
	LLMInputPricePer1K  float64
	LLMOutputPricePer1K float64
	LLMCacheTTL         time.Duration
	RedisURL            string

	// App settings
	Timezone      string
	LogLevel      string
	Environment   string
	IngestWorkers int
	ExportDir     string

	// Error alerting: ErrorAlertThreshold error logs within ErrorAlertWindow
	// alert the operator; 0 disables alerts
	ErrorAlertThreshold int
	ErrorAlertWindow    time.Duration

	// Schedules (cron expressions in Timezone)
	DailyReportCron string
	ExportCron      string
	ReprocessCron   string
}

// LLMEnabled reports whether a second-tier classifier is configured
func (c *Config) LLMEnabled() bool {
	return c.LLMProvider != "" && c.LLMProvider != LLMProviderNone
}

// IsMonitoredChat checks if the given chat ID should be ingested
func (c *Config) IsMonitoredChat(chatID int64) bool {
	if len(c.MonitoredChatIDs) == 0 {
		return true
	}
	for _, id := range c.MonitoredChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}
