package models

import "time"

// Chat represents a monitored conversation or channel
type Chat struct {
	ID            int64      `json:"id,omitempty" gorm:"primaryKey"`
	ChatID        string     `json:"chat_id" gorm:"column:chat_id;size:50;not null;uniqueIndex"`
	ChatName      string     `json:"chat_name" gorm:"column:chat_name;size:255;not null"`
	ChatType      ChatKind   `json:"chat_type" gorm:"column:chat_type;size:20;not null"`
	IsActive      bool       `json:"is_active" gorm:"column:is_active;not null"`
	CreatedAt     time.Time  `json:"created_at" gorm:"column:created_at;not null"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty" gorm:"column:last_message_at"`
}

// TableName implements gorm's tabler
func (Chat) TableName() string { return "chats" }

// Message represents a single observed chat message.
// (MessageID, ChatID) is the dedup key.
type Message struct {
	ID         int64     `json:"id,omitempty" gorm:"primaryKey"`
	MessageID  string    `json:"message_id" gorm:"column:message_id;size:50;not null;uniqueIndex:uq_messages_id_chat"`
	ChatID     string    `json:"chat_id" gorm:"column:chat_id;size:50;not null;uniqueIndex:uq_messages_id_chat;index"`
	AuthorID   string    `json:"author_id" gorm:"column:author_id;size:50;not null;index"`
	AuthorName *string   `json:"author_name" gorm:"column:author_name;size:255"`
	Text       string    `json:"text" gorm:"column:text;type:text;not null"`
	Timestamp  time.Time `json:"timestamp" gorm:"column:timestamp;not null;index"`
	Processed  bool      `json:"processed" gorm:"column:processed;not null;index"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at;not null"`
}

// TableName implements gorm's tabler
func (Message) TableName() string { return "messages" }

// Order is a message the classifier judged to be a job posting
type Order struct {
	ID             int64           `json:"id,omitempty" gorm:"primaryKey"`
	MessageID      string          `json:"message_id" gorm:"column:message_id;size:50;not null;uniqueIndex:uq_orders_message"`
	ChatID         string          `json:"chat_id" gorm:"column:chat_id;size:50;not null;uniqueIndex:uq_orders_message;index"`
	AuthorID       string          `json:"author_id" gorm:"column:author_id;size:50;not null"`
	AuthorName     *string         `json:"author_name" gorm:"column:author_name;size:255"`
	Text           string          `json:"text" gorm:"column:text;type:text;not null"`
	Category       string          `json:"category" gorm:"column:category;size:50;not null;index"`
	RelevanceScore float64         `json:"relevance_score" gorm:"column:relevance_score;not null;check:chk_orders_relevance,relevance_score >= 0 AND relevance_score <= 1"`
	DetectedBy     DetectionMethod `json:"detected_by" gorm:"column:detected_by;size:20;not null"`
	TelegramLink   *string         `json:"telegram_link" gorm:"column:telegram_link;size:500"`
	Exported       bool            `json:"exported" gorm:"column:exported;not null;index"`
	Feedback       *FeedbackType   `json:"feedback" gorm:"column:feedback;size:20"`
	Notes          *string         `json:"notes" gorm:"column:notes;type:text"`
	CreatedAt      time.Time       `json:"created_at" gorm:"column:created_at;not null;index"`
}

// TableName implements gorm's tabler
func (Order) TableName() string { return "userbot_orders" }

// Feedback is an audit row of an operator verdict
type Feedback struct {
	ID           int64        `json:"id,omitempty" gorm:"primaryKey"`
	OrderID      int64        `json:"order_id" gorm:"column:order_id;not null;index"`
	FeedbackType FeedbackType `json:"feedback_type" gorm:"column:feedback_type;size:20;not null"`
	Reason       *string      `json:"reason" gorm:"column:reason;size:500"`
	CreatedAt    time.Time    `json:"created_at" gorm:"column:created_at;not null"`
}

// TableName implements gorm's tabler
func (Feedback) TableName() string { return "feedback" }

// Stat is the daily aggregate, one row per date (YYYY-MM-DD)
type Stat struct {
	ID                 int64     `json:"id,omitempty" gorm:"primaryKey"`
	Date               string    `json:"date" gorm:"column:date;size:10;not null;uniqueIndex"`
	TotalMessages      int64     `json:"total_messages" gorm:"column:total_messages;not null"`
	DetectedOrders     int64     `json:"detected_orders" gorm:"column:detected_orders;not null"`
	RegexDetections    int64     `json:"regex_detections" gorm:"column:regex_detections;not null"`
	LLMDetections      int64     `json:"llm_detections" gorm:"column:llm_detections;not null"`
	LLMRequests        int64     `json:"llm_requests" gorm:"column:llm_requests;not null"`
	LLMTokensUsed      int64     `json:"llm_tokens_used" gorm:"column:llm_tokens_used;not null"`
	LLMCost            float64   `json:"llm_cost" gorm:"column:llm_cost;not null"`
	AvgResponseTimeMs  int64     `json:"avg_response_time_ms" gorm:"column:avg_response_time_ms;not null"`
	FalsePositiveCount int64     `json:"false_positive_count" gorm:"column:false_positive_count;not null"`
	CreatedAt          time.Time `json:"created_at" gorm:"column:created_at;not null"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"column:updated_at;not null"`
}

// TableName implements gorm's tabler
func (Stat) TableName() string { return "stats" }

// ChatStat is the per-chat-per-day rollup, unique on (chat, date)
type ChatStat struct {
	ID              int64     `json:"id,omitempty" gorm:"primaryKey"`
	ChatID          string    `json:"chat_id" gorm:"column:chat_id;size:50;not null;uniqueIndex:uq_chat_stats_date"`
	Date            string    `json:"date" gorm:"column:date;size:10;not null;uniqueIndex:uq_chat_stats_date;index"`
	MessagesCount   int64     `json:"messages_count" gorm:"column:messages_count;not null"`
	OrdersCount     int64     `json:"orders_count" gorm:"column:orders_count;not null"`
	OrderPercentage float64   `json:"order_percentage" gorm:"column:order_percentage;not null"`
	CreatedAt       time.Time `json:"created_at" gorm:"column:created_at;not null"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"column:updated_at;not null"`
}

// TableName implements gorm's tabler
func (ChatStat) TableName() string { return "chat_stats" }

// StatDelta is an additive increment applied to one Stat row.
// ResponseTimeMs is the summed latency of LLMRequests calls.
type StatDelta struct {
	Messages       int64
	Orders         int64
	Regex          int64
	LLM            int64
	LLMRequests    int64
	Tokens         int64
	Cost           float64
	ResponseTimeMs int64
	FalsePositives int64
}

// IsZero reports whether the delta changes nothing
func (d StatDelta) IsZero() bool {
	return d == StatDelta{}
}

// AvgResponseTimeMs returns the mean latency carried by the delta
func (d StatDelta) AvgResponseTimeMs() int64 {
	if d.LLMRequests <= 0 {
		return 0
	}
	return d.ResponseTimeMs / d.LLMRequests
}

// ChatStatDelta is an additive increment applied to one ChatStat row
type ChatStatDelta struct {
	Messages int64
	Orders   int64
}

// OrderPercentage returns orders/messages as a percentage, 0 when there are no messages
func OrderPercentage(orders, messages int64) float64 {
	if messages <= 0 {
		return 0
	}
	return float64(orders) * 100 / float64(messages)
}

// OrderQuery filters order listings on the read side
type OrderQuery struct {
	Category  string
	Since     time.Time // zero means unbounded
	Until     time.Time // zero means unbounded, exclusive
	Exported  *bool
	Feedback  *FeedbackType
	Limit     int
	Ascending bool // default newest first
}

// InboundMessage is one event of the at-least-once message feed
type InboundMessage struct {
	ExternalMessageID string
	ChatID            string
	ChatName          string
	ChatKind          ChatKind
	ChatUsername      string // Public username, empty for private chats
	AuthorID          string
	AuthorName        *string
	Text              string
	Timestamp         time.Time
}
