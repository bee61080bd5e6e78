package metrics

import "time"

// Rating values accepted from users.
const (
	RatingLike    = "like"
	RatingDislike = "dislike"
)

// ResponseMetric is one record per processed message. It is appended when
// the response is produced and mutated at most once more when a user rating
// arrives.
type ResponseMetric struct {
	ResponseID      string    `json:"response_id"`
	ConversationID  string    `json:"conversation_id"`
	Query           string    `json:"query"`
	Response        string    `json:"response"`
	ResponseTime    float64   `json:"response_time"`
	ConfidenceScore float64   `json:"confidence_score"`
	ToolsUsed       []string  `json:"tools_used"`
	SourcesCount    int       `json:"sources_count"`
	Timestamp       time.Time `json:"timestamp"`
	UserRating      string    `json:"user_rating,omitempty"`
	ErrorOccurred   bool      `json:"error_occurred"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}

// ConversationMetric is the derived rolling view of one conversation,
// updated incrementally on every response write or rating update.
type ConversationMetric struct {
	ConversationID        string         `json:"conversation_id"`
	TotalMessages         int            `json:"total_messages"`
	FollowUpQuestions     int            `json:"follow_up_questions"`
	ContextRetentionScore float64        `json:"context_retention_score"`
	AverageResponseTime   float64        `json:"average_response_time"`
	TotalLikes            int            `json:"total_likes"`
	TotalDislikes         int            `json:"total_dislikes"`
	ToolsUsageCount       map[string]int `json:"tools_usage_count"`
	CreatedAt             time.Time      `json:"created_at"`
	LastActivity          time.Time      `json:"last_activity"`
}

// SystemMetric is a point-in-time snapshot over all recorded state.
type SystemMetric struct {
	TotalQueries              int                `json:"total_queries"`
	TotalErrors               int                `json:"total_errors"`
	AverageResponseTime       float64            `json:"average_response_time"`
	LikePercentage            float64            `json:"like_percentage"`
	ToolEffectiveness         map[string]float64 `json:"tool_effectiveness"`
	ErrorRate                 float64            `json:"error_rate"`
	ConversationRetentionRate float64            `json:"conversation_retention_rate"`
	Timestamp                 time.Time          `json:"timestamp"`
}

// Export is the full dump for offline analysis.
type Export struct {
	SystemMetrics       SystemMetric         `json:"system_metrics"`
	ConversationMetrics []ConversationMetric `json:"conversation_metrics"`
	ResponseMetrics     []ResponseMetric     `json:"response_metrics"`
	ExportTimestamp     time.Time            `json:"export_timestamp"`
}
