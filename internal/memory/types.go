package memory

import (
	"context"
	"errors"
	"time"
)

// Role tags one side of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

var ErrNotFound = errors.New("conversation not found")

// Turn is one role-tagged message in a conversation's ordered history.
// Turns are immutable once appended.
type Turn struct {
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ConversationInfo is a lightweight listing entry for an active
// conversation. It carries counters only, never the transcript.
type ConversationInfo struct {
	ConversationID string    `json:"conversation_id"`
	MessageCount   int       `json:"message_count"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Health reports the store's connectivity status.
type Health struct {
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists per-conversation message logs, summaries and small
// key-value preference records, all with a bounded retention window.
type Store interface {
	AppendTurn(ctx context.Context, conversationID string, turn Turn) error
	Turns(ctx context.Context, conversationID string) ([]Turn, error)
	Delete(ctx context.Context, conversationID string) (bool, error)
	ListConversations(ctx context.Context, limit int) ([]ConversationInfo, error)

	Summary(ctx context.Context, conversationID string) (string, bool, error)
	StoreSummary(ctx context.Context, conversationID, summary string) error

	StorePreferences(ctx context.Context, key string, value map[string]any) error

	Health(ctx context.Context) Health
	Close() error
}
