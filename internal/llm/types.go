package llm

import "context"

// Message is one chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IntentResult is the classifier's verdict for a user message.
type IntentResult struct {
	Intent     string   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   []string `json:"entities"`
}

// SafetyResult is the content safety verdict for a user message.
type SafetyResult struct {
	IsSafe     bool     `json:"is_safe"`
	Confidence float64  `json:"confidence"`
	Flags      []string `json:"flags"`
}

// Recognized intents. Anything else falls into the default answer branch.
const (
	IntentQuestion       = "question"
	IntentClarification  = "clarification"
	IntentFollowUp       = "follow_up"
	IntentSummaryRequest = "summary_request"
	IntentEscalation     = "escalation"
	IntentOffTopic       = "off_topic"
)

// Client generates text and exposes intent classification, summarization and
// safety checking as specialized generation calls.
type Client interface {
	Generate(ctx context.Context, messages []Message, grounding string, systemPrompt string) (string, error)
	ClassifyIntent(ctx context.Context, message string) (IntentResult, error)
	Summarize(ctx context.Context, messages []Message) (string, error)
	CheckSafety(ctx context.Context, text string) (SafetyResult, error)
}
