package llm

import (
	"context"
	"strings"
)

// MockClient provides deterministic local replies when no model endpoint is
// configured. It keeps the whole pipeline exercisable offline.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

var (
	mockTopicWords = []string{
		"revolution", "revolución", "zapata", "villa", "madero", "díaz", "diaz",
		"carranza", "obregón", "obregon", "porfiriato", "1910", "1917",
	}
	mockEscalationWords = []string{"human", "agent", "humano", "agente", "escalate", "escalar"}
	mockSummaryWords    = []string{"summary", "summarize", "resumen", "resume"}
	mockUnsafeWords     = []string{"kill", "bomb", "attack instructions", "matar"}
)

func (c *MockClient) Generate(ctx context.Context, messages []Message, grounding, systemPrompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if grounding == "" || strings.Contains(grounding, "No relevant documents found.") {
		return "I don't have enough information to answer that.", nil
	}
	first := grounding
	if idx := strings.IndexAny(first, ".\n"); idx > 0 {
		first = first[:idx+1]
	}
	return strings.TrimSpace(first), nil
}

func (c *MockClient) ClassifyIntent(_ context.Context, message string) (IntentResult, error) {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, mockEscalationWords):
		return IntentResult{Intent: IntentEscalation, Confidence: 0.9, Entities: []string{}}, nil
	case containsAny(lower, mockSummaryWords):
		return IntentResult{Intent: IntentSummaryRequest, Confidence: 0.9, Entities: []string{}}, nil
	case containsAny(lower, mockTopicWords):
		return IntentResult{Intent: IntentQuestion, Confidence: 0.9, Entities: []string{}}, nil
	default:
		return IntentResult{Intent: IntentOffTopic, Confidence: 0.6, Entities: []string{}}, nil
	}
}

func (c *MockClient) Summarize(_ context.Context, messages []Message) (string, error) {
	topics := make([]string, 0, 3)
	for _, m := range messages {
		if m.Role != "user" {
			continue
		}
		topics = append(topics, strings.TrimSpace(m.Content))
		if len(topics) == 3 {
			break
		}
	}
	if len(topics) == 0 {
		return "The conversation has no user questions yet.", nil
	}
	return "The conversation covered: " + strings.Join(topics, "; "), nil
}

func (c *MockClient) CheckSafety(_ context.Context, text string) (SafetyResult, error) {
	if containsAny(strings.ToLower(text), mockUnsafeWords) {
		return SafetyResult{IsSafe: false, Confidence: 0.9, Flags: []string{"harmful_content"}}, nil
	}
	return SafetyResult{IsSafe: true, Confidence: 0.9, Flags: []string{}}, nil
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
