package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var jsonBlockPattern = regexp.MustCompile(`(?s)\{.*\}`)

// extractJSON pulls the first {...} block out of a model response. Models
// occasionally wrap the JSON in prose or code fences despite instructions.
func extractJSON(response string, out any) error {
	block := jsonBlockPattern.FindString(response)
	if block == "" {
		return fmt.Errorf("no JSON object in response")
	}
	return json.Unmarshal([]byte(block), out)
}

// classifyIntentWith runs the intent prompt through any generator and decodes
// the verdict, defaulting to a low-confidence question on malformed output.
func classifyIntentWith(ctx context.Context, c Client, message string) (IntentResult, error) {
	fallback := IntentResult{Intent: IntentQuestion, Confidence: 0.5, Entities: []string{}}

	response, err := c.Generate(ctx, []Message{{Role: "user", Content: message}}, "", intentSystemPrompt)
	if err != nil {
		return fallback, err
	}

	var result IntentResult
	if err := extractJSON(response, &result); err != nil {
		return fallback, nil
	}
	if strings.TrimSpace(result.Intent) == "" {
		return fallback, nil
	}
	if result.Entities == nil {
		result.Entities = []string{}
	}
	return result, nil
}

// checkSafetyWith runs the safety prompt through any generator, defaulting to
// safe at half confidence on malformed output.
func checkSafetyWith(ctx context.Context, c Client, text string) (SafetyResult, error) {
	fallback := SafetyResult{IsSafe: true, Confidence: 0.5, Flags: []string{}}

	response, err := c.Generate(ctx, []Message{
		{Role: "user", Content: "Check this text for safety:\n" + text},
	}, "", safetySystemPrompt)
	if err != nil {
		return fallback, err
	}

	var result SafetyResult
	if err := extractJSON(response, &result); err != nil {
		return fallback, nil
	}
	if result.Flags == nil {
		result.Flags = []string{}
	}
	return result, nil
}

func summarizeWith(ctx context.Context, c Client, messages []Message) (string, error) {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return c.Generate(ctx, []Message{
		{Role: "user", Content: "Summarize this conversation:\n" + b.String()},
	}, "", summarySystemPrompt)
}
