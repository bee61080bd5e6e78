package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient forwards generation requests to an OpenAI-style chat
// completions endpoint.
type HTTPClient struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

func NewHTTPClient(url, apiKey, model string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		url:    strings.TrimSpace(url),
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Generate(ctx context.Context, messages []Message, grounding, systemPrompt string) (string, error) {
	wire := make([]Message, 0, len(messages)+2)
	if systemPrompt != "" {
		wire = append(wire, Message{Role: "system", Content: systemPrompt})
	}
	if grounding != "" {
		wire = append(wire, Message{Role: "system", Content: "Context from relevant documents:\n" + grounding + "\n\n"})
	}
	wire = append(wire, messages...)

	payload, err := json.Marshal(map[string]any{
		"model":    c.model,
		"messages": wire,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("llm http status %d: %s", res.StatusCode, string(body))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &completion); err == nil && len(completion.Choices) > 0 {
		return completion.Choices[0].Message.Content, nil
	}

	// Fall back to flat {"text": ...} / {"output": ...} shapes used by
	// simpler gateways.
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		if text := extractText(obj); text != "" {
			return text, nil
		}
	}
	return "", fmt.Errorf("llm response had no text")
}

func (c *HTTPClient) ClassifyIntent(ctx context.Context, message string) (IntentResult, error) {
	return classifyIntentWith(ctx, c, message)
}

func (c *HTTPClient) Summarize(ctx context.Context, messages []Message) (string, error) {
	return summarizeWith(ctx, c, messages)
}

func (c *HTTPClient) CheckSafety(ctx context.Context, text string) (SafetyResult, error) {
	return checkSafetyWith(ctx, c, text)
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "output", "message", "response"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
