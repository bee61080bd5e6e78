package llm

import (
	"fmt"
	"strings"
	"time"
)

// Config controls client construction.
type Config struct {
	Mode    string
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient builds a generation client. In auto mode the HTTP backend is
// used when a URL is configured, otherwise the deterministic mock.
func NewClient(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.URL) != "" {
			return NewHTTPClient(cfg.URL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
		}
		return NewMockClient(), nil
	case "http":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, fmt.Errorf("llm http mode requires a URL")
		}
		return NewHTTPClient(cfg.URL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported llm mode %q (expected auto|http|mock)", cfg.Mode)
	}
}
