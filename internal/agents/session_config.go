package agents

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/superagent/pkg/logger"
)

// SessionConfig is the start-of-session payload served over SSE. Every field
// is optional; missing template slots are folded in from the kind's defaults
// by the prompt registry.
type SessionConfig struct {
	Role        string            `json:"role"`
	APIs        []string          `json:"apis"`
	Instruments []string          `json:"in_con_env"`
	Templates   map[string]string `json:"prompts"`
	Assisted    *bool             `json:"assisted"`
}

// FetchSessionConfig reads the first SSE event from the config endpoint.
// Any failure (no URL, timeout, malformed payload) returns an empty config
// so the session proceeds on defaults.
func FetchSessionConfig(ctx context.Context, url string, timeout time.Duration) *SessionConfig {
	empty := &SessionConfig{}
	if url == "" {
		return empty
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg, err := readFirstEvent(ctx, url)
	if err != nil {
		logger.Warn("session config ingress failed, using defaults",
			zap.String("url", url),
			zap.Error(err),
		)
		return empty
	}

	logger.Info("session config received",
		zap.Int("templates", len(cfg.Templates)),
		zap.Strings("apis", cfg.APIs),
	)

	return cfg
}

func readFirstEvent(ctx context.Context, url string) (*SessionConfig, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("config endpoint returned %d", resp.StatusCode)
	}

	// SSE events are "data:" lines terminated by a blank line; the first
	// complete event carries the whole config
	var data strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "" && data.Len() > 0:
			var cfg SessionConfig
			if err := json.Unmarshal([]byte(data.String()), &cfg); err != nil {
				return nil, fmt.Errorf("malformed config event: %w", err)
			}
			return &cfg, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read failed: %w", err)
	}

	return nil, fmt.Errorf("stream ended without a config event")
}
