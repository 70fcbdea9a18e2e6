package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/selivandex/superagent/pkg/models"
)

// HTTPStore speaks the reference backend's /api_v1 endpoint family with
// x-api-key authentication. Duplicate prevention for notifications is a
// server responsibility on this path.
type HTTPStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPStore creates new HTTP outcome store client
func NewHTTPStore(baseURL, apiKey string) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// InsertStrategy records a cycle outcome
func (s *HTTPStore) InsertStrategy(ctx context.Context, agentID string, data models.StrategyInsertData) (*models.StrategyData, error) {
	body := map[string]any{
		"agent_id":        agentID,
		"summarized_desc": data.SummarizedDesc,
		"full_desc":       data.FullDesc,
		"parameters":      data.Parameters,
		"strategy_result": data.StrategyResult,
	}

	var resp struct {
		Data models.StrategyData `json:"data"`
	}
	if err := s.post(ctx, "/api_v1/strategy/create", body, &resp); err != nil {
		return nil, &StoreError{Op: "insert strategy", Err: err}
	}

	out := resp.Data
	out.AgentID = agentID
	return &out, nil
}

// FetchLatestStrategy returns the newest strategy, or nil
func (s *HTTPStore) FetchLatestStrategy(ctx context.Context, agentID string) (*models.StrategyData, error) {
	body := map[string]any{"agent_id": agentID, "latest": true}

	var resp struct {
		Data []models.StrategyData `json:"data"`
	}
	if err := s.post(ctx, "/api_v1/strategy/get", body, &resp); err != nil {
		return nil, &StoreError{Op: "fetch latest strategy", Err: err}
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}

	latest := resp.Data[0]
	for _, row := range resp.Data[1:] {
		if row.StrategyID > latest.StrategyID {
			latest = row
		}
	}
	return &latest, nil
}

// FetchAllStrategies returns every strategy, id ascending
func (s *HTTPStore) FetchAllStrategies(ctx context.Context, agentID string) ([]models.StrategyData, error) {
	body := map[string]any{"agent_id": agentID}

	var resp struct {
		Data []models.StrategyData `json:"data"`
	}
	if err := s.post(ctx, "/api_v1/strategy/get", body, &resp); err != nil {
		return nil, &StoreError{Op: "fetch all strategies", Err: err}
	}
	return resp.Data, nil
}

// InsertChatHistory persists messages with derived timestamps
func (s *HTTPStore) InsertChatHistory(ctx context.Context, sessionID string, history models.ChatHistory, base *time.Time) error {
	start := time.Now()
	if base != nil {
		start = *base
	}

	type chatMessage struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		Timestamp string `json:"timestamp"`
	}

	msgs := make([]chatMessage, 0, history.Len())
	for i, msg := range history.AsNative() {
		msgs = append(msgs, chatMessage{
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: start.Add(time.Duration(i) * time.Second).Format(TimestampFormat),
		})
	}

	body := map[string]any{"session_id": sessionID, "messages": msgs}
	if err := s.post(ctx, "/api_v1/chat_history/create", body, nil); err != nil {
		return &StoreError{Op: "insert chat history", Err: err}
	}
	return nil
}

// FetchLatestNotificationStr applies the source policy over served records
func (s *HTTPStore) FetchLatestNotificationStr(ctx context.Context, sources []string, limit int) (string, error) {
	resolved := resolveSources(sources)

	body := map[string]any{"sources": resolved, "limit": limit}

	var resp struct {
		Data []models.NotificationRecord `json:"data"`
	}
	if err := s.post(ctx, "/api_v1/notification/get_v3", body, &resp); err != nil {
		return "", &StoreError{Op: "fetch notifications", Err: err}
	}

	return buildNotificationStr(resp.Data, resolved, limit), nil
}

// InsertNotificationsBatch forwards records; the server enforces dedup
func (s *HTTPStore) InsertNotificationsBatch(ctx context.Context, records []models.NotificationRecord) ([]int64, error) {
	body := map[string]any{"notifications": records}

	var resp struct {
		Data struct {
			NotificationIDs []int64 `json:"notification_ids"`
		} `json:"data"`
	}
	if err := s.post(ctx, "/api_v1/notification/create_batch", body, &resp); err != nil {
		return nil, &StoreError{Op: "insert notifications batch", Err: err}
	}
	return resp.Data.NotificationIDs, nil
}

// CreateSession creates or re-marks a session running
func (s *HTTPStore) CreateSession(ctx context.Context, session models.SessionState) error {
	if err := s.post(ctx, "/api_v1/session/create", session, nil); err != nil {
		return &StoreError{Op: "create session", Err: err}
	}
	return nil
}

// UpdateSessionStatus transitions a session's status
func (s *HTTPStore) UpdateSessionStatus(ctx context.Context, sessionID, agentID, status string) error {
	body := map[string]any{"session_id": sessionID, "agent_id": agentID, "status": status}
	if err := s.post(ctx, "/api_v1/session/update", body, nil); err != nil {
		return &StoreError{Op: "update session status", Err: err}
	}
	return nil
}

// IncrementCycleCount bumps the session cycle counter
func (s *HTTPStore) IncrementCycleCount(ctx context.Context, sessionID, agentID string) error {
	body := map[string]any{"session_id": sessionID, "agent_id": agentID, "increment_cycle_count": true}
	if err := s.post(ctx, "/api_v1/session/update", body, nil); err != nil {
		return &StoreError{Op: "increment cycle count", Err: err}
	}
	return nil
}

// GetSession returns the session row, or nil
func (s *HTTPStore) GetSession(ctx context.Context, sessionID, agentID string) (*models.SessionState, error) {
	body := map[string]any{"session_id": sessionID, "agent_id": agentID}

	var resp struct {
		Data []models.SessionState `json:"data"`
	}
	if err := s.post(ctx, "/api_v1/session/get", body, &resp); err != nil {
		return nil, &StoreError{Op: "get session", Err: err}
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	return &resp.Data[0], nil
}

func (s *HTTPStore) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
