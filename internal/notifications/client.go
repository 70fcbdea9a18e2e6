package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/superagent/pkg/logger"
	"github.com/selivandex/superagent/pkg/models"
)

// Client talks to the scraper notification service. It serves agents whose
// outcome store is local (Postgres or memory) but whose notifications live in
// the shared scraper backend.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New creates new notification service client
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchLatest returns up to limit recent records per source, date descending
func (c *Client) FetchLatest(ctx context.Context, sources []string, limit int) ([]models.NotificationRecord, error) {
	body := map[string]any{"sources": sources, "limit": limit}

	var resp struct {
		Data []models.NotificationRecord `json:"data"`
	}
	if err := c.post(ctx, "/api_v1/notification/get_v3", body, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	logger.Debug("notifications fetched",
		zap.Strings("sources", sources),
		zap.Int("count", len(resp.Data)),
	)

	return resp.Data, nil
}

// PushBatch submits scraped records; the service deduplicates on scraper id
// or long description and returns ids of the rows it actually inserted
func (c *Client) PushBatch(ctx context.Context, records []models.NotificationRecord) ([]int64, error) {
	if len(records) == 0 {
		return nil, nil
	}

	body := map[string]any{"notifications": records}

	var resp struct {
		Data struct {
			NotificationIDs []int64 `json:"notification_ids"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/api_v1/notification/create_batch", body, &resp); err != nil {
		return nil, fmt.Errorf("failed to push notifications: %w", err)
	}
	return resp.Data.NotificationIDs, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
