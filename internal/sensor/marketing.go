package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/superagent/pkg/logger"
)

// mockFollowerCount is the documented degraded reading for both marketing
// metrics
const mockFollowerCount = 27

// MarketingSensor reads follower and like counts for the authenticated
// social account. Missing credentials or API failures degrade to the mock
// count so the cycle can proceed.
type MarketingSensor struct {
	bearerToken string
	username    string
	metric      string
	client      *http.Client
}

// NewMarketingSensor creates the marketing metric sensor. metric is either
// "followers" or "likes".
func NewMarketingSensor(bearerToken, username, metric string) *MarketingSensor {
	return &MarketingSensor{
		bearerToken: bearerToken,
		username:    username,
		metric:      metric,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// MetricName returns the marketing metric identifier
func (m *MarketingSensor) MetricName() string {
	return m.metric
}

// MetricState returns the current count as a decimal string
func (m *MarketingSensor) MetricState(ctx context.Context) string {
	count, err := m.read(ctx)
	if err != nil {
		logger.Warn("marketing sensor degraded to mock count",
			zap.String("metric", m.metric),
			zap.Error(err),
		)
		count = mockFollowerCount
	}
	return strconv.Itoa(count)
}

func (m *MarketingSensor) read(ctx context.Context) (int, error) {
	if m.bearerToken == "" || m.username == "" {
		return 0, fmt.Errorf("social credentials not configured")
	}

	url := fmt.Sprintf(
		"https://api.twitter.com/2/users/by/username/%s?user.fields=public_metrics",
		m.username,
	)

	req, err := http.NewRequestWithContext(ctx, "GET", url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.bearerToken)

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data struct {
			PublicMetrics struct {
				FollowersCount int `json:"followers_count"`
				LikeCount      int `json:"like_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}

	switch m.metric {
	case "likes":
		return result.Data.PublicMetrics.LikeCount, nil
	default:
		return result.Data.PublicMetrics.FollowersCount, nil
	}
}

// MockSensor reports a fixed reading, used in tests and credential-less runs
type MockSensor struct {
	Name  string
	State string
}

func (m *MockSensor) MetricName() string                     { return m.Name }
func (m *MockSensor) MetricState(ctx context.Context) string { return m.State }
