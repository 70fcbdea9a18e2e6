package sensor

import (
	"context"
	"testing"

	"github.com/selivandex/superagent/pkg/logger"
)

func setupTest(t *testing.T) {
	t.Helper()
	if err := logger.Init("error", ""); err != nil {
		t.Fatalf("logger init: %v", err)
	}
}

func TestMarketingSensorDegradesToMock(t *testing.T) {
	setupTest(t)

	s := NewMarketingSensor("", "", "followers")
	if s.MetricName() != "followers" {
		t.Errorf("MetricName = %q", s.MetricName())
	}
	if got := s.MetricState(context.Background()); got != "27" {
		t.Errorf("MetricState without credentials = %q, want mock 27", got)
	}
}

func TestMockSensor(t *testing.T) {
	s := &MockSensor{Name: "wallet", State: "0.5 ETH"}
	if s.MetricName() != "wallet" || s.MetricState(context.Background()) != "0.5 ETH" {
		t.Errorf("MockSensor = %q/%q", s.MetricName(), s.MetricState(context.Background()))
	}
}
