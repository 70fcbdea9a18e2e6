package sensor

import "context"

// Sensor measures the scalar the agent is trying to move. Readings never
// fail the cycle; a sensor that cannot reach its backing service reports a
// documented mock value instead.
type Sensor interface {
	// MetricName returns the metric identifier interpolated into prompts
	MetricName() string

	// MetricState returns the current reading rendered for prompt use
	MetricState(ctx context.Context) string
}
