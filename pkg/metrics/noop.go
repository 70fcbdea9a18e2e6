package metrics

import "context"

// NoopWriter discards metrics, used when no metrics storage is configured
type NoopWriter struct{}

func (NoopWriter) Write(ctx context.Context, tableName string, batch []Metric) error { return nil }
func (NoopWriter) Close() error                                                      { return nil }
