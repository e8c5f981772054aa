package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Counter wraps an Int64Counter that tolerates instrument creation failure
type Counter struct {
	c metric.Int64Counter
}

// NewCounter creates a counter on the service meter
func NewCounter(name, description string) *Counter {
	c, err := Meter().Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return &Counter{}
	}
	return &Counter{c: c}
}

// Inc adds one with the given string attributes, passed as key/value pairs
func (c *Counter) Inc(ctx context.Context, kv ...string) {
	if c == nil || c.c == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	c.c.Add(ctx, 1, metric.WithAttributes(attrs...))
}
