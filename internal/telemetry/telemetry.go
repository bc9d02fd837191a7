// Package telemetry records request, reconciliation and access metrics to
// Prometheus or CloudWatch.
package telemetry

import (
	"context"
	"time"
)

// Collector is the metrics sink used by the HTTP layer and the domain
// services. Implementations never return errors; failures are logged.
type Collector interface {
	RecordRequest(ctx context.Context, method, endpoint string, status int, duration time.Duration)
	RecordReconcile(ctx context.Context, source, outcome string)
	RecordAccess(ctx context.Context, action, result string)
	RecordGatewayFailure(ctx context.Context, operation string)
}

// Noop discards every metric.
type Noop struct{}

func (Noop) RecordRequest(context.Context, string, string, int, time.Duration) {}
func (Noop) RecordReconcile(context.Context, string, string)                   {}
func (Noop) RecordAccess(context.Context, string, string)                      {}
func (Noop) RecordGatewayFailure(context.Context, string)                      {}

var _ Collector = Noop{}

// Flusher is implemented by collectors that buffer data.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Flush sends buffered data when c buffers; otherwise it does nothing.
func Flush(ctx context.Context, c Collector) error {
	if f, ok := c.(Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}
