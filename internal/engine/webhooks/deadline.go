package webhooks

import (
	"context"
	"time"

	"switchboard/internal/engine/registry"
	"switchboard/internal/platform/models"
)

// DefaultEventTimeout bounds each event dispatch attempt.
const DefaultEventTimeout = 30 * time.Second

// DeadlinePolicy decides how long a downstream call may run. Function calls
// use the registration's response timeout; event dispatches use one fixed
// per-attempt bound.
type DeadlinePolicy struct {
	EventTimeout time.Duration
}

func (p DeadlinePolicy) Timeout(reg *models.Registration) time.Duration {
	if reg.Kind == models.KindFunctionCall {
		return time.Duration(registry.ClampTimeout(reg.ResponseTimeoutMs)) * time.Millisecond
	}
	if p.EventTimeout > 0 {
		return p.EventTimeout
	}
	return DefaultEventTimeout
}

// Bound derives the call context for reg. Cancelling it aborts the
// outbound request.
func (p DeadlinePolicy) Bound(ctx context.Context, reg *models.Registration) (context.Context, context.CancelFunc) {
	return WithDeadline(ctx, p.Timeout(reg))
}

// WithDeadline is the single place call deadlines are applied.
func WithDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}

// Exceeded reports whether ctx ended because its deadline passed.
func Exceeded(ctx context.Context) bool {
	return ctx.Err() == context.DeadlineExceeded
}
