// Package reqctx carries a run identifier through gather ticks and API calls.
package reqctx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type key int

const runKey key = 0

// Run identifies one tick, fetch or API request.
type Run struct {
	ID        string
	StartTime time.Time
}

// WithRun attaches a fresh run to ctx.
func WithRun(ctx context.Context) context.Context {
	return context.WithValue(ctx, runKey, &Run{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
	})
}

// FromContext returns the run attached to ctx, or a placeholder.
func FromContext(ctx context.Context) *Run {
	if r, ok := ctx.Value(runKey).(*Run); ok {
		return r
	}
	return &Run{ID: "unknown", StartTime: time.Now()}
}

// Logger returns l annotated with the run id of ctx.
func Logger(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	return l.With().Str("run", FromContext(ctx).ID).Logger()
}

// RunError wraps an error with the run that produced it.
type RunError struct {
	RunID string
	Err   error
}

// Error implements the error interface
func (e *RunError) Error() string {
	return fmt.Sprintf("[%s] %v", e.RunID, e.Err)
}

// Unwrap returns the underlying error
func (e *RunError) Unwrap() error {
	return e.Err
}

// Wrap annotates err with the run id of ctx.
func Wrap(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	return &RunError{RunID: FromContext(ctx).ID, Err: err}
}
