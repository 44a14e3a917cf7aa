package reqctx

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestWithRun(t *testing.T) {
	ctx := WithRun(context.Background())
	run := FromContext(ctx)
	if _, err := uuid.Parse(run.ID); err != nil {
		t.Fatalf("expected uuid run id, got %q", run.ID)
	}
	if FromContext(context.Background()).ID != "unknown" {
		t.Error("expected placeholder run for bare context")
	}
}

func TestWrap(t *testing.T) {
	ctx := WithRun(context.Background())
	cause := errors.New("boom")
	err := Wrap(ctx, cause)
	if !errors.Is(err, cause) {
		t.Fatal("wrapped error should unwrap to cause")
	}
	if Wrap(ctx, nil) != nil {
		t.Fatal("nil stays nil")
	}
}
