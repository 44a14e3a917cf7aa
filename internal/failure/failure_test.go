package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"plain", errors.New("boom"), KindNone},
		{"transport", Transport("dial", errors.New("refused")), KindTransport},
		{"wrapped", fmt.Errorf("detail: %w", NoData("uid %s", "X")), KindNoData},
		{"deadline", context.DeadlineExceeded, KindTransport},
		{"status", HTTPStatus(503, "http://x"), KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("window: %w", InvalidFormat("no ids on page %d", 2))
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatal("expected errors.Is to match INVALID_FORMAT")
	}
	if errors.Is(err, ErrTransport) {
		t.Fatal("did not expect TRANSPORT to match")
	}

	cause := errors.New("reset by peer")
	if !errors.Is(Transport("read", cause), cause) {
		t.Fatal("expected underlying cause to match")
	}
}

func TestHTTPStatusCarriesCode(t *testing.T) {
	e := HTTPStatus(502, "http://example.com")
	if e.GetStatusCode() != 502 {
		t.Errorf("expected 502, got %d", e.GetStatusCode())
	}
	if e.Error() != "TRANSPORT: HTTP 502 from http://example.com" {
		t.Errorf("unexpected message %q", e.Error())
	}
}
