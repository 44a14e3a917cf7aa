package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/law-makers/plancrawl/internal/adapter"
)

// Period drives a period adapter one calendar period at a time.
type Period struct {
	base
	a adapter.PeriodAdapter
}

// Adapter implements Strategy.
func (p *Period) Adapter() adapter.Adapter { return p.a }

// Run implements Strategy. span.From is the anchor; the result covers the
// period the adapter snapped it to.
func (p *Period) Run(ctx context.Context, span Span) (*Result, error) {
	if span.From.IsZero() {
		return nil, fmt.Errorf("%w: period needs an anchor date", ErrBadSpan)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := p.a.IDPeriod(ctx, span.From, p.bound)
	if err != nil {
		return nil, err
	}
	r := &Result{
		Covered: Span{From: b.From, To: b.To},
		Kind:    b.Kind,
		Detail:  b.Detail,
		Pages:   b.Pages,
	}
	dedupe{}.add(r, b.IDs)
	p.settle(r)
	p.log.Debug().
		Str("anchor", span.From.Format(time.DateOnly)).
		Str("from", b.From.Format(time.DateOnly)).
		Str("to", b.To.Format(time.DateOnly)).
		Int("ids", len(r.IDs)).
		Str("kind", string(r.Kind)).
		Msg("Period")
	return r, nil
}
