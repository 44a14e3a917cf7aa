package engine

import (
	"context"
	"fmt"

	"github.com/law-makers/plancrawl/internal/adapter"
	"github.com/law-makers/plancrawl/internal/failure"
)

// List drives a list adapter over a range of sequence values.
type List struct {
	base
	a adapter.ListAdapter
	// max is the frontier learned from the adapter, refreshed per tick.
	max int
}

// Adapter implements Strategy.
func (l *List) Adapter() adapter.Adapter { return l.a }

// Sequencer returns the adapter's sequence arithmetic.
func (l *List) Sequencer() adapter.Sequencer { return l.a.Sequencer() }

// MaxSequence asks the adapter for the current frontier and remembers it
// for later runs. The frontier never moves backwards.
func (l *List) MaxSequence(ctx context.Context) (int, error) {
	top, err := l.a.MaxSequence(ctx)
	if err != nil {
		return 0, err
	}
	if l.Sequencer().Distance(l.max, top) > 0 || l.max == 0 {
		l.max = top
	}
	return l.max, nil
}

// Frontier returns the last frontier learned, or 0 before the first probe.
func (l *List) Frontier() int { return l.max }

// Run implements Strategy for span.FromSeq..span.ToSeq, never passing the
// frontier.
func (l *List) Run(ctx context.Context, span Span) (*Result, error) {
	seq := l.Sequencer()
	if span.FromSeq <= 0 || seq.Distance(span.FromSeq, span.ToSeq) < 0 {
		return nil, fmt.Errorf("%w: %s", ErrBadSpan, span)
	}
	if l.max == 0 {
		if _, err := l.MaxSequence(ctx); err != nil {
			return nil, err
		}
	}
	if seq.Distance(span.FromSeq, l.max) < 0 {
		return &Result{
			Covered: Span{FromSeq: span.FromSeq, ToSeq: seq.Add(span.FromSeq, -1)},
			Kind:    failure.KindEmptyOK,
			Detail:  "beyond max sequence",
		}, nil
	}
	b, err := l.a.IDRecords(ctx, span.FromSeq, span.ToSeq, l.max)
	if err != nil {
		return nil, err
	}
	r := &Result{
		Covered: Span{FromSeq: b.FromSeq, ToSeq: b.ToSeq},
		LastSeq: b.LastSeq,
		Kind:    b.Kind,
		Detail:  b.Detail,
	}
	dedupe{}.add(r, b.IDs)
	l.log.Debug().
		Int("from_seq", b.FromSeq).
		Int("to_seq", b.ToSeq).
		Int("max_seq", l.max).
		Int("ids", len(r.IDs)).
		Str("kind", string(r.Kind)).
		Msg("Sequence range")
	return r, nil
}

// AtFrontier reports whether r reached the current frontier.
func (l *List) AtFrontier(r *Result) bool {
	return l.max != 0 && l.Sequencer().Distance(r.Covered.ToSeq, l.max) <= 0
}
