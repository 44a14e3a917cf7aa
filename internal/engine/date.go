package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/law-makers/plancrawl/internal/adapter"
	"github.com/law-makers/plancrawl/internal/failure"
)

const boundReached = "page bound reached"

// Date drives a date adapter over an inclusive window, bisecting windows
// the site reports as truncated.
type Date struct {
	base
	a adapter.DateAdapter
}

// Adapter implements Strategy.
func (d *Date) Adapter() adapter.Adapter { return d.a }

// Run implements Strategy for span.From..span.To.
func (d *Date) Run(ctx context.Context, span Span) (*Result, error) {
	if span.From.IsZero() || span.To.Before(span.From) {
		return nil, fmt.Errorf("%w: %s", ErrBadSpan, span)
	}
	r := &Result{Covered: Span{From: span.From, To: span.To}}
	if err := d.window(ctx, span.From, span.To, 0, r, dedupe{}); err != nil {
		return nil, err
	}
	d.settle(r)
	d.log.Debug().
		Str("from", span.From.Format(time.DateOnly)).
		Str("to", span.To.Format(time.DateOnly)).
		Int("ids", len(r.IDs)).
		Int("pages", r.Pages).
		Int("splits", r.Splits).
		Str("kind", string(r.Kind)).
		Msg("Date window")
	return r, nil
}

func (d *Date) window(ctx context.Context, from, to time.Time, depth int, r *Result, seen dedupe) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// The page bound covers the whole invocation, bisected windows included.
	budget := d.bound - r.Pages
	if budget <= 0 {
		if r.Detail == boundReached {
			return nil
		}
		d.log.Warn().
			Str("from", from.Format(time.DateOnly)).
			Str("to", to.Format(time.DateOnly)).
			Int("pages", r.Pages).
			Msg("Page bound reached before window")
		r.worse(failure.KindRunaway, boundReached)
		return nil
	}
	b, err := d.a.IDBatch(ctx, from, to, budget)
	if err != nil {
		return err
	}
	r.Pages += b.Pages

	if b.Capped && from.Before(to) {
		if depth >= MaxDepth {
			d.log.Warn().
				Str("from", from.Format(time.DateOnly)).
				Str("to", to.Format(time.DateOnly)).
				Int("depth", depth).
				Msg("Bisection depth exceeded")
			r.worse(failure.KindRunaway, "bisection depth exceeded")
			return nil
		}
		days := int(to.Sub(from).Hours() / 24)
		mid := from.AddDate(0, 0, days/2)
		r.Splits++
		d.log.Debug().
			Str("from", from.Format(time.DateOnly)).
			Str("to", to.Format(time.DateOnly)).
			Int("max_pages", b.MaxPages).
			Msg("Result set truncated, splitting window")
		if err := d.window(ctx, from, mid, depth+1, r, seen); err != nil {
			return err
		}
		return d.window(ctx, mid.AddDate(0, 0, 1), to, depth+1, r, seen)
	}

	seen.add(r, b.IDs)
	if b.Kind != failure.KindNone {
		sub := &Result{IDs: b.IDs, Kind: b.Kind, Detail: b.Detail, Covered: Span{From: from, To: to}}
		d.settle(sub)
		r.worse(sub.Kind, sub.Detail)
	}
	return nil
}
