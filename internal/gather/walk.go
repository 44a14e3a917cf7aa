package gather

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/law-makers/plancrawl/internal/adapter"
	"github.com/law-makers/plancrawl/internal/engine"
	"github.com/law-makers/plancrawl/internal/failure"
	"github.com/law-makers/plancrawl/pkg/models"
)

// walker turns cursor positions into strategy spans and moves the cursor
// once a span's records have been emitted.
type walker interface {
	// next returns the span to run in dir, or false when dir has nothing
	// left this tick.
	next(dir Direction) (engine.Span, bool)
	// advance moves the cursor past a completed span and reports whether
	// dir may continue this tick.
	advance(dir Direction, span engine.Span, res *engine.Result) bool
}

func (g *Gatherer) walker(ctx context.Context, c *models.Cursor) (walker, error) {
	switch s := g.strat.(type) {
	case *engine.Date:
		if c.Kind != models.CursorDate {
			return nil, fmt.Errorf("%s: saved cursor is %s, want date", g.cfg.Authority, c.Kind)
		}
		return &dateWalker{c: c, batch: g.cfg.BatchSize, today: models.Day(g.now())}, nil
	case *engine.Period:
		if c.Kind != models.CursorDate {
			return nil, fmt.Errorf("%s: saved cursor is %s, want date", g.cfg.Authority, c.Kind)
		}
		return &periodWalker{c: c, today: models.Day(g.now())}, nil
	case *engine.List:
		if c.Kind != models.CursorSequence {
			return nil, fmt.Errorf("%s: saved cursor is %s, want sequence", g.cfg.Authority, c.Kind)
		}
		// The frontier is refreshed once per tick.
		if _, err := s.MaxSequence(ctx); err != nil {
			return nil, err
		}
		return &listWalker{c: c, list: s, seq: s.Sequencer(), batch: g.cfg.BatchSize, log: g.log}, nil
	}
	return nil, fmt.Errorf("%s: %w", g.cfg.Authority, engine.ErrNoBatchMethod)
}

// dateWalker moves in windows of batch days. Forward windows stop at
// today; a window reaching today leaves the cursor on today so later
// validations of the same day are picked up next tick.
type dateWalker struct {
	c     *models.Cursor
	batch int
	today time.Time
}

func (w *dateWalker) next(dir Direction) (engine.Span, bool) {
	if dir == Forward {
		from := w.c.ForwardDate
		if from.After(w.today) {
			return engine.Span{}, false
		}
		to := from.AddDate(0, 0, w.batch-1)
		if to.After(w.today) {
			to = w.today
		}
		return engine.Span{From: from, To: to}, true
	}
	to := w.c.BackDate.AddDate(0, 0, -1)
	from := to.AddDate(0, 0, -(w.batch - 1))
	if from.Before(w.c.TargetDate) {
		from = w.c.TargetDate
	}
	if to.Before(from) {
		return engine.Span{}, false
	}
	return engine.Span{From: from, To: to}, true
}

func (w *dateWalker) advance(dir Direction, span engine.Span, _ *engine.Result) bool {
	if dir == Backward {
		w.c.BackDate = span.From
		return true
	}
	if !span.To.Before(w.today) {
		w.c.ForwardDate = w.today
		return false
	}
	w.c.ForwardDate = span.To.AddDate(0, 0, 1)
	return true
}

// periodWalker moves one calendar period at a time. The adapter decides
// the period; the cursor follows the span it reports.
type periodWalker struct {
	c     *models.Cursor
	today time.Time
}

func (w *periodWalker) next(dir Direction) (engine.Span, bool) {
	if dir == Forward {
		if w.c.ForwardDate.After(w.today) {
			return engine.Span{}, false
		}
		return engine.Span{From: w.c.ForwardDate}, true
	}
	anchor := w.c.BackDate.AddDate(0, 0, -1)
	if anchor.Before(w.c.TargetDate) {
		return engine.Span{}, false
	}
	return engine.Span{From: anchor}, true
}

func (w *periodWalker) advance(dir Direction, span engine.Span, res *engine.Result) bool {
	from, to := res.Covered.From, res.Covered.To
	if dir == Backward {
		if from.IsZero() || !from.Before(w.c.BackDate) {
			from = span.From
		}
		w.c.BackDate = from
		return true
	}
	if to.IsZero() || to.Before(span.From) {
		to = span.From
	}
	if !to.Before(w.today) {
		// The current period stays open until it is over.
		if !from.IsZero() && !from.After(span.From) {
			w.c.ForwardDate = from
		}
		return false
	}
	w.c.ForwardDate = to.AddDate(0, 0, 1)
	return true
}

// listWalker moves in ranges of batch sequence values and never passes
// the frontier.
type listWalker struct {
	c     *models.Cursor
	list  *engine.List
	seq   adapter.Sequencer
	batch int
	log   zerolog.Logger
}

func (w *listWalker) next(dir Direction) (engine.Span, bool) {
	if dir == Forward {
		if w.seq.Distance(w.c.ForwardSeq, w.list.Frontier()) < 0 {
			return engine.Span{}, false
		}
		from := w.c.ForwardSeq
		return engine.Span{FromSeq: from, ToSeq: w.seq.Add(from, w.batch-1)}, true
	}
	to := w.seq.Add(w.c.BackSeq, -1)
	from := w.seq.Add(to, -(w.batch - 1))
	if w.seq.Distance(w.c.TargetSeq, from) < 0 {
		from = w.c.TargetSeq
	}
	if w.seq.Distance(from, to) < 0 {
		return engine.Span{}, false
	}
	return engine.Span{FromSeq: from, ToSeq: to}, true
}

func (w *listWalker) advance(dir Direction, span engine.Span, res *engine.Result) bool {
	broken := res.Kind == failure.KindInvalidFormat
	if dir == Backward {
		if broken {
			// The range was read upwards and stopped part way: the
			// backward frontier cannot move past the gap.
			w.log.Warn().Str("span", span.String()).Str("detail", res.Detail).Msg("Unreadable record, backward gather stopped")
			return false
		}
		w.c.BackSeq = span.FromSeq
		return true
	}
	settled := res.Covered.ToSeq
	switch {
	case broken:
		w.log.Warn().Str("span", span.String()).Str("detail", res.Detail).Msg("Unreadable record, forward gather stopped")
		w.c.ForwardSeq = w.seq.Add(settled, 1)
		return false
	case w.list.AtFrontier(res):
		// Slots past the last record may still be issued.
		if res.LastSeq > 0 && w.seq.Distance(w.c.ForwardSeq, res.LastSeq) >= 0 {
			w.c.ForwardSeq = w.seq.Add(res.LastSeq, 1)
		}
		return false
	}
	w.c.ForwardSeq = w.seq.Add(settled, 1)
	return true
}
