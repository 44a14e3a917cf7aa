// Package gather runs gather ticks: it walks an authority's forward cursor
// toward the present and its backward cursor toward the data start
// target, fetching and emitting every application the strategy lists.
package gather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/plancrawl/internal/adapter"
	"github.com/law-makers/plancrawl/internal/cursor"
	"github.com/law-makers/plancrawl/internal/engine"
	"github.com/law-makers/plancrawl/internal/failure"
	"github.com/law-makers/plancrawl/internal/fetch"
	"github.com/law-makers/plancrawl/internal/reqctx"
	"github.com/law-makers/plancrawl/pkg/models"
)

// DefaultMaxSteps caps strategy invocations per direction in one tick.
const DefaultMaxSteps = 50

// Direction is the way a cursor moves.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// Options tune a Gatherer. Zero values take the adapter's configuration.
type Options struct {
	// MinIDGoal overrides the adapter's records-per-tick goal.
	MinIDGoal int
	// MaxSteps caps strategy invocations per direction.
	MaxSteps int
	Now      func() time.Time
}

// Gatherer drives one authority's strategy from its persisted cursor.
type Gatherer struct {
	strat engine.Strategy
	a     adapter.Adapter
	cfg   *adapter.Config
	fetch *fetch.Coordinator
	store cursor.Store
	sink  Sink

	goal     int
	maxSteps int
	now      func() time.Time
	log      zerolog.Logger
}

// New returns a Gatherer for strat's adapter. The caller keeps ownership
// of the adapter, store and sink.
func New(strat engine.Strategy, store cursor.Store, sink Sink, opts Options) *Gatherer {
	a := strat.Adapter()
	cfg := a.Config()
	g := &Gatherer{
		strat:    strat,
		a:        a,
		cfg:      cfg,
		store:    store,
		sink:     sink,
		goal:     opts.MinIDGoal,
		maxSteps: opts.MaxSteps,
		now:      opts.Now,
		log:      log.With().Str("authority", cfg.Authority).Logger(),
	}
	if g.goal <= 0 {
		g.goal = cfg.MinIDGoal
	}
	if g.maxSteps <= 0 {
		g.maxSteps = DefaultMaxSteps
	}
	if g.now == nil {
		g.now = time.Now
	}
	g.fetch = fetch.New(g.now)
	return g
}

// Report is the outcome of one tick. Kind is empty for a tick that ran to
// its goal or its limits, otherwise the failure kind that ended it.
type Report struct {
	Authority string
	RunID     string
	Records   int
	Forward   int
	Backward  int
	Steps     int
	// Skipped counts identifiers whose detail fetch yielded no record.
	Skipped map[failure.Kind]int
	// Windows counts strategy results by kind.
	Windows map[failure.Kind]int
	// Repeats counts identifiers of the open forward window that an
	// earlier tick already emitted.
	Repeats int
	Kind    failure.Kind
	Err     error
	Cursor  models.Cursor
	Elapsed time.Duration
}

// Tick runs one gather tick. The report is always returned; the error is
// the one that ended the tick early (BLACKOUT, TRANSPORT or
// cancellation), with the cursor left at the last completed step.
func (g *Gatherer) Tick(ctx context.Context) (*Report, error) {
	ctx = reqctx.WithRun(ctx)
	run := reqctx.FromContext(ctx)
	l := reqctx.Logger(ctx, g.log)
	rep := &Report{
		Authority: g.cfg.Authority,
		RunID:     run.ID,
		Skipped:   make(map[failure.Kind]int),
		Windows:   make(map[failure.Kind]int),
	}
	defer func() { rep.Elapsed = time.Since(run.StartTime) }()

	if !g.a.CanRun(g.now()) {
		l.Info().Msg("Inside blackout window, skipping tick")
		return g.fail(rep, failure.Blackout(g.cfg.Authority))
	}

	c, err := g.load(ctx)
	if err != nil {
		return g.fail(rep, err)
	}
	rep.Cursor = *c

	w, err := g.walker(ctx, c)
	if err != nil {
		return g.fail(rep, err)
	}

	l.Info().
		Str("forward", position(c, Forward)).
		Str("backward", position(c, Backward)).
		Int("goal", g.goal).
		Msg("Gather tick started")

	for _, dir := range []Direction{Forward, Backward} {
		for steps := 0; steps < g.maxSteps && rep.Records < g.goal; steps++ {
			if dir == Backward && c.BackwardDone() {
				break
			}
			st, ok := w.next(dir)
			if !ok {
				break
			}
			res, err := g.strat.Run(ctx, st)
			if err != nil {
				return g.fail(rep, err)
			}
			rep.Steps++
			rep.Windows[res.Kind]++
			var seen map[string]bool
			open := position(c, Forward)
			if dir == Forward {
				seen = make(map[string]bool, len(c.Seen))
				for _, uid := range c.Seen {
					seen[uid] = true
				}
			}
			n, emitted, err := g.emit(ctx, res, rep, seen)
			if dir == Forward {
				rep.Forward += n
			} else {
				rep.Backward += n
			}
			if err != nil {
				return g.fail(rep, err)
			}
			more := w.advance(dir, st, res)
			if dir == Forward {
				settle(c, open, more, emitted)
			}
			c.UpdatedAt = g.now()
			if err := g.store.Put(ctx, c); err != nil {
				return g.fail(rep, err)
			}
			rep.Cursor = *c
			l.Debug().
				Str("direction", string(dir)).
				Str("span", res.Covered.String()).
				Int("ids", len(res.IDs)).
				Int("records", n).
				Str("kind", string(res.Kind)).
				Str("cursor", position(c, dir)).
				Msg("Step done")
			if !more {
				break
			}
		}
	}

	l.Info().
		Int("records", rep.Records).
		Int("forward", rep.Forward).
		Int("backward", rep.Backward).
		Int("steps", rep.Steps).
		Int("skipped", total(rep.Skipped)).
		Int("repeats", rep.Repeats).
		Msg("Gather tick done")
	return rep, nil
}

// Cursor returns the saved cursor, or the initial one if none is saved.
func (g *Gatherer) Cursor(ctx context.Context) (*models.Cursor, error) {
	return g.load(ctx)
}

func (g *Gatherer) fail(rep *Report, err error) (*Report, error) {
	rep.Err = err
	rep.Kind = failure.KindOf(err)
	ev := g.log.Warn()
	if rep.Kind == failure.KindBlackout || errors.Is(err, context.Canceled) {
		ev = g.log.Info()
	}
	ev.Err(err).Str("run", rep.RunID).Int("records", rep.Records).Msg("Gather tick ended early")
	return rep, err
}

// emit fetches and emits each identifier of res that is not in seen, and
// returns the keys it emitted. Identifiers without a readable record are
// counted and skipped; anything else ends the tick.
func (g *Gatherer) emit(ctx context.Context, res *engine.Result, rep *Report, seen map[string]bool) (int, []string, error) {
	n := 0
	var emitted []string
	for _, id := range res.IDs {
		if err := ctx.Err(); err != nil {
			return n, emitted, err
		}
		key := seenKey(id)
		if seen[key] {
			rep.Repeats++
			continue
		}
		rec, err := g.fetch.Fetch(ctx, g.a, id)
		switch k := failure.KindOf(err); {
		case err == nil:
		case k == failure.KindNoData || k == failure.KindInvalidFormat:
			rep.Skipped[k]++
			g.log.Warn().Err(err).Str("uid", id.UID).Str("url", id.URL).Msg("Application skipped")
			continue
		default:
			return n, emitted, err
		}
		if err := g.sink.Emit(ctx, rec); err != nil {
			return n, emitted, fmt.Errorf("emit %s: %w", rec.String(models.KeyUID), err)
		}
		n++
		rep.Records++
		emitted = append(emitted, key)
	}
	return n, emitted, nil
}

// settle updates the seen list after a forward step that started at
// position open. A cursor resting on the same window adds to the list, one
// resting on a new window starts it over, and one that moved on clears it.
func settle(c *models.Cursor, open string, more bool, emitted []string) {
	switch {
	case more:
		c.Seen = nil
	case position(c, Forward) == open:
		c.Seen = append(c.Seen, emitted...)
	default:
		c.Seen = emitted
	}
}

func seenKey(id models.Identifier) string {
	if id.UID != "" {
		return id.UID
	}
	return id.URL
}

// load returns the saved cursor or builds the initial one.
func (g *Gatherer) load(ctx context.Context) (*models.Cursor, error) {
	c, err := g.store.Get(ctx, g.cfg.Authority)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, cursor.ErrNotFound) {
		return nil, err
	}
	return g.initial(ctx)
}

// initial places both cursors current_span units behind the present.
func (g *Gatherer) initial(ctx context.Context) (*models.Cursor, error) {
	c := &models.Cursor{Authority: g.cfg.Authority}
	if list, ok := g.strat.(*engine.List); ok {
		c.Kind = models.CursorSequence
		seq := list.Sequencer()
		start := g.cfg.StartPoint
		if start <= 0 {
			top, err := list.MaxSequence(ctx)
			if err != nil {
				return nil, err
			}
			start = seq.Add(top, -g.cfg.CurrentSpan)
		}
		c.ForwardSeq, c.BackSeq = seq.Normalize(start), seq.Normalize(start)
		target, err := g.cfg.StartSeq()
		if err != nil {
			return nil, fmt.Errorf("%s: data_start_target: %w", g.cfg.Authority, err)
		}
		if target <= 0 {
			// Without a target there is no history to fill.
			target = c.BackSeq
		}
		c.TargetSeq = seq.Normalize(target)
		return c, nil
	}
	c.Kind = models.CursorDate
	start := models.Day(g.now()).AddDate(0, 0, -g.cfg.CurrentSpan)
	c.ForwardDate, c.BackDate = start, start
	target, err := g.cfg.StartDate()
	if err != nil {
		return nil, fmt.Errorf("%s: data_start_target: %w", g.cfg.Authority, err)
	}
	c.TargetDate = target
	return c, nil
}

func position(c *models.Cursor, dir Direction) string {
	switch {
	case c.Kind == models.CursorSequence && dir == Forward:
		return fmt.Sprint(c.ForwardSeq)
	case c.Kind == models.CursorSequence:
		return fmt.Sprint(c.BackSeq)
	case dir == Forward:
		return c.ForwardDate.Format(models.DateLayout)
	}
	return c.BackDate.Format(models.DateLayout)
}

func total(m map[failure.Kind]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
