// Package engine holds the acquisition strategies: drivers that invoke an
// adapter's batch method for one unit of work and turn the pages it reads
// into a de-duplicated identifier list with a failure kind attached.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/plancrawl/internal/adapter"
	"github.com/law-makers/plancrawl/internal/failure"
	"github.com/law-makers/plancrawl/pkg/models"
)

// MaxDepth caps date window bisection.
const MaxDepth = 10

// PageBound is the most result pages one invocation may read.
func PageBound(minIDGoal int) int {
	return 2*minIDGoal/10 + 20
}

// Span is one unit of work along a strategy's axis. Date strategies use
// From and To (inclusive days); period strategies use From as the anchor;
// list strategies use FromSeq and ToSeq.
type Span struct {
	From, To       time.Time
	FromSeq, ToSeq int
}

func (s Span) String() string {
	if !s.From.IsZero() {
		return s.From.Format(time.DateOnly) + ".." + s.To.Format(time.DateOnly)
	}
	return fmt.Sprintf("%d..%d", s.FromSeq, s.ToSeq)
}

// Result is the outcome of one strategy invocation. Extraction problems are
// carried in Kind; only transport, blackout and cancellation are errors.
type Result struct {
	IDs []models.Identifier
	// Covered is the span actually read: the snapped period, or the
	// sequence range settled.
	Covered Span
	// LastSeq is the last sequence value that yielded a record (list only).
	LastSeq int
	Kind    failure.Kind
	Detail  string
	Pages   int
	// Splits counts window bisections.
	Splits int
}

// Strategy drives one adapter in the acquisition mode of its kind.
type Strategy interface {
	Adapter() adapter.Adapter
	Run(ctx context.Context, span Span) (*Result, error)
}

// Options tune strategies. Zero values take the adapter's configuration.
type Options struct {
	// Bound overrides the page bound.
	Bound int
	// Now is the clock used to decide whether a window reaches today.
	Now func() time.Time
}

// New returns the strategy for a's kind.
func New(a adapter.Adapter, opts Options) (Strategy, error) {
	cfg := a.Config()
	b := base{
		bound: opts.Bound,
		now:   opts.Now,
		log:   log.With().Str("authority", cfg.Authority).Str("kind", string(cfg.Kind)).Logger(),
	}
	if b.bound <= 0 {
		b.bound = PageBound(cfg.MinIDGoal)
	}
	if b.now == nil {
		b.now = time.Now
	}
	switch cfg.Kind {
	case adapter.KindDate:
		if da, ok := a.(adapter.DateAdapter); ok {
			return &Date{base: b, a: da}, nil
		}
	case adapter.KindPeriod:
		if pa, ok := a.(adapter.PeriodAdapter); ok {
			return &Period{base: b, a: pa}, nil
		}
	case adapter.KindList:
		if la, ok := a.(adapter.ListAdapter); ok {
			return &List{base: b, a: la}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s declares kind %q", ErrNoBatchMethod, cfg.Authority, cfg.Kind)
}

type base struct {
	bound int
	now   func() time.Time
	log   zerolog.Logger
}

func (b base) today() time.Time {
	return models.Day(b.now())
}

// reachesToday reports whether [from, to] includes or passes today.
func (b base) reachesToday(to time.Time) bool {
	return !to.Before(b.today())
}

// settle applies the empty-result rule shared by date and period windows:
// an unreadable empty page for a window reaching today is accepted as
// "nothing new yet".
func (b base) settle(r *Result) {
	if len(r.IDs) > 0 && r.Kind == failure.KindEmptyOK {
		r.Kind, r.Detail = failure.KindNone, ""
	}
	if len(r.IDs) == 0 && r.Kind == failure.KindInvalidFormat && b.reachesToday(r.Covered.To) {
		b.log.Debug().Str("span", r.Covered.String()).Str("detail", r.Detail).Msg("Empty window reaching today accepted")
		r.Kind, r.Detail = failure.KindEmptyOK, "window reaches today"
	}
}

// dedupe appends ids to r, skipping uids (or urls) already present.
type dedupe map[string]bool

func (d dedupe) add(r *Result, ids []models.Identifier) {
	for _, id := range ids {
		k := id.UID
		if k == "" {
			k = id.URL
		}
		if d[k] {
			continue
		}
		d[k] = true
		r.IDs = append(r.IDs, id)
	}
}

// rank orders kinds by how much they say about a combined result.
var rank = map[failure.Kind]int{
	failure.KindNone:          0,
	failure.KindEmptyOK:       1,
	failure.KindRunaway:       2,
	failure.KindInvalidFormat: 3,
}

// worse folds a sub-result kind into a combined kind.
func (r *Result) worse(k failure.Kind, detail string) {
	if rank[k] > rank[r.Kind] {
		r.Kind, r.Detail = k, detail
	}
}
