// Package fixture runs the self-test fixtures adapters declare: detail
// fetches that must yield enough fields and id batches that must yield a
// known number of identifiers.
package fixture

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"github.com/law-makers/plancrawl/internal/adapter"
	"github.com/law-makers/plancrawl/internal/engine"
	"github.com/law-makers/plancrawl/internal/failure"
	"github.com/law-makers/plancrawl/internal/fetch"
	"github.com/law-makers/plancrawl/pkg/models"
)

// Type tells detail fixtures from batch fixtures.
type Type string

const (
	Detail Type = "detail"
	Batch  Type = "batch"
)

// Outcome is the result of one fixture.
type Outcome struct {
	Authority string
	Type      Type
	// Name identifies the fixture: the uid or url, or the span.
	Name      string
	Want      int
	Tolerance int
	Got       int
	Pass      bool
	Kind      failure.Kind
	Err       error
	Elapsed   time.Duration
}

func (o Outcome) String() string {
	status := "PASS"
	if !o.Pass {
		status = "FAIL"
	}
	s := fmt.Sprintf("%s %s %s %s: got %d, want %d", status, o.Authority, o.Type, o.Name, o.Got, o.Want)
	if o.Tolerance > 0 {
		s += fmt.Sprintf(" (±%d)", o.Tolerance)
	}
	if o.Err != nil {
		s += ": " + o.Err.Error()
	}
	return s
}

// Options tune a run.
type Options struct {
	Now func() time.Time
	// Progress receives a progress bar when set.
	Progress io.Writer
}

// Count returns the number of fixtures cfg declares.
func Count(cfg *adapter.Config) int {
	return len(cfg.DetailTests) + len(cfg.BatchTests)
}

// Failed counts the outcomes that did not pass.
func Failed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.Pass {
			n++
		}
	}
	return n
}

// Run runs every fixture of every adapter in order. A fixture failing,
// even on transport, never stops the others; only cancellation does.
func Run(ctx context.Context, adapters []adapter.Adapter, opts Options) ([]Outcome, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	total := 0
	for _, a := range adapters {
		total += Count(a.Config())
	}
	var bar *progressbar.ProgressBar
	if opts.Progress != nil && total > 0 {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionSetDescription("fixtures"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	c := fetch.New(opts.Now)
	var out []Outcome
	for _, a := range adapters {
		cfg := a.Config()
		l := log.With().Str("authority", cfg.Authority).Logger()
		strat, err := engine.New(a, engine.Options{Now: opts.Now})
		if err != nil {
			return out, err
		}
		for _, dt := range cfg.DetailTests {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			if bar != nil {
				bar.Describe(cfg.Authority)
			}
			o := runDetail(ctx, c, a, dt)
			l.Debug().Str("fixture", o.Name).Int("got", o.Got).Bool("pass", o.Pass).Msg("Detail fixture done")
			out = append(out, o)
			if bar != nil {
				_ = bar.Add(1)
			}
		}
		for _, bt := range cfg.BatchTests {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			if bar != nil {
				bar.Describe(cfg.Authority)
			}
			o := runBatch(ctx, strat, cfg, bt)
			l.Debug().Str("fixture", o.Name).Int("got", o.Got).Bool("pass", o.Pass).Msg("Batch fixture done")
			out = append(out, o)
			if bar != nil {
				_ = bar.Add(1)
			}
		}
	}
	return out, nil
}

func runDetail(ctx context.Context, c *fetch.Coordinator, a adapter.Adapter, dt adapter.DetailTest) Outcome {
	start := time.Now()
	o := Outcome{Authority: a.Config().Authority, Type: Detail, Name: dt.UID, Want: dt.Len, Tolerance: dt.Tolerance}
	id := models.Identifier{UID: dt.UID, URL: dt.URL}
	if dt.UID == "" {
		o.Name = dt.URL
	}
	rec, err := c.Fetch(ctx, a, id)
	o.Elapsed = time.Since(start)
	if err != nil {
		o.Err, o.Kind = err, failure.KindOf(err)
		return o
	}
	o.Got = len(rec)
	o.Pass = o.Got >= dt.Len-dt.Tolerance
	return o
}

func runBatch(ctx context.Context, strat engine.Strategy, cfg *adapter.Config, bt adapter.BatchTest) Outcome {
	start := time.Now()
	o := Outcome{Authority: cfg.Authority, Type: Batch, Want: bt.Len, Tolerance: bt.Tolerance}
	span, err := Span(cfg, bt)
	if err != nil {
		o.Name, o.Err, o.Kind = "?", err, failure.KindInvalidFormat
		return o
	}
	o.Name = span.String()
	if cfg.Kind == adapter.KindPeriod {
		o.Name = span.From.Format(models.DateLayout)
	}
	res, err := strat.Run(ctx, span)
	o.Elapsed = time.Since(start)
	if err != nil {
		o.Err, o.Kind = err, failure.KindOf(err)
		return o
	}
	o.Got, o.Kind = len(res.IDs), res.Kind
	diff := o.Got - bt.Len
	if diff < 0 {
		diff = -diff
	}
	o.Pass = diff <= bt.Tolerance
	return o
}

// Span turns a batch fixture into the span its strategy runs: a date
// window (from/to, or a single date), a period anchor, or a sequence range.
func Span(cfg *adapter.Config, bt adapter.BatchTest) (engine.Span, error) {
	if cfg.Kind == adapter.KindList {
		if bt.FromSeq <= 0 {
			return engine.Span{}, fmt.Errorf("%s: list fixture needs from_seq", cfg.Authority)
		}
		to := bt.ToSeq
		if to <= 0 {
			to = bt.FromSeq
		}
		return engine.Span{FromSeq: bt.FromSeq, ToSeq: to}, nil
	}
	from, to := bt.From, bt.To
	if bt.Date != "" {
		if from == "" {
			from = bt.Date
		}
		if to == "" {
			to = bt.Date
		}
	}
	if to == "" {
		to = from
	}
	f, err := models.ParseDay(from)
	if err != nil {
		return engine.Span{}, fmt.Errorf("%s: fixture from: %w", cfg.Authority, err)
	}
	t, err := models.ParseDay(to)
	if err != nil {
		return engine.Span{}, fmt.Errorf("%s: fixture to: %w", cfg.Authority, err)
	}
	if cfg.Kind == adapter.KindPeriod {
		return engine.Span{From: f}, nil
	}
	return engine.Span{From: f, To: t}, nil
}
