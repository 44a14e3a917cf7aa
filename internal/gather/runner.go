package gather

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/law-makers/plancrawl/internal/failure"
)

// TickFunc runs one tick for the named authority.
type TickFunc func(ctx context.Context, authority string) (*Report, error)

// Concurrency picks a worker count for n authorities: a few per CPU,
// never more than n or limit.
func Concurrency(n, limit int) int {
	c := runtime.NumCPU() * 2
	if limit > 0 && c > limit {
		c = limit
	}
	if c > n {
		c = n
	}
	if c < 1 {
		c = 1
	}
	return c
}

// RunAll ticks every authority, at most concurrency at a time. Authorities
// are independent: one failing tick never stops the others. Reports come
// back in the order of authorities.
func RunAll(ctx context.Context, authorities []string, concurrency int, tick TickFunc) []*Report {
	if concurrency <= 0 {
		concurrency = Concurrency(len(authorities), 0)
	}
	reports := make([]*Report, len(authorities))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, name := range authorities {
		if gctx.Err() != nil {
			reports[i] = &Report{Authority: name, Err: gctx.Err()}
			continue
		}
		g.Go(func() error {
			rep, err := tick(gctx, name)
			if rep == nil {
				rep = &Report{Authority: name}
			}
			if err != nil && rep.Err == nil {
				rep.Err, rep.Kind = err, failure.KindOf(err)
			}
			reports[i] = rep
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

// Scheduler repeats RunAll on a cron schedule. A run still in progress
// when the next one is due makes that one skip.
type Scheduler struct {
	cron *cron.Cron
	mu   sync.Mutex
	last []*Report
}

// NewScheduler registers RunAll for authorities under spec (standard
// five-field cron syntax or descriptors such as "@every 1h").
func NewScheduler(ctx context.Context, spec string, authorities []string, concurrency int, tick TickFunc) (*Scheduler, error) {
	s := &Scheduler{}
	logger := cronLogger{log.With().Str("component", "scheduler").Logger()}
	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.SkipIfStillRunning(logger)),
	)
	_, err := s.cron.AddFunc(spec, func() {
		reports := RunAll(ctx, authorities, concurrency, tick)
		s.mu.Lock()
		s.last = reports
		s.mu.Unlock()
	})
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling and returns a context done when running ticks end.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

// Last returns the reports of the most recent completed run.
func (s *Scheduler) Last() []*Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// cronLogger routes cron's logging to zerolog.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
