// Package adapter turns declarative authority configurations into site
// adapters: the date, period and list batch methods the acquisition
// strategies drive, plus detail fetches for the fetch coordinator.
package adapter

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/plancrawl/internal/cache"
	"github.com/law-makers/plancrawl/internal/extract"
	"github.com/law-makers/plancrawl/internal/failure"
	"github.com/law-makers/plancrawl/internal/proxy"
	"github.com/law-makers/plancrawl/internal/ratelimit"
	"github.com/law-makers/plancrawl/internal/retry"
	"github.com/law-makers/plancrawl/internal/session"
	"github.com/law-makers/plancrawl/internal/utils/headers"
	"github.com/law-makers/plancrawl/pkg/models"
)

// Adapter is the surface shared by every site adapter.
type Adapter interface {
	Config() *Config
	// CanRun reports whether the site is outside its blackout window.
	CanRun(now time.Time) bool
	// Detail resolves an identifier to its detail page(s) and returns the
	// merged raw fields.
	Detail(ctx context.Context, id models.Identifier) (*DetailResult, error)
	Close()
}

// DateAdapter lists identifiers by date window.
type DateAdapter interface {
	Adapter
	// IDBatch returns the identifiers validated in [from, to], reading at
	// most bound result pages.
	IDBatch(ctx context.Context, from, to time.Time, bound int) (*Batch, error)
}

// PeriodAdapter lists identifiers by calendar period.
type PeriodAdapter interface {
	Adapter
	// IDPeriod snaps anchor to the site's period and lists it. The batch
	// carries the period actually covered.
	IDPeriod(ctx context.Context, anchor time.Time, bound int) (*Batch, error)
}

// ListAdapter walks a dense sequence of numeric identifiers.
type ListAdapter interface {
	Adapter
	// IDRecords fetches every sequence value in [fromSeq, min(toSeq, maxSeq)].
	// The batch carries the range actually covered.
	IDRecords(ctx context.Context, fromSeq, toSeq, maxSeq int) (*Batch, error)
	MaxSequence(ctx context.Context) (int, error)
	Sequencer() Sequencer
}

// Batch is the result of one batch method call. Extraction problems are
// reported in Kind rather than as errors, so partial results survive.
type Batch struct {
	IDs   []models.Identifier
	Pages int
	// MaxPages and MaxRecs are the totals the site reported, if any.
	MaxPages int
	MaxRecs  int
	// Capped is set when the site reported a truncated result set.
	Capped bool
	// Kind is EMPTY_OK, INVALID_FORMAT, RUNAWAY or empty.
	Kind failure.Kind
	// Detail describes a non-empty Kind.
	Detail string

	From, To       time.Time
	FromSeq, ToSeq int
	// LastSeq is the last sequence value that yielded a record, or 0.
	LastSeq int
}

// DetailResult is the raw output of a detail fetch.
type DetailResult struct {
	Fields extract.Fields
	// URL is the page the record was read from.
	URL string
}

// Env carries the process-wide resources adapters share.
type Env struct {
	UserAgent string
	Headers   map[string]string
	Timeout   time.Duration
	Limiter   *ratelimit.HostLimiter
	Proxies   *proxy.Pool
	Retry     retry.Config
	Cache     *cache.Memory[*session.Page]
	Renderer  session.Renderer
	Now       func() time.Time
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Open builds the adapter for cfg. The adapter owns a session with its own
// cookie jar; Close releases it.
func Open(cfg *Config, env Env) (Adapter, error) {
	s, err := newSite(cfg, env)
	if err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindDate:
		if cfg.JSON.SearchURL != "" {
			return &JSONSite{Site: s}, nil
		}
		return &FormDateSite{Site: s}, nil
	case KindPeriod:
		return &PeriodSite{Site: s}, nil
	case KindList:
		return &SequenceSite{Site: s, seq: NewSequencer(cfg)}, nil
	}
	s.Close()
	return nil, fmt.Errorf("%s: unsupported kind %q", cfg.Authority, cfg.Kind)
}

// Site holds what every adapter kind shares: configuration, session and
// the detail-page logic.
type Site struct {
	cfg  *Config
	sess *session.Session
	log  zerolog.Logger
	env  Env
}

func newSite(cfg *Config, env Env) (*Site, error) {
	logger := log.With().Str("authority", cfg.Authority).Logger()
	s := &Site{cfg: cfg, log: logger, env: env}

	timeout := env.Timeout
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	if env.Limiter != nil && cfg.RateLimit > 0 && cfg.BaseURL != "" {
		if u, err := url.Parse(cfg.BaseURL); err == nil {
			env.Limiter.SetLimit(u.Hostname(), cfg.RateLimit, 1)
		}
	}
	var renderer session.Renderer
	if cfg.Render {
		renderer = env.Renderer
	}
	var limiter ratelimit.Limiter
	if env.Limiter != nil {
		limiter = env.Limiter
	}

	sess, err := session.New(session.Options{
		Backend:          cfg.Backend,
		BaseURL:          cfg.BaseURL,
		UserAgent:        env.UserAgent,
		Headers:          headers.Merge(env.Headers, cfg.Headers),
		Cookies:          cfg.Cookies,
		Timeout:          timeout,
		TLS:              cfg.TLS,
		CloudflareBypass: cfg.CloudflareBypass,
		Substitutions:    cfg.HTMLSubs,
		ParseMode:        cfg.ResponseHandler,
		Limiter:          limiter,
		Proxies:          env.Proxies,
		Retry:            env.Retry,
		Cache:            env.Cache,
		Renderer:         renderer,
		Guard:            s.guard,
		Logger:           &s.log,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Authority, err)
	}
	s.sess = sess
	return s, nil
}

// Config returns the adapter configuration.
func (s *Site) Config() *Config { return s.cfg }

// CanRun reports whether now is outside the blackout window.
func (s *Site) CanRun(now time.Time) bool {
	return !s.cfg.Blackout.Active(now)
}

// Session exposes the adapter's session, mainly for debugging commands.
func (s *Site) Session() *session.Session { return s.sess }

// Close releases the session.
func (s *Site) Close() { s.sess.Close() }

// guard aborts requests that would fall inside the blackout window, so a
// run crossing into it stops cleanly.
func (s *Site) guard(ctx context.Context) error {
	if !s.CanRun(s.env.now()) {
		return failure.Blackout(s.cfg.Authority)
	}
	return nil
}
