// Package app provides the core application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/plancrawl/internal/adapter"
	"github.com/law-makers/plancrawl/internal/cache"
	"github.com/law-makers/plancrawl/internal/config"
	"github.com/law-makers/plancrawl/internal/cursor"
	"github.com/law-makers/plancrawl/internal/engine"
	"github.com/law-makers/plancrawl/internal/fetch"
	"github.com/law-makers/plancrawl/internal/fixture"
	"github.com/law-makers/plancrawl/internal/gather"
	"github.com/law-makers/plancrawl/internal/proxy"
	"github.com/law-makers/plancrawl/internal/ratelimit"
	"github.com/law-makers/plancrawl/internal/retry"
	"github.com/law-makers/plancrawl/internal/session"
	"github.com/law-makers/plancrawl/internal/session/chrome"
	"github.com/law-makers/plancrawl/pkg/models"
)

// Application holds all application dependencies and manages their lifecycle.
//
// It is created once at startup and shared across all CLI commands and the
// HTTP API. Use Close() to release the cursor store and the browser.
type Application struct {
	Config   *config.Config
	Logger   *zerolog.Logger
	Registry *adapter.Registry
	Cursors  cursor.Store
	// Env is handed to every adapter the application opens.
	Env adapter.Env
	// Now is the clock used for blackout checks, windows and stamps.
	Now func() time.Time

	// goal overrides every adapter's min_id_goal when set.
	goal      int
	pages     *cache.Memory[*session.Page]
	renderer  *chrome.Renderer
	startTime time.Time
}

// New creates and initializes a new Application with all dependencies.
//
// It performs the following initialization steps:
//   - Configures logging based on the provided config
//   - Loads the built-in scraper declarations and the optional sites directory
//   - Opens the cursor store
//   - Builds the shared adapter resources: host rate limiter, proxy pool,
//     retry policy, detail page cache and the lazy headless browser
//
// If any step fails, an error is returned and no resources are allocated.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := SetupLogging(cfg, os.Stderr)

	reg, err := adapter.LoadRegistry(cfg.SitesDir)
	if err != nil {
		return nil, fmt.Errorf("load scrapers: %w", err)
	}
	logger.Debug().
		Int("scrapers", len(reg.Names())).
		Str("sites_dir", cfg.SitesDir).
		Msg("Scraper registry loaded")

	store, err := OpenCursors(cfg.CursorDB)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("path", cfg.CursorDB).Msg("Cursor store opened")

	a := &Application{
		Config:    cfg,
		Logger:    &logger,
		Registry:  reg,
		Cursors:   store,
		Now:       time.Now,
		startTime: time.Now(),
	}
	if cfg.MinIDGoal != config.DefaultMinIDGoal {
		a.goal = cfg.MinIDGoal
	}
	a.Env = a.buildEnv()

	logger.Info().Msg("Application initialized successfully")
	return a, nil
}

// SetupLogging configures the global zerolog logger from cfg and returns it.
func SetupLogging(cfg *config.Config, w io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.LogLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	logWriter := w
	if !cfg.JSONLog {
		// Human-friendly console output otherwise
		logWriter = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	log.Logger = log.Output(logWriter).With().Timestamp().Logger()

	log.Logger.Debug().
		Str("level", cfg.LogLevel).
		Bool("json", cfg.JSONLog).
		Msg("Logger initialized")
	return log.Logger
}

// OpenCursors opens the SQLite cursor store at path, or an in-memory
// store when path is empty.
func OpenCursors(path string) (cursor.Store, error) {
	if path == "" {
		return cursor.NewMemory(), nil
	}
	store, err := cursor.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open cursor store %s: %w", path, err)
	}
	return store, nil
}

func (a *Application) buildEnv() adapter.Env {
	cfg := a.Config
	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.RetryAttempts

	a.pages = session.NewCache(cfg.CacheMaxEntries, cfg.CacheTTL)
	ropts := chrome.Options{
		ChromePath: cfg.ChromePath,
		UserAgent:  cfg.UserAgent,
		Wait:       cfg.RenderWait,
	}
	if len(cfg.Proxies) > 0 {
		ropts.Proxy = cfg.Proxies[0]
	}
	a.renderer = chrome.New(ropts)

	env := adapter.Env{
		UserAgent: cfg.UserAgent,
		Headers:   cfg.Headers,
		Timeout:   cfg.HTTPTimeout,
		Limiter:   ratelimit.NewHostLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Retry:     rc,
		Cache:     a.pages,
		Renderer:  a.renderer,
		Now:       func() time.Time { return a.Now() },
	}
	if len(cfg.Proxies) > 0 {
		env.Proxies = proxy.NewPool(cfg.Proxies)
	}
	a.Logger.Debug().
		Float64("rps", cfg.RateLimitRPS).
		Int("burst", cfg.RateLimitBurst).
		Int("retries", rc.MaxAttempts).
		Int("proxies", len(cfg.Proxies)).
		Msg("Adapter resources initialized")
	return env
}

// Scrapers returns every declaration ordered by name.
func (a *Application) Scrapers() []*adapter.Config { return a.Registry.All() }

// Scraper finds one declaration by name.
func (a *Application) Scraper(name string) (*adapter.Config, error) { return a.Registry.Get(name) }

// Open builds the adapter for a declared authority.
func (a *Application) Open(authority string) (adapter.Adapter, error) {
	return a.Registry.Open(authority, a.Env)
}

// Strategy opens the adapter for authority and wraps it in the strategy
// of its kind. Closing the strategy's adapter is the caller's job.
func (a *Application) Strategy(authority string) (engine.Strategy, error) {
	ad, err := a.Open(authority)
	if err != nil {
		return nil, err
	}
	s, err := engine.New(ad, engine.Options{Now: a.Now})
	if err != nil {
		ad.Close()
		return nil, err
	}
	return s, nil
}

// Cursor returns the saved cursor of authority, or nil if it has never
// been gathered.
func (a *Application) Cursor(ctx context.Context, authority string) (*models.Cursor, error) {
	cfg, err := a.Registry.Get(authority)
	if err != nil {
		return nil, err
	}
	c, err := a.Cursors.Get(ctx, cfg.Authority)
	if errors.Is(err, cursor.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

// ResetCursor forgets the saved cursor of authority so the next gather
// starts from the initial frontier again.
func (a *Application) ResetCursor(ctx context.Context, authority string) error {
	cfg, err := a.Registry.Get(authority)
	if err != nil {
		return err
	}
	return a.Cursors.Delete(ctx, cfg.Authority)
}

// Fetch returns the cleaned record of one application.
func (a *Application) Fetch(ctx context.Context, authority string, id models.Identifier) (models.Record, error) {
	ad, err := a.Open(authority)
	if err != nil {
		return nil, err
	}
	defer ad.Close()
	return fetch.New(a.Now).Fetch(ctx, ad, id)
}

// Gather runs one gather tick for authority, emitting records to sink.
func (a *Application) Gather(ctx context.Context, authority string, sink gather.Sink, opts gather.Options) (*gather.Report, error) {
	s, err := a.Strategy(authority)
	if err != nil {
		return nil, err
	}
	defer s.Adapter().Close()
	if opts.MinIDGoal <= 0 {
		opts.MinIDGoal = a.goal
	}
	if opts.Now == nil {
		opts.Now = a.Now
	}
	return gather.New(s, a.Cursors, sink, opts).Tick(ctx)
}

// GatherAll runs one tick for each authority, concurrency at a time.
func (a *Application) GatherAll(ctx context.Context, authorities []string, concurrency int, sink gather.Sink, opts gather.Options) []*gather.Report {
	return gather.RunAll(ctx, authorities, a.concurrency(len(authorities), concurrency), a.tickFunc(sink, opts))
}

// Schedule repeats GatherAll on a cron schedule.
func (a *Application) Schedule(ctx context.Context, spec string, authorities []string, concurrency int, sink gather.Sink, opts gather.Options) (*gather.Scheduler, error) {
	return gather.NewScheduler(ctx, spec, authorities, a.concurrency(len(authorities), concurrency), a.tickFunc(sink, opts))
}

func (a *Application) concurrency(n, requested int) int {
	if requested > 0 {
		return requested
	}
	return gather.Concurrency(n, a.Config.Concurrency)
}

func (a *Application) tickFunc(sink gather.Sink, opts gather.Options) gather.TickFunc {
	return func(ctx context.Context, authority string) (*gather.Report, error) {
		return a.Gather(ctx, authority, sink, opts)
	}
}

// Enabled returns the names of the declarations that are not disabled.
func (a *Application) Enabled() []string {
	var names []string
	for _, c := range a.Registry.All() {
		if !c.Disabled {
			names = append(names, c.Authority)
		}
	}
	return names
}

// Test runs the self-test fixtures of the named authorities, or of every
// enabled one when names is empty.
func (a *Application) Test(ctx context.Context, names []string, progress io.Writer) ([]fixture.Outcome, error) {
	if len(names) == 0 {
		names = a.Enabled()
	}
	adapters := make([]adapter.Adapter, 0, len(names))
	defer func() {
		for _, ad := range adapters {
			ad.Close()
		}
	}()
	for _, n := range names {
		ad, err := a.Open(n)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, ad)
	}
	return fixture.Run(ctx, adapters, fixture.Options{Now: a.Now, Progress: progress})
}

// Close releases the cursor store, the page cache and the browser.
//
// A context with a timeout should be provided to prevent indefinite blocking.
// Any errors during shutdown are logged but do not prevent other shutdown steps.
func (a *Application) Close(_ context.Context) error {
	a.Logger.Debug().Msg("Shutting down application")

	var errs []error
	if a.renderer != nil {
		if err := a.renderer.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing browser")
			errs = append(errs, err)
		}
	}
	if a.pages != nil {
		a.pages.Close()
	}
	if a.Cursors != nil {
		if err := a.Cursors.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing cursor store")
			errs = append(errs, err)
		}
	}

	a.Logger.Debug().Dur("uptime", a.Uptime()).Msg("Application shutdown complete")
	return errors.Join(errs...)
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}
