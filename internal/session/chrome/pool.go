// Package chrome renders JavaScript-built authority pages in headless Chrome.
package chrome

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// Options configures the renderer.
type Options struct {
	Size       int
	ChromePath string
	UserAgent  string
	Proxy      string
	// Wait is an extra settle time after the body is ready.
	Wait time.Duration
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Renderer owns a small pool of browser tabs. The browser starts on first use.
type Renderer struct {
	opts Options

	startOnce sync.Once
	startErr  error

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabs        chan *tab

	mu     sync.Mutex
	closed bool
}

// New creates a renderer; no browser is launched until Render is called.
func New(opts Options) *Renderer {
	if opts.Size <= 0 {
		opts.Size = 2
	}
	if opts.Size > 8 {
		opts.Size = 8
	}
	return &Renderer{opts: opts}
}

func (r *Renderer) start() error {
	r.startOnce.Do(func() {
		path := r.opts.ChromePath
		if path == "" {
			path = FindChrome()
		}

		allocOpts := []chromedp.ExecAllocatorOption{
			chromedp.NoFirstRun,
			chromedp.NoDefaultBrowserCheck,
			chromedp.Flag("headless", "new"),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-extensions", true),
			chromedp.Flag("disable-background-networking", true),
			chromedp.Flag("disable-sync", true),
			chromedp.Flag("disable-translate", true),
			chromedp.Flag("mute-audio", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("window-size", "1280,1024"),
		}
		if path != "" {
			allocOpts = append([]chromedp.ExecAllocatorOption{chromedp.ExecPath(path)}, allocOpts...)
		}
		if r.opts.UserAgent != "" {
			allocOpts = append(allocOpts, chromedp.UserAgent(r.opts.UserAgent))
		}
		if r.opts.Proxy != "" {
			allocOpts = append(allocOpts, chromedp.ProxyServer(r.opts.Proxy))
		}

		r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), allocOpts...)
		r.tabs = make(chan *tab, r.opts.Size)
		for i := 0; i < r.opts.Size; i++ {
			ctx, cancel := chromedp.NewContext(r.allocCtx)
			if err := chromedp.Run(ctx, chromedp.Navigate("about:blank")); err != nil {
				cancel()
				r.allocCancel()
				r.startErr = fmt.Errorf("failed to start browser tab %d: %w", i, err)
				return
			}
			r.tabs <- &tab{ctx: ctx, cancel: cancel}
		}
		log.Info().Int("tabs", r.opts.Size).Str("chrome", path).Msg("Renderer ready")
	})
	return r.startErr
}

func (r *Renderer) acquire(ctx context.Context) (*tab, error) {
	if err := r.start(); err != nil {
		return nil, err
	}
	select {
	case t, ok := <-r.tabs:
		if !ok {
			return nil, fmt.Errorf("renderer is closed")
		}
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Renderer) release(t *tab) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		t.cancel()
		return
	}
	_ = chromedp.Run(t.ctx, chromedp.Navigate("about:blank"))
	r.tabs <- t
}

// Render navigates to rawURL and returns the final URL and rendered markup.
func (r *Renderer) Render(ctx context.Context, rawURL string) (string, string, error) {
	t, err := r.acquire(ctx)
	if err != nil {
		return "", "", err
	}
	defer r.release(t)

	// Bind the caller's deadline to the tab without cancelling the tab itself
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var status int64
	chromedp.ListenTarget(runCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument && status == 0 {
			status = e.Response.Status
		}
	})

	var body, location string
	err = chromedp.Run(runCtx,
		network.Enable(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.opts.Wait),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &body, chromedp.ByQuery),
	)
	if err != nil {
		return "", "", fmt.Errorf("render %s: %w", rawURL, err)
	}
	if status >= 400 {
		return "", "", fmt.Errorf("render %s: HTTP %d", rawURL, status)
	}
	return location, body, nil
}

// Close shuts down all tabs and the browser.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.tabs == nil {
		return nil
	}
	close(r.tabs)
	for t := range r.tabs {
		t.cancel()
	}
	r.allocCancel()
	return nil
}
