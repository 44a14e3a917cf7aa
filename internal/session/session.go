// Package session implements the stateful HTTP client adapters use to talk
// to authority sites: a per-adapter cookie jar, a header block, per-request
// timeouts, per-host TLS profiles and form replay.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"

	"github.com/law-makers/plancrawl/internal/cache"
	"github.com/law-makers/plancrawl/internal/failure"
	"github.com/law-makers/plancrawl/internal/proxy"
	"github.com/law-makers/plancrawl/internal/ratelimit"
	"github.com/law-makers/plancrawl/internal/retry"
)

// Backend names.
const (
	BackendBrowser = "browser"
	BackendPlain   = "plain"
)

// DefaultTimeout applies when neither the session nor the request sets one.
const DefaultTimeout = 30 * time.Second

// Cookie is pre-installed in the jar, e.g. a disclaimer acknowledgement.
type Cookie struct {
	Name   string `yaml:"name" json:"name"`
	Value  string `yaml:"value" json:"value"`
	Domain string `yaml:"domain" json:"domain,omitempty"`
	Path   string `yaml:"path" json:"path,omitempty"`
	// URL scopes the cookie; defaults to the session base URL.
	URL string `yaml:"url" json:"url,omitempty"`
}

// Substitution is a regular expression replacement applied to every
// response body before parsing.
type Substitution struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Replace string `yaml:"replace" json:"replace"`
}

// Renderer fetches a page through a JavaScript-capable browser.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (finalURL string, body string, err error)
}

// Options configures a Session.
type Options struct {
	Backend          string
	BaseURL          string
	UserAgent        string
	Headers          map[string]string
	Cookies          []Cookie
	Timeout          time.Duration
	TLS              []TLSProfile
	CloudflareBypass bool
	Substitutions    []Substitution
	ParseMode        ParseMode

	Limiter  ratelimit.Limiter
	Proxies  *proxy.Pool
	Retry    retry.Config
	Cache    *cache.Memory[*Page]
	Renderer Renderer
	// Guard runs before every request; a non-nil error aborts it.
	Guard  func(ctx context.Context) error
	Logger *zerolog.Logger
}

type compiledSub struct {
	re      *regexp.Regexp
	replace []byte
}

// Session is a stateful client owned by a single adapter. It is safe for
// concurrent use, though adapters drive it sequentially.
type Session struct {
	opts    Options
	jar     *cookiejar.Jar
	backend backend
	subs    []compiledSub
	log     zerolog.Logger

	mu   sync.Mutex
	last string
}

// New creates a session with its own cookie jar and transports.
func New(opts Options) (*Session, error) {
	if opts.Backend == "" {
		opts.Backend = BackendBrowser
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ParseMode == "" {
		opts.ParseMode = ParseSoup
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	router, rt, err := buildRoundTripper(opts.TLS, opts.CloudflareBypass)
	if err != nil {
		return nil, err
	}

	s := &Session{opts: opts, jar: jar}
	if opts.Logger != nil {
		s.log = *opts.Logger
	} else {
		s.log = log.Logger
	}

	switch opts.Backend {
	case BackendBrowser:
		s.backend = newBrowserBackend(jar, router, rt)
	case BackendPlain:
		s.backend = newPlainBackend(jar, router, rt)
	default:
		return nil, fmt.Errorf("unknown session backend %q", opts.Backend)
	}

	for _, sub := range opts.Substitutions {
		re, err := regexp.Compile(sub.Pattern)
		if err != nil {
			return nil, fmt.Errorf("html substitution %q: %w", sub.Pattern, err)
		}
		s.subs = append(s.subs, compiledSub{re: re, replace: []byte(sub.Replace)})
	}

	for _, c := range opts.Cookies {
		if err := s.SetCookie(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewCache creates a page cache suitable for Options.Cache.
func NewCache(entries int, ttl time.Duration) *cache.Memory[*Page] {
	return cache.NewMemory[*Page](entries, ttl)
}

// Backend returns the backend name in use.
func (s *Session) Backend() string {
	return s.opts.Backend
}

// SetCookie installs a cookie in the jar.
func (s *Session) SetCookie(c Cookie) error {
	scope := c.URL
	if scope == "" {
		scope = s.opts.BaseURL
	}
	if scope == "" && c.Domain != "" {
		scope = "https://" + strings.TrimPrefix(c.Domain, ".") + "/"
	}
	u, err := url.Parse(scope)
	if err != nil || u.Host == "" {
		return fmt.Errorf("cookie %s needs a url or domain", c.Name)
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	cookie := &http.Cookie{Name: c.Name, Value: c.Value, Path: path, Domain: c.Domain}
	s.jar.SetCookies(u, []*http.Cookie{cookie})
	// Cookies for the same host over plain http, which several authorities still use
	if u.Scheme == "https" {
		alt := *u
		alt.Scheme = "http"
		s.jar.SetCookies(&alt, []*http.Cookie{cookie})
	}
	return nil
}

// Cookies returns the cookies that would be sent to rawURL.
func (s *Session) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return s.jar.Cookies(u)
}

// RequestOption adjusts a single request.
type RequestOption func(*requestSettings)

type requestSettings struct {
	timeout time.Duration
	header  http.Header
	noCache bool
}

// WithTimeout overrides the session timeout for one request.
func WithTimeout(d time.Duration) RequestOption {
	return func(r *requestSettings) { r.timeout = d }
}

// WithHeader adds a header to one request.
func WithHeader(key, value string) RequestOption {
	return func(r *requestSettings) { r.header.Set(key, value) }
}

// NoCache bypasses the page cache for one GET.
func NoCache() RequestOption {
	return func(r *requestSettings) { r.noCache = true }
}

// Get fetches rawURL. GETs are cached when a cache is configured and
// retried on transient transport failures.
func (s *Session) Get(ctx context.Context, rawURL string, opts ...RequestOption) (*Page, error) {
	return s.do(ctx, &request{method: http.MethodGet, url: rawURL}, opts)
}

// Post submits an urlencoded body.
func (s *Session) Post(ctx context.Context, rawURL string, values url.Values, opts ...RequestOption) (*Page, error) {
	return s.PostBody(ctx, rawURL, "application/x-www-form-urlencoded", []byte(values.Encode()), opts...)
}

// PostBody submits an arbitrary body, e.g. JSON search requests.
func (s *Session) PostBody(ctx context.Context, rawURL, contentType string, body []byte, opts ...RequestOption) (*Page, error) {
	if body == nil {
		body = []byte{}
	}
	req := &request{method: http.MethodPost, url: rawURL, body: body, header: http.Header{}}
	req.header.Set("Content-Type", contentType)
	return s.do(ctx, req, opts)
}

// Submit replays form as a browser would, using the submit control chosen
// by spec (see Form.Submitter).
func (s *Session) Submit(ctx context.Context, form *Form, spec string, opts ...RequestOption) (*Page, error) {
	method, target, body, err := form.Request(spec)
	if err != nil {
		return nil, failure.InvalidFormat("submit form %d: %v", form.Index, err)
	}
	s.log.Debug().Str("method", method).Str("url", target).Str("submit", spec).Msg("Submitting form")
	if method == http.MethodGet {
		return s.Get(ctx, target, append(opts, NoCache())...)
	}
	return s.PostBody(ctx, target, "application/x-www-form-urlencoded", body, opts...)
}

// Render fetches rawURL through the configured renderer, falling back to a
// plain GET when none is configured.
func (s *Session) Render(ctx context.Context, rawURL string) (*Page, error) {
	if s.opts.Renderer == nil {
		return s.Get(ctx, rawURL)
	}
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	if s.opts.Limiter != nil {
		if err := s.opts.Limiter.Wait(ctx, rawURL); err != nil {
			return nil, err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	final, body, err := s.opts.Renderer.Render(ctx, rawURL)
	if err != nil {
		return nil, failure.Transport("render "+rawURL, err)
	}
	page := &Page{
		URL:    final,
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:   s.substitute([]byte(body)),
		mode:   s.opts.ParseMode,
	}
	s.remember(page.URL)
	return page, nil
}

// Close releases idle connections.
func (s *Session) Close() {
	s.backend.close()
}

func (s *Session) guard(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.opts.Guard != nil {
		return s.opts.Guard(ctx)
	}
	return nil
}

func (s *Session) remember(u string) {
	s.mu.Lock()
	s.last = u
	s.mu.Unlock()
}

func (s *Session) referer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Session) headers(req *request, settings *requestSettings) http.Header {
	h := http.Header{}
	h.Set("User-Agent", s.opts.UserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.8,*/*;q=0.7")
	h.Set("Accept-Language", "en-GB,en;q=0.9")
	if s.opts.Backend == BackendBrowser {
		if ref := s.referer(); ref != "" {
			h.Set("Referer", ref)
		}
		if req.method == http.MethodPost {
			if u, err := url.Parse(req.url); err == nil {
				h.Set("Origin", u.Scheme+"://"+u.Host)
			}
		}
	}
	for k, v := range s.opts.Headers {
		h.Set(k, v)
	}
	for k, vs := range req.header {
		h[k] = vs
	}
	for k, vs := range settings.header {
		h[k] = vs
	}
	if h.Get("User-Agent") == "" {
		h.Del("User-Agent")
	}
	return h
}

func (s *Session) do(ctx context.Context, req *request, opts []RequestOption) (*Page, error) {
	settings := &requestSettings{timeout: s.opts.Timeout, header: http.Header{}}
	for _, o := range opts {
		o(settings)
	}

	if err := s.guard(ctx); err != nil {
		return nil, err
	}

	cacheable := req.method == http.MethodGet && s.opts.Cache != nil && !settings.noCache
	if cacheable {
		if page, ok := s.opts.Cache.Get(req.url); ok {
			s.log.Debug().Str("url", req.url).Msg("Cache hit")
			return page, nil
		}
	}

	req.header = s.headers(req, settings)

	var resp *response
	attempt := func() error {
		var err error
		resp, err = s.roundTrip(ctx, req, settings.timeout)
		return err
	}

	var err error
	if req.method == http.MethodGet {
		err = retry.WithRetry(ctx, s.opts.Retry, attempt)
	} else {
		err = attempt()
	}
	if err != nil {
		return nil, err
	}

	page := &Page{
		URL:    resp.url,
		Status: resp.status,
		Header: resp.header,
		Body:   s.substitute(decode(resp.body, resp.header.Get("Content-Type"))),
		mode:   s.opts.ParseMode,
	}
	s.remember(page.URL)
	if cacheable {
		s.opts.Cache.Set(req.url, page)
	}
	return page, nil
}

func (s *Session) roundTrip(ctx context.Context, req *request, timeout time.Duration) (*response, error) {
	if s.opts.Limiter != nil {
		if err := s.opts.Limiter.Wait(ctx, req.url); err != nil {
			return nil, err
		}
	}

	proxyURL := s.opts.Proxies.Next()
	reqCtx, cancel := context.WithTimeout(withProxy(ctx, proxyURL), timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.backend.do(reqCtx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.opts.Proxies.MarkFailed(proxyURL)
		s.log.Debug().Err(err).Str("method", req.method).Str("url", req.url).Msg("Request failed")
		return nil, failure.Transport(req.method+" "+req.url, err)
	}
	s.opts.Proxies.MarkHealthy(proxyURL)

	s.log.Debug().
		Str("method", req.method).
		Str("url", req.url).
		Int("status", resp.status).
		Int("bytes", len(resp.body)).
		Dur("elapsed", time.Since(start)).
		Msg("Fetched")

	if resp.status < 200 || resp.status > 299 {
		return nil, failure.HTTPStatus(resp.status, req.url)
	}
	return resp, nil
}

func (s *Session) substitute(body []byte) []byte {
	for _, sub := range s.subs {
		body = sub.re.ReplaceAll(body, sub.replace)
	}
	return body
}

// decode converts textual bodies to UTF-8 using the declared or sniffed charset.
func decode(body []byte, contentType string) []byte {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if !strings.HasPrefix(mt, "text/") && !strings.Contains(mt, "html") && !strings.Contains(mt, "xml") {
			return body
		}
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return out
}
