package session

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

// TLSProfile relaxes or pins TLS settings for one host. Broken authority
// certificates and legacy protocol versions are handled here rather than
// by changing process-wide defaults.
type TLSProfile struct {
	Host       string `yaml:"host" json:"host"`
	Insecure   bool   `yaml:"insecure" json:"insecure,omitempty"`
	MinVersion string `yaml:"min_version" json:"min_version,omitempty"`
	MaxVersion string `yaml:"max_version" json:"max_version,omitempty"`
}

func tlsVersion(v string) (uint16, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(v)), "tls") {
	case "":
		return 0, nil
	// SSLv3 is not implemented by crypto/tls; the oldest usable version stands in
	case "ssl3", "sslv3", "1.0", "1", "v1":
		return tls.VersionTLS10, nil
	case "1.1", "v1.1":
		return tls.VersionTLS11, nil
	case "1.2", "v1.2":
		return tls.VersionTLS12, nil
	case "1.3", "v1.3":
		return tls.VersionTLS13, nil
	}
	return 0, fmt.Errorf("unknown TLS version %q", v)
}

func (p TLSProfile) config() (*tls.Config, error) {
	minV, err := tlsVersion(p.MinVersion)
	if err != nil {
		return nil, err
	}
	maxV, err := tlsVersion(p.MaxVersion)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		InsecureSkipVerify: p.Insecure, //nolint:gosec // per-authority opt-in
		MinVersion:         minV,
		MaxVersion:         maxV,
	}, nil
}

type proxyKey struct{}

func withProxy(ctx context.Context, proxy string) context.Context {
	if proxy == "" {
		return ctx
	}
	return context.WithValue(ctx, proxyKey{}, proxy)
}

// proxyFor routes a request through the proxy chosen by the session for it.
func proxyFor(req *http.Request) (*url.URL, error) {
	if p, ok := req.Context().Value(proxyKey{}).(string); ok && p != "" {
		return url.Parse(p)
	}
	return http.ProxyFromEnvironment(req)
}

func newTransport(tlsConfig *tls.Config) *http.Transport {
	return &http.Transport{
		Proxy: proxyFor,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       tlsConfig,
		TLSHandshakeTimeout:   15 * time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// hostRouter sends each request through the transport mounted for its host.
type hostRouter struct {
	fallback http.RoundTripper
	hosts    map[string]http.RoundTripper
}

func (h *hostRouter) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt, ok := h.hosts[strings.ToLower(req.URL.Hostname())]; ok {
		return rt.RoundTrip(req)
	}
	return h.fallback.RoundTrip(req)
}

func (h *hostRouter) closeIdle() {
	closeIdle(h.fallback)
	for _, rt := range h.hosts {
		closeIdle(rt)
	}
}

func closeIdle(rt http.RoundTripper) {
	if c, ok := rt.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

func buildRoundTripper(profiles []TLSProfile, cloudflare bool) (*hostRouter, http.RoundTripper, error) {
	router := &hostRouter{
		fallback: newTransport(nil),
		hosts:    make(map[string]http.RoundTripper, len(profiles)),
	}
	for _, p := range profiles {
		cfg, err := p.config()
		if err != nil {
			return nil, nil, fmt.Errorf("tls profile for %s: %w", p.Host, err)
		}
		router.hosts[strings.ToLower(p.Host)] = newTransport(cfg)
	}

	var rt http.RoundTripper = router
	if cloudflare {
		rt = cloudflarebp.AddCloudFlareByPass(rt)
	}
	return router, rt, nil
}

// request is the backend-neutral form of one HTTP exchange.
type request struct {
	method string
	url    string
	header http.Header
	body   []byte
}

type response struct {
	url    string
	status int
	header http.Header
	body   []byte
}

// backend performs raw exchanges. Both implementations share the cookie jar
// and round tripper built by the session.
type backend interface {
	do(ctx context.Context, req *request) (*response, error)
	close()
}

// browserBackend is a net/http client that behaves like a browser: redirects
// are followed and cookies persisted.
type browserBackend struct {
	client *http.Client
	router *hostRouter
}

func newBrowserBackend(jar *cookiejar.Jar, router *hostRouter, rt http.RoundTripper) *browserBackend {
	return &browserBackend{
		client: &http.Client{Jar: jar, Transport: rt},
		router: router,
	}
}

func (b *browserBackend) do(ctx context.Context, req *request) (*response, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return &response{
		url:    resp.Request.URL.String(),
		status: resp.StatusCode,
		header: resp.Header,
		body:   data,
	}, nil
}

func (b *browserBackend) close() {
	b.router.closeIdle()
}

// plainBackend is a resty client. Adapters using it usually build request
// bodies themselves, but the form engine works over it too.
type plainBackend struct {
	client *resty.Client
	router *hostRouter
}

func newPlainBackend(jar *cookiejar.Jar, router *hostRouter, rt http.RoundTripper) *plainBackend {
	client := resty.New()
	client.SetCookieJar(jar)
	client.SetTransport(rt)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	return &plainBackend{client: client, router: router}
}

func (b *plainBackend) do(ctx context.Context, req *request) (*response, error) {
	r := b.client.R().SetContext(ctx)
	for k, vs := range req.header {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	if req.body != nil {
		r.SetBody(req.body)
	}

	res, err := r.Execute(req.method, req.url)
	if err != nil {
		return nil, err
	}

	final := req.url
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		final = res.RawResponse.Request.URL.String()
	}
	return &response{
		url:    final,
		status: res.StatusCode(),
		header: res.Header(),
		body:   res.Body(),
	}, nil
}

func (b *plainBackend) close() {
	b.router.closeIdle()
}
