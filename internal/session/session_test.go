package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/law-makers/plancrawl/internal/failure"
)

func newTestSession(t *testing.T, backend string, opts Options) *Session {
	t.Helper()
	opts.Backend = backend
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func backends() []string {
	return []string{BackendBrowser, BackendPlain}
}

func TestSessionCookiesAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/set":
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc", Path: "/"})
			fmt.Fprint(w, "ok")
		case "/echo":
			var parts []string
			for _, c := range r.Cookies() {
				parts = append(parts, c.Name+"="+c.Value)
			}
			fmt.Fprintf(w, "cookies=%s;x=%s;ua=%s", strings.Join(parts, ","), r.Header.Get("X-Authority"), r.Header.Get("User-Agent"))
		}
	}))
	defer server.Close()

	for _, backend := range backends() {
		t.Run(backend, func(t *testing.T) {
			s := newTestSession(t, backend, Options{
				BaseURL:   server.URL,
				UserAgent: "plancrawl-test",
				Headers:   map[string]string{"X-Authority": "Testshire"},
				Cookies:   []Cookie{{Name: "disclaimer", Value: "accepted"}},
			})
			ctx := context.Background()

			if _, err := s.Get(ctx, server.URL+"/set"); err != nil {
				t.Fatalf("Get /set: %v", err)
			}
			page, err := s.Get(ctx, server.URL+"/echo")
			if err != nil {
				t.Fatalf("Get /echo: %v", err)
			}
			body := page.Text()
			for _, want := range []string{"disclaimer=accepted", "JSESSIONID=abc", "x=Testshire", "ua=plancrawl-test"} {
				if !strings.Contains(body, want) {
					t.Errorf("expected %q in %q", want, body)
				}
			}
		})
	}
}

func TestSessionNon2xxIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	for _, backend := range backends() {
		t.Run(backend, func(t *testing.T) {
			s := newTestSession(t, backend, Options{})
			_, err := s.Get(context.Background(), server.URL)
			if failure.KindOf(err) != failure.KindTransport {
				t.Fatalf("expected TRANSPORT, got %v", err)
			}
			var fe *failure.Error
			if !errors.As(err, &fe) || fe.Status != http.StatusNotFound {
				t.Errorf("expected status 404 on error, got %v", err)
			}
		})
	}
}

func TestSessionPerRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	s := newTestSession(t, BackendBrowser, Options{Timeout: 5 * time.Second})
	start := time.Now()
	_, err := s.Get(context.Background(), server.URL, WithTimeout(50*time.Millisecond))
	if failure.KindOf(err) != failure.KindTransport {
		t.Fatalf("expected TRANSPORT, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("per-request timeout was not applied")
	}
}

func TestSessionSubstitutionsAndCharset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("<html><body><script>bad()</script><p>Caf\xe9</p></body></html>"))
	}))
	defer server.Close()

	s := newTestSession(t, BackendBrowser, Options{
		Substitutions: []Substitution{{Pattern: `(?s)<script>.*?</script>`, Replace: ""}},
	})
	page, err := s.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(page.Text(), "script") {
		t.Errorf("substitution not applied: %q", page.Text())
	}
	if !strings.Contains(page.Text(), "Café") {
		t.Errorf("expected decoded text, got %q", page.Text())
	}
}

func TestSessionGuardBlocksRequests(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	s := newTestSession(t, BackendBrowser, Options{
		Guard: func(context.Context) error { return failure.Blackout("Testshire") },
	})
	_, err := s.Get(context.Background(), server.URL)
	if failure.KindOf(err) != failure.KindBlackout {
		t.Fatalf("expected BLACKOUT, got %v", err)
	}
	if hits != 0 {
		t.Errorf("guarded request reached the server")
	}
}

func TestSessionTLSProfile(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "secure")
	}))
	defer server.Close()
	u, _ := url.Parse(server.URL)

	strict := newTestSession(t, BackendBrowser, Options{})
	if _, err := strict.Get(context.Background(), server.URL); failure.KindOf(err) != failure.KindTransport {
		t.Fatalf("expected TLS failure to be TRANSPORT, got %v", err)
	}

	relaxed := newTestSession(t, BackendBrowser, Options{
		TLS: []TLSProfile{{Host: u.Hostname(), Insecure: true}},
	})
	page, err := relaxed.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("expected insecure profile to connect: %v", err)
	}
	if page.Text() != "secure" {
		t.Errorf("unexpected body %q", page.Text())
	}
}

func TestSessionSubmit(t *testing.T) {
	var got url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `<html><body>
				<form id="search" method="post" action="/results">
					<input type="text" name="date_from" value="">
					<input type="hidden" name="token" value="t1">
					<input type="submit" name="go" value="Search">
					<input type="submit" name="reset" value="Clear">
				</form></body></html>`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		got, _ = url.ParseQuery(string(body))
		fmt.Fprint(w, "results")
	}))
	defer server.Close()

	for _, backend := range backends() {
		t.Run(backend, func(t *testing.T) {
			s := newTestSession(t, backend, Options{})
			ctx := context.Background()
			page, err := s.Get(ctx, server.URL+"/search")
			if err != nil {
				t.Fatal(err)
			}
			form, err := page.Form("#search")
			if err != nil {
				t.Fatal(err)
			}
			if err := form.Set("date_from", "13/09/2012"); err != nil {
				t.Fatal(err)
			}
			res, err := s.Submit(ctx, form, "go")
			if err != nil {
				t.Fatal(err)
			}
			if res.Text() != "results" {
				t.Errorf("unexpected response %q", res.Text())
			}
			want := url.Values{"date_from": {"13/09/2012"}, "token": {"t1"}, "go": {"Search"}}
			if got.Encode() != want.Encode() {
				t.Errorf("posted %v, want %v", got, want)
			}
		})
	}
}

func TestSessionCacheServesRepeatGets(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, "detail")
	}))
	defer server.Close()

	c := NewCache(16, time.Minute)
	defer c.Close()
	s := newTestSession(t, BackendBrowser, Options{Cache: c})
	for i := 0; i < 3; i++ {
		if _, err := s.Get(context.Background(), server.URL); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Get(context.Background(), server.URL, NoCache()); err != nil {
		t.Fatal(err)
	}
	if hits != 2 {
		t.Errorf("expected 2 upstream hits, got %d", hits)
	}
}
