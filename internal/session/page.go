package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ParseMode selects how response markup is parsed.
type ParseMode string

const (
	// ParseSoup is the default lenient HTML5 parse.
	ParseSoup ParseMode = "soup"
	// ParseTree parses with scripting disabled, so <noscript> content is
	// exposed as markup rather than raw text.
	ParseTree ParseMode = "etree"
)

// Page is a fetched, decoded and pre-processed response.
type Page struct {
	URL    string
	Status int
	Header http.Header
	// Body is UTF-8 text after any configured substitutions.
	Body []byte

	mode ParseMode

	docOnce sync.Once
	doc     *goquery.Document
	docErr  error

	formsOnce sync.Once
	forms     []*Form
}

// NewPage builds a page from raw content. It is mainly used by tests and by
// rendered fetches that bypass the HTTP backends.
func NewPage(rawURL string, body []byte) *Page {
	return &Page{URL: rawURL, Status: http.StatusOK, Header: http.Header{}, Body: body, mode: ParseSoup}
}

// Text returns the body as a string.
func (p *Page) Text() string {
	return string(p.Body)
}

// IsJSON reports whether the response declared a JSON content type or looks like JSON.
func (p *Page) IsJSON() bool {
	if mt, _, err := mime.ParseMediaType(p.Header.Get("Content-Type")); err == nil {
		if mt == "application/json" || strings.HasSuffix(mt, "+json") {
			return true
		}
	}
	trimmed := bytes.TrimSpace(p.Body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// JSON decodes the body into v.
func (p *Page) JSON(v any) error {
	if err := json.Unmarshal(p.Body, v); err != nil {
		return fmt.Errorf("decode JSON from %s: %w", p.URL, err)
	}
	return nil
}

// Document returns the parsed HTML document.
func (p *Page) Document() (*goquery.Document, error) {
	p.docOnce.Do(func() {
		var opts []html.ParseOption
		if p.mode == ParseTree {
			opts = append(opts, html.ParseOptionEnableScripting(false))
		}
		root, err := html.ParseWithOptions(bytes.NewReader(p.Body), opts...)
		if err != nil {
			p.docErr = fmt.Errorf("failed to parse HTML from %s: %w", p.URL, err)
			return
		}
		p.doc = goquery.NewDocumentFromNode(root)
		if u, err := url.Parse(p.URL); err == nil {
			p.doc.Url = u
		}
	})
	return p.doc, p.docErr
}

// Base returns the URL relative references on the page resolve against,
// honouring a <base href> element.
func (p *Page) Base() string {
	doc, err := p.Document()
	if err != nil {
		return p.URL
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		return resolve(p.URL, strings.TrimSpace(href))
	}
	return p.URL
}

// Resolve makes ref absolute against the page base.
func (p *Page) Resolve(ref string) string {
	return resolve(p.Base(), ref)
}

// Forms returns the page's forms in document order. Forms are discovered
// once; callers receive copies they may modify freely.
func (p *Page) Forms() []*Form {
	p.formsOnce.Do(func() {
		p.forms = parseForms(p.Body, p.Base())
	})
	out := make([]*Form, len(p.forms))
	for i, f := range p.forms {
		out[i] = f.Clone()
	}
	return out
}

// Form selects a form by zero-based index ("0"), DOM id ("#id") or name.
// An empty selector picks the first form.
func (p *Page) Form(selector string) (*Form, error) {
	forms := p.Forms()
	f := selectForm(forms, selector)
	if f == nil {
		return nil, fmt.Errorf("no form matching %q on %s (%d forms)", selector, p.URL, len(forms))
	}
	return f, nil
}

func resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return base
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
