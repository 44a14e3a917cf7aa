// Package extract evaluates declarative templates against HTML and JSON
// responses to produce field maps.
package extract

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/law-makers/plancrawl/internal/session"
)

// Doc is an HTML tree indexed for template matching: elements in preorder,
// each with the index just past its last descendant.
type Doc struct {
	root  *html.Node
	base  *url.URL
	elems []*html.Node
	end   []int
	index map[*html.Node]int
}

// NewDoc indexes the tree rooted at root. Relative URLs captured with |abs
// resolve against base.
func NewDoc(root *html.Node, base string) *Doc {
	d := &Doc{root: root, index: make(map[*html.Node]int)}
	if u, err := url.Parse(base); err == nil {
		d.base = u
	}
	d.walk(root)
	return d
}

// ParseDoc parses markup into a Doc.
func ParseDoc(body []byte, base string) (*Doc, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return NewDoc(root, base), nil
}

// FromPage indexes a fetched page.
func FromPage(p *session.Page) (*Doc, error) {
	gq, err := p.Document()
	if err != nil {
		return nil, err
	}
	if len(gq.Nodes) == 0 {
		return ParseDoc(p.Body, p.Base())
	}
	return NewDoc(gq.Nodes[0], p.Base()), nil
}

func (d *Doc) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		i := len(d.elems)
		d.elems = append(d.elems, n)
		d.end = append(d.end, 0)
		d.index[n] = i
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			d.walk(c)
		}
		d.end[i] = len(d.elems)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.walk(c)
	}
}

// Sub returns a Doc scoped to n and its descendants.
func (d *Doc) Sub(n *html.Node) *Doc {
	base := ""
	if d.base != nil {
		base = d.base.String()
	}
	return NewDoc(n, base)
}

// Base returns the base URL string.
func (d *Doc) Base() string {
	if d.base == nil {
		return ""
	}
	return d.base.String()
}

// Text returns the normalised text of the whole document.
func (d *Doc) Text() string {
	return fullText(d.root)
}

// HTML renders the document root.
func (d *Doc) HTML() string {
	return renderNode(d.root)
}

func (d *Doc) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if d.base == nil || ref == "" {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return d.base.ResolveReference(r).String()
}

var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Tr: true, atom.Td: true,
	atom.Th: true, atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Table: true,
	atom.Tbody: true, atom.Thead: true, atom.Tfoot: true, atom.H1: true, atom.H2: true,
	atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true, atom.Dt: true,
	atom.Dd: true, atom.Dl: true, atom.Section: true, atom.Article: true,
	atom.Header: true, atom.Footer: true, atom.Form: true, atom.Option: true,
	atom.Hr: true, atom.Caption: true, atom.Label: true,
}

// fullText concatenates descendant text, separating block-level elements,
// and collapses whitespace.
func fullText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
			if blockAtoms[n.DataAtom] {
				b.WriteByte(' ')
				defer b.WriteByte(' ')
			}
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapse(b.String())
}

// ownTexts returns the non-empty direct text children of n, normalised.
func ownTexts(n *html.Node) []string {
	var out []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			if s := collapse(c.Data); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func innerHTML(n *html.Node) string {
	var b bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&b, c)
	}
	return b.String()
}

func renderNode(n *html.Node) string {
	var b bytes.Buffer
	_ = html.Render(&b, n)
	return b.String()
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// collapse folds runs of whitespace (including non-breaking spaces) into a
// single space and trims the ends.
func collapse(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " ")
}
