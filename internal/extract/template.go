package extract

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

const repeatTag = "plancrawl-repeat"

// Modifiers accepted after a placeholder name.
const (
	ModHTML = "html"
	ModAbs  = "abs"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*(?:\[(\w+)\]\.)?(\w+)\s*(?:\|\s*(\w+))?\s*\}\}`)

var voidTags = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "param": true,
	"source": true, "track": true, "wbr": true,
}

type nodeKind int

const (
	elementNode nodeKind = iota
	textNode
	repeatNode
)

// capture names one placeholder.
type capture struct {
	list string
	name string
	mod  string
}

// textPattern is a run of template text with zero or more placeholders.
type textPattern struct {
	source   string
	literal  string
	caps     []capture
	anchored *regexp.Regexp
	loose    *regexp.Regexp
}

func (p *textPattern) sole() bool {
	return len(p.caps) == 1 && p.literal == ""
}

type attrPattern struct {
	key     string
	value   string
	classes []string
	pattern *textPattern
}

type tnode struct {
	kind     nodeKind
	tag      string
	attrs    []attrPattern
	children []*tnode
	text     *textPattern
}

// elements returns the element and repeat children.
func (n *tnode) elements() []*tnode {
	var out []*tnode
	for _, c := range n.children {
		if c.kind != textNode {
			out = append(out, c)
		}
	}
	return out
}

func (n *tnode) texts() []*textPattern {
	var out []*textPattern
	for _, c := range n.children {
		if c.kind == textNode {
			out = append(out, c.text)
		}
	}
	return out
}

// Template is a compiled HTML extraction template: a markup fragment with
// {{ name }} placeholders and {* ... *} repeating blocks.
type Template struct {
	src  string
	root *tnode
}

// Compile parses a template source.
func Compile(src string) (*Template, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("empty template")
	}
	if strings.Count(src, "{*") != strings.Count(src, "*}") {
		return nil, fmt.Errorf("unbalanced repeat markers in template %q", abbrev(src))
	}
	rewritten := strings.NewReplacer("{*", "<"+repeatTag+">", "*}", "</"+repeatTag+">").Replace(src)

	root := &tnode{kind: elementNode}
	stack := []*tnode{root}
	depth := 0
	z := html.NewTokenizer(strings.NewReader(rewritten))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if depth != 0 {
				return nil, fmt.Errorf("unterminated repeat block in template %q", abbrev(src))
			}
			t := &Template{src: src, root: root}
			return t, nil
		case html.TextToken:
			raw := string(z.Text())
			if strings.TrimSpace(raw) == "" {
				continue
			}
			p, err := compileText(raw)
			if err != nil {
				return nil, err
			}
			top := stack[len(stack)-1]
			top.children = append(top.children, &tnode{kind: textNode, text: p})
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			n := &tnode{kind: elementNode, tag: tok.Data}
			if tok.Data == repeatTag {
				if depth > 0 {
					return nil, fmt.Errorf("nested repeat blocks are not supported in template %q", abbrev(src))
				}
				depth++
				n.kind = repeatNode
			}
			for _, a := range tok.Attr {
				ap, err := compileAttr(a)
				if err != nil {
					return nil, err
				}
				n.attrs = append(n.attrs, ap)
			}
			top := stack[len(stack)-1]
			top.children = append(top.children, n)
			if tt == html.StartTagToken && !voidTags[tok.Data] {
				stack = append(stack, n)
			}
		case html.EndTagToken:
			tok := z.Token()
			for i := len(stack) - 1; i > 0; i-- {
				if stack[i].tag == tok.Data || (tok.Data == repeatTag && stack[i].kind == repeatNode) {
					if stack[i].kind == repeatNode {
						depth--
					}
					stack = stack[:i]
					break
				}
			}
		}
	}
}

// MustCompile is Compile that panics on error. For package-level templates.
func MustCompile(src string) *Template {
	t, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the template source.
func (t *Template) String() string {
	if t == nil {
		return ""
	}
	return t.src
}

// UnmarshalYAML compiles a template given as a YAML string.
func (t *Template) UnmarshalYAML(value *yaml.Node) error {
	var src string
	if err := value.Decode(&src); err != nil {
		return err
	}
	c, err := Compile(src)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*t = *c
	return nil
}

// MarshalYAML writes the template source back.
func (t *Template) MarshalYAML() (any, error) {
	return t.String(), nil
}

// Names lists every placeholder in the template, lists as "[list].name".
func (t *Template) Names() []string {
	var out []string
	var walk func(n *tnode)
	add := func(p *textPattern) {
		for _, c := range p.caps {
			if c.list != "" {
				out = append(out, "["+c.list+"]."+c.name)
			} else {
				out = append(out, c.name)
			}
		}
	}
	walk = func(n *tnode) {
		if n.text != nil {
			add(n.text)
		}
		for _, a := range n.attrs {
			if a.pattern != nil {
				add(a.pattern)
			}
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	if t != nil {
		walk(t.root)
	}
	return out
}

func compileAttr(a html.Attribute) (attrPattern, error) {
	ap := attrPattern{key: strings.ToLower(a.Key), value: strings.TrimSpace(a.Val)}
	if placeholderRe.MatchString(a.Val) {
		p, err := compileText(a.Val)
		if err != nil {
			return ap, err
		}
		ap.pattern = p
		return ap, nil
	}
	if ap.key == "class" {
		ap.classes = strings.Fields(ap.value)
	}
	return ap, nil
}

func compileText(raw string) (*textPattern, error) {
	p := &textPattern{source: raw}
	locs := placeholderRe.FindAllStringSubmatchIndex(raw, -1)
	var lits []string
	last := 0
	for _, loc := range locs {
		lits = append(lits, raw[last:loc[0]])
		c := capture{name: raw[loc[4]:loc[5]]}
		if loc[2] >= 0 {
			c.list = raw[loc[2]:loc[3]]
		}
		if loc[6] >= 0 {
			c.mod = strings.ToLower(raw[loc[6]:loc[7]])
			if c.mod != ModHTML && c.mod != ModAbs {
				return nil, fmt.Errorf("unknown modifier %q on %s", c.mod, c.name)
			}
		}
		p.caps = append(p.caps, c)
		last = loc[1]
	}
	lits = append(lits, raw[last:])
	p.literal = collapse(strings.Join(lits, " "))

	// Build anchored and unanchored forms: literals are whitespace-flexible,
	// captures are lazy except at the open ends of the unanchored form.
	var anchored, loose strings.Builder
	for i, lit := range lits {
		words := strings.Fields(strings.ReplaceAll(lit, "\u00a0", " "))
		for j, w := range words {
			if j > 0 {
				anchored.WriteString(`\s+`)
				loose.WriteString(`\s+`)
			}
			anchored.WriteString(regexp.QuoteMeta(w))
			loose.WriteString(regexp.QuoteMeta(w))
		}
		if i < len(p.caps) {
			anchored.WriteString(`\s*(.*?)\s*`)
			openStart := i == 0 && len(words) == 0
			openEnd := i == len(p.caps)-1 && strings.TrimSpace(lits[i+1]) == ""
			if openStart || openEnd {
				loose.WriteString(`\s*(\S+)\s*`)
			} else {
				loose.WriteString(`\s*(.*?)\s*`)
			}
		}
	}
	var err error
	if p.anchored, err = regexp.Compile(`(?is)^\s*` + anchored.String() + `\s*$`); err != nil {
		return nil, fmt.Errorf("template text %q: %w", abbrev(raw), err)
	}
	if p.loose, err = regexp.Compile(`(?is)` + loose.String()); err != nil {
		return nil, fmt.Errorf("template text %q: %w", abbrev(raw), err)
	}
	return p, nil
}

func abbrev(s string) string {
	s = collapse(s)
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}
