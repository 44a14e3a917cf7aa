package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// matchBudget bounds the work spent on one template evaluation.
const matchBudget = 1 << 20

type captured struct {
	capture
	iter  int
	value string
	node  *html.Node
}

type matcher struct {
	doc   *Doc
	caps  []captured
	iter  int
	iters int
	steps int
}

// Match evaluates the template against d. The bool is false when the
// template's structure is not found; a found structure whose placeholders
// captured nothing still matches.
func (t *Template) Match(d *Doc) (Fields, bool) {
	m, ok := t.run(d)
	if !ok {
		return nil, false
	}
	return m.fields(), true
}

// Block locates the first {{ name|html }} capture and returns a Doc scoped
// to the captured element. A template without an html capture scopes to d.
func (t *Template) Block(d *Doc) (*Doc, bool) {
	m, ok := t.run(d)
	if !ok {
		return nil, false
	}
	for _, c := range m.caps {
		if c.mod == ModHTML && c.node != nil {
			return d.Sub(c.node), true
		}
	}
	return d, true
}

func (t *Template) run(d *Doc) (*matcher, bool) {
	if t == nil || d == nil {
		return nil, false
	}
	m := &matcher{doc: d, iter: -1}
	elems := t.root.elements()
	if len(elems) > 0 {
		if _, ok := m.seq(elems, 0, 0, len(d.elems)); !ok {
			return nil, false
		}
	}
	texts := t.root.texts()
	if len(texts) > 0 {
		whole := d.Text()
		for _, p := range texts {
			if !m.looseText(p, whole) {
				return nil, false
			}
		}
	}
	return m, true
}

// seq matches nodes[i:] in order against doc elements [pos, hi), each later
// node starting after the previous match's subtree. It returns the index
// just past the last matched subtree.
func (m *matcher) seq(nodes []*tnode, i, pos, hi int) (int, bool) {
	if i == len(nodes) {
		return pos, true
	}
	n := nodes[i]
	if n.kind == repeatNode {
		return m.repeat(nodes, i, pos, hi)
	}
	for j := pos; j < hi; j++ {
		m.steps++
		if m.steps > matchBudget {
			return 0, false
		}
		mark := len(m.caps)
		if m.element(n, j) {
			if end, ok := m.seq(nodes, i+1, m.doc.end[j], hi); ok {
				return end, true
			}
		}
		m.caps = m.caps[:mark]
	}
	return 0, false
}

// repeat matches the block one or more times, greedily, then continues with
// the nodes that follow it.
func (m *matcher) repeat(nodes []*tnode, i, pos, hi int) (int, bool) {
	n := nodes[i]
	body := n.elements()
	mark := len(m.caps)
	outer := m.iter
	cur := pos
	count := 0
	for cur < hi {
		iterMark := len(m.caps)
		m.iter = m.iters
		m.iters++
		end, ok := m.seq(body, 0, cur, hi)
		if !ok || end <= cur {
			m.caps = m.caps[:iterMark]
			break
		}
		count++
		cur = end
	}
	m.iter = outer
	if count == 0 {
		m.caps = m.caps[:mark]
		return 0, false
	}
	end, ok := m.seq(nodes, i+1, cur, hi)
	if !ok {
		m.caps = m.caps[:mark]
		return 0, false
	}
	return end, true
}

// element matches template element n against doc element j.
func (m *matcher) element(n *tnode, j int) bool {
	node := m.doc.elems[j]
	if node.Data != n.tag {
		return false
	}
	for _, a := range n.attrs {
		if !m.attr(a, node) {
			return false
		}
	}
	kids := n.elements()
	texts := n.texts()
	if len(kids) == 0 {
		if len(texts) == 0 {
			return true
		}
		return m.contentText(texts, node)
	}
	if _, ok := m.seq(kids, 0, j+1, m.doc.end[j]); !ok {
		return false
	}
	if len(texts) == 0 {
		return true
	}
	own := ownTexts(node)
	k := 0
	for _, p := range texts {
		found := false
		for ; k < len(own); k++ {
			if m.text(p, own[k], node) {
				found = true
				k++
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (m *matcher) attr(a attrPattern, node *html.Node) bool {
	val, ok := attr(node, a.key)
	if !ok {
		return false
	}
	switch {
	case a.pattern != nil:
		return m.text(a.pattern, strings.TrimSpace(val), nil)
	case a.classes != nil:
		have := strings.Fields(val)
		for _, want := range a.classes {
			if !contains(have, want) {
				return false
			}
		}
		return true
	case a.value == "":
		return true
	default:
		return strings.TrimSpace(val) == a.value
	}
}

// contentText matches the text of an element that has no element children
// in the template.
func (m *matcher) contentText(texts []*textPattern, node *html.Node) bool {
	if len(texts) == 1 && texts[0].sole() {
		c := texts[0].caps[0]
		var v string
		if c.mod == ModHTML {
			v = strings.TrimSpace(innerHTML(node))
		} else {
			v = fullText(node)
		}
		m.add(c, v, node)
		return true
	}
	full := fullText(node)
	for _, p := range texts {
		if !m.text(p, full, node) {
			return false
		}
	}
	return true
}

// text matches an anchored pattern. Literal-only text needs only to be
// contained, case-insensitively.
func (m *matcher) text(p *textPattern, s string, node *html.Node) bool {
	if len(p.caps) == 0 {
		return strings.Contains(strings.ToLower(s), strings.ToLower(p.literal))
	}
	sub := p.anchored.FindStringSubmatch(s)
	if sub == nil {
		return false
	}
	for i, c := range p.caps {
		m.add(c, sub[i+1], node)
	}
	return true
}

func (m *matcher) looseText(p *textPattern, s string) bool {
	if len(p.caps) == 0 {
		return strings.Contains(strings.ToLower(s), strings.ToLower(p.literal))
	}
	sub := p.loose.FindStringSubmatch(s)
	if sub == nil {
		return false
	}
	for i, c := range p.caps {
		m.add(c, sub[i+1], nil)
	}
	return true
}

func (m *matcher) add(c capture, v string, node *html.Node) {
	v = strings.TrimSpace(v)
	if c.mod == ModAbs {
		v = m.doc.resolve(v)
	}
	m.caps = append(m.caps, captured{capture: c, iter: m.iter, value: v, node: node})
}

// fields folds captures into a map. Plain names keep their first value;
// list captures group by repeat iteration.
func (m *matcher) fields() Fields {
	out := Fields{}
	lists := map[string][]Fields{}
	slots := map[string]map[int]int{}
	var order []string
	for _, c := range m.caps {
		if c.list == "" {
			if _, ok := out[c.name]; !ok {
				out[c.name] = c.value
			}
			continue
		}
		byIter, ok := slots[c.list]
		if !ok {
			byIter = map[int]int{}
			slots[c.list] = byIter
			order = append(order, c.list)
		}
		idx, ok := byIter[c.iter]
		if !ok {
			idx = len(lists[c.list])
			byIter[c.iter] = idx
			lists[c.list] = append(lists[c.list], Fields{})
		}
		if _, ok := lists[c.list][idx][c.name]; !ok {
			lists[c.list][idx][c.name] = c.value
		}
	}
	for _, name := range order {
		out[name] = lists[name]
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
