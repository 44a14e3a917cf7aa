package session

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Option is one <option> of a select control.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// Control is a single form control. Radio buttons and checkboxes sharing a
// name are separate controls.
type Control struct {
	Name     string
	ID       string
	Type     string
	Value    string
	Options  []Option
	Multiple bool
	Checked  bool
	Disabled bool
	ReadOnly bool
	// Synthetic marks hidden controls inserted by the caller.
	Synthetic bool
}

// IsSubmit reports whether the control can submit its form.
func (c *Control) IsSubmit() bool {
	switch c.Type {
	case "submit", "image":
		return true
	}
	return false
}

func (c *Control) selected() []string {
	var out []string
	for _, o := range c.Options {
		if o.Selected {
			out = append(out, o.Value)
		}
	}
	if len(out) == 0 && !c.Multiple && len(c.Options) > 0 {
		out = append(out, c.Options[0].Value)
	}
	return out
}

// Form is a discovered HTML form with resolved action.
type Form struct {
	Index    int
	Name     string
	ID       string
	Action   string
	Method   string
	Enctype  string
	Controls []*Control
}

// Clone returns a deep copy of the form.
func (f *Form) Clone() *Form {
	out := *f
	out.Controls = make([]*Control, len(f.Controls))
	for i, c := range f.Controls {
		cc := *c
		cc.Options = append([]Option(nil), c.Options...)
		out.Controls[i] = &cc
	}
	return &out
}

// Control finds a control by name, or by DOM id when key starts with "#".
func (f *Form) Control(key string) *Control {
	if id, ok := strings.CutPrefix(key, "#"); ok {
		for _, c := range f.Controls {
			if c.ID == id {
				return c
			}
		}
		return nil
	}
	for _, c := range f.Controls {
		if c.Name == key {
			return c
		}
	}
	return nil
}

func (f *Form) named(name string) []*Control {
	var out []*Control
	for _, c := range f.Controls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Set assigns a control value. Keys are a control name, "#id" for a DOM id,
// or "@name" to pick a select option by its visible label. A nil value
// disables the control. Read-only controls are made writable. Assigning a
// name the form lacks inserts a synthetic hidden control.
func (f *Form) Set(key string, value any) error {
	if value == nil {
		c := f.Control(strings.TrimPrefix(key, "@"))
		if c == nil {
			return nil
		}
		for _, same := range f.named(c.Name) {
			same.Disabled = true
		}
		if c.Name == "" {
			c.Disabled = true
		}
		return nil
	}

	if name, ok := strings.CutPrefix(key, "@"); ok {
		label, err := scalar(value)
		if err != nil {
			return fmt.Errorf("@%s: %w", name, err)
		}
		c := f.Control(name)
		if c == nil || len(c.Options) == 0 {
			return fmt.Errorf("no select control %q for label %q", name, label)
		}
		idx := matchLabel(c.Options, label)
		if idx < 0 {
			return fmt.Errorf("no option labelled %q in %q", label, name)
		}
		return f.assign(c, []string{c.Options[idx].Value})
	}

	values, err := list(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	c := f.Control(key)
	if c == nil {
		if strings.HasPrefix(key, "#") {
			return fmt.Errorf("no control with id %q", key)
		}
		for _, v := range values {
			f.Controls = append(f.Controls, &Control{Name: key, Type: "hidden", Value: v, Synthetic: true})
		}
		return nil
	}
	return f.assign(c, values)
}

func (f *Form) assign(c *Control, values []string) error {
	c.ReadOnly = false
	c.Disabled = false

	switch c.Type {
	case "radio", "checkbox":
		group := f.named(c.Name)
		if c.Name == "" {
			group = []*Control{c}
		}
		for _, g := range group {
			g.Checked = false
			g.Disabled = false
			for _, v := range values {
				if g.Value == v || (g.Value == "" && v == "on") {
					g.Checked = true
				}
			}
		}
		return nil
	case "select":
		if len(values) > 1 && !c.Multiple {
			return fmt.Errorf("select %q takes a single value", c.Name)
		}
		for i := range c.Options {
			c.Options[i].Selected = false
			for _, v := range values {
				if c.Options[i].Value == v {
					c.Options[i].Selected = true
				}
			}
		}
		// Options populated by script are unknown to the parser
		for _, v := range values {
			if !hasOption(c.Options, v) {
				c.Options = append(c.Options, Option{Value: v, Label: v, Selected: true})
			}
		}
		return nil
	}

	if len(values) != 1 {
		return fmt.Errorf("control %q takes a single value", c.Name)
	}
	c.Value = values[0]
	return nil
}

func hasOption(opts []Option, v string) bool {
	for _, o := range opts {
		if o.Value == v {
			return true
		}
	}
	return false
}

// Submitter picks the control used to submit: "" for the first submit
// control, "#id", a zero-based index among submit controls, or a name.
// A nil control with nil error means the form has no submit control and
// is submitted without one.
func (f *Form) Submitter(spec string) (*Control, error) {
	var submits []*Control
	for _, c := range f.Controls {
		if c.IsSubmit() {
			submits = append(submits, c)
		}
	}

	switch {
	case spec == "":
		if len(submits) == 0 {
			return nil, nil
		}
		return submits[0], nil
	case strings.HasPrefix(spec, "#"):
		id := spec[1:]
		for _, c := range submits {
			if c.ID == id {
				return c, nil
			}
		}
	default:
		if n, err := strconv.Atoi(spec); err == nil {
			if n >= 0 && n < len(submits) {
				return submits[n], nil
			}
			return nil, fmt.Errorf("submit index %d out of range (%d submit controls)", n, len(submits))
		}
		for _, c := range submits {
			if c.Name == spec {
				return c, nil
			}
		}
	}
	return nil, fmt.Errorf("no submit control %q", spec)
}

// Values returns the successful controls of the form as submitted by submitter.
func (f *Form) Values(submitter *Control) url.Values {
	out := url.Values{}
	for _, c := range f.Controls {
		if c.Disabled || c.Name == "" {
			continue
		}
		switch c.Type {
		case "submit", "button", "reset":
			if c == submitter {
				out.Add(c.Name, c.Value)
			}
		case "image":
			if c == submitter {
				out.Add(c.Name+".x", "1")
				out.Add(c.Name+".y", "1")
			}
		case "radio", "checkbox":
			if c.Checked {
				v := c.Value
				if v == "" {
					v = "on"
				}
				out.Add(c.Name, v)
			}
		case "select":
			for _, v := range c.selected() {
				out.Add(c.Name, v)
			}
		case "file":
		default:
			out.Add(c.Name, c.Value)
		}
	}
	return out
}

// Request returns the method, URL and urlencoded body for submitting the
// form. GET forms carry the values in the query and have a nil body.
func (f *Form) Request(spec string) (method, target string, body []byte, err error) {
	submitter, err := f.Submitter(spec)
	if err != nil {
		return "", "", nil, err
	}
	values := f.Values(submitter)

	method = strings.ToUpper(f.Method)
	if method != "POST" {
		method = "GET"
	}
	if method == "GET" {
		u, err := url.Parse(f.Action)
		if err != nil {
			return "", "", nil, fmt.Errorf("form action %q: %w", f.Action, err)
		}
		u.RawQuery = values.Encode()
		return method, u.String(), nil, nil
	}
	return method, f.Action, []byte(values.Encode()), nil
}

// String renders the form for debugging.
func (f *Form) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s %s", strings.ToUpper(orDefault(f.Method, "GET")), f.Action)
	if f.Name != "" {
		fmt.Fprintf(&b, " name=%s", f.Name)
	}
	if f.ID != "" {
		fmt.Fprintf(&b, " id=%s", f.ID)
	}
	b.WriteString(">\n")
	for _, c := range f.Controls {
		fmt.Fprintf(&b, "  <%s %s", c.Type, c.Name)
		if c.ID != "" {
			fmt.Fprintf(&b, " #%s", c.ID)
		}
		switch {
		case c.Type == "select":
			fmt.Fprintf(&b, "=%v (%d options)", c.selected(), len(c.Options))
		case c.Type == "radio" || c.Type == "checkbox":
			fmt.Fprintf(&b, "=%s checked=%t", c.Value, c.Checked)
		default:
			fmt.Fprintf(&b, "=%q", c.Value)
		}
		if c.Disabled {
			b.WriteString(" disabled")
		}
		if c.ReadOnly {
			b.WriteString(" readonly")
		}
		if c.Synthetic {
			b.WriteString(" synthetic")
		}
		b.WriteString(">\n")
	}
	return b.String()
}

// Describe renders every form for debug logging.
func Describe(forms []*Form) string {
	var b strings.Builder
	for _, f := range forms {
		fmt.Fprintf(&b, "[%d] %s", f.Index, f)
	}
	return b.String()
}

func selectForm(forms []*Form, selector string) *Form {
	if len(forms) == 0 {
		return nil
	}
	if selector == "" {
		return forms[0]
	}
	if id, ok := strings.CutPrefix(selector, "#"); ok {
		for _, f := range forms {
			if f.ID == id {
				return f
			}
		}
		return nil
	}
	if n, err := strconv.Atoi(selector); err == nil {
		if n >= 0 && n < len(forms) {
			return forms[n]
		}
		return nil
	}
	for _, f := range forms {
		if f.Name == selector {
			return f
		}
	}
	return nil
}

func scalar(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case int, int64, float64, bool:
		return fmt.Sprint(t), nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}

func list(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, err := scalar(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
	s, err := scalar(v)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// parseForms scans the token stream rather than the parsed tree: markup
// like <table><form><tr>... leaves controls outside the form element in an
// HTML5 tree, but the tokens still arrive between <form> and </form>.
// Nested <form> start tags are ignored, as browsers do.
func parseForms(body []byte, base string) []*Form {
	var (
		forms   []*Form
		current *Form
		sel     *Control
		opt     *pendingOption
		area    *Control
		text    strings.Builder
	)

	finishOption := func() {
		if sel != nil && opt != nil {
			label := strings.Join(strings.Fields(text.String()), " ")
			if opt.Label == "" {
				opt.Label = label
			}
			if !opt.hasValue {
				opt.Value = label
			}
			sel.Options = append(sel.Options, opt.Option)
		}
		opt = nil
		text.Reset()
	}

	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := z.Token()

		switch tt {
		case html.TextToken:
			if opt != nil || area != nil {
				text.WriteString(tok.Data)
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			attrs := attrMap(tok.Attr)
			switch tok.DataAtom {
			case atom.Form:
				if current != nil {
					continue
				}
				current = &Form{
					Index:   len(forms),
					Name:    attrs["name"],
					ID:      attrs["id"],
					Action:  resolve(base, attrs["action"]),
					Method:  strings.ToUpper(orDefault(attrs["method"], "GET")),
					Enctype: orDefault(attrs["enctype"], "application/x-www-form-urlencoded"),
				}
				forms = append(forms, current)
			case atom.Input:
				if current == nil {
					continue
				}
				typ := strings.ToLower(orDefault(attrs["type"], "text"))
				c := newControl(attrs, typ)
				c.Value = attrs["value"]
				if typ == "checkbox" || typ == "radio" {
					_, c.Checked = attrs["checked"]
				}
				if typ == "submit" && !hasAttr(tok.Attr, "value") {
					c.Value = "Submit"
				}
				current.Controls = append(current.Controls, c)
			case atom.Button:
				if current == nil {
					continue
				}
				typ := strings.ToLower(orDefault(attrs["type"], "submit"))
				c := newControl(attrs, typ)
				c.Value = attrs["value"]
				current.Controls = append(current.Controls, c)
			case atom.Select:
				if current == nil {
					continue
				}
				sel = newControl(attrs, "select")
				_, sel.Multiple = attrs["multiple"]
				current.Controls = append(current.Controls, sel)
			case atom.Option:
				finishOption()
				if sel == nil {
					continue
				}
				opt = &pendingOption{Option: Option{Label: attrs["label"]}}
				opt.Value, opt.hasValue = attrs["value"]
				_, opt.Selected = attrs["selected"]
			case atom.Textarea:
				if current == nil {
					continue
				}
				area = newControl(attrs, "textarea")
				text.Reset()
				current.Controls = append(current.Controls, area)
			}
		case html.EndTagToken:
			switch tok.DataAtom {
			case atom.Form:
				finishOption()
				current, sel = nil, nil
			case atom.Option:
				finishOption()
			case atom.Select:
				finishOption()
				sel = nil
			case atom.Textarea:
				if area != nil {
					area.Value = strings.TrimPrefix(text.String(), "\n")
					area = nil
					text.Reset()
				}
			}
		}
	}
	finishOption()
	return forms
}

// pendingOption remembers whether the value attribute was present, since an
// explicit empty value differs from a missing one.
type pendingOption struct {
	Option
	hasValue bool
}

func newControl(attrs map[string]string, typ string) *Control {
	c := &Control{
		Name: attrs["name"],
		ID:   attrs["id"],
		Type: typ,
	}
	_, c.Disabled = attrs["disabled"]
	_, c.ReadOnly = attrs["readonly"]
	return c
}

func attrMap(attrs []html.Attribute) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[strings.ToLower(a.Key)] = a.Val
	}
	return m
}

func hasAttr(attrs []html.Attribute, key string) bool {
	for _, a := range attrs {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}
