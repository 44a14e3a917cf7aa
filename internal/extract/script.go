package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultScriptTimeout bounds inline script evaluation.
const DefaultScriptTimeout = 2 * time.Second

// Scripts evaluates a page's inline scripts so that values they compute
// (typically form parameters filled in client side) can be read back with
// JavaScript expressions.
type Scripts struct {
	vm      *goja.Runtime
	timeout time.Duration
}

// RunScripts executes every inline <script> in d inside a minimal window
// stub. Script errors are ignored: most page scripts expect a real DOM.
func RunScripts(d *Doc, timeout time.Duration) *Scripts {
	if timeout <= 0 {
		timeout = DefaultScriptTimeout
	}
	vm := goja.New()
	vm.Set("window", vm.GlobalObject())
	vm.Set("self", vm.GlobalObject())
	loc := map[string]any{"href": d.Base()}
	vm.Set("location", loc)
	vm.Set("document", map[string]any{
		"location": loc,
		"getElementById": func(goja.FunctionCall) goja.Value {
			return goja.Null()
		},
	})
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	vm.Set("console", map[string]any{"log": noop, "warn": noop, "error": noop})

	s := &Scripts{vm: vm, timeout: timeout}
	for _, n := range d.elems {
		if n.DataAtom != atom.Script {
			continue
		}
		if _, ok := attr(n, "src"); ok {
			continue
		}
		src := scriptText(n)
		if strings.TrimSpace(src) == "" {
			continue
		}
		if _, err := s.run(src); err != nil {
			log.Debug().Err(err).Str("url", d.Base()).Msg("Inline script failed")
		}
	}
	return s
}

// Eval evaluates expr and returns its string form. Undefined and null
// results are errors.
func (s *Scripts) Eval(expr string) (string, error) {
	v, err := s.run(expr)
	if err != nil {
		return "", fmt.Errorf("evaluate %q: %w", expr, err)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", fmt.Errorf("evaluate %q: no value", expr)
	}
	return v.String(), nil
}

func (s *Scripts) run(src string) (goja.Value, error) {
	timer := time.AfterFunc(s.timeout, func() {
		s.vm.Interrupt("script timeout")
	})
	defer timer.Stop()
	v, err := s.vm.RunString(src)
	s.vm.ClearInterrupt()
	return v, err
}

func scriptText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
