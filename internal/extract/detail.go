package extract

import (
	"github.com/law-makers/plancrawl/internal/failure"
)

// Detail declares how one detail page is read: an optional envelope that
// scopes extraction, a template whose fields are all required, and any
// number of independent optional templates.
type Detail struct {
	Block    *Template   `yaml:"block,omitempty"`
	Min      *Template   `yaml:"min,omitempty"`
	Optional []*Template `yaml:"optional,omitempty"`
}

// Empty reports whether nothing is declared.
func (d Detail) Empty() bool {
	return d.Block == nil && d.Min == nil && len(d.Optional) == 0
}

// Extract applies the declaration to doc. A missing envelope or a failed
// minimum template is INVALID_FORMAT. Optional templates never fail.
func (d Detail) Extract(doc *Doc) (Fields, error) {
	scope := doc
	if d.Block != nil {
		var ok bool
		if scope, ok = d.Block.Block(doc); !ok {
			return nil, failure.InvalidFormat("data block not found")
		}
	}
	out := Fields{}
	if d.Min != nil {
		f, ok := d.Min.Match(scope)
		if !ok {
			return nil, failure.InvalidFormat("minimum fields not found")
		}
		out.Merge(f)
	}
	for _, t := range d.Optional {
		if f, ok := t.Match(scope); ok {
			out.Merge(f)
		}
	}
	return out, nil
}

// Matches reports whether t is declared and matches doc.
func Matches(t *Template, doc *Doc) bool {
	if t == nil {
		return false
	}
	_, ok := t.Match(doc)
	return ok
}
