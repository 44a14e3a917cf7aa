package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/law-makers/plancrawl/internal/extract"
	"github.com/law-makers/plancrawl/internal/failure"
	"github.com/law-makers/plancrawl/internal/session"
	"github.com/law-makers/plancrawl/pkg/models"
)

// JSONSite is a date adapter over a JSON search API, optionally with a
// JSON detail endpoint.
type JSONSite struct {
	*Site
}

type searchQuery struct {
	From, To string
	Page     int
}

// IDBatch implements DateAdapter.
func (s *JSONSite) IDBatch(ctx context.Context, from, to time.Time, bound int) (*Batch, error) {
	spec := s.cfg.JSON
	b := &Batch{From: from, To: to}
	counted := false
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if page > 1 && bound > 0 && b.Pages >= bound {
			b.Kind, b.Detail = failure.KindRunaway, "page bound reached"
			s.log.Warn().Int("pages", b.Pages).Int("bound", bound).Msg("Paging stopped at bound")
			break
		}
		u, err := s.cfg.render("json search_url", spec.SearchURL, searchQuery{s.cfg.FormatDate(from), s.cfg.FormatDate(to), page})
		if err != nil {
			return nil, err
		}
		p, err := s.sess.Get(ctx, u, session.NoCache())
		if err != nil {
			return nil, err
		}
		doc, err := extract.DecodeJSON(p.Body)
		if err != nil {
			b.Kind, b.Detail = failure.KindInvalidFormat, err.Error()
			return b, nil
		}
		b.Pages++
		if page == 1 {
			if n, ok := spec.Total.Apply(doc).Int("total"); ok {
				b.MaxRecs, counted = n, true
			}
			b.Capped = s.cfg.Paging.RecCap > 0 && b.MaxRecs >= s.cfg.Paging.RecCap
			if b.Capped && from.Before(to) {
				return b, nil
			}
		}
		items := spec.Items.Apply(doc)
		for _, it := range items {
			if id, ok := identifier(it); ok {
				b.IDs = append(b.IDs, id)
			}
		}
		if len(items) == 0 {
			if page == 1 {
				b.Kind, b.Detail = emptyKind(spec.Items, doc, counted && b.MaxRecs == 0)
			}
			break
		}
		if spec.PageSize <= 0 || len(items) < spec.PageSize {
			break
		}
		if b.MaxRecs > 0 && len(b.IDs) >= b.MaxRecs {
			break
		}
	}
	return b, nil
}

// emptyKind classifies a first page without items. Only an empty array at
// the items path, or a total of zero, is a genuine empty result.
func emptyKind(l extract.JSONList, doc any, zeroTotal bool) (failure.Kind, string) {
	n, ok := l.Count(doc)
	switch {
	case zeroTotal || (ok && n == 0):
		return failure.KindEmptyOK, "no items"
	case !ok:
		return failure.KindInvalidFormat, "items path not found"
	}
	return failure.KindInvalidFormat, fmt.Sprintf("none of %d items readable", n)
}

// Detail reads the JSON detail endpoint, or falls back to HTML detail
// pages when none is declared.
func (s *JSONSite) Detail(ctx context.Context, id models.Identifier) (*DetailResult, error) {
	if id.Complete || s.cfg.JSON.DetailURL == "" {
		return s.Site.Detail(ctx, id)
	}
	u, err := s.cfg.render("json detail_url", s.cfg.JSON.DetailURL, struct{ UID, URL string }{id.UID, id.URL})
	if err != nil {
		return nil, failure.InvalidFormat("%v", err)
	}
	p, err := s.getDetail(ctx, u)
	if err != nil {
		return nil, err
	}
	doc, err := extract.DecodeJSON(p.Body)
	if err != nil {
		return nil, failure.InvalidFormat("%s: %v", u, err)
	}
	fields := s.cfg.JSON.Detail.Apply(doc)
	if len(fields) == 0 {
		return nil, failure.NoData("%s: empty detail", u)
	}
	fields.Merge(extract.Fields(id.Fields))
	if id.UID != "" {
		fields.Merge(extract.Fields{models.KeyUID: id.UID})
	}
	return &DetailResult{Fields: fields, URL: p.URL}, nil
}
