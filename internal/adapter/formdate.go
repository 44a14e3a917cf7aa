package adapter

import (
	"context"
	"time"

	"github.com/law-makers/plancrawl/internal/failure"
)

// FormDateSite lists identifiers by submitting a date-range search form and
// paging through the results.
type FormDateSite struct {
	*Site
}

// IDBatch implements DateAdapter.
func (s *FormDateSite) IDBatch(ctx context.Context, from, to time.Time, bound int) (*Batch, error) {
	b := &Batch{From: from, To: to}
	page, err := s.search(ctx, s.cfg.FormatDate(from), s.cfg.FormatDate(to))
	if err != nil {
		if failure.IsKind(err, failure.KindInvalidFormat) {
			b.Kind, b.Detail = failure.KindInvalidFormat, err.Error()
			return b, nil
		}
		return nil, err
	}
	if err := s.collect(ctx, page, bound, b, from.Before(to)); err != nil {
		return nil, err
	}
	s.log.Debug().
		Str("from", from.Format(time.DateOnly)).
		Str("to", to.Format(time.DateOnly)).
		Int("ids", len(b.IDs)).
		Int("pages", b.Pages).
		Str("kind", string(b.Kind)).
		Msg("Id batch")
	return b, nil
}
