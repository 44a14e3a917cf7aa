package adapter

import (
	"context"
	"time"

	"github.com/law-makers/plancrawl/internal/failure"
	"github.com/law-makers/plancrawl/internal/session"
	"github.com/law-makers/plancrawl/pkg/models"
)

// PeriodSite lists identifiers one calendar period at a time, either from a
// URL per period or through the search form.
type PeriodSite struct {
	*Site
}

// Span snaps anchor to the calendar period containing it. Weeks end on the
// configured weekday.
func (p Period) Span(anchor time.Time) (from, to time.Time) {
	d := models.Day(anchor)
	switch p.Unit {
	case "day":
		return d, d
	case "month":
		from = time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, -1)
	case "year":
		from = time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return from, time.Date(d.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
	}
	end, err := parseWeekday(p.WeekEnds)
	if err != nil {
		end = time.Sunday
	}
	to = d.AddDate(0, 0, (int(end)-int(d.Weekday())+7)%7)
	return to.AddDate(0, 0, -6), to
}

// IDPeriod implements PeriodAdapter.
func (s *PeriodSite) IDPeriod(ctx context.Context, anchor time.Time, bound int) (*Batch, error) {
	from, to := s.cfg.Period.Span(anchor)
	b := &Batch{From: from, To: to}

	var (
		page *session.Page
		err  error
	)
	if s.cfg.Period.URL != "" {
		var u string
		u, err = s.cfg.render("period url", s.cfg.Period.URL, struct{ From, To string }{s.cfg.FormatDate(from), s.cfg.FormatDate(to)})
		if err != nil {
			return nil, err
		}
		page, err = s.sess.Get(ctx, u, session.NoCache())
	} else {
		page, err = s.search(ctx, s.cfg.FormatDate(from), s.cfg.FormatDate(to))
	}
	if err != nil {
		if failure.IsKind(err, failure.KindInvalidFormat) {
			b.Kind, b.Detail = failure.KindInvalidFormat, err.Error()
			return b, nil
		}
		return nil, err
	}
	if err := s.collect(ctx, page, bound, b, false); err != nil {
		return nil, err
	}
	s.log.Debug().
		Str("from", from.Format(time.DateOnly)).
		Str("to", to.Format(time.DateOnly)).
		Int("ids", len(b.IDs)).
		Str("kind", string(b.Kind)).
		Msg("Id period")
	return b, nil
}
