// Package fetch resolves a single application to a cleaned record. It is
// the second entry point into the adapter layer, next to the gatherer.
package fetch

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/plancrawl/internal/adapter"
	"github.com/law-makers/plancrawl/internal/clean"
	"github.com/law-makers/plancrawl/internal/failure"
	"github.com/law-makers/plancrawl/internal/reqctx"
	"github.com/law-makers/plancrawl/pkg/models"
)

// Coordinator turns identifiers into application records.
type Coordinator struct {
	now func() time.Time
	log zerolog.Logger
}

// New returns a Coordinator stamping records with now (time.Now if nil).
func New(now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{now: now, log: log.With().Str("component", "fetch").Logger()}
}

// Ref reads a command-line style reference: anything with an http(s)
// scheme is a URL, everything else a uid.
func Ref(s string) models.Identifier {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return models.Identifier{URL: s}
	}
	return models.Identifier{UID: s}
}

// Fetch resolves id through a, cleans the merged fields and stamps the
// universal ones. A record missing any of the adapter's minimum fields is
// NO_DATA.
func (c *Coordinator) Fetch(ctx context.Context, a adapter.Adapter, id models.Identifier) (models.Record, error) {
	cfg := a.Config()
	l := reqctx.Logger(ctx, c.log).With().Str("authority", cfg.Authority).Str("uid", id.UID).Logger()

	if !a.CanRun(c.now()) {
		return nil, failure.Blackout(cfg.Authority)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := a.Detail(ctx, id)
	if err != nil {
		l.Debug().Err(err).Str("url", id.URL).Msg("Detail fetch failed")
		return nil, err
	}

	rec := clean.New(cfg.DateLayouts()...).WithClock(c.now).Record(res.Fields, cfg.Authority, res.URL)
	if !rec.Has(models.KeyUID) && id.UID != "" {
		rec[models.KeyUID] = id.UID
		if !rec.Has(models.KeyReference) {
			rec[models.KeyReference] = id.UID
		}
	}
	// res.URL reopens the page; a stale id.URL that fell through to the
	// uid search must not be kept
	if !rec.Has(models.KeyURL) && !cfg.UIDOnly && res.URL != "" {
		rec[models.KeyURL] = clean.CleanURL(res.URL)
	}

	if missing := Missing(rec, cfg.Fields()); len(missing) > 0 {
		return nil, failure.NoData("%s %s: missing %s", cfg.Authority, ident(rec, id), strings.Join(missing, ", ")).
			WithDetail("missing", missing)
	}
	if !rec.Has(models.KeyUID) {
		return nil, failure.NoData("%s: record has no uid", cfg.Authority)
	}

	l.Debug().
		Str("uid", rec.String(models.KeyUID)).
		Int("fields", len(rec)).
		Dur("elapsed", time.Since(start)).
		Msg("Fetched application")
	return rec, nil
}

// Missing returns the keys of fields that rec lacks, in order.
func Missing(rec models.Record, fields []string) []string {
	var out []string
	for _, f := range fields {
		if !rec.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func ident(rec models.Record, id models.Identifier) string {
	return firstNonEmpty(rec.String(models.KeyUID), id.UID, id.URL)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
