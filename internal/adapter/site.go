package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/law-makers/plancrawl/internal/extract"
	"github.com/law-makers/plancrawl/internal/failure"
	"github.com/law-makers/plancrawl/internal/session"
	"github.com/law-makers/plancrawl/pkg/models"
)

// recordsList is the conventional name of the repeating capture in an ids
// template. Any other single list works too.
const recordsList = "records"

// Detail fetches the detail page for id, follows the dates and info links
// and returns the merged fields. A page saying the application does not
// exist is NO_DATA; a page the templates cannot read is INVALID_FORMAT.
// The result URL is one that reopens the detail page, or empty if the page
// was only reachable through a form post.
func (s *Site) Detail(ctx context.Context, id models.Identifier) (*DetailResult, error) {
	if id.Complete {
		return &DetailResult{Fields: extract.Fields(id.Fields), URL: id.URL}, nil
	}
	var lastErr error
	for _, open := range s.openers(id) {
		page, stable, err := open(ctx)
		if err != nil {
			if !failure.IsKind(err, failure.KindNoData) && !failure.IsKind(err, failure.KindInvalidFormat) {
				return nil, err
			}
			lastErr = err
			continue
		}
		fields, err := s.readDetail(ctx, page)
		if err != nil {
			if !failure.IsKind(err, failure.KindNoData) && !failure.IsKind(err, failure.KindInvalidFormat) {
				return nil, err
			}
			lastErr = err
			continue
		}
		fields.Merge(extract.Fields(id.Fields))
		if id.UID != "" {
			fields.Merge(extract.Fields{models.KeyUID: id.UID})
		}
		return &DetailResult{Fields: fields, URL: stable}, nil
	}
	if lastErr == nil {
		lastErr = failure.InvalidFormat("no way to resolve %q: need a url, detail_page or uid_search", id.UID)
	}
	return nil, lastErr
}

// opener reaches a detail page and reports the url that reopens it.
type opener func(context.Context) (*session.Page, string, error)

// byGet opens a detail page reachable with a plain GET.
func (s *Site) byGet(rawURL func() (string, error)) opener {
	return func(ctx context.Context) (*session.Page, string, error) {
		u, err := rawURL()
		if err != nil {
			return nil, "", err
		}
		page, err := s.getDetail(ctx, u)
		if err != nil {
			return nil, "", err
		}
		return page, page.URL, nil
	}
}

// openers lists the ways of reaching the detail page of id, in the order
// they are tried.
func (s *Site) openers(id models.Identifier) []opener {
	var byURL, byUID []opener
	if id.URL != "" && !s.cfg.UIDOnly {
		byURL = append(byURL, s.byGet(func() (string, error) { return id.URL, nil }))
	}
	if id.UID != "" {
		if s.cfg.DetailPage != "" {
			byUID = append(byUID, s.byGet(func() (string, error) {
				u, err := s.cfg.render("detail_page", s.cfg.DetailPage, struct{ UID, URL string }{id.UID, id.URL})
				if err != nil {
					return "", failure.InvalidFormat("%v", err)
				}
				return u, nil
			}))
		}
		if s.cfg.UIDSearch.URL != "" {
			byUID = append(byUID, func(ctx context.Context) (*session.Page, string, error) {
				return s.searchUID(ctx, id.UID)
			})
		}
	}
	if s.cfg.URLFirst || len(byUID) == 0 {
		return append(byURL, byUID...)
	}
	return append(byUID, byURL...)
}

// getDetail fetches a detail page. A 404 means the application does not
// exist.
func (s *Site) getDetail(ctx context.Context, rawURL string) (*session.Page, error) {
	var (
		page *session.Page
		err  error
	)
	if s.cfg.Render {
		page, err = s.sess.Render(ctx, rawURL)
	} else {
		page, err = s.sess.Get(ctx, rawURL)
	}
	var fe *failure.Error
	if errors.As(err, &fe) && fe.Status == http.StatusNotFound {
		return nil, failure.NoData("%s returned 404", rawURL)
	}
	return page, err
}

// searchUID submits the uid search form. The response is either the detail
// page itself or a result list the link template picks from. A detail page
// reached directly sits at the search endpoint, so its stable url comes from
// the self template.
func (s *Site) searchUID(ctx context.Context, uid string) (*session.Page, string, error) {
	us := s.cfg.UIDSearch
	page, err := s.sess.Get(ctx, us.URL, session.NoCache())
	if err != nil {
		return nil, "", err
	}
	form, err := page.Form(us.Form)
	if err != nil {
		return nil, "", failure.InvalidFormat("uid search: %v", err)
	}
	for k, v := range us.Fields {
		if err := form.Set(k, v); err != nil {
			return nil, "", failure.InvalidFormat("uid search field %s: %v", k, err)
		}
	}
	if err := form.Set(us.Field, uid); err != nil {
		return nil, "", failure.InvalidFormat("uid search field %s: %v", us.Field, err)
	}
	res, err := s.sess.Submit(ctx, form, us.Submit)
	if err != nil {
		return nil, "", err
	}
	doc, err := extract.FromPage(res)
	if err != nil {
		return nil, "", failure.InvalidFormat("%v", err)
	}
	if s.isDetail(doc) {
		return res, firstValue(us.Self, doc), nil
	}
	if link := firstValue(us.Link, doc); link != "" {
		detail, err := s.getDetail(ctx, link)
		if err != nil {
			return nil, "", err
		}
		return detail, detail.URL, nil
	}
	if s.absent(doc) {
		return nil, "", failure.NoData("uid %s not found", uid)
	}
	return nil, "", failure.InvalidFormat("uid search for %s returned neither a detail page nor a result", uid)
}

func (s *Site) isDetail(doc *extract.Doc) bool {
	d := s.cfg.Detail
	switch {
	case d.Min != nil:
		scope := doc
		if d.Block != nil {
			var ok bool
			if scope, ok = d.Block.Block(doc); !ok {
				return false
			}
		}
		return extract.Matches(d.Min, scope)
	case d.Block != nil:
		return extract.Matches(d.Block, doc)
	}
	return false
}

// absent reports whether doc says there is no such application.
func (s *Site) absent(doc *extract.Doc) bool {
	return extract.Matches(s.cfg.Absent, doc) || extract.Matches(s.cfg.Paging.NoRecs, doc)
}

// readDetail extracts the summary page and merges the linked dates and
// info pages. Linked pages are best effort.
func (s *Site) readDetail(ctx context.Context, page *session.Page) (extract.Fields, error) {
	doc, err := extract.FromPage(page)
	if err != nil {
		return nil, failure.InvalidFormat("%v", err)
	}
	fields, err := s.cfg.Detail.Extract(doc)
	if err != nil {
		if s.absent(doc) {
			return nil, failure.NoData("%s: application not found", page.URL)
		}
		return nil, err
	}
	links := []struct {
		name string
		link *extract.Template
		spec extract.Detail
	}{
		{"dates", s.cfg.DatesLink, s.cfg.Dates},
		{"info", s.cfg.InfoLink, s.cfg.Info},
	}
	for _, l := range links {
		if l.link == nil || l.spec.Empty() {
			continue
		}
		target := firstValue(l.link, doc)
		if target == "" {
			s.log.Debug().Str("url", page.URL).Msgf("No %s link", l.name)
			continue
		}
		more, err := s.linked(ctx, target, l.spec)
		if err != nil {
			if failure.IsKind(err, failure.KindTransport) || failure.IsKind(err, failure.KindBlackout) || ctx.Err() != nil {
				return nil, err
			}
			s.log.Warn().Err(err).Str("url", target).Msgf("Skipping %s page", l.name)
			continue
		}
		fields.Merge(more)
	}
	return fields, nil
}

func (s *Site) linked(ctx context.Context, target string, spec extract.Detail) (extract.Fields, error) {
	page, err := s.getDetail(ctx, target)
	if err != nil {
		return nil, err
	}
	doc, err := extract.FromPage(page)
	if err != nil {
		return nil, failure.InvalidFormat("%v", err)
	}
	return spec.Extract(doc)
}

// firstValue returns the first non-empty capture of t in doc.
func firstValue(t *extract.Template, doc *extract.Doc) string {
	if t == nil {
		return ""
	}
	f, ok := t.Match(doc)
	if !ok {
		return ""
	}
	for _, name := range t.Names() {
		if v := f.String(name); v != "" {
			return v
		}
	}
	return ""
}

// scrapeIDs reads the identifiers listed on a results page.
func (s *Site) scrapeIDs(doc *extract.Doc) []models.Identifier {
	f, ok := s.cfg.Paging.IDs.Match(doc)
	if !ok {
		return nil
	}
	rows := f.List(recordsList)
	if rows == nil {
		for _, k := range f.Keys() {
			if l := f.List(k); l != nil {
				rows = l
				break
			}
		}
	}
	var out []models.Identifier
	for _, row := range rows {
		if id, ok := identifier(row); ok {
			out = append(out, id)
		}
	}
	return out
}

// identifier converts an extracted row. Rows with neither uid nor url are
// dropped.
func identifier(row extract.Fields) (models.Identifier, bool) {
	id := models.Identifier{UID: row.String(models.KeyUID), URL: row.String(models.KeyURL)}
	if id.UID == "" {
		id.UID = row.String(models.KeyReference)
	}
	if id.UID == "" && id.URL == "" {
		return id, false
	}
	for k, v := range row {
		if k == models.KeyUID || k == models.KeyURL {
			continue
		}
		if str, ok := v.(string); ok && str != "" {
			if id.Fields == nil {
				id.Fields = map[string]any{}
			}
			id.Fields[k] = str
		}
	}
	return id, true
}

// collect reads result pages from first until there is no next page, the
// reported record count is reached or bound pages have been read. When
// splittable, a first page reporting a truncated result set ends the call
// early with Capped set, so the caller can narrow the query instead.
func (s *Site) collect(ctx context.Context, first *session.Page, bound int, b *Batch, splittable bool) error {
	page := first
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := extract.FromPage(page)
		if err != nil {
			b.Kind, b.Detail = failure.KindInvalidFormat, err.Error()
			return nil
		}
		b.Pages++
		if b.Pages == 1 {
			s.readTotals(doc, b)
			if b.Capped && splittable {
				s.log.Debug().Int("max_pages", b.MaxPages).Int("max_recs", b.MaxRecs).Msg("Result set truncated")
				return nil
			}
		}

		ids := s.scrapeIDs(doc)
		if len(ids) == 0 && b.Pages == 1 {
			if f, ok := s.cfg.Paging.OneID.Match(doc); ok {
				if id, ok := identifier(f); ok {
					if id.URL == "" {
						id.URL = page.URL
					}
					ids = append(ids, id)
				}
			}
		}
		if len(ids) == 0 {
			if b.Pages == 1 {
				s.classifyEmpty(doc, b)
			}
			return nil
		}
		b.IDs = append(b.IDs, ids...)

		if b.MaxRecs > 0 && len(b.IDs) >= b.MaxRecs {
			return nil
		}
		next, err := s.nextPage(ctx, page, doc, b, bound)
		if err != nil || next == nil {
			return err
		}
		page = next
	}
}

func (s *Site) readTotals(doc *extract.Doc, b *Batch) {
	p := s.cfg.Paging
	if f, ok := p.MaxPages.Match(doc); ok {
		b.MaxPages, _ = f.Int("max_pages")
	}
	if f, ok := p.MaxRecs.Match(doc); ok {
		b.MaxRecs, _ = f.Int("max_recs")
	}
	b.Capped = (p.PageCap > 0 && b.MaxPages >= p.PageCap) || (p.RecCap > 0 && b.MaxRecs >= p.RecCap)
}

// classifyEmpty distinguishes a site saying "no results" from a page the
// templates could not read.
func (s *Site) classifyEmpty(doc *extract.Doc, b *Batch) {
	p := s.cfg.Paging
	switch {
	case extract.Matches(p.NoRecs, doc):
		b.Kind, b.Detail = failure.KindEmptyOK, "no records"
	case extract.Matches(p.InvalidFormat, doc):
		b.Kind, b.Detail = failure.KindEmptyOK, "site reported an invalid or empty query"
	default:
		b.Kind, b.Detail = failure.KindInvalidFormat, "results page has no ids and no empty-result sentinel"
	}
}

// nextPage follows the next link or submits the next control. It returns
// nil when there is no next page or the bound is reached.
func (s *Site) nextPage(ctx context.Context, page *session.Page, doc *extract.Doc, b *Batch, bound int) (*session.Page, error) {
	p := s.cfg.Paging
	var fetch func() (*session.Page, error)
	if link := firstValue(p.NextLink, doc); link != "" {
		fetch = func() (*session.Page, error) { return s.sess.Get(ctx, link, session.NoCache()) }
	} else if p.NextSubmit != "" {
		form := formWith(page, p.NextSubmit)
		if form != nil {
			fetch = func() (*session.Page, error) { return s.sess.Submit(ctx, form, p.NextSubmit) }
		}
	}
	if fetch == nil {
		return nil, nil
	}
	if bound > 0 && b.Pages >= bound {
		b.Kind, b.Detail = failure.KindRunaway, "page bound reached"
		s.log.Warn().Int("pages", b.Pages).Int("bound", bound).Msg("Paging stopped at bound")
		return nil, nil
	}
	return fetch()
}

// formWith returns the first form on page with a submit control matching
// spec.
func formWith(page *session.Page, spec string) *session.Form {
	for _, f := range page.Forms() {
		if c, err := f.Submitter(spec); err == nil && c != nil {
			return f
		}
	}
	return nil
}

// searchForm loads the search page and fills the static and scripted
// fields. The caller sets the query fields and submits.
func (s *Site) searchForm(ctx context.Context) (*session.Form, error) {
	page, err := s.sess.Get(ctx, s.cfg.SearchURL, session.NoCache())
	if err != nil {
		return nil, err
	}
	form, err := page.Form(s.cfg.Search.Form)
	if err != nil {
		s.log.Debug().Str("forms", session.Describe(page.Forms())).Msg("Search form not found")
		return nil, failure.InvalidFormat("search form: %v", err)
	}
	for k, v := range s.cfg.Search.Fields {
		if err := form.Set(k, v); err != nil {
			return nil, failure.InvalidFormat("search field %s: %v", k, err)
		}
	}
	if len(s.cfg.Search.Scripts) > 0 {
		doc, err := extract.FromPage(page)
		if err != nil {
			return nil, failure.InvalidFormat("%v", err)
		}
		vm := extract.RunScripts(doc, 0)
		for k, expr := range s.cfg.Search.Scripts {
			v, err := vm.Eval(expr)
			if err != nil {
				return nil, failure.InvalidFormat("search script %s: %v", k, err)
			}
			if err := form.Set(k, v); err != nil {
				return nil, failure.InvalidFormat("search field %s: %v", k, err)
			}
		}
	}
	return form, nil
}

// search submits a date query. Plain-backend sites without a declared
// form get an explicit POST body instead.
func (s *Site) search(ctx context.Context, from, to string) (*session.Page, error) {
	sc := s.cfg.Search
	if sc.Form == "" && s.cfg.Backend == session.BackendPlain {
		values := url.Values{}
		for k, v := range sc.Fields {
			values.Set(k, v)
		}
		values.Set(sc.DateFrom, from)
		values.Set(sc.DateTo, to)
		return s.sess.Post(ctx, s.cfg.SearchURL, values)
	}
	form, err := s.searchForm(ctx)
	if err != nil {
		return nil, err
	}
	if err := form.Set(sc.DateFrom, from); err != nil {
		return nil, failure.InvalidFormat("date field %s: %v", sc.DateFrom, err)
	}
	if err := form.Set(sc.DateTo, to); err != nil {
		return nil, failure.InvalidFormat("date field %s: %v", sc.DateTo, err)
	}
	return s.sess.Submit(ctx, form, sc.Submit)
}
