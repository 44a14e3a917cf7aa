// Package adaptertest provides a fake planning authority for tests: an
// Idox-style public access site with search forms, paged results, tabbed
// detail pages and a small JSON API over the same applications.
package adaptertest

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/law-makers/plancrawl/internal/adapter"
)

// Now is the fixed clock fake sites and their adapters run at.
var Now = time.Date(2012, 10, 1, 12, 0, 0, 0, time.UTC)

const (
	formLayout = "02/01/2006"
	pageLayout = "Mon 02 Jan 2006"
	apiLayout  = "2006-01-02"
)

// App is one application held by the fake site.
type App struct {
	UID         string
	Key         string
	Index       int
	Received    time.Time
	Validated   time.Time
	Address     string
	Description string
}

// schedule fixes the number of applications validated on particular days;
// other weekdays get three and weekends none.
var schedule = map[string]int{
	"2012-08-13": 6,
	"2012-09-13": 5,
	"2012-09-14": 5,
	"2012-09-15": 5,
	"2012-09-16": 4,
	"2012-09-17": 4,
	"2012-09-18": 5,
	"2012-09-19": 5,
	"2012-09-22": 1,
}

// DefaultApps returns the 2012 applications of the fake site. Uids are
// 12/NNNNN/FUL with indices issued densely from 1 in validation order.
func DefaultApps() []App {
	var apps []App
	idx := 0
	start := time.Date(2012, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2012, 9, 30, 0, 0, 0, 0, time.UTC)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		n, ok := schedule[d.Format(apiLayout)]
		if !ok {
			n = 3
			if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
				n = 0
			}
		}
		for i := 0; i < n; i++ {
			idx++
			apps = append(apps, App{
				UID:         fmt.Sprintf("12/%05d/FUL", idx),
				Key:         fmt.Sprintf("MK%05dA", idx),
				Index:       idx,
				Received:    d.AddDate(0, 0, -1),
				Validated:   d,
				Address:     fmt.Sprintf("%d High Street, Testtown TT%d %dAB", idx, idx%9+1, idx%10),
				Description: fmt.Sprintf("Erection of single storey rear extension (%d)", idx),
			})
		}
	}
	return apps
}

// Site is a running fake authority.
type Site struct {
	*httptest.Server

	Apps     []App
	PageSize int
	// PageCap truncates result sets to this many pages, like sites that
	// silently drop the rest. The pages indicator then reports the cap.
	PageCap int
	// Loop makes every results page offer a next link.
	Loop bool
	// Broken holds keys whose summary page cannot be read.
	Broken map[string]bool
	// Down holds keys whose detail pages answer 503.
	Down map[string]bool
	// Offline makes every request answer 503.
	Offline bool

	mu   sync.Mutex
	hits map[string]int
}

// New starts a fake site serving DefaultApps. It is closed when the test
// ends.
func New(t testing.TB) *Site {
	s := &Site{Apps: DefaultApps(), PageSize: 10, Broken: map[string]bool{}, Down: map[string]bool{}, hits: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/online-applications/search.do", s.searchPage)
	mux.HandleFunc("/online-applications/advancedSearchResults.do", s.advancedResults)
	mux.HandleFunc("/online-applications/pagedSearchResults.do", s.pagedResults)
	mux.HandleFunc("/online-applications/weeklyListResults.do", s.weeklyResults)
	mux.HandleFunc("/online-applications/simpleSearchResults.do", s.simpleResults)
	mux.HandleFunc("/online-applications/applicationDetails.do", s.details)
	mux.HandleFunc("/api/search", s.apiSearch)
	mux.HandleFunc("/api/applications/", s.apiApplication)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		offline := s.Offline
		s.mu.Unlock()
		if offline {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// SetOffline switches the whole site on or off.
func (s *Site) SetOffline(off bool) {
	s.mu.Lock()
	s.Offline = off
	s.mu.Unlock()
}

// Hits returns how many requests reached path.
func (s *Site) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// ResultPages counts requests for result-list pages.
func (s *Site) ResultPages() int {
	return s.Hits("/online-applications/advancedSearchResults.do") +
		s.Hits("/online-applications/pagedSearchResults.do") +
		s.Hits("/online-applications/weeklyListResults.do")
}

// Between returns the applications validated in [from, to].
func (s *Site) Between(from, to time.Time) []App {
	var out []App
	for _, a := range s.Apps {
		if !a.Validated.Before(from) && !a.Validated.After(to) {
			out = append(out, a)
		}
	}
	return out
}

// ByIndex returns the application with the given 2012 index.
func (s *Site) ByIndex(i int) (App, bool) {
	for _, a := range s.Apps {
		if a.Index == i {
			return a, true
		}
	}
	return App{}, false
}

func (s *Site) byKey(key string) (App, bool) {
	for _, a := range s.Apps {
		if a.Key == key {
			return a, true
		}
	}
	return App{}, false
}

func (s *Site) byUID(uid string) (App, bool) {
	for _, a := range s.Apps {
		if a.UID == uid {
			return a, true
		}
	}
	return App{}, false
}

// Config loads an adapter declaration of the given kind pointing at the
// fake site. Date configs read the HTML search; JSON reads the API.
func (s *Site) Config(t testing.TB, kind string) *adapter.Config {
	t.Helper()
	var body string
	switch kind {
	case "date":
		body = `
kind: date
url_first: true
`
	case "period":
		body = `
kind: period
url_first: true
period:
  unit: week
  week_ends: Sunday
  url: "online-applications/weeklyListResults.do?from={{ query .From }}&to={{ query .To }}"
`
	case "list":
		body = `
kind: list
uid_only: true
data_start_target: "20120001"
start_point: 20120500
sequence:
  uid: '{{ .YY }}/{{ printf "%05d" .Index }}/FUL'
`
	case "json":
		body = `
kind: date
family: custom
backend: plain
request_date_format: "2006-01-02"
json:
  search_url: "api/search?from={{ query .From }}&to={{ query .To }}&page={{ .Page }}"
  page_size: 20
  items:
    path: [results]
    fields:
      uid: reference
      url: [links, self]
      address: siteAddress
      description: proposal
  total:
    total: [paging, total]
  detail_url: "{{ .URL }}"
  detail:
    reference: reference
    address: siteAddress
    description: proposal
    date_received: receivedDate
    date_validated: validDate
    status: status
    easting: [location, easting]
    northing: [location, northing]
`
	default:
		t.Fatalf("unknown fake config kind %q", kind)
	}
	head := fmt.Sprintf("authority: Testshire %s\nbase_url: %s/\ndata_start_target: \"2012-01-01\"\n", kind, s.URL)
	if kind != "json" {
		head += "family: idox\n"
	}
	if kind == "list" {
		head = fmt.Sprintf("authority: Testshire %s\nbase_url: %s/\nfamily: idox\n", kind, s.URL)
	}
	cfg, err := adapter.LoadConfig([]byte(head+body), "fake "+kind)
	if err != nil {
		t.Fatalf("load fake config: %v", err)
	}
	return cfg
}

// Env returns adapter resources suited to tests: no retries and the fixed
// clock.
func Env() adapter.Env {
	return adapter.Env{UserAgent: "plancrawl-test/1.0", Timeout: 5 * time.Second, Now: func() time.Time { return Now }}
}

func (s *Site) searchPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("action") == "simple" {
		writePage(w, "Simple Search", `<form id="simpleSearchForm" name="searchCriteriaForm" method="post" action="/online-applications/simpleSearchResults.do?action=firstPage">
<input type="text" name="searchCriteria.simpleSearchString" id="simpleSearchString" value="">
<input type="hidden" name="searchType" value="Application">
<input type="submit" value="Search" class="button primary">
</form>`)
		return
	}
	writePage(w, "Advanced Search", `<form id="advancedSearchForm" name="searchCriteriaForm" method="post" action="/online-applications/advancedSearchResults.do?action=firstPage">
<input type="hidden" name="searchType" value="">
<input type="text" name="searchCriteria.reference" value="">
<input type="text" name="date(applicationValidatedStart)" id="applicationValidatedStart" value="">
<input type="text" name="date(applicationValidatedEnd)" id="applicationValidatedEnd" value="">
<input type="submit" value="Search" class="button primary">
</form>`)
}

func (s *Site) advancedResults(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("searchType") != "Application" {
		http.Error(w, "bad search", http.StatusBadRequest)
		return
	}
	s.results(w, r.PostForm.Get("date(applicationValidatedStart)"), r.PostForm.Get("date(applicationValidatedEnd)"), 1)
}

func (s *Site) pagedResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("searchCriteria.page"))
	s.results(w, q.Get("from"), q.Get("to"), page)
}

func (s *Site) weeklyResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.results(w, q.Get("from"), q.Get("to"), 1)
}

func (s *Site) results(w http.ResponseWriter, fromStr, toStr string, page int) {
	from, err1 := time.Parse(formLayout, fromStr)
	to, err2 := time.Parse(formLayout, toStr)
	if err1 != nil || err2 != nil {
		writePage(w, "Search Results", `<div class="messagebox errors"><ul><li>Invalid date.</li></ul></div>`)
		return
	}
	apps := s.Between(from, to)
	if len(apps) == 0 {
		writePage(w, "Search Results", `<div class="messagebox"><ul><li>No results found.</li></ul></div>`)
		return
	}
	if len(apps) == 1 && !s.Loop {
		s.summary(w, apps[0])
		return
	}
	pages := (len(apps) + s.PageSize - 1) / s.PageSize
	if s.PageCap > 0 && pages > s.PageCap {
		pages = s.PageCap
		apps = apps[:pages*s.PageSize]
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	lo := (page - 1) * s.PageSize
	hi := min(lo+s.PageSize, len(apps))

	var b strings.Builder
	fmt.Fprintf(&b, `<div id="searchResultsContainer"><p class="pager top"><span class="showing">Showing %d-%d of %d</span> <span class="pages">Page %d of %d</span>`,
		lo+1, hi, len(apps), page, pages)
	if page < pages || s.Loop {
		next := url.Values{"action": {"page"}, "searchCriteria.page": {strconv.Itoa(page + 1)}, "from": {fromStr}, "to": {toStr}}
		fmt.Fprintf(&b, ` <a href="/online-applications/pagedSearchResults.do?%s" class="next">Next</a>`, html.EscapeString(next.Encode()))
	}
	b.WriteString("</p>\n<ul id=\"searchresults\">\n")
	for _, a := range apps[lo:hi] {
		fmt.Fprintf(&b, `<li class="searchresult">
<a href="/online-applications/applicationDetails.do?activeTab=summary&amp;keyVal=%s">%s</a>
<p class="address">%s</p>
<p class="metaInfo">Ref. No:&nbsp;%s <span class="divider">|</span> Received:&nbsp;%s <span class="divider">|</span> Validated:&nbsp;%s <span class="divider">|</span> Status:&nbsp;Pending Consideration</p>
</li>
`, a.Key, html.EscapeString(a.Description), html.EscapeString(a.Address), a.UID, a.Received.Format(pageLayout), a.Validated.Format(pageLayout))
	}
	b.WriteString("</ul></div>")
	writePage(w, "Search Results", b.String())
}

func (s *Site) simpleResults(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad search", http.StatusBadRequest)
		return
	}
	a, ok := s.byUID(strings.TrimSpace(r.PostForm.Get("searchCriteria.simpleSearchString")))
	if !ok {
		writePage(w, "Search Results", `<div class="messagebox"><ul><li>No results found.</li></ul></div>`)
		return
	}
	s.summary(w, a)
}

func (s *Site) details(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, ok := s.byKey(q.Get("keyVal"))
	if ok && s.Down[a.Key] {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		writePage(w, "Application", `<div id="pa"><div class="messagebox errors">The application could not be found.</div></div>`)
		return
	}
	switch q.Get("activeTab") {
	case "dates":
		writePage(w, "Important Dates", `<div id="pa">`+tabs(a)+fmt.Sprintf(`<table id="simpleDetailsTable">
<tr><th>Application Received Date</th><td>%s</td></tr>
<tr><th>Application Validated Date</th><td>%s</td></tr>
<tr><th>Standard Consultation Expiry Date</th><td>%s</td></tr>
<tr><th>Determination Deadline</th><td>%s</td></tr>
</table></div>`, a.Received.Format(pageLayout), a.Validated.Format(pageLayout),
			a.Validated.AddDate(0, 0, 21).Format(pageLayout), a.Validated.AddDate(0, 0, 56).Format(pageLayout)))
	case "details":
		writePage(w, "Further Information", `<div id="pa">`+tabs(a)+`<table id="applicationDetails">
<tr><th>Application Type</th><td>Full Planning Permission</td></tr>
<tr><th>Case Officer</th><td>Jane Smith</td></tr>
<tr><th>Ward</th><td>Central</td></tr>
<tr><th>Applicant Name</th><td>Mr A Applicant</td></tr>
</table></div>`)
	default:
		s.summary(w, a)
	}
}

func (s *Site) summary(w http.ResponseWriter, a App) {
	if s.Broken[a.Key] {
		writePage(w, "Application Summary", `<div id="pa"><p>This service is temporarily unavailable.</p></div>`)
		return
	}
	writePage(w, "Application Summary", `<div id="pa">`+tabs(a)+fmt.Sprintf(`<table id="simpleDetailsTable">
<tr><th>Reference</th><td>%s</td></tr>
<tr><th>Application Received</th><td>%s</td></tr>
<tr><th>Application Validated</th><td>%s</td></tr>
<tr><th>Address</th><td>%s</td></tr>
<tr><th>Proposal</th><td>%s</td></tr>
<tr><th>Status</th><td>Pending Consideration</td></tr>
</table></div>`, a.UID, a.Received.Format(pageLayout), a.Validated.Format(pageLayout), html.EscapeString(a.Address), html.EscapeString(a.Description)))
}

func tabs(a App) string {
	link := func(tab string) string {
		return "/online-applications/applicationDetails.do?activeTab=" + tab + "&amp;keyVal=" + a.Key
	}
	return fmt.Sprintf(`<ul class="tabs">
<li><a id="subtab_summary" href="%s">Summary</a></li>
<li><a id="subtab_details" href="%s">Further Information</a></li>
<li><a id="subtab_dates" href="%s">Important Dates</a></li>
</ul>`, link("summary"), link("details"), link("dates"))
}

func writePage(w http.ResponseWriter, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html><head><title>%s | Public Access</title></head>
<body><div id="header"><a href="/">Testshire Council</a></div>
%s
</body></html>`, title, body)
}

type apiItem struct {
	Reference string            `json:"reference"`
	Links     map[string]string `json:"links"`
	Address   string            `json:"siteAddress"`
	Proposal  string            `json:"proposal"`
	ValidDate string            `json:"validDate"`
}

func (s *Site) apiSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err1 := time.Parse(apiLayout, q.Get("from"))
	to, err2 := time.Parse(apiLayout, q.Get("to"))
	if err1 != nil || err2 != nil {
		http.Error(w, `{"error":"bad dates"}`, http.StatusBadRequest)
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	const size = 20
	apps := s.Between(from, to)
	lo := min((page-1)*size, len(apps))
	hi := min(lo+size, len(apps))
	items := make([]apiItem, 0, hi-lo)
	for _, a := range apps[lo:hi] {
		items = append(items, apiItem{
			Reference: a.UID,
			Links:     map[string]string{"self": "/api/applications/" + a.Key},
			Address:   a.Address,
			Proposal:  a.Description,
			ValidDate: a.Validated.Format(apiLayout),
		})
	}
	writeJSON(w, map[string]any{"paging": map[string]any{"total": len(apps), "page": page}, "results": items})
}

func (s *Site) apiApplication(w http.ResponseWriter, r *http.Request) {
	a, ok := s.byKey(strings.TrimPrefix(r.URL.Path, "/api/applications/"))
	if ok && s.Down[a.Key] {
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"reference":    a.UID,
		"siteAddress":  a.Address,
		"proposal":     a.Description,
		"receivedDate": a.Received.Format(apiLayout),
		"validDate":    a.Validated.Format(apiLayout),
		"status":       "Registered",
		"location":     map[string]any{"easting": 530000 + a.Index, "northing": 180000},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
