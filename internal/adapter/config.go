package adapter

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"text/template"
	"time"

	"github.com/law-makers/plancrawl/internal/extract"
	"github.com/law-makers/plancrawl/internal/session"
	"github.com/law-makers/plancrawl/pkg/models"
)

// Kind selects the acquisition strategy an adapter supports.
type Kind string

const (
	KindDate   Kind = "date"
	KindPeriod Kind = "period"
	KindList   Kind = "list"
)

// Family names a group of authorities running the same planning software.
type Family string

const (
	FamilyIdox             Family = "idox"
	FamilyCivica           Family = "civica"
	FamilyPlanningExplorer Family = "planning_explorer"
	FamilyNorthgateTelerik Family = "northgate_telerik"
	FamilyCustom           Family = "custom"
)

// Config is the declarative description of one authority's site. It is
// loaded from YAML, merged over its family defaults and then read-only.
type Config struct {
	Authority string `yaml:"authority"`
	Family    Family `yaml:"family"`
	Kind      Kind   `yaml:"kind"`
	Disabled  bool   `yaml:"disabled,omitempty"`

	// Session
	Backend          string                 `yaml:"backend,omitempty"`
	BaseURL          string                 `yaml:"base_url"`
	SearchURL        string                 `yaml:"search_url,omitempty"`
	DetailPage       string                 `yaml:"detail_page,omitempty"`
	Headers          map[string]string      `yaml:"headers,omitempty"`
	Cookies          []session.Cookie       `yaml:"cookies,omitempty"`
	TLS              []session.TLSProfile   `yaml:"tls,omitempty"`
	HTMLSubs         []session.Substitution `yaml:"html_subs,omitempty"`
	ResponseHandler  session.ParseMode      `yaml:"response_handler,omitempty"`
	Timeout          time.Duration          `yaml:"timeout,omitempty"`
	CloudflareBypass bool                   `yaml:"cloudflare_bypass,omitempty"`
	Render           bool                   `yaml:"render,omitempty"`
	RateLimit        float64                `yaml:"rate_limit,omitempty"`

	// Acquisition
	DataStartTarget string `yaml:"data_start_target,omitempty"`
	MinIDGoal       int    `yaml:"min_id_goal,omitempty"`
	BatchSize       int    `yaml:"batch_size,omitempty"`
	CurrentSpan     int    `yaml:"current_span,omitempty"`
	StartPoint      int    `yaml:"start_point,omitempty"`

	// Formats
	RequestDateFormat  string   `yaml:"request_date_format,omitempty"`
	ResponseDateFormat string   `yaml:"response_date_format,omitempty"`
	UIDNumSequence     bool     `yaml:"uid_num_sequence,omitempty"`
	UIDOnly            bool     `yaml:"uid_only,omitempty"`
	URLFirst           bool     `yaml:"url_first,omitempty"`
	MinFields          []string `yaml:"min_fields,omitempty"`

	Blackout *Blackout `yaml:"blackout,omitempty"`

	DetailTests []DetailTest `yaml:"detail_tests,omitempty"`
	BatchTests  []BatchTest  `yaml:"batch_tests,omitempty"`

	Search    Search            `yaml:"search,omitempty"`
	Paging    Paging            `yaml:"paging,omitempty"`
	Detail    extract.Detail    `yaml:"detail,omitempty"`
	DatesLink *extract.Template `yaml:"dates_link,omitempty"`
	Dates     extract.Detail    `yaml:"dates,omitempty"`
	InfoLink  *extract.Template `yaml:"info_link,omitempty"`
	Info      extract.Detail    `yaml:"info,omitempty"`
	// Absent matches a detail page saying the application does not exist.
	Absent    *extract.Template `yaml:"absent,omitempty"`
	UIDSearch UIDSearch         `yaml:"uid_search,omitempty"`

	Period   Period   `yaml:"period,omitempty"`
	Sequence Sequence `yaml:"sequence,omitempty"`
	JSON     JSONSpec `yaml:"json,omitempty"`
}

// Search describes the date-range search form.
type Search struct {
	Form     string            `yaml:"form,omitempty"`
	Submit   string            `yaml:"submit,omitempty"`
	DateFrom string            `yaml:"date_from,omitempty"`
	DateTo   string            `yaml:"date_to,omitempty"`
	Fields   map[string]string `yaml:"fields,omitempty"`
	// Scripts maps a control to a JavaScript expression evaluated after the
	// page's inline scripts have run.
	Scripts map[string]string `yaml:"scripts,omitempty"`
}

// Paging holds the templates that read a result list.
type Paging struct {
	IDs           *extract.Template `yaml:"ids,omitempty"`
	OneID         *extract.Template `yaml:"one_id,omitempty"`
	MaxRecs       *extract.Template `yaml:"max_recs,omitempty"`
	MaxPages      *extract.Template `yaml:"max_pages,omitempty"`
	NextLink      *extract.Template `yaml:"next_link,omitempty"`
	NextSubmit    string            `yaml:"next_submit,omitempty"`
	InvalidFormat *extract.Template `yaml:"invalid_format,omitempty"`
	NoRecs        *extract.Template `yaml:"no_recs,omitempty"`
	// PageCap and RecCap are the silent truncation limits of the site.
	PageCap int `yaml:"page_cap,omitempty"`
	RecCap  int `yaml:"rec_cap,omitempty"`
}

// UIDSearch resolves a uid to its detail page through a search form.
type UIDSearch struct {
	URL    string            `yaml:"url,omitempty"`
	Form   string            `yaml:"form,omitempty"`
	Field  string            `yaml:"field,omitempty"`
	Submit string            `yaml:"submit,omitempty"`
	Fields map[string]string `yaml:"fields,omitempty"`
	// Link picks the detail link out of a result list when the search does
	// not land on the detail page directly.
	Link *extract.Template `yaml:"link,omitempty"`
	// Self reads a stable link to the detail page from the page itself. It
	// is used when the search lands on the detail page, whose address is
	// then the search endpoint. Without it such records carry no url.
	Self *extract.Template `yaml:"self,omitempty"`
}

// Period describes calendar-period listings.
type Period struct {
	Unit string `yaml:"unit,omitempty"`
	// WeekEnds is the last day of a weekly period, e.g. "Sunday" or "Friday".
	WeekEnds string `yaml:"week_ends,omitempty"`
	// URL, when set, is a template given .From and .To formatted with the
	// request date format. Otherwise the search form is used.
	URL string `yaml:"url,omitempty"`
}

// Sequence describes a dense integer uid space, YYYY followed by an index.
type Sequence struct {
	MaxIndex int `yaml:"max_index,omitempty"`
	// UID is a template given .Year, .YY, .Index and .Prefix.
	UID      string   `yaml:"uid,omitempty"`
	Prefixes []string `yaml:"prefixes,omitempty"`
	// Max pins the maximum sequence instead of probing for it.
	Max int `yaml:"max,omitempty"`
}

// JSONSpec describes a JSON search and detail API.
type JSONSpec struct {
	// SearchURL is a template given .From, .To and .Page.
	SearchURL string               `yaml:"search_url,omitempty"`
	PageSize  int                  `yaml:"page_size,omitempty"`
	Items     extract.JSONList     `yaml:"items,omitempty"`
	Total     extract.JSONTemplate `yaml:"total,omitempty"`
	// DetailURL is a template given .UID and .URL.
	DetailURL string               `yaml:"detail_url,omitempty"`
	Detail    extract.JSONTemplate `yaml:"detail,omitempty"`
}

// DetailTest is a self-test fixture for detail fetches.
type DetailTest struct {
	UID       string `yaml:"uid"`
	URL       string `yaml:"url,omitempty"`
	Len       int    `yaml:"len"`
	Tolerance int    `yaml:"tolerance,omitempty"`
}

// BatchTest is a self-test fixture for id batches: a date window, a period
// anchor or a sequence range.
type BatchTest struct {
	From      string `yaml:"from,omitempty"`
	To        string `yaml:"to,omitempty"`
	Date      string `yaml:"date,omitempty"`
	FromSeq   int    `yaml:"from_seq,omitempty"`
	ToSeq     int    `yaml:"to_seq,omitempty"`
	Len       int    `yaml:"len"`
	Tolerance int    `yaml:"tolerance,omitempty"`
}

// Defaults applied when neither the family nor the authority sets a value.
const (
	DefaultMinIDGoal   = 150
	DefaultBatchSize   = 14
	DefaultCurrentSpan = 28
	DefaultDateFormat  = "02/01/2006"
	DefaultPeriodUnit  = "week"
	DefaultWeekEnds    = "Sunday"
	DefaultMaxIndex    = 10000
	DefaultDataStart   = "2000-01-01"
	sequenceBase       = 10000
)

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if c.Authority == "" {
		return fmt.Errorf("authority is required")
	}
	switch c.Kind {
	case KindDate, KindPeriod, KindList:
	default:
		return fmt.Errorf("%s: kind must be date, period or list, got %q", c.Authority, c.Kind)
	}
	switch c.Family {
	case FamilyIdox, FamilyCivica, FamilyPlanningExplorer, FamilyNorthgateTelerik, FamilyCustom:
	default:
		return fmt.Errorf("%s: unknown family %q", c.Authority, c.Family)
	}
	if c.BaseURL == "" && c.SearchURL == "" && c.JSON.SearchURL == "" {
		return fmt.Errorf("%s: base_url or search_url is required", c.Authority)
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%s: invalid base_url %q", c.Authority, c.BaseURL)
		}
	}
	if c.Kind == KindList {
		if c.Sequence.UID == "" && !c.UIDNumSequence {
			return fmt.Errorf("%s: list adapters need sequence.uid or uid_num_sequence", c.Authority)
		}
		if c.Sequence.MaxIndex <= 0 || c.Sequence.MaxIndex > sequenceBase {
			return fmt.Errorf("%s: sequence.max_index must be in 1..%d", c.Authority, sequenceBase)
		}
	}
	if c.Kind == KindPeriod {
		switch c.Period.Unit {
		case "day", "week", "month", "year":
		default:
			return fmt.Errorf("%s: period.unit must be day, week, month or year", c.Authority)
		}
		if _, err := parseWeekday(c.Period.WeekEnds); err != nil {
			return fmt.Errorf("%s: %w", c.Authority, err)
		}
	}
	if c.Blackout != nil {
		if err := c.Blackout.compile(); err != nil {
			return fmt.Errorf("%s: blackout: %w", c.Authority, err)
		}
	}
	if c.Kind != KindList {
		if _, err := c.StartDate(); err != nil {
			return fmt.Errorf("%s: data_start_target: %w", c.Authority, err)
		}
	}
	return nil
}

// applyDefaults fills values no layer supplied.
func (c *Config) applyDefaults() {
	if c.Family == "" {
		c.Family = FamilyCustom
	}
	if c.MinIDGoal <= 0 {
		c.MinIDGoal = DefaultMinIDGoal
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.CurrentSpan <= 0 {
		c.CurrentSpan = DefaultCurrentSpan
	}
	if c.RequestDateFormat == "" {
		c.RequestDateFormat = DefaultDateFormat
	}
	if c.ResponseDateFormat == "" {
		c.ResponseDateFormat = c.RequestDateFormat
	}
	if c.Kind == KindPeriod {
		if c.Period.Unit == "" {
			c.Period.Unit = DefaultPeriodUnit
		}
		if c.Period.WeekEnds == "" {
			c.Period.WeekEnds = DefaultWeekEnds
		}
	}
	if c.Kind == KindList && c.Sequence.MaxIndex == 0 {
		c.Sequence.MaxIndex = DefaultMaxIndex
	}
	if c.Kind != KindList && c.DataStartTarget == "" {
		c.DataStartTarget = DefaultDataStart
	}
	c.SearchURL = c.Resolve(c.SearchURL)
	c.UIDSearch.URL = c.Resolve(c.UIDSearch.URL)
}

// Resolve makes ref absolute against the base URL.
func (c *Config) Resolve(ref string) string {
	if ref == "" || c.BaseURL == "" {
		return ref
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}

// StartDate is the data start target of a date or period adapter.
func (c *Config) StartDate() (time.Time, error) {
	return models.ParseDay(c.DataStartTarget)
}

// StartSeq is the data start target of a list adapter.
func (c *Config) StartSeq() (int, error) {
	if c.DataStartTarget == "" {
		return 0, nil
	}
	return strconv.Atoi(c.DataStartTarget)
}

// FormatDate renders t in the request date format.
func (c *Config) FormatDate(t time.Time) string {
	return t.Format(c.RequestDateFormat)
}

// DateLayouts returns the layouts used to read dates from responses.
func (c *Config) DateLayouts() []string {
	if c.ResponseDateFormat == "" {
		return nil
	}
	return []string{c.ResponseDateFormat}
}

// Fields names the minimum fields a fetched record must carry.
func (c *Config) Fields() []string {
	if len(c.MinFields) > 0 {
		return c.MinFields
	}
	return []string{models.KeyReference, models.KeyAddress, models.KeyDescription}
}

// render executes a text/template URL with data, then resolves it.
func (c *Config) render(name, tpl string, data any) (string, error) {
	s, err := execute(name, tpl, data)
	if err != nil {
		return "", err
	}
	return c.Resolve(s), nil
}

func execute(name, tpl string, data any) (string, error) {
	t, err := template.New(name).Funcs(template.FuncMap{
		"query": url.QueryEscape,
		"path":  url.PathEscape,
	}).Option("missingkey=error").Parse(tpl)
	if err != nil {
		return "", fmt.Errorf("%s template: %w", name, err)
	}
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("%s template: %w", name, err)
	}
	return b.String(), nil
}
