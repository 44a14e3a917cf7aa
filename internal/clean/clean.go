// Package clean normalises raw extracted fields into canonical application
// records.
package clean

import (
	"fmt"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"

	"github.com/law-makers/plancrawl/pkg/models"
)

var (
	jsessionRe  = regexp.MustCompile(`(?i);jsessionid=[^?#;/]*`)
	entityRe    = regexp.MustCompile(`&(#[0-9]+|#[xX][0-9a-fA-F]+|[a-zA-Z][a-zA-Z0-9]*);`)
	postcodeRe  = regexp.MustCompile(`(?i)\b([A-Z][A-Z]?\d[\dA-Z]?) ?(\d[ABDEFGHJLNPQRSTUWXYZ]{2})\b`)
	portalRe    = regexp.MustCompile(`(?i)^PP-?\d+`)
	notAvailRe  = regexp.MustCompile(`(?i)^(not available|n/?a|none|-+)$`)
	gridDigitRe = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// aliases map a raw key to its canonical key. The value moves only when the
// canonical key is absent.
var aliases = map[string]string{
	"ward":                  "ward_name",
	"applicant":             "applicant_name",
	"agent":                 "agent_name",
	"officer":               "case_officer",
	"decision_issued_date":  models.KeyDecisionDate,
	"application_reference": models.KeyReference,
	"type":                  models.KeyApplicationType,
}

// Cleaner normalises records for one authority.
type Cleaner struct {
	layouts []string
	loc     *time.Location
	policy  *bluemonday.Policy
	now     func() time.Time
}

// New returns a Cleaner that parses dates with the given Go layouts before
// falling back to common UK forms. Dates are read in Europe/London.
func New(layouts ...string) *Cleaner {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		loc = time.UTC
	}
	return &Cleaner{
		layouts: layouts,
		loc:     loc,
		policy:  bluemonday.StrictPolicy(),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for date_scraped.
func (c *Cleaner) WithClock(now func() time.Time) *Cleaner {
	c.now = now
	return c
}

// Fields cleans a raw field map: drops blanks, normalises uid, URLs, dates
// and text, and applies key aliases. Nested lists are dropped. Cleaning a
// cleaned map returns an equal map.
func (c *Cleaner) Fields(raw map[string]any) models.Record {
	out := models.Record{}
	for key, v := range raw {
		key = strings.ToLower(strings.TrimSpace(key))
		switch val := v.(type) {
		case string:
			if s, ok := c.value(key, val); ok {
				out[key] = s
			}
		case float64, int, bool:
			out[key] = val
		case nil:
		default:
			log.Debug().Str("key", key).Str("type", fmt.Sprintf("%T", v)).Msg("Dropping non-scalar field")
		}
	}
	applyAliases(out)
	return out
}

func (c *Cleaner) value(key, s string) (string, bool) {
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	switch {
	case key == models.KeyUID:
		s = collapse(c.text(s))
	case key == models.KeyURL || strings.HasSuffix(key, "_url"):
		s = CleanURL(s)
	case key == models.KeyDateScraped:
		s = strings.TrimSpace(s)
	case IsDateKey(key):
		t, ok := ParseDate(c.text(s), c.layouts, c.loc)
		if !ok {
			log.Debug().Str("key", key).Str("value", s).Msg("Unparseable date dropped")
			return "", false
		}
		s = t.Format(models.DateLayout)
	default:
		s = c.text(s)
	}
	return s, s != ""
}

// maxPasses bounds the strip and decode rounds for text escaped more than
// once.
const maxPasses = 8

// text strips tags, decodes entities and collapses whitespace. It repeats
// until nothing changes, so decoded markup is stripped too and cleaning a
// cleaned value is a no-op.
func (c *Cleaner) text(s string) string {
	for i := 0; i < maxPasses && strings.ContainsAny(s, "<&"); i++ {
		next := html.UnescapeString(c.policy.Sanitize(s))
		if next == s {
			break
		}
		s = next
	}
	return collapse(s)
}

// CleanURL removes all whitespace and any ;jsessionid path parameter and
// decodes entities such as &amp;. Only terminated entities are decoded, so a
// query parameter like &copy=1 survives.
func CleanURL(s string) string {
	s = strings.Join(strings.Fields(s), "")
	for i := 0; i < maxPasses && strings.Contains(s, "&"); i++ {
		next := entityRe.ReplaceAllStringFunc(s, html.UnescapeString)
		if next == s {
			break
		}
		s = next
	}
	return jsessionRe.ReplaceAllString(s, "")
}

func applyAliases(r models.Record) {
	for from, to := range aliases {
		if v, ok := r[from]; ok && !r.Has(to) {
			r[to] = v
			delete(r, from)
		}
	}
	alt := r.String(models.KeyAltReference)
	if alt == "" {
		return
	}
	ref := r.String(models.KeyReference)
	if ref == "" || notAvailRe.MatchString(ref) {
		r[models.KeyReference] = alt
	}
	if !r.Has(models.KeyPlanningPortal) && portalRe.MatchString(alt) {
		r[models.KeyPlanningPortal] = strings.ToUpper(alt)
	}
}

// Record cleans raw and completes it as an application record: postcode,
// start date, coordinates and the authority, date_scraped and source_url
// stamps. Existing stamps are kept.
func (c *Cleaner) Record(raw map[string]any, authority, sourceURL string) models.Record {
	r := c.Fields(raw)
	if !r.Has(models.KeyReference) && r.Has(models.KeyUID) {
		r[models.KeyReference] = r[models.KeyUID]
	}
	if !r.Has(models.KeyUID) && r.Has(models.KeyReference) {
		r[models.KeyUID] = r[models.KeyReference]
	}
	setPostcode(r)
	setCoordinates(r)
	if !r.Has(models.KeyAuthority) {
		r[models.KeyAuthority] = authority
	}
	if !r.Has(models.KeyDateScraped) {
		r[models.KeyDateScraped] = c.now().UTC().Format(time.RFC3339)
	}
	if !r.Has(models.KeySourceURL) && sourceURL != "" {
		r[models.KeySourceURL] = CleanURL(sourceURL)
	}
	setStartDate(r)
	return r
}

// Postcode returns the first UK postcode in s, upper-cased with a single
// space.
func Postcode(s string) (string, bool) {
	m := postcodeRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1] + " " + m[2]), true
}

func setPostcode(r models.Record) {
	if pc, ok := Postcode(r.String(models.KeyPostcode)); ok {
		r[models.KeyPostcode] = pc
		return
	}
	delete(r, models.KeyPostcode)
	if pc, ok := Postcode(r.String(models.KeyAddress)); ok {
		r[models.KeyPostcode] = pc
	}
}

// setStartDate sets start_date to the earlier of date_received and
// date_validated, else the earliest date present, else the scrape day.
func setStartDate(r models.Record) {
	pick := func(keys []string) string {
		best := ""
		for _, k := range keys {
			s := r.String(k)
			if _, err := models.ParseDay(s); err != nil {
				continue
			}
			if best == "" || s < best {
				best = s
			}
		}
		return best
	}
	start := pick([]string{models.KeyDateReceived, models.KeyDateValidated})
	if start == "" {
		var keys []string
		for _, k := range r.Keys() {
			if IsDateKey(k) && k != models.KeyDateScraped && k != models.KeyStartDate {
				keys = append(keys, k)
			}
		}
		start = pick(keys)
	}
	if start == "" {
		start = r.String(models.KeyStartDate)
	}
	if start == "" {
		if t, err := time.Parse(time.RFC3339, r.String(models.KeyDateScraped)); err == nil {
			start = t.Format(models.DateLayout)
		}
	}
	if start != "" {
		r[models.KeyStartDate] = start
	}
}

// setCoordinates converts easting/northing and lat/lng to numbers and fills
// lat/lng from the grid when absent. Out-of-grid values are discarded.
func setCoordinates(r models.Record) {
	e, eok := gridValue(r[models.KeyEasting])
	n, nok := gridValue(r[models.KeyNorthing])
	delete(r, models.KeyEasting)
	delete(r, models.KeyNorthing)
	if eok && nok && InGrid(e, n) {
		r[models.KeyEasting] = e
		r[models.KeyNorthing] = n
	}

	lat, latOK := number(r[models.KeyLatitude])
	lng, lngOK := number(r[models.KeyLongitude])
	delete(r, models.KeyLatitude)
	delete(r, models.KeyLongitude)
	if latOK && lngOK && lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180 && (lat != 0 || lng != 0) {
		r[models.KeyLatitude] = lat
		r[models.KeyLongitude] = lng
		return
	}
	if r.Has(models.KeyEasting) {
		lat, lng = GridToWGS84(e, n)
		r[models.KeyLatitude] = round(lat, 6)
		r[models.KeyLongitude] = round(lng, 6)
	}
}

// gridValue reads a grid coordinate. Strings shorter than six digits are
// zero-padded to six ("53405" is read as "053405").
func gridValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		if !gridDigitRe.MatchString(s) {
			return 0, false
		}
		whole, frac, _ := strings.Cut(s, ".")
		if len(whole) < 6 {
			whole = strings.Repeat("0", 6-len(whole)) + whole
		}
		if frac != "" {
			whole += "." + frac
		}
		f, err := strconv.ParseFloat(whole, 64)
		return f, err == nil
	}
	return 0, false
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
