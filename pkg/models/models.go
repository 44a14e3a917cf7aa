package models

import (
	"sort"
	"time"
)

// DateLayout is the canonical (ISO-8601) date form used in records and cursors.
const DateLayout = "2006-01-02"

// Record is a canonical planning application record.
//
// Values are strings, except dates (ISO-8601 strings), coordinates and
// lat/lng (float64) and date_scraped (RFC 3339 timestamp string).
type Record map[string]any

// Canonical record keys.
const (
	KeyReference       = "reference"
	KeyAltReference    = "alt_reference"
	KeyUID             = "uid"
	KeyURL             = "url"
	KeySourceURL       = "source_url"
	KeyAuthority       = "authority"
	KeyAddress         = "address"
	KeyDescription     = "description"
	KeyPostcode        = "postcode"
	KeyDateReceived    = "date_received"
	KeyDateValidated   = "date_validated"
	KeyStartDate       = "start_date"
	KeyDateScraped     = "date_scraped"
	KeyEasting         = "easting"
	KeyNorthing        = "northing"
	KeyLatitude        = "latitude"
	KeyLongitude       = "longitude"
	KeyPlanningPortal  = "planning_portal_id"
	KeyStatus          = "status"
	KeyDecision        = "decision"
	KeyDecisionDate    = "decision_date"
	KeyApplicationType = "application_type"
)

// String returns the string value stored under key, or "".
func (r Record) String(key string) string {
	if s, ok := r[key].(string); ok {
		return s
	}
	return ""
}

// Float returns the numeric value stored under key.
func (r Record) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Has reports whether key carries a non-empty value.
func (r Record) Has(key string) bool {
	v, ok := r[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

// Keys returns the record keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Identifier is produced by id-batch methods: a uid, an optional stable URL
// and whatever preliminary fields the index page exposed.
type Identifier struct {
	UID    string         `json:"uid"`
	URL    string         `json:"url,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
	// Complete marks Fields as a full detail extraction, so the record
	// needs no further fetch.
	Complete bool `json:"-"`
}

// CursorKind distinguishes date cursors from sequence cursors.
type CursorKind string

const (
	CursorDate     CursorKind = "date"
	CursorSequence CursorKind = "sequence"
)

// Cursor is the persisted gather position of one authority.
//
// Forward advances toward the present; Backward retreats toward the data
// start target. Both are exclusive frontiers: Forward is the first date (or
// sequence value) not yet gathered going forward, Backward the earliest one
// already gathered going backward.
type Cursor struct {
	Authority   string     `json:"authority"`
	Kind        CursorKind `json:"kind"`
	ForwardDate time.Time  `json:"forward_date,omitempty"`
	BackDate    time.Time  `json:"backward_date,omitempty"`
	TargetDate  time.Time  `json:"data_start_date,omitempty"`
	ForwardSeq  int        `json:"forward_seq,omitempty"`
	BackSeq     int        `json:"backward_seq,omitempty"`
	TargetSeq   int        `json:"data_start_seq,omitempty"`
	// Seen holds the uids already emitted from the open forward window,
	// the one the forward cursor rests on until it is over.
	Seen        []string   `json:"seen,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BackwardDone reports whether backward gathering has reached the target.
func (c *Cursor) BackwardDone() bool {
	if c.Kind == CursorSequence {
		return c.BackSeq <= c.TargetSeq
	}
	return !c.BackDate.After(c.TargetDate)
}

// Day truncates t to a UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses an ISO-8601 date into a UTC calendar date.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
