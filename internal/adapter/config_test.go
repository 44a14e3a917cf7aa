package adapter

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/law-makers/plancrawl/internal/session"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestPeriodSpan(t *testing.T) {
	tests := []struct {
		name     string
		period   Period
		anchor   string
		from, to string
	}{
		{"week to sunday", Period{Unit: "week", WeekEnds: "Sunday"}, "2012-09-13", "2012-09-10", "2012-09-16"},
		{"week anchored on its last day", Period{Unit: "week", WeekEnds: "Sunday"}, "2012-09-16", "2012-09-10", "2012-09-16"},
		{"week anchored on its first day", Period{Unit: "week", WeekEnds: "Sunday"}, "2012-09-10", "2012-09-10", "2012-09-16"},
		{"week to friday", Period{Unit: "week", WeekEnds: "Fri"}, "2012-09-13", "2012-09-08", "2012-09-14"},
		{"week to friday from saturday", Period{Unit: "week", WeekEnds: "friday"}, "2012-09-15", "2012-09-15", "2012-09-21"},
		{"month", Period{Unit: "month"}, "2012-02-13", "2012-02-01", "2012-02-29"},
		{"year", Period{Unit: "year"}, "2012-09-13", "2012-01-01", "2012-12-31"},
		{"day", Period{Unit: "day"}, "2012-09-13", "2012-09-13", "2012-09-13"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := tt.period.Span(day(tt.anchor).Add(15 * time.Hour))
			require.Equal(t, tt.from, from.Format(time.DateOnly))
			require.Equal(t, tt.to, to.Format(time.DateOnly))
		})
	}
}

func TestBlackoutActive(t *testing.T) {
	london := &Blackout{From: "23:00", To: "06:00", TZ: "Europe/London"}
	saturdayNight := &Blackout{From: "22:00", To: "02:00", Weekdays: []string{"Sat"}}
	mondayMorning := &Blackout{From: "09:00", To: "10:30", Weekdays: []string{"monday"}}

	utc := func(s string) time.Time {
		t, err := time.Parse("2006-01-02 15:04", s)
		if err != nil {
			panic(err)
		}
		return t
	}
	tests := []struct {
		name string
		b    *Blackout
		now  string
		want bool
	}{
		{"before window, BST", london, "2012-09-13 21:30", false},
		{"after 23:00 BST", london, "2012-09-13 22:30", true},
		{"after midnight", london, "2012-09-14 04:00", true},
		{"window over, BST", london, "2012-09-14 05:30", false},
		{"winter, still GMT", london, "2012-12-13 05:30", true},
		{"saturday evening", saturdayNight, "2012-09-15 23:00", true},
		{"small hours of sunday", saturdayNight, "2012-09-16 01:00", true},
		{"small hours of saturday belong to friday", saturdayNight, "2012-09-15 01:00", false},
		{"sunday evening", saturdayNight, "2012-09-16 23:00", false},
		{"monday in window", mondayMorning, "2012-09-17 10:00", true},
		{"monday at end", mondayMorning, "2012-09-17 10:30", false},
		{"tuesday in window", mondayMorning, "2012-09-18 10:00", false},
		{"no window", nil, "2012-09-17 10:00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.b.Active(utc(tt.now)))
		})
	}
}

func TestBlackoutRejectsEmptyWindow(t *testing.T) {
	_, err := LoadConfig([]byte(`
authority: Nowhere
kind: date
base_url: https://example.org/
blackout: {from: "06:00", to: "06:00"}
`), "test")
	require.ErrorContains(t, err, "empty window")
}

func TestSequencer(t *testing.T) {
	q := Sequencer{maxIndex: 1000, uid: `{{ printf "%04d" .Index }}/{{ .YY }}`}

	year, index := q.Split(20120506)
	require.Equal(t, 2012, year)
	require.Equal(t, 506, index)

	// Indices past the maximum roll into the next year.
	year, index = q.Split(20121000)
	require.Equal(t, 2013, year)
	require.Equal(t, 0, index)
	require.Equal(t, 20130002, q.Normalize(20121002))

	require.Equal(t, 20120999, q.Add(20130000, -1))
	require.Equal(t, 20130001, q.Add(20120999, 2))
	require.Equal(t, 20120516, q.Add(20120506, 10))
	require.Equal(t, 3, q.Distance(20120998, 20130001))
	require.Equal(t, -3, q.Distance(20130001, 20120998))

	uid, err := q.UID(20120506, "")
	require.NoError(t, err)
	require.Equal(t, "0506/12", uid)

	plain := Sequencer{maxIndex: DefaultMaxIndex}
	uid, err = plain.UID(20120506, "")
	require.NoError(t, err)
	require.Equal(t, "20120506", uid)
	require.Equal(t, []string{""}, plain.Prefixes())
}

func TestSequencerPrefixes(t *testing.T) {
	q := Sequencer{maxIndex: DefaultMaxIndex, uid: `{{ .Prefix }}/{{ .Year }}/{{ .Index }}`, prefixes: []string{"FUL", "HOU"}}
	require.Equal(t, []string{"FUL", "HOU"}, q.Prefixes())
	uid, err := q.UID(20120042, "HOU")
	require.NoError(t, err)
	require.Equal(t, "HOU/2012/42", uid)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig([]byte(`
authority: Testshire
family: idox
kind: date
base_url: https://pa.testshire.gov.uk/
search:
  fields:
    caseType: Application
`), "test")
	require.NoError(t, err)

	require.Equal(t, DefaultMinIDGoal, cfg.MinIDGoal)
	require.Equal(t, DefaultBatchSize, cfg.BatchSize)
	require.Equal(t, DefaultDateFormat, cfg.RequestDateFormat)
	require.Equal(t, session.BackendBrowser, cfg.Backend)
	require.Equal(t, "https://pa.testshire.gov.uk/online-applications/search.do?action=advanced", cfg.SearchURL)
	require.Equal(t, "#advancedSearchForm", cfg.Search.Form)
	// Maps merge key by key with the family's.
	require.Equal(t, "Application", cfg.Search.Fields["caseType"])
	require.Equal(t, "Application", cfg.Search.Fields["searchType"])
	require.NotNil(t, cfg.Paging.IDs)
	require.NotNil(t, cfg.Detail.Min)

	start, err := cfg.StartDate()
	require.NoError(t, err)
	require.Equal(t, DefaultDataStart, start.Format(time.DateOnly))
	require.Equal(t, []string{"reference", "address", "description"}, cfg.Fields())
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "authority: A\nkind: date\nbase_url: https://a.org/\nbogus: 1\n", "bogus"},
		{"bad kind", "authority: A\nkind: weekly\nbase_url: https://a.org/\n", "kind must be"},
		{"bad family", "authority: A\nfamily: acme\nkind: date\nbase_url: https://a.org/\n", "unknown family"},
		{"no url", "authority: A\nkind: date\n", "base_url"},
		{"list without uid", "authority: A\nkind: list\nbase_url: https://a.org/\n", "sequence.uid"},
		{"bad week end", "authority: A\nkind: period\nbase_url: https://a.org/\nperiod: {week_ends: Funday}\n", "weekday"},
		{"bad start", "authority: A\nkind: date\nbase_url: https://a.org/\ndata_start_target: soon\n", "data_start_target"},
		{"bad template", "authority: A\nkind: date\nbase_url: https://a.org/\npaging: {ids: '{* <li>{{ [r].uid }}</li>'}\n", "unbalanced"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig([]byte(tt.yaml), "test")
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestBuiltinRegistry(t *testing.T) {
	r, err := LoadRegistry("")
	require.NoError(t, err)
	require.Equal(t, []string{"Cheltenham", "Dartmoor", "Isles of Scilly", "Merton", "Wandsworth"}, r.Names())

	cfg, err := r.Get("isles-of-scilly")
	require.NoError(t, err)
	require.Equal(t, KindPeriod, cfg.Kind)
	require.Equal(t, "Friday", cfg.Period.WeekEnds)

	cfg, err = r.Get("DARTMOOR")
	require.NoError(t, err)
	require.Equal(t, 1000, cfg.Sequence.MaxIndex)

	cfg, err = r.Get("Merton")
	require.NoError(t, err)
	require.True(t, cfg.Blackout.Active(time.Date(2012, 9, 13, 23, 30, 0, 0, time.UTC)))

	_, err = r.Get("Cheltenhm")
	require.True(t, errors.Is(err, ErrUnknownAuthority))
	require.ErrorContains(t, err, `did you mean "Cheltenham"`)

	_, err = r.Get("Zzyzx")
	require.True(t, errors.Is(err, ErrUnknownAuthority))
	require.NotContains(t, err.Error(), "did you mean")
}

func TestRegistryDirectoryOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cheltenham.yaml", `
authority: Cheltenham
family: idox
kind: period
base_url: https://publicaccess.cheltenham.gov.uk/
`)
	writeFile(t, dir, "notes.txt", "ignored")

	r, err := LoadRegistry(dir)
	require.NoError(t, err)
	cfg, err := r.Get("cheltenham")
	require.NoError(t, err)
	require.Equal(t, KindPeriod, cfg.Kind)
	require.Len(t, r.All(), 5)
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}
