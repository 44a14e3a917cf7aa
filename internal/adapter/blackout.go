package adapter

import (
	"fmt"
	"strings"
	"time"
)

// Blackout is a daily window during which the site is known to be
// unavailable. A window whose end is before its start wraps midnight and
// belongs to the weekday it starts on.
type Blackout struct {
	From     string   `yaml:"from"`
	To       string   `yaml:"to"`
	TZ       string   `yaml:"tz,omitempty"`
	Weekdays []string `yaml:"weekdays,omitempty"`

	loc      *time.Location
	from, to int
	days     map[time.Weekday]bool
}

func (b *Blackout) compile() error {
	var err error
	if b.from, err = clockMinutes(b.From); err != nil {
		return err
	}
	if b.to, err = clockMinutes(b.To); err != nil {
		return err
	}
	if b.from == b.to {
		return fmt.Errorf("empty window %s-%s", b.From, b.To)
	}
	b.loc = time.UTC
	if b.TZ != "" {
		if b.loc, err = time.LoadLocation(b.TZ); err != nil {
			return err
		}
	}
	b.days = nil
	if len(b.Weekdays) > 0 {
		b.days = make(map[time.Weekday]bool, len(b.Weekdays))
		for _, d := range b.Weekdays {
			wd, err := parseWeekday(d)
			if err != nil {
				return err
			}
			b.days[wd] = true
		}
	}
	return nil
}

// Active reports whether now falls inside the window.
func (b *Blackout) Active(now time.Time) bool {
	if b == nil {
		return false
	}
	if b.loc == nil {
		if err := b.compile(); err != nil {
			return false
		}
	}
	t := now.In(b.loc)
	m := t.Hour()*60 + t.Minute()
	day := func(wd time.Weekday) bool { return b.days == nil || b.days[wd] }
	if b.from < b.to {
		return m >= b.from && m < b.to && day(t.Weekday())
	}
	if m >= b.from {
		return day(t.Weekday())
	}
	if m < b.to {
		return day((t.Weekday() + 6) % 7)
	}
	return false
}

// String renders the window for listings.
func (b *Blackout) String() string {
	if b == nil {
		return ""
	}
	s := b.From + "-" + b.To
	if b.TZ != "" {
		s += " " + b.TZ
	}
	if len(b.Weekdays) > 0 {
		s += " (" + strings.Join(b.Weekdays, ",") + ")"
	}
	return s
}

func clockMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
