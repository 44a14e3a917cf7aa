package cursor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/law-makers/plancrawl/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS cursors (
	authority  TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	forward    TEXT NOT NULL DEFAULT '',
	backward   TEXT NOT NULL DEFAULT '',
	target     TEXT NOT NULL DEFAULT '',
	seen       TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
)`

// migrations bring databases created by earlier releases up to schema.
// A column that already exists is not an error.
var migrations = []string{
	`ALTER TABLE cursors ADD COLUMN seen TEXT NOT NULL DEFAULT ''`,
}

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. Use
// ":memory:" for a throwaway store.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cursor database: %w", err)
	}
	// One connection: ":memory:" databases are per connection and writes
	// are serialised anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cursor schema: %w", err)
	}
	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil && !strings.Contains(err.Error(), "duplicate column") {
			db.Close()
			return nil, fmt.Errorf("migrate cursor schema: %w", err)
		}
	}
	log.Debug().Str("path", path).Msg("Cursor database opened")
	return &SQLite{db: db}, nil
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, authority string) (*models.Cursor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT authority, kind, forward, backward, target, seen, updated_at FROM cursors WHERE authority = ?`, authority)
	c, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load cursor %s: %w", authority, err)
	}
	return c, nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, c *models.Cursor) error {
	fwd, back, target := encode(c)
	seen, err := encodeSeen(c.Seen)
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", c.Authority, err)
	}
	updated := c.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO cursors (authority, kind, forward, backward, target, seen, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(authority) DO UPDATE SET
	kind = excluded.kind,
	forward = excluded.forward,
	backward = excluded.backward,
	target = excluded.target,
	seen = excluded.seen,
	updated_at = excluded.updated_at`,
		c.Authority, string(c.Kind), fwd, back, target, seen, updated.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", c.Authority, err)
	}
	return nil
}

// List implements Store, ordered by authority.
func (s *SQLite) List(ctx context.Context) ([]*models.Cursor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT authority, kind, forward, backward, target, seen, updated_at FROM cursors ORDER BY authority`)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()
	var out []*models.Cursor
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("list cursors: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete implements Store.
func (s *SQLite) Delete(ctx context.Context, authority string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cursors WHERE authority = ?`, authority); err != nil {
		return fmt.Errorf("delete cursor %s: %w", authority, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (*models.Cursor, error) {
	var c models.Cursor
	var kind, fwd, back, target, seen, upd string
	if err := r.Scan(&c.Authority, &kind, &fwd, &back, &target, &seen, &upd); err != nil {
		return nil, err
	}
	c.Kind = models.CursorKind(kind)
	if err := decode(&c, fwd, back, target); err != nil {
		return nil, err
	}
	if seen != "" {
		if err := json.Unmarshal([]byte(seen), &c.Seen); err != nil {
			return nil, fmt.Errorf("bad seen list: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339, upd); err == nil {
		c.UpdatedAt = t
	}
	return &c, nil
}

// encode renders the three positions as text: ISO dates for date cursors,
// decimal integers for sequence cursors.
func encode(c *models.Cursor) (fwd, back, target string) {
	if c.Kind == models.CursorSequence {
		return fmt.Sprint(c.ForwardSeq), fmt.Sprint(c.BackSeq), fmt.Sprint(c.TargetSeq)
	}
	day := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(models.DateLayout)
	}
	return day(c.ForwardDate), day(c.BackDate), day(c.TargetDate)
}

// encodeSeen stores the open window's uids as a JSON array, or nothing.
func encodeSeen(uids []string) (string, error) {
	if len(uids) == 0 {
		return "", nil
	}
	b, err := json.Marshal(uids)
	return string(b), err
}

func decode(c *models.Cursor, fwd, back, target string) error {
	if c.Kind == models.CursorSequence {
		for _, f := range []struct {
			s   string
			dst *int
		}{{fwd, &c.ForwardSeq}, {back, &c.BackSeq}, {target, &c.TargetSeq}} {
			if f.s == "" {
				continue
			}
			if _, err := fmt.Sscan(f.s, f.dst); err != nil {
				return fmt.Errorf("bad sequence %q: %w", f.s, err)
			}
		}
		return nil
	}
	for _, f := range []struct {
		s   string
		dst *time.Time
	}{{fwd, &c.ForwardDate}, {back, &c.BackDate}, {target, &c.TargetDate}} {
		if f.s == "" {
			continue
		}
		t, err := models.ParseDay(f.s)
		if err != nil {
			return fmt.Errorf("bad date %q: %w", f.s, err)
		}
		*f.dst = t
	}
	return nil
}
