package adapter

import (
	"context"
	"strconv"

	"github.com/law-makers/plancrawl/internal/failure"
	"github.com/law-makers/plancrawl/pkg/models"
)

// Sequencer maps integer sequence values of the form YYYY*10000+index to
// years, indices and uids. Indices roll over into the next year at
// maxIndex.
type Sequencer struct {
	maxIndex int
	uid      string
	prefixes []string
}

// NewSequencer builds the sequencer for a list adapter.
func NewSequencer(cfg *Config) Sequencer {
	maxIndex := cfg.Sequence.MaxIndex
	if maxIndex <= 0 || maxIndex > sequenceBase {
		maxIndex = DefaultMaxIndex
	}
	return Sequencer{maxIndex: maxIndex, uid: cfg.Sequence.UID, prefixes: cfg.Sequence.Prefixes}
}

// Split partitions n into year and index, rolling surplus indices over
// into later years.
func (q Sequencer) Split(n int) (year, index int) {
	year, index = n/sequenceBase, n%sequenceBase
	if index >= q.maxIndex {
		year += index / q.maxIndex
		index %= q.maxIndex
	}
	return year, index
}

// Join is the inverse of Split.
func (q Sequencer) Join(year, index int) int {
	return year*sequenceBase + index
}

// Normalize rewrites n with its index in range.
func (q Sequencer) Normalize(n int) int {
	return q.Join(q.Split(n))
}

// Add moves k positions along the sequence, crossing year boundaries in
// either direction.
func (q Sequencer) Add(n, k int) int {
	year, index := q.Split(n)
	ord := year*q.maxIndex + index + k
	if ord < 0 {
		ord = 0
	}
	return q.Join(ord/q.maxIndex, ord%q.maxIndex)
}

// Distance is the number of positions from a to b.
func (q Sequencer) Distance(a, b int) int {
	ya, ia := q.Split(a)
	yb, ib := q.Split(b)
	return (yb*q.maxIndex + ib) - (ya*q.maxIndex + ia)
}

// Prefixes returns the uid prefixes to try per slot; a site without
// prefix families has the single empty prefix.
func (q Sequencer) Prefixes() []string {
	if len(q.prefixes) == 0 {
		return []string{""}
	}
	return q.prefixes
}

// UID renders the candidate uid of sequence value n. Without a uid
// template the normalised number itself is the uid.
func (q Sequencer) UID(n int, prefix string) (string, error) {
	n = q.Normalize(n)
	if q.uid == "" {
		return strconv.Itoa(n), nil
	}
	year, index := q.Split(n)
	return execute("sequence uid", q.uid, struct {
		Year, YY, Index, Seq int
		Prefix               string
	}{year, year % 100, index, n, prefix})
}

// SequenceSite fetches records one sequence value at a time.
type SequenceSite struct {
	*Site
	seq Sequencer
}

// Sequencer implements ListAdapter.
func (s *SequenceSite) Sequencer() Sequencer { return s.seq }

// IDRecords implements ListAdapter. Each slot yields a full record, the
// site's "no such application" (skipped) or a parser failure, which ends
// the batch with INVALID_FORMAT. ToSeq is the last slot settled.
func (s *SequenceSite) IDRecords(ctx context.Context, fromSeq, toSeq, maxSeq int) (*Batch, error) {
	from := s.seq.Normalize(fromSeq)
	last := s.seq.Normalize(toSeq)
	if maxSeq > 0 && s.seq.Distance(maxSeq, last) > 0 {
		last = s.seq.Normalize(maxSeq)
	}
	b := &Batch{FromSeq: from, ToSeq: s.seq.Add(from, -1)}
	for n := from; s.seq.Distance(n, last) >= 0; n = s.seq.Add(n, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, err := s.slot(ctx, n)
		switch {
		case err == nil:
			b.IDs = append(b.IDs, id)
			b.LastSeq = n
		case failure.IsKind(err, failure.KindNoData):
			s.log.Debug().Int("seq", n).Msg("No application in slot")
		case failure.IsKind(err, failure.KindInvalidFormat):
			b.Kind, b.Detail = failure.KindInvalidFormat, err.Error()
			s.log.Warn().Err(err).Int("seq", n).Msg("Unreadable record, ending batch")
			return b, nil
		default:
			return nil, err
		}
		b.ToSeq = n
	}
	if len(b.IDs) == 0 && b.Kind == "" {
		b.Kind, b.Detail = failure.KindEmptyOK, "no applications in range"
	}
	return b, nil
}

// slot tries each prefix family for sequence value n and keeps the first
// that yields a record.
func (s *SequenceSite) slot(ctx context.Context, n int) (models.Identifier, error) {
	var lastErr error
	for _, prefix := range s.seq.Prefixes() {
		uid, err := s.seq.UID(n, prefix)
		if err != nil {
			return models.Identifier{}, failure.InvalidFormat("%v", err)
		}
		res, err := s.Detail(ctx, models.Identifier{UID: uid})
		if err == nil {
			return models.Identifier{UID: uid, URL: res.URL, Fields: res.Fields, Complete: true}, nil
		}
		if !failure.IsKind(err, failure.KindNoData) {
			return models.Identifier{}, err
		}
		lastErr = err
	}
	return models.Identifier{}, lastErr
}

// MaxSequence implements ListAdapter. Unless pinned in configuration it
// probes the current year, then the previous one, for the highest
// existing index and adds half the id goal as margin, so it may over- but
// never under-report.
func (s *SequenceSite) MaxSequence(ctx context.Context) (int, error) {
	if s.cfg.Sequence.Max > 0 {
		return s.cfg.Sequence.Max, nil
	}
	margin := s.cfg.MinIDGoal / 2
	year := s.env.now().Year()
	for _, y := range []int{year, year - 1} {
		hi, found, err := s.probe(ctx, y)
		if err != nil {
			return 0, err
		}
		if found {
			top := s.seq.Add(s.seq.Join(y, hi), margin)
			s.log.Debug().Int("year", y).Int("index", hi).Int("max_sequence", top).Msg("Probed max sequence")
			return top, nil
		}
	}
	return s.seq.Add(s.seq.Join(year, 0), margin), nil
}

// probe binary-searches the index space of year for the highest index
// with a record, assuming indices are issued densely from 1.
func (s *SequenceSite) probe(ctx context.Context, year int) (int, bool, error) {
	exists := func(index int) (bool, error) {
		_, err := s.slot(ctx, s.seq.Join(year, index))
		switch {
		case err == nil, failure.IsKind(err, failure.KindInvalidFormat):
			return true, nil
		case failure.IsKind(err, failure.KindNoData):
			return false, nil
		}
		return false, err
	}
	ok, err := exists(1)
	if err != nil || !ok {
		return 0, false, err
	}
	lo, hi := 1, s.seq.maxIndex-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		ok, err := exists(mid)
		if err != nil {
			return 0, false, err
		}
		if ok {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo, true, nil
}
