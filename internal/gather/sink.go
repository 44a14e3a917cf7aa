package gather

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/law-makers/plancrawl/pkg/models"
)

// Sink receives every record a tick emits. Sinks may be shared between
// concurrently running gatherers.
type Sink interface {
	Emit(ctx context.Context, rec models.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec models.Record) error

// Emit implements Sink.
func (f SinkFunc) Emit(ctx context.Context, rec models.Record) error { return f(ctx, rec) }

// JSONLines writes one JSON object per record.
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLines returns a sink writing to w.
func NewJSONLines(w io.Writer) *JSONLines {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLines{enc: enc}
}

// Emit implements Sink.
func (s *JSONLines) Emit(_ context.Context, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(rec)
}

// Memory keeps records in emission order.
type Memory struct {
	mu      sync.Mutex
	records []models.Record
}

// Emit implements Sink.
func (m *Memory) Emit(_ context.Context, rec models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of the records emitted so far.
func (m *Memory) Records() []models.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Record(nil), m.records...)
}

// UIDs returns the uids emitted so far, in order.
func (m *Memory) UIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.records))
	for i, r := range m.records {
		out[i] = r.String(models.KeyUID)
	}
	return out
}
