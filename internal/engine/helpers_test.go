package engine

import (
	"time"

	"github.com/law-makers/plancrawl/internal/adapter"
	"github.com/law-makers/plancrawl/internal/adapter/adaptertest"
)

// newTestStrategy opens cfg with the test environment and returns its
// strategy running on the fake site's clock. Close the adapter when done.
func newTestStrategy(cfg *adapter.Config) (Strategy, error) {
	a, err := adapter.Open(cfg, adaptertest.Env())
	if err != nil {
		return nil, err
	}
	s, err := New(a, Options{Now: func() time.Time { return adaptertest.Now }})
	if err != nil {
		a.Close()
		return nil, err
	}
	return s, nil
}
