package fixture

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/law-makers/plancrawl/internal/adapter"
	"github.com/law-makers/plancrawl/internal/adapter/adaptertest"
	"github.com/law-makers/plancrawl/internal/engine"
	"github.com/law-makers/plancrawl/internal/failure"
	"github.com/law-makers/plancrawl/internal/fetch"
	"github.com/law-makers/plancrawl/pkg/models"
)

func clock() time.Time { return adaptertest.Now }

func open(t *testing.T, cfg *adapter.Config) adapter.Adapter {
	t.Helper()
	a, err := adapter.Open(cfg, adaptertest.Env())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func day(s string) time.Time {
	d, err := models.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fields counts the fields a real fetch of the 42nd application yields.
func fields(t *testing.T, site *adaptertest.Site, a adapter.Adapter) (string, int) {
	t.Helper()
	app, ok := site.ByIndex(42)
	require.True(t, ok)
	rec, err := fetch.New(clock).Fetch(context.Background(), a, models.Identifier{UID: app.UID})
	require.NoError(t, err)
	return app.UID, len(rec)
}

func TestSpan(t *testing.T) {
	tests := []struct {
		name string
		kind adapter.Kind
		bt   adapter.BatchTest
		want engine.Span
		err  bool
	}{
		{"window", adapter.KindDate, adapter.BatchTest{From: "2012-09-13", To: "2012-09-19"}, engine.Span{From: day("2012-09-13"), To: day("2012-09-19")}, false},
		{"single date", adapter.KindDate, adapter.BatchTest{Date: "2012-09-13"}, engine.Span{From: day("2012-09-13"), To: day("2012-09-13")}, false},
		{"open window", adapter.KindDate, adapter.BatchTest{From: "2012-09-13"}, engine.Span{From: day("2012-09-13"), To: day("2012-09-13")}, false},
		{"period anchor", adapter.KindPeriod, adapter.BatchTest{Date: "2012-09-13"}, engine.Span{From: day("2012-09-13")}, false},
		{"sequence", adapter.KindList, adapter.BatchTest{FromSeq: 20120506, ToSeq: 20120516}, engine.Span{FromSeq: 20120506, ToSeq: 20120516}, false},
		{"single sequence", adapter.KindList, adapter.BatchTest{FromSeq: 20120506}, engine.Span{FromSeq: 20120506, ToSeq: 20120506}, false},
		{"list without range", adapter.KindList, adapter.BatchTest{Date: "2012-09-13"}, engine.Span{}, true},
		{"bad date", adapter.KindDate, adapter.BatchTest{From: "13/09/2012"}, engine.Span{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Span(&adapter.Config{Authority: "Stub", Kind: tt.kind}, tt.bt)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRunDateFixtures(t *testing.T) {
	site := adaptertest.New(t)
	a := open(t, site.Config(t, "date"))
	uid, n := fields(t, site, a)

	cfg := a.Config()
	cfg.DetailTests = []adapter.DetailTest{
		{UID: uid, Len: n},
		{UID: uid, Len: n + 2, Tolerance: 2},
		{UID: uid, Len: n + 3, Tolerance: 1},
	}
	cfg.BatchTests = []adapter.BatchTest{
		{From: "2012-09-13", To: "2012-09-19", Len: 33},
		{From: "2012-09-13", To: "2012-09-19", Len: 35, Tolerance: 2},
		{Date: "2012-09-22", Len: 3},
	}

	var progress bytes.Buffer
	out, err := Run(context.Background(), []adapter.Adapter{a}, Options{Now: clock, Progress: &progress})
	require.NoError(t, err)
	require.Len(t, out, 6)

	pass := make([]bool, len(out))
	for i, o := range out {
		pass[i] = o.Pass
		require.Equal(t, "Testshire date", o.Authority)
	}
	require.Equal(t, []bool{true, true, false, true, true, false}, pass)
	require.Equal(t, 2, Failed(out))

	require.Equal(t, Detail, out[0].Type)
	require.Equal(t, n, out[0].Got)
	require.Equal(t, Batch, out[3].Type)
	require.Equal(t, 33, out[3].Got)
	require.Equal(t, "2012-09-13..2012-09-19", out[3].Name)
	require.Equal(t, 1, out[5].Got)
	require.Contains(t, out[5].String(), "FAIL Testshire date batch")
}

func TestRunPeriodAndListFixtures(t *testing.T) {
	site := adaptertest.New(t)
	period := open(t, site.Config(t, "period"))
	period.Config().BatchTests = []adapter.BatchTest{{Date: "2012-09-13", Len: 28}}

	list := open(t, site.Config(t, "list"))
	list.Config().BatchTests = []adapter.BatchTest{{FromSeq: 20120506, ToSeq: 20120516, Len: 11}}

	out, err := Run(context.Background(), []adapter.Adapter{period, list}, Options{Now: clock})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, o := range out {
		require.True(t, o.Pass, o.String())
	}
	require.Equal(t, "2012-09-13", out[0].Name)
	require.Equal(t, "20120506..20120516", out[1].Name)
}

func TestRunReportsFailures(t *testing.T) {
	site := adaptertest.New(t)
	a := open(t, site.Config(t, "date"))
	app, ok := site.ByIndex(7)
	require.True(t, ok)
	site.Down[app.Key] = true

	cfg := a.Config()
	cfg.DetailTests = []adapter.DetailTest{
		{UID: app.UID, Len: 5},
		{UID: "12/99999/FUL", Len: 5},
	}
	cfg.BatchTests = []adapter.BatchTest{{From: "2012-09-13", To: "2012-09-19", Len: 33}}

	out, err := Run(context.Background(), []adapter.Adapter{a}, Options{Now: clock})
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, failure.KindTransport, out[0].Kind)
	require.Equal(t, failure.KindNoData, out[1].Kind)
	require.False(t, out[0].Pass)
	require.False(t, out[1].Pass)
	// The fixtures after a failing one still run.
	require.True(t, out[2].Pass)
}

func TestRunCancelled(t *testing.T) {
	site := adaptertest.New(t)
	a := open(t, site.Config(t, "date"))
	a.Config().BatchTests = []adapter.BatchTest{{From: "2012-09-13", To: "2012-09-19", Len: 33}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := Run(ctx, []adapter.Adapter{a}, Options{Now: clock})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, out)
}
