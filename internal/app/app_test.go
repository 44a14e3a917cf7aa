package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/law-makers/plancrawl/internal/adapter"
	"github.com/law-makers/plancrawl/internal/adapter/adaptertest"
	"github.com/law-makers/plancrawl/internal/api"
	"github.com/law-makers/plancrawl/internal/config"
	"github.com/law-makers/plancrawl/internal/gather"
	"github.com/law-makers/plancrawl/pkg/models"
)

func day(s string) time.Time {
	d, err := models.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

// newTestApp returns an application serving only the fake site.
func newTestApp(t *testing.T, site *adaptertest.Site, kinds ...string) *Application {
	t.Helper()
	cfg := config.Default()
	cfg.CursorDB = ":memory:"
	cfg.LogLevel = "error"
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })

	a.Registry = adapter.NewRegistry()
	for _, k := range kinds {
		a.Registry.Add(site.Config(t, k))
	}
	a.Env = adaptertest.Env()
	a.Now = func() time.Time { return adaptertest.Now }
	return a
}

func TestNewLoadsBuiltinScrapers(t *testing.T) {
	cfg := config.Default()
	cfg.CursorDB = ""
	cfg.LogLevel = "error"
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close(context.Background())

	names := a.Registry.Names()
	require.Contains(t, names, "Merton")
	require.Contains(t, names, "Dartmoor")
	require.NotNil(t, a.Env.Limiter)
	require.NotNil(t, a.Env.Cache)
	require.Nil(t, a.Env.Proxies)
	require.Equal(t, config.DefaultRetryAttempts, a.Env.Retry.MaxAttempts)

	cfgs := a.Scrapers()
	require.Len(t, cfgs, len(names))

	_, err = a.Scraper("Mertn")
	require.ErrorIs(t, err, adapter.ErrUnknownAuthority)
}

func TestGatherSavesCursor(t *testing.T) {
	site := adaptertest.New(t)
	a := newTestApp(t, site, "date")
	ctx := context.Background()

	c, err := a.Cursor(ctx, "Testshire date")
	require.NoError(t, err)
	require.Nil(t, c)

	sink := &gather.Memory{}
	rep, err := a.Gather(ctx, "Testshire date", sink, gather.Options{MinIDGoal: 20})
	require.NoError(t, err)
	require.Equal(t, len(site.Between(day("2012-09-03"), day("2012-09-16"))), rep.Records)
	require.Len(t, sink.Records(), rep.Records)

	c, err = a.Cursor(ctx, "testshire-date")
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Equal(t, day("2012-09-17"), c.ForwardDate)
	require.Equal(t, day("2012-09-03"), c.BackDate)

	require.NoError(t, a.ResetCursor(ctx, "Testshire date"))
	c, err = a.Cursor(ctx, "Testshire date")
	require.NoError(t, err)
	require.Nil(t, c)
}

func TestGatherAll(t *testing.T) {
	site := adaptertest.New(t)
	a := newTestApp(t, site, "date", "period")
	a.goal = 10

	sink := &gather.Memory{}
	reports := a.GatherAll(context.Background(), a.Enabled(), 2, sink, gather.Options{})
	require.Len(t, reports, 2)
	total := 0
	for _, r := range reports {
		require.NoError(t, r.Err)
		require.GreaterOrEqual(t, r.Records, 10)
		total += r.Records
	}
	require.Len(t, sink.Records(), total)
	require.Equal(t, "Testshire date", reports[0].Authority)
	require.Equal(t, "Testshire period", reports[1].Authority)
}

func TestFetchAndFixtures(t *testing.T) {
	site := adaptertest.New(t)
	a := newTestApp(t, site, "date")
	app, ok := site.ByIndex(42)
	require.True(t, ok)

	rec, err := a.Fetch(context.Background(), "Testshire date", models.Identifier{UID: app.UID})
	require.NoError(t, err)
	require.Equal(t, app.Address, rec.String(models.KeyAddress))

	cfg, err := a.Scraper("Testshire date")
	require.NoError(t, err)
	cfg.DetailTests = []adapter.DetailTest{{UID: app.UID, Len: len(rec)}}
	cfg.BatchTests = []adapter.BatchTest{{From: "2012-09-13", To: "2012-09-19", Len: 33}}

	var progress bytes.Buffer
	out, err := a.Test(context.Background(), nil, &progress)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, o := range out {
		require.True(t, o.Pass, o.String())
	}
}

func TestServesAPI(t *testing.T) {
	site := adaptertest.New(t)
	a := newTestApp(t, site, "date")
	srv := httptest.NewServer(api.New(a).Routes())
	defer srv.Close()
	app, _ := site.ByIndex(42)

	resp, err := http.Get(srv.URL + "/scrapers/Testshire%20date/applications/" + app.UID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec models.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	resp.Body.Close()
	require.Equal(t, app.UID, rec.String(models.KeyUID))

	resp, err = http.Post(srv.URL+"/scrapers/Testshire%20date/gather?goal=5", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got api.GatherResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	require.GreaterOrEqual(t, got.Records, 5)
	require.Equal(t, models.CursorDate, got.Cursor.Kind)

	resp, err = http.Get(srv.URL + "/scrapers/Testshire%20date")
	require.NoError(t, err)
	var s api.Scraper
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	resp.Body.Close()
	require.NotNil(t, s.Cursor)
	require.Equal(t, got.Cursor.ForwardDate, s.Cursor.ForwardDate)
}

func TestSetupLoggingJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	cfg.JSONLog = true
	cfg.LogLevel = "debug"
	l := SetupLogging(cfg, &buf)
	l.Info().Str("authority", "Merton").Msg("hello")

	var line map[string]any
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &line))
	require.Equal(t, "Merton", line["authority"])
	require.Equal(t, "hello", line["message"])
}
