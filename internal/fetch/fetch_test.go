package fetch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/law-makers/plancrawl/internal/adapter"
	"github.com/law-makers/plancrawl/internal/adapter/adaptertest"
	"github.com/law-makers/plancrawl/internal/failure"
	"github.com/law-makers/plancrawl/pkg/models"
)

func open(t *testing.T, cfg *adapter.Config) adapter.Adapter {
	t.Helper()
	a, err := adapter.Open(cfg, adaptertest.Env())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func clock() time.Time { return adaptertest.Now }

func TestRef(t *testing.T) {
	tests := []struct {
		in   string
		want models.Identifier
	}{
		{"12/00042/FUL", models.Identifier{UID: "12/00042/FUL"}},
		{"  12/00042/FUL ", models.Identifier{UID: "12/00042/FUL"}},
		{"https://example.org/app?id=1", models.Identifier{URL: "https://example.org/app?id=1"}},
		{"HTTP://example.org/app", models.Identifier{URL: "HTTP://example.org/app"}},
		{"httpish", models.Identifier{UID: "httpish"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, Ref(tt.in))
		})
	}
}

func TestFetchByUID(t *testing.T) {
	site := adaptertest.New(t)
	a := open(t, site.Config(t, "date"))
	app, ok := site.ByIndex(42)
	require.True(t, ok)

	rec, err := New(clock).Fetch(context.Background(), a, Ref(app.UID))
	require.NoError(t, err)

	require.Equal(t, app.UID, rec.String(models.KeyUID))
	require.Equal(t, app.UID, rec.String(models.KeyReference))
	require.Equal(t, app.Address, rec.String(models.KeyAddress))
	require.Equal(t, app.Description, rec.String(models.KeyDescription))
	require.Equal(t, "Testshire date", rec.String(models.KeyAuthority))
	require.Equal(t, app.Validated.Format(time.DateOnly), rec.String(models.KeyDateValidated))
	require.Equal(t, app.Received.Format(time.DateOnly), rec.String(models.KeyDateReceived))
	require.Equal(t, app.Received.Format(time.DateOnly), rec.String(models.KeyStartDate))
	require.Equal(t, "2012-10-01T12:00:00Z", rec.String(models.KeyDateScraped))
	require.Equal(t, fmt.Sprintf("TT%d %dAB", 42%9+1, 42%10), rec.String(models.KeyPostcode))
	require.Equal(t, "Jane Smith", rec.String("case_officer"))
	require.Contains(t, rec.String(models.KeyURL), "applicationDetails.do?activeTab=summary")
	require.NotContains(t, rec.String(models.KeyURL), "simpleSearchResults.do")
	require.Contains(t, rec.String(models.KeySourceURL), "applicationDetails.do")
}

func TestFetchByUIDWithoutStableURL(t *testing.T) {
	site := adaptertest.New(t)
	cfg := site.Config(t, "date")
	cfg.UIDSearch.Self = nil
	a := open(t, cfg)
	app, _ := site.ByIndex(42)

	rec, err := New(clock).Fetch(context.Background(), a, Ref(app.UID))
	require.NoError(t, err)
	require.Equal(t, app.UID, rec.String(models.KeyUID))
	require.False(t, rec.Has(models.KeyURL))
	require.False(t, rec.Has(models.KeySourceURL))
}

func TestFetchByURL(t *testing.T) {
	site := adaptertest.New(t)
	a := open(t, site.Config(t, "date"))
	ctx := context.Background()

	b, err := a.(adapter.DateAdapter).IDBatch(ctx, time.Date(2012, 9, 13, 0, 0, 0, 0, time.UTC), time.Date(2012, 9, 13, 0, 0, 0, 0, time.UTC), 20)
	require.NoError(t, err)
	require.NotEmpty(t, b.IDs)

	rec, err := New(clock).Fetch(ctx, a, Ref(b.IDs[0].URL))
	require.NoError(t, err)
	require.Equal(t, b.IDs[0].UID, rec.String(models.KeyUID))
	require.Equal(t, "2012-09-13", rec.String(models.KeyDateValidated))
	require.Zero(t, site.Hits("/online-applications/simpleSearchResults.do"))
}

func TestFetchJSON(t *testing.T) {
	site := adaptertest.New(t)
	a := open(t, site.Config(t, "json"))
	ctx := context.Background()

	b, err := a.(adapter.DateAdapter).IDBatch(ctx, time.Date(2012, 9, 13, 0, 0, 0, 0, time.UTC), time.Date(2012, 9, 13, 0, 0, 0, 0, time.UTC), 20)
	require.NoError(t, err)
	require.NotEmpty(t, b.IDs)
	app, ok := site.ByIndex(0)
	for _, candidate := range site.Apps {
		if candidate.UID == b.IDs[0].UID {
			app, ok = candidate, true
		}
	}
	require.True(t, ok)

	rec, err := New(clock).Fetch(ctx, a, b.IDs[0])
	require.NoError(t, err)
	e, ok := rec.Float(models.KeyEasting)
	require.True(t, ok)
	require.Equal(t, float64(530000+app.Index), e)
	n, ok := rec.Float(models.KeyNorthing)
	require.True(t, ok)
	require.Equal(t, float64(180000), n)
	lat, ok := rec.Float(models.KeyLatitude)
	require.True(t, ok)
	require.InDelta(t, 51.5, lat, 0.1)
	require.Equal(t, "Registered", rec.String(models.KeyStatus))
}

func TestFetchCompleteIdentifier(t *testing.T) {
	site := adaptertest.New(t)
	cfg := site.Config(t, "list")
	a := open(t, cfg)
	ctx := context.Background()

	b, err := a.(adapter.ListAdapter).IDRecords(ctx, 20120506, 20120506, 0)
	require.NoError(t, err)
	require.Len(t, b.IDs, 1)

	hits := site.Hits("/online-applications/simpleSearchResults.do")
	rec, err := New(clock).Fetch(ctx, a, b.IDs[0])
	require.NoError(t, err)
	require.Equal(t, hits, site.Hits("/online-applications/simpleSearchResults.do"))
	require.Equal(t, b.IDs[0].UID, rec.String(models.KeyUID))
	// uid_only sites have no stable url to publish.
	require.False(t, rec.Has(models.KeyURL))
	require.True(t, rec.Has(models.KeySourceURL))
}

func TestFetchFailures(t *testing.T) {
	site := adaptertest.New(t)
	ctx := context.Background()
	broken, _ := site.ByIndex(7)
	site.Broken[broken.Key] = true
	down, _ := site.ByIndex(9)
	site.Down[down.Key] = true
	good, _ := site.ByIndex(11)

	strict := site.Config(t, "date")
	strict.MinFields = []string{models.KeyReference, "parish"}

	tests := []struct {
		name string
		cfg  *adapter.Config
		id   models.Identifier
		want failure.Kind
	}{
		{"absent uid", site.Config(t, "date"), models.Identifier{UID: "12/99999/FUL"}, failure.KindNoData},
		{"unreadable page", site.Config(t, "date"), models.Identifier{UID: broken.UID}, failure.KindInvalidFormat},
		{"server error", site.Config(t, "date"), models.Identifier{UID: down.UID}, failure.KindTransport},
		{"minimum fields missing", strict, models.Identifier{UID: good.UID}, failure.KindNoData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := New(clock).Fetch(ctx, open(t, tt.cfg), tt.id)
			require.Nil(t, rec)
			require.True(t, failure.IsKind(err, tt.want), "got %v", err)
		})
	}
}

func TestFetchBlackout(t *testing.T) {
	site := adaptertest.New(t)
	cfg := site.Config(t, "date")
	cfg.Blackout = &adapter.Blackout{From: "11:00", To: "13:00"}
	a := open(t, cfg)

	_, err := New(clock).Fetch(context.Background(), a, models.Identifier{UID: "12/00001/FUL"})
	require.True(t, failure.IsKind(err, failure.KindBlackout), "got %v", err)
	require.Zero(t, site.Hits("/online-applications/search.do"))
	require.Zero(t, site.Hits("/online-applications/simpleSearchResults.do"))
}

func TestMissing(t *testing.T) {
	rec := models.Record{"reference": "A", "address": "", "description": "x"}
	require.Equal(t, []string{"address", "postcode"}, Missing(rec, []string{"reference", "address", "description", "postcode"}))
	require.Empty(t, Missing(rec, []string{"reference"}))
}
