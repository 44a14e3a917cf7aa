package clean

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wroge/wgs84"

	"github.com/law-makers/plancrawl/pkg/models"
)

var fixedNow = func() time.Time { return time.Date(2012, 9, 20, 10, 30, 0, 0, time.UTC) }

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"13/09/2012", "2012-09-13"},
		{"2012-09-13", "2012-09-13"},
		{"Thu 13 Sep 2012", "2012-09-13"},
		{"13 September 2012", "2012-09-13"},
		{"13-Sep-2012", "2012-09-13"},
		{"13/09/2012 14:05", "2012-09-13"},
		{"  13/09/2012\n", "2012-09-13"},
		{"2012/9/13", "2012-09-13"},
		{"", ""},
		{" ", ""},
		{"''", ""},
		{"01/01/1970", ""},
		{"not a date", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in, nil, time.UTC)
			if tt.want == "" {
				require.False(t, ok, "parsed %q as %v", tt.in, got)
				return
			}
			require.True(t, ok)
			require.Equal(t, tt.want, got.Format(models.DateLayout))
		})
	}
}

func TestParseDateAdapterLayoutFirst(t *testing.T) {
	// Month-first only when the adapter says so.
	got, ok := ParseDate("09/13/2012", []string{"01/02/2006"}, time.UTC)
	require.True(t, ok)
	require.Equal(t, "2012-09-13", got.Format(models.DateLayout))

	got, ok = ParseDate("04/05/2012", nil, time.UTC)
	require.True(t, ok)
	require.Equal(t, "2012-05-04", got.Format(models.DateLayout))
}

func TestFields(t *testing.T) {
	c := New("02/01/2006")
	got := c.Fields(map[string]any{
		"uid":            "  12/00001/FUL\n ",
		"odd_uid":        "A  B",
		"url":            " https://pa.example.gov.uk/online-applications/applicationDetails.do;jsessionid=ABC123?activeTab=summary&amp;keyVal= X1 ",
		"documents_url":  "https://pa.example.gov.uk/docs;jsessionid=Z",
		"description":    "Erection of <b>a shed</b> &amp;   garage",
		"date_received":  "13/09/2012",
		"decision_date":  "   ",
		"appeal_date":    "''",
		"ward":           "Abbey",
		"applicant":      "Mr A Smith",
		"applicant_name": "Mrs B Smith",
		"status":         "",
		"records":        []map[string]any{{"uid": "x"}},
	})
	want := models.Record{
		"uid":            "12/00001/FUL",
		"odd_uid":        "A B",
		"url":            "https://pa.example.gov.uk/online-applications/applicationDetails.do?activeTab=summary&keyVal=X1",
		"documents_url":  "https://pa.example.gov.uk/docs",
		"description":    "Erection of a shed & garage",
		"date_received":  "2012-09-13",
		"ward_name":      "Abbey",
		"applicant":      "Mr A Smith",
		"applicant_name": "Mrs B Smith",
	}
	require.Equal(t, want, got)
}

func TestFieldsStable(t *testing.T) {
	tests := []struct {
		name string
		key  string
		in   string
		want string
	}{
		{"escaped markup", "description", "Replace &lt;b&gt;Shop&lt;/b&gt; sign", "Replace Shop sign"},
		{"double escaped ampersand", "description", "AT&T &amp;amp; partners", "AT&T & partners"},
		{"plain text", "description", "Two storey side extension", "Two storey side extension"},
		{"double escaped url", "url", "https://pa.example.gov.uk/a?b=1&amp;amp;c=2", "https://pa.example.gov.uk/a?b=1&c=2"},
		{"unterminated entity in url", "url", "https://pa.example.gov.uk/a?b=1&copy=2", "https://pa.example.gov.uk/a?b=1&copy=2"},
		{"numeric entity in url", "url", "https://pa.example.gov.uk/a?b=1&#38;c=2", "https://pa.example.gov.uk/a?b=1&c=2"},
	}
	c := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := c.Fields(map[string]any{tt.key: tt.in})
			require.Equal(t, tt.want, once.String(tt.key))
			twice := c.Fields(map[string]any(once))
			require.Equal(t, once, twice)
		})
	}
}

func TestUIDKeepsInternalSpace(t *testing.T) {
	got := New().Fields(map[string]any{"uid": "P  12 /\t0001"})
	require.Equal(t, "P 12 / 0001", got.String(models.KeyUID))
}

func TestAltReference(t *testing.T) {
	c := New()
	got := c.Fields(map[string]any{"reference": "Not Available", "alt_reference": "PP-01234567"})
	require.Equal(t, "PP-01234567", got.String(models.KeyReference))
	require.Equal(t, "PP-01234567", got.String(models.KeyPlanningPortal))

	got = c.Fields(map[string]any{"reference": "12/1", "alt_reference": "pp-7"})
	require.Equal(t, "12/1", got.String(models.KeyReference))
	require.Equal(t, "PP-7", got.String(models.KeyPlanningPortal))
}

func TestPostcode(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"1 High Street, Testtown TT1 1AA", "TT1 1AA"},
		{"Flat 2, 10 Downing St, London sw1a2aa", "SW1A 2AA"},
		{"Land at Mill Lane, EC1A 1BB (rear)", "EC1A 1BB"},
		{"No postcode here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			got, ok := Postcode(tt.address)
			require.Equal(t, tt.want != "", ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRecord(t *testing.T) {
	c := New().WithClock(fixedNow)
	r := c.Record(map[string]any{
		"reference":      "12/00001/FUL",
		"address":        "1 High Street, Testtown tt1 1aa",
		"date_received":  "14/09/2012",
		"date_validated": "13/09/2012",
		"easting":        "530000",
		"northing":       "180000",
	}, "Testshire", "https://pa.example.gov.uk/app;jsessionid=1?keyVal=X")

	require.Equal(t, "12/00001/FUL", r.String(models.KeyUID))
	require.Equal(t, "TT1 1AA", r.String(models.KeyPostcode))
	require.Equal(t, "2012-09-13", r.String(models.KeyStartDate))
	require.Equal(t, "Testshire", r.String(models.KeyAuthority))
	require.Equal(t, "2012-09-20T10:30:00Z", r.String(models.KeyDateScraped))
	require.Equal(t, "https://pa.example.gov.uk/app?keyVal=X", r.String(models.KeySourceURL))

	e, _ := r.Float(models.KeyEasting)
	require.Equal(t, 530000.0, e)
	lat, _ := r.Float(models.KeyLatitude)
	lng, _ := r.Float(models.KeyLongitude)
	require.InDelta(t, 51.50398, lat, 0.0005)
	require.InDelta(t, -0.12835, lng, 0.0005)

	again := c.Record(map[string]any(r), "Other", "https://elsewhere.example/")
	require.Equal(t, r, again, "cleaning a clean record must be a no-op")
}

func TestRecordStartDateFallbacks(t *testing.T) {
	c := New().WithClock(fixedNow)
	r := c.Record(map[string]any{"uid": "1", "date_received": "20/09/2012"}, "A", "")
	require.Equal(t, "2012-09-20", r.String(models.KeyStartDate))

	r = c.Record(map[string]any{"uid": "1", "decision_date": "01/10/2012", "consultation_end_date": "05/09/2012"}, "A", "")
	require.Equal(t, "2012-09-05", r.String(models.KeyStartDate))

	r = c.Record(map[string]any{"uid": "1", "date_received": " "}, "A", "")
	require.Equal(t, "2012-09-20", r.String(models.KeyStartDate))
	require.False(t, r.Has(models.KeyDateReceived))
}

func TestCoordinates(t *testing.T) {
	c := New().WithClock(fixedNow)

	short := c.Record(map[string]any{"uid": "1", "easting": "53405", "northing": "111111"}, "A", "")
	e, _ := short.Float(models.KeyEasting)
	require.Equal(t, 53405.0, e)
	lng, _ := short.Float(models.KeyLongitude)
	require.InDelta(t, -6.92, lng, 0.01)

	outside := c.Record(map[string]any{"uid": "1", "easting": "9999999", "northing": "180000"}, "A", "")
	require.False(t, outside.Has(models.KeyEasting))
	require.False(t, outside.Has(models.KeyLatitude))

	given := c.Record(map[string]any{"uid": "1", "latitude": "51.5", "longitude": "-0.12", "easting": "530000", "northing": "180000"}, "A", "")
	lat, _ := given.Float(models.KeyLatitude)
	require.Equal(t, 51.5, lat)
}

func TestGridToWGS84(t *testing.T) {
	tests := []struct {
		name     string
		e, n     float64
		lat, lng float64
	}{
		{"Caister water tower", 651409.903, 313177.270, 52.65798, 1.71605},
		{"Charing Cross", 530000, 180000, 51.50399, -0.12835},
		{"Scilly", 53405, 111111, 50.79562, -6.92026},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lng := GridToWGS84(tt.e, tt.n)
			require.InDelta(t, tt.lat, lat, 0.00002)
			require.InDelta(t, tt.lng, lng, 0.00002)
		})
	}
}

func TestNationalGridProjection(t *testing.T) {
	airy := wgs84.OSGB36().Spheroid
	// Ordnance Survey worked example, OSGB36 52°39'27.2531"N 1°43'4.5177"E.
	lon, lat := nationalGrid{}.ToLonLat(651409.903, 313177.270, airy)
	require.InDelta(t, 52.6575703, lat, 1e-7)
	require.InDelta(t, 1.7179216, lon, 1e-7)

	e, n := nationalGrid{}.FromLonLat(lon, lat, airy)
	require.InDelta(t, 651409.903, e, 0.001)
	require.InDelta(t, 313177.270, n, 0.001)

	back := wgs84.Transform(wgs84.LonLat(), nationalGridCRS)
	lat, lng := GridToWGS84(530000, 180000)
	e, n, _ = back(lng, lat, 0)
	require.InDelta(t, 530000, e, 0.01)
	require.InDelta(t, 180000, n, 0.01)
}
