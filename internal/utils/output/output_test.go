package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/law-makers/plancrawl/pkg/models"
)

func records() []models.Record {
	return []models.Record{
		{
			models.KeyUID:         "12/00042/FUL",
			models.KeyAuthority:   "Cheltenham",
			models.KeyAddress:     "42 High Street, Testtown TT7 2AB",
			models.KeyDescription: "Erection of single storey rear extension & porch",
			models.KeyEasting:     float64(530042),
			models.KeyURL:         "https://example.org/app?keyVal=MK00042A&activeTab=summary",
			"parish":              "Testtown",
		},
		{
			models.KeyUID:     "12/00043/FUL",
			models.KeyAddress: "43 High Street",
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{"json", JSON, false},
		{".JSONL", JSONL, false},
		{"ndjson", JSONL, false},
		{"csv", CSV, false},
		{".md", Markdown, false},
		{"markdown", Markdown, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, CSV, records()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"uid", "authority", "address", "description", "easting", "url", "parish"}, rows[0])
	require.Equal(t, "530042", rows[1][4])
	require.Equal(t, "Testtown", rows[1][6])
	require.Equal(t, []string{"12/00043/FUL", "", "43 High Street", "", "", "", ""}, rows[2])
}

func TestWriteJSONAndLines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, JSON, records()))
	var got []models.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	require.Contains(t, buf.String(), "&activeTab")

	buf.Reset()
	require.NoError(t, Write(&buf, JSON, nil))
	require.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, JSONL, records()))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var rec models.Record
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	require.Equal(t, "12/00043/FUL", rec.String(models.KeyUID))
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Markdown, records()))
	out := buf.String()
	require.Contains(t, out, "## Cheltenham 12/00042/FUL")
	require.Contains(t, out, "## 12/00043/FUL")
	require.Contains(t, out, "42 High Street, Testtown TT7 2AB")
	require.Contains(t, out, "](https://example.org/app?keyVal=MK00042A&activeTab=summary)")
	require.Contains(t, out, "|")
}

func TestSavePicksFormatFromExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	require.NoError(t, Save(path, "", records()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "uid,authority,address"))

	path = filepath.Join(dir, "out.txt")
	require.NoError(t, Save(path, "", records()))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "["))
}
