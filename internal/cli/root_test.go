package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/law-makers/plancrawl/internal/ui"
	"github.com/law-makers/plancrawl/pkg/models"
)

func TestWrapText(t *testing.T) {
	in := `Serves declared scrapers and gather ticks
over HTTP:

  GET  /healthz
  GET  /scrapers

- one item`
	want := "Serves declared scrapers and\ngather ticks over HTTP:\n\n  GET  /healthz\n  GET  /scrapers\n\n- one item"
	require.Equal(t, want, wrapText(in, 30))
}

func TestPrintFlagsTo(t *testing.T) {
	var buf bytes.Buffer
	printFlagsTo(&buf, "  -a, --all    Gather every enabled scraper\n      --cron string   Cron schedule\n")
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], ui.ColorGreen+"-a, --all")
	require.Contains(t, lines[1], ui.ColorDim+"Cron schedule")
}

func TestCursorSpan(t *testing.T) {
	seq := models.Cursor{Kind: models.CursorSequence, BackSeq: 20120001, ForwardSeq: 20120150}
	require.Equal(t, "20120001..20120150", cursorSpan(seq))

	from, err := models.ParseDay("2012-09-03")
	require.NoError(t, err)
	to, err := models.ParseDay("2012-09-17")
	require.NoError(t, err)
	require.Equal(t, "2012-09-03..2012-09-17", cursorSpan(models.Cursor{Kind: models.CursorDate, BackDate: from, ForwardDate: to}))
	require.Equal(t, "-", cursorSpan(models.Cursor{}))
}
