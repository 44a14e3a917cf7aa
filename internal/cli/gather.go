// internal/cli/gather.go
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/law-makers/plancrawl/internal/gather"
	"github.com/law-makers/plancrawl/internal/ui"
	"github.com/law-makers/plancrawl/pkg/models"
)

var (
	gatherAll         bool
	gatherConcurrency int
	gatherCron        string
	gatherGoal        int
	gatherOutput      string
)

// gatherCmd represents the gather command
var gatherCmd = &cobra.Command{
	Use:   "gather [authority...]",
	Short: "Run gather ticks and emit application records",
	Long: `Runs one gather tick per authority. A tick first walks the forward cursor
toward today, then spends any spare capacity walking the backward cursor
toward the scraper's data start target, until min_id_goal records have been
emitted. Cursors persist in the cursor database between runs.

Records are written as JSON lines. Authorities run in parallel; a failing
authority never stops the others.`,
	Example: `  # One tick for one authority
  plancrawl gather Cheltenham

  # One tick for every enabled scraper, 8 at a time
  plancrawl gather --all --concurrency=8 --output=records.jsonl

  # Repeat every hour until interrupted
  plancrawl gather --all --cron="@every 1h"`,
	RunE: runGather,
}

func init() {
	rootCmd.AddCommand(gatherCmd)

	gatherCmd.Flags().BoolVarP(&gatherAll, "all", "a", false, "Gather every enabled scraper")
	gatherCmd.Flags().IntVarP(&gatherConcurrency, "concurrency", "c", 0, "Authorities gathered at once (default from config)")
	gatherCmd.Flags().StringVar(&gatherCron, "cron", "", "Repeat on a cron schedule, e.g. \"0 */2 * * *\" or \"@every 1h\"")
	gatherCmd.Flags().IntVar(&gatherGoal, "goal", 0, "Records wanted per tick (overrides the scrapers' min_id_goal)")
	gatherCmd.Flags().StringVarP(&gatherOutput, "output", "o", "", "File to append JSON lines to (default stdout)")
}

func runGather(cmd *cobra.Command, args []string) error {
	a := GetApp(cmd)
	ctx := cmd.Context()

	names := args
	if gatherAll {
		names = a.Enabled()
	}
	if len(names) == 0 {
		return fmt.Errorf("name at least one authority, or use --all")
	}
	for _, n := range names {
		if _, err := a.Scraper(n); err != nil {
			return err
		}
	}

	sink, closeSink, err := openSink(gatherOutput, os.Stdout)
	if err != nil {
		return err
	}
	defer closeSink()

	opts := gather.Options{MinIDGoal: gatherGoal}

	if gatherCron != "" {
		sched, err := a.Schedule(ctx, gatherCron, names, gatherConcurrency, sink, opts)
		if err != nil {
			return err
		}
		log.Info().Str("cron", gatherCron).Int("authorities", len(names)).Msg("Gather scheduled, waiting for interrupt")
		sched.Start()
		<-ctx.Done()
		<-sched.Stop().Done()
		if last := sched.Last(); last != nil {
			printReports(os.Stderr, last)
		}
		return nil
	}

	reports := a.GatherAll(ctx, names, gatherConcurrency, sink, opts)
	printReports(os.Stderr, reports)
	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d authorities ended early", failed, len(reports))
	}
	return nil
}

// openSink returns a JSON-lines sink appending to path, or writing to def
// when path is empty.
func openSink(path string, def io.Writer) (*gather.JSONLines, func() error, error) {
	if path == "" {
		return gather.NewJSONLines(def), func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}
	return gather.NewJSONLines(f), f.Close, nil
}

// printReports renders a summary table of tick reports.
func printReports(w io.Writer, reports []*gather.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Authority", "Records", "Forward", "Backward", "Skipped", "Steps", "Cursor", "Result"})
	total := 0
	for _, r := range reports {
		result := ui.Outcome(string(r.Kind))
		if r.Err != nil && r.Kind == "" {
			result = ui.Error(r.Err.Error())
		}
		skipped := 0
		for _, n := range r.Skipped {
			skipped += n
		}
		t.AppendRow(table.Row{r.Authority, r.Records, r.Forward, r.Backward, skipped, r.Steps, cursorSpan(r.Cursor), result})
		total += r.Records
	}
	t.AppendFooter(table.Row{"Total", total})
	t.Render()
}

// cursorSpan shows the gathered range of a cursor as backward..forward.
func cursorSpan(c models.Cursor) string {
	switch c.Kind {
	case models.CursorSequence:
		return fmt.Sprintf("%d..%d", c.BackSeq, c.ForwardSeq)
	case models.CursorDate:
		return c.BackDate.Format(models.DateLayout) + ".." + c.ForwardDate.Format(models.DateLayout)
	}
	return "-"
}
