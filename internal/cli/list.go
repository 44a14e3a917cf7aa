// internal/cli/list.go
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/law-makers/plancrawl/internal/fixture"
	"github.com/law-makers/plancrawl/internal/ui"
)

var listKind string

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List declared scrapers",
	Long: `Lists every declared scraper with its family, acquisition kind, batch
parameters, blackout window, fixture count and gathered range.`,
	Example: `  # All scrapers
  plancrawl list

  # Only list (sequence) scrapers
  plancrawl list --kind=list`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listKind, "kind", "", "Only show scrapers of this kind: date, period or list")
}

func runList(cmd *cobra.Command, args []string) error {
	a := GetApp(cmd)
	now := time.Now()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Authority", "Family", "Kind", "Batch", "Goal", "Start", "Blackout", "Fixtures", "Gathered"})
	n := 0
	for _, c := range a.Scrapers() {
		if listKind != "" && string(c.Kind) != listKind {
			continue
		}
		name := c.Authority
		if c.Disabled {
			name = ui.Info(name + " (disabled)")
		}
		blackout := "-"
		if c.Blackout != nil {
			blackout = c.Blackout.String()
			if c.Blackout.Active(now) {
				blackout = ui.Error(blackout)
			}
		}
		gathered := "-"
		cur, err := a.Cursor(cmd.Context(), c.Authority)
		if err != nil {
			return err
		}
		if cur != nil {
			gathered = cursorSpan(*cur)
		}
		t.AppendRow(table.Row{name, c.Family, c.Kind, c.BatchSize, c.MinIDGoal, c.DataStartTarget, blackout, fixture.Count(c), gathered})
		n++
	}
	t.Render()
	fmt.Fprintln(os.Stderr, ui.Bold(fmt.Sprintf("%d scrapers", n)))
	return nil
}
