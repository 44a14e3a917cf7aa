// internal/cli/test.go
package cli

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/law-makers/plancrawl/internal/fixture"
	"github.com/law-makers/plancrawl/internal/ui"
)

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test [authority...]",
	Short: "Run scraper self-test fixtures against the live sites",
	Long: `Runs each scraper's detail_tests and batch_tests.

A detail fixture passes when fetching its uid yields a record carrying the
minimum fields and at least len fields (less the tolerance). A batch fixture
passes when its window, period or sequence range yields len identifiers,
within the tolerance. With no authority named every enabled scraper is tested.`,
	Example: `  # Test one scraper
  plancrawl test Cheltenham

  # Test everything
  plancrawl test`,
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	a := GetApp(cmd)

	outcomes, err := a.Test(cmd.Context(), args, os.Stderr)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Authority", "Fixture", "Target", "Want", "Got", "Result"})
	for _, o := range outcomes {
		want := fmt.Sprint(o.Want)
		if o.Tolerance > 0 {
			want += fmt.Sprintf(" ±%d", o.Tolerance)
		}
		result := ui.Success("PASS")
		if !o.Pass {
			result = ui.Error("FAIL")
			if o.Err != nil {
				result = ui.Error("FAIL " + o.Err.Error())
			}
		}
		t.AppendRow(table.Row{o.Authority, o.Type, o.Name, want, o.Got, result})
	}
	t.Render()

	if failed := fixture.Failed(outcomes); failed > 0 {
		return fmt.Errorf("%d of %d fixtures failed", failed, len(outcomes))
	}
	fmt.Fprintln(os.Stderr, ui.Success(fmt.Sprintf("All %d fixtures passed", len(outcomes))))
	return nil
}
