// internal/cli/cursors.go
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/law-makers/plancrawl/internal/ui"
	"github.com/law-makers/plancrawl/pkg/models"
)

var cursorsYes bool

// cursorsCmd represents the cursors command
var cursorsCmd = &cobra.Command{
	Use:   "cursors",
	Short: "Manage saved gather cursors",
	Long: `List, inspect and reset the gather cursors saved in the cursor database.

A cursor records how far forward and backward an authority has been gathered.
Resetting it makes the next gather start again from the initial frontier.`,
}

var cursorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved cursors",
	Args:  cobra.NoArgs,
	RunE:  runCursorsList,
}

var cursorsViewCmd = &cobra.Command{
	Use:   "view <authority>",
	Short: "Print one cursor as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runCursorsView,
}

var cursorsResetCmd = &cobra.Command{
	Use:     "reset <authority>",
	Aliases: []string{"delete"},
	Short:   "Forget the cursor of an authority",
	Args:    cobra.ExactArgs(1),
	RunE:    runCursorsReset,
}

func init() {
	rootCmd.AddCommand(cursorsCmd)
	cursorsCmd.AddCommand(cursorsListCmd)
	cursorsCmd.AddCommand(cursorsViewCmd)
	cursorsCmd.AddCommand(cursorsResetCmd)

	cursorsResetCmd.Flags().BoolVarP(&cursorsYes, "yes", "y", false, "Do not ask for confirmation")
}

func runCursorsList(cmd *cobra.Command, args []string) error {
	a := GetApp(cmd)
	cursors, err := a.Cursors.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(cursors) == 0 {
		fmt.Fprintln(os.Stderr, ui.Info("No saved cursors."))
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Authority", "Kind", "Gathered", "Target", "Backward", "Updated"})
	for _, c := range cursors {
		target := "-"
		switch c.Kind {
		case models.CursorSequence:
			target = fmt.Sprint(c.TargetSeq)
		case models.CursorDate:
			target = c.TargetDate.Format(models.DateLayout)
		}
		backward := ui.Info("in progress")
		if c.BackwardDone() {
			backward = ui.Success("done")
		}
		t.AppendRow(table.Row{c.Authority, c.Kind, cursorSpan(*c), target, backward, c.UpdatedAt.Format(time.RFC1123)})
	}
	t.Render()
	return nil
}

func runCursorsView(cmd *cobra.Command, args []string) error {
	a := GetApp(cmd)
	c, err := a.Cursor(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("no saved cursor for '%s'", args[0])
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

func runCursorsReset(cmd *cobra.Command, args []string) error {
	a := GetApp(cmd)
	cfg, err := a.Scraper(args[0])
	if err != nil {
		return err
	}

	if !cursorsYes {
		fmt.Fprintf(os.Stderr, "Reset cursor of '%s'? [y/N]: ", cfg.Authority)
		var confirm string
		fmt.Scanln(&confirm)
		if confirm != "y" && confirm != "Y" {
			fmt.Fprintln(os.Stderr, "Cancelled.")
			return nil
		}
	}

	if err := a.ResetCursor(cmd.Context(), cfg.Authority); err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	fmt.Fprintln(os.Stderr, ui.Success(fmt.Sprintf("Cursor of '%s' reset.", cfg.Authority)))
	return nil
}
