// internal/cli/fetch.go
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/law-makers/plancrawl/internal/fetch"
	"github.com/law-makers/plancrawl/internal/utils/output"
	urlutil "github.com/law-makers/plancrawl/internal/utils/url"
	"github.com/law-makers/plancrawl/pkg/models"
)

var (
	fetchFormat string
	fetchOutput string
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch <authority> <uid|url>",
	Short: "Fetch one planning application",
	Long: `Resolves a uid (or a detail page URL) to the application's detail pages,
extracts and cleans the record and prints it.

A fetch fails with NO_DATA when the application does not exist or lacks the
scraper's minimum fields, and with BLACKOUT inside the site's blackout window.`,
	Example: `  # Fetch by uid
  plancrawl fetch Cheltenham 12/01528/FUL

  # Fetch by detail page URL and print Markdown
  plancrawl fetch Merton "https://planning.merton.gov.uk/..." --format=markdown

  # Save to a CSV file
  plancrawl fetch Cheltenham 12/01528/FUL --output=app.csv`,
	Args: cobra.ExactArgs(2),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVarP(&fetchFormat, "format", "f", "json", "Output format: json, jsonl, csv or markdown")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "File path to save output (format from extension unless --format is set)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	a := GetApp(cmd)
	authority, ref := args[0], args[1]

	log.Info().Str("authority", authority).Str("ref", ref).Msg("Fetching application")
	id := fetch.Ref(ref)
	if id.URL != "" {
		if err := urlutil.ValidateURL(id.URL); err != nil {
			return err
		}
	}
	rec, err := a.Fetch(cmd.Context(), authority, id)
	if err != nil {
		return fmt.Errorf("fetch %s %s: %w", authority, ref, err)
	}
	return emitRecords(cmd, []models.Record{rec}, fetchFormat, fetchOutput)
}

// emitRecords prints records to stdout or saves them to path.
func emitRecords(cmd *cobra.Command, records []models.Record, format, path string) error {
	var f output.Format
	if format != "" && (path == "" || cmd.Flags().Changed("format")) {
		var err error
		if f, err = output.ParseFormat(format); err != nil {
			return err
		}
	}
	if path == "" {
		return output.Write(os.Stdout, f, records)
	}
	if err := output.Save(path, f, records); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	log.Info().Str("file", path).Int("records", len(records)).Msg("Output saved")
	return nil
}
