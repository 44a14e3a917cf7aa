// internal/cli/serve.go
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/law-makers/plancrawl/internal/api"
	"github.com/law-makers/plancrawl/internal/gather"
)

var (
	serveListen string
	serveCron   string
	serveOutput string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serves declared scrapers, single application fetches and on-demand gather
ticks over HTTP:

  GET  /healthz
  GET  /scrapers
  GET  /scrapers/{authority}
  GET  /scrapers/{authority}/applications/{uid}
  POST /scrapers/{authority}/gather

With --cron every enabled scraper is also gathered on that schedule, and
the records are appended as JSON lines to --output.`,
	Example: `  # Serve on the default address
  plancrawl serve

  # Serve on port 9000 and gather every two hours
  plancrawl serve --listen=:9000 --cron="0 */2 * * *" -o records.jsonl`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default from config, :8080)")
	serveCmd.Flags().StringVar(&serveCron, "cron", "", "Also gather every enabled scraper on this cron schedule")
	serveCmd.Flags().StringVarP(&serveOutput, "output", "o", "", "File to append scheduled records to (default discard)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a := GetApp(cmd)
	ctx := cmd.Context()

	addr := serveListen
	if addr == "" {
		addr = a.Config.ListenAddr
	}

	if serveCron != "" {
		sink, closeSink, err := openSink(serveOutput, io.Discard)
		if err != nil {
			return err
		}
		defer closeSink()
		sched, err := a.Schedule(ctx, serveCron, a.Enabled(), 0, sink, gather.Options{})
		if err != nil {
			return err
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.New(a).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTPTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
