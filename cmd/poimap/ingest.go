package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/poimap-etl/internal/domain"
	"github.com/couchcryptid/poimap-etl/internal/pipeline"
)

func newIngestCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Seed every category that has no stored records yet",
		Long: `Reads each category's source table, resolves coordinates either from the
Latitude/Longitude columns or through Mapbox, and inserts the results.
Categories that already hold records are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runIngest(ctx, cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run report as JSON")
	return cmd
}

func (a *app) runIngest(ctx context.Context, out io.Writer, asJSON bool) error {
	st, err := openStore(ctx, a.cfg)
	if err != nil {
		a.logger.Error("failed to open store", "driver", a.cfg.DatabaseDriver, "error", err)
		return err
	}
	defer st.Close()

	var opts []pipeline.Option
	bar := newProgressBar()
	if bar != nil {
		opts = append(opts, pipeline.WithRowHook(func(c domain.Category, _ int) {
			bar.Describe("Ingesting " + c.String())
			_ = bar.Add(1)
		}))
	}

	p, cleanup, err := newPipeline(a, st, opts...)
	if err != nil {
		return err
	}
	defer cleanup()

	report, runErr := p.Run(ctx)
	if bar != nil {
		_ = bar.Finish()
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		writeReport(out, report)
	}
	return runErr
}

// newProgressBar returns an open-ended row counter when stderr is a
// terminal, nil otherwise.
func newProgressBar() *progressbar.ProgressBar {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Ingesting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func writeReport(w io.Writer, report pipeline.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tSTATUS\tROWS\tINSERTED\tSKIPPED\tFAILED\tDURATION")
	for _, cr := range report.Categories {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			cr.Category, cr.Status, cr.Rows, cr.Inserted, cr.Skipped, cr.Failed, cr.Duration.Round(time.Millisecond))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d records inserted in %s\n", report.Inserted(), report.Duration.Round(time.Millisecond))
}
