package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/couchcryptid/poimap-etl/internal/adapter/http"
	"github.com/couchcryptid/poimap-etl/internal/catalog"
	"github.com/couchcryptid/poimap-etl/internal/pipeline"
)

func newServeCmd(a *app) *cobra.Command {
	var ingest bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog over HTTP",
		Long: `Starts the catalog API with health, readiness and metrics endpoints.
With --ingest, an ingestion run starts in the background and /readyz
reports not ready until it completes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runServe(ctx, ingest)
		},
	}
	cmd.Flags().BoolVar(&ingest, "ingest", false, "run an ingestion pass in the background on startup")
	return cmd
}

func (a *app) runServe(ctx context.Context, ingest bool) error {
	st, err := openStore(ctx, a.cfg)
	if err != nil {
		a.logger.Error("failed to open store", "driver", a.cfg.DatabaseDriver, "error", err)
		return err
	}
	defer st.Close()

	reader := catalog.NewReader(st)
	ready := httpadapter.Readiness{reader}

	var p *pipeline.Pipeline
	if ingest {
		var cleanup func()
		p, cleanup, err = newPipeline(a, st)
		if err != nil {
			return err
		}
		defer cleanup()
		p.Schedule()
		ready = append(ready, p)
	}

	srv := httpadapter.NewServer(a.cfg.HTTPAddr, reader, ready, a.cfg.CORSAllowedOrigins, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	if p != nil {
		g.Go(func() error {
			if _, err := p.Run(gctx); err != nil {
				a.logger.Error("background ingestion failed", "error", err)
				return err
			}
			return nil
		})
	}

	err = g.Wait()
	a.logger.Info("shutdown complete")
	return err
}
