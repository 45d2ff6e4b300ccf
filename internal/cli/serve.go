package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/txn2/sql-gateway/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, address, cmd)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address, overriding server.address")
	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, address string, cmd *cobra.Command) error {
	p, err := newPlatform(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	cfg := p.Config()
	if address != "" {
		cfg.Server.Address = address
	}
	logger := p.Logger()

	if err := p.Start(ctx); err != nil {
		_ = p.Stop(context.Background())
		return fmt.Errorf("starting platform: %w", err)
	}

	srv := server.New(p).HTTPServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "address", srv.Addr, "tls", cfg.Server.TLS.Enabled)
		var err error
		if cfg.Server.TLS.Enabled {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		p.Health().SetDraining()
		return errors.Join(srv.Shutdown(shutdownCtx), p.Stop(shutdownCtx))
	})

	return g.Wait()
}
