package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/PabloGalante/farum-chat/internal/adapters/http"
	"github.com/PabloGalante/farum-chat/internal/observability"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			switch {
			case port != "":
				cfg.Port = port
			case os.Getenv("PORT") != "":
				// Cloud Run injects PORT.
				cfg.Port = os.Getenv("PORT")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			return serve(ctx, a)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (overrides FARUM_PORT)")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	log := observability.Logger()

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           httpadapter.NewServer(a.svc, httpadapter.WithRequestTimeout(a.cfg.RequestTimeout)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("farum-chat API listening", "port", a.cfg.Port, "mode", a.cfg.Mode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
