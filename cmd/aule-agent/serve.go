package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/manthysbr/auleagent/pkg/kernel"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the agent over HTTP and WebSocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(os.Stdout, true)
		logger.Info("starting aule-agent server")

		// No operator terminal: ask_operator fails closed when serving.
		a, err := bootstrap(cmd.Context(), logger, nil)
		if err != nil {
			return err
		}
		defer a.close()

		if serveAddr != "" {
			a.cfg.Server.Addr = serveAddr
		}

		var runs kernel.RunStore
		var traces kernel.TraceStore
		if a.repo != nil {
			runs, traces = a.repo, a.repo
		}
		apiServer := kernel.NewServer(logger, a.agent, a.events, a.tracer, runs, traces, a.cfg)

		httpServer := &http.Server{
			Addr:              a.cfg.Server.Addr,
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gCtx := errgroup.WithContext(cmd.Context())

		g.Go(func() error {
			logger.Info("starting api server", "addr", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("api server failed: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("shutting down api server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}
