package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seva/axon/internal/config"
	"github.com/seva/axon/internal/domain"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the worker pool, draining the intake queue until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if addr := config.Env().MetricsAddr; addr != "" && a.metrics != nil {
				mux := http.NewServeMux()
				mux.Handle("/metrics", a.metrics.Handler())
				srv := &http.Server{Addr: addr, Handler: mux}
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						a.logger.Warn("metrics server stopped", zap.Error(err))
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.logger.Info("metrics listening", zap.String("addr", addr))
			}

			events, unsub := a.orch.Subscribe(128)
			defer unsub()
			go tailEvents(ctx, events)

			a.orch.Start(ctx)
			a.logger.Info("axon serving")
			<-ctx.Done()
			a.orch.Stop()
			return nil
		},
	}
}

// tailEvents echoes lifecycle events to stdout while serving.
func tailEvents(ctx context.Context, events <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Type == domain.EventStep {
				continue
			}
			fmt.Printf("%s %s task=%s\n", e.Timestamp.Format("15:04:05"), e.Type, e.TaskID)
		}
	}
}
