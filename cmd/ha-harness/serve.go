package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/TheTarry/ha-harness/pkg/compose"
	"github.com/TheTarry/ha-harness/pkg/timemachine"
	"github.com/TheTarry/ha-harness/pkg/ui"
)

// statusProvider backs the /status endpoint with the live environment.
type statusProvider struct {
	mgr *compose.Manager
	tm  *timemachine.TimeMachine
}

func (p *statusProvider) Status(ctx context.Context) (ui.Status, error) {
	st := ui.Status{
		RunID:       p.mgr.RunID(),
		Overridden:  p.tm.Overridden(),
		LogicalTime: p.tm.Current().Format(timemachine.Layout),
		Healthy:     p.mgr.Healthy(ctx),
	}
	for _, c := range p.mgr.Containers(ctx) {
		st.Containers = append(st.Containers, ui.ContainerStatus{
			Service: c.Service,
			Name:    c.Name,
			URL:     c.URL,
			Status:  c.Status,
			Health:  c.Health,
		})
	}
	return st, nil
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve status and metrics for a running environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mgr, err := attachManager(cfg)
			if err != nil {
				return err
			}
			defer mgr.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metrics := ui.NewMetrics()
			client, err := newHassClient(ctx, mgr, cfg, metrics.RequestObserver("homeassistant"))
			if err != nil {
				pterm.Warning.Printfln("Home Assistant API unavailable: %v", err)
				client = nil
			}
			tm, err := newTimeMachine(ctx, mgr, client, false, func() {
				metrics.RecordTimeJump("apply")
			})
			if err != nil {
				return err
			}

			mux := http.NewServeMux()
			ui.NewHandler(&statusProvider{mgr: mgr, tm: tm}, metrics, nil).RegisterRoutes(mux)

			srv := &http.Server{Addr: addr, Handler: mux}
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()
			pterm.Info.Printfln("Serving status on http://%s/status and metrics on http://%s/metrics", addr, addr)

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8099", "Listen address")
	return cmd
}
