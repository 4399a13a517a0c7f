package cli

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bilal/netvelocimeter/internal/format"
	"github.com/bilal/netvelocimeter/internal/health"
	"github.com/bilal/netvelocimeter/internal/monitor"
	"github.com/bilal/netvelocimeter/pkg/provider"
)

func (a *app) newWatchCmd() *cobra.Command {
	var opts provider.MeasureOptions
	var save bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Measure now and then every interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}

			mopts := monitor.Options{
				Interval: a.cfg.Watch.Interval,
				Measure:  opts,
				Agent:    hostname(),
				OnResult: a.printResult,
			}
			if save || a.cfg.History.Enabled {
				h, err := a.openHistory()
				if err != nil {
					return err
				}
				mopts.History = h
			}
			sinks, err := a.openSinks()
			if err != nil {
				return err
			}
			if len(sinks) > 0 {
				mopts.Sink = sinks
			}

			var healthSrv *health.Server
			if a.cfg.Health.Addr != "" {
				healthSrv = health.New(a.cfg.Health.Addr)
				healthSrv.SetProvider(v.Name())
				mopts.Reporter = healthSrv
			}

			mon, err := monitor.New(v, mopts)
			if err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			runCtx, stop := context.WithCancel(ctx)
			defer stop()
			g.Go(func() error {
				defer stop()
				return mon.Run(runCtx)
			})
			if healthSrv != nil {
				g.Go(func() error { return healthSrv.Serve(runCtx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().Duration("interval", 0, "time between measurements (default from config, 15m)")
	a.v.BindPFlag("watch.interval", cmd.Flags().Lookup("interval"))
	cmd.Flags().StringVar(&opts.ServerID, "server-id", "", "measure against this server id")
	cmd.Flags().StringVar(&opts.ServerHost, "server-host", "", "measure against the server with this host")
	cmd.MarkFlagsMutuallyExclusive("server-id", "server-host")
	cmd.Flags().BoolVar(&save, "save", false, "save every result to the history database")
	return cmd
}

// printResult writes one watch result. Output errors are logged and the
// loop keeps measuring.
func (a *app) printResult(r *provider.MeasurementResult, correlationID string, at time.Time) {
	records := []format.Record{format.ResultRecord{Result: r, MeasuredAt: at, CorrelationID: correlationID}}
	if err := a.write(records); err != nil {
		log.Warn().Err(err).Str("correlation", correlationID).Msg("writing measurement failed")
	}
}

func hostname() string {
	h, _ := os.Hostname()
	return h
}
