package cli

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bilal/netvelocimeter/internal/format"
	"github.com/bilal/netvelocimeter/internal/history"
	"github.com/bilal/netvelocimeter/internal/sink"
	"github.com/bilal/netvelocimeter/pkg/provider"
)

func (a *app) newMeasureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "measure",
		Short: "Run measurements and review saved results",
	}
	cmd.AddCommand(a.newMeasureRunCmd(), a.newMeasureHistoryCmd())
	return cmd
}

func (a *app) newMeasureRunCmd() *cobra.Command {
	var opts provider.MeasureOptions
	var save bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one measurement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			// fail before installing anything
			if err := opts.Validate(); err != nil {
				return err
			}
			v, err := a.open(ctx)
			if err != nil {
				return err
			}

			at := time.Now()
			result, err := v.Measure(ctx, opts)
			if err != nil {
				return err
			}
			correlationID := uuid.NewString()

			if save || a.cfg.History.Enabled {
				h, err := a.openHistory()
				if err != nil {
					return err
				}
				if err := h.Save(ctx, history.NewMeasurement(v.Name(), correlationID, at, result)); err != nil {
					return err
				}
			}

			sinks, err := a.openSinks()
			if err != nil {
				return err
			}
			if len(sinks) > 0 {
				payload := sink.NewMeasurement(hostname(), v.Name(), correlationID, at, result)
				if err := sinks.Publish(ctx, payload); err != nil {
					log.Warn().Err(err).Str("correlation", correlationID).Msg("exporting measurement failed")
				}
			}

			return a.write([]format.Record{format.ResultRecord{Result: result}})
		},
	}
	cmd.Flags().StringVar(&opts.ServerID, "server-id", "", "measure against this server id")
	cmd.Flags().StringVar(&opts.ServerHost, "server-host", "", "measure against the server with this host")
	cmd.MarkFlagsMutuallyExclusive("server-id", "server-host")
	cmd.Flags().BoolVar(&save, "save", false, "save the result to the history database")
	return cmd
}

func (a *app) newMeasureHistoryCmd() *cobra.Command {
	var limit int
	var allProviders bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print saved measurements, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := a.openHistory()
			if err != nil {
				return err
			}
			name := a.cfg.Provider
			if allProviders {
				name = ""
			}
			rows, err := h.Recent(cmd.Context(), name, limit)
			if err != nil {
				return err
			}
			records := make([]format.Record, len(rows))
			for i := range rows {
				records[i] = format.ResultRecord{
					Result:        rows[i].Result(),
					Provider:      rows[i].Provider,
					MeasuredAt:    rows[i].MeasuredAt,
					CorrelationID: rows[i].CorrelationID,
				}
			}
			return a.write(records)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of results; 0 for all")
	cmd.Flags().BoolVar(&allProviders, "all-providers", false, "include every provider, not only the selected one")
	return cmd
}
