package cli

import (
	"github.com/spf13/cobra"

	"github.com/bilal/netvelocimeter/internal/format"
)

func (a *app) newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Inspect the provider's measurement servers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the servers the provider offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			servers, err := v.Servers(cmd.Context())
			if err != nil {
				return err
			}
			records := make([]format.Record, len(servers))
			for i, s := range servers {
				records[i] = format.ServerRecord{Server: s}
			}
			return a.write(records)
		},
	})
	return cmd
}
