package cli

import (
	"github.com/spf13/cobra"

	"github.com/bilal/netvelocimeter/internal/format"
)

func (a *app) newProviderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Inspect measurement providers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var records []format.Record
			for _, e := range a.registry.Entries() {
				records = append(records, format.ProviderRecord{Name: e.Name, Description: e.Description})
			}
			return a.write(records)
		},
	})
	return cmd
}
