package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bilal/netvelocimeter/internal/version"
)

func (a *app) newVersionCmd() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the netvelocimeter version",
		Args:  cobra.NoArgs,
		// no config or logging needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !long {
				fmt.Fprintf(cmd.OutOrStdout(), "netvelocimeter version: %s\n", version.String())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "netvelocimeter version: %s, Build date: %s, Git commit: %s, Go version: %s\n",
				version.String(), version.BuildDate, version.GitCommit, version.GoVersion)
			return nil
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "show detailed build information")
	return cmd
}
