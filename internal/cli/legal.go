package cli

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bilal/netvelocimeter/internal/format"
	"github.com/bilal/netvelocimeter/pkg/terms"
)

func (a *app) newLegalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "legal",
		Short: "Review and accept the provider's legal terms",
	}

	var categories []string
	parseCategories := func() ([]terms.Category, error) {
		out := make([]terms.Category, 0, len(categories))
		for _, c := range categories {
			cat, err := terms.ParseCategory(c)
			if err != nil {
				return nil, err
			}
			out = append(out, cat)
		}
		return out, nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print the legal terms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cats, err := parseCategories()
			if err != nil {
				return err
			}
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			var records []format.Record
			for _, t := range v.LegalTerms(cats...) {
				records = append(records, format.TermsRecord{Terms: t})
			}
			return a.write(records)
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Print the legal terms with their acceptance; exit 1 if any is not accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cats, err := parseCategories()
			if err != nil {
				return err
			}
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			var records []format.Record
			all := true
			for _, t := range v.LegalTerms(cats...) {
				accepted := v.HasAcceptedTerms(terms.Collection{t})
				all = all && accepted
				records = append(records, format.TermsRecord{Terms: t, Accepted: &accepted})
			}
			if err := a.write(records); err != nil {
				return err
			}
			if !all {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	for _, c := range []*cobra.Command{list, status} {
		c.Flags().StringSliceVarP(&categories, "category", "c", nil, "only these categories: eula, service, privacy, nda, other or all")
	}

	accept := &cobra.Command{
		Use:   "accept",
		Short: "Accept legal terms read as JSON from stdin",
		Long: "Accept legal terms read as JSON from stdin, e.g.\n\n" +
			"  netvelocimeter legal list -f json | netvelocimeter legal accept",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			c, err := terms.ParseJSON(data)
			if err != nil {
				return err
			}
			v, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := v.AcceptTerms(cmd.Context(), c); err != nil {
				return err
			}
			log.Info().Int("count", len(c)).Msg("legal terms accepted")
			return nil
		},
	}

	cmd.AddCommand(list, status, accept)
	return cmd
}
