package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kobza-harvester/authdedup/internal/config"
	"github.com/kobza-harvester/authdedup/internal/normalize"
)

func normalizeOptions(cfg config.Config) normalize.Options {
	return normalize.Options{Workers: cfg.Normalize.Workers, AuthTypes: cfg.Normalize.AuthTypes}
}

func newNormalizeCmd(a *app) *cobra.Command {
	var authIDs []int64

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Extract normalized name records from stored authorities",
		Long: `Parse stored authority records, normalize their 200/400/700 name headings
and replace the name records of every processed authority.

Records that cannot be parsed are logged and skipped. Ambiguous homoglyphs and
Cyrillic names without a recognizable language are left unchanged and reported
as warnings.`,
		Example: `  # Normalize everything
  authdedup normalize

  # Re-normalize two authorities after they were edited
  authdedup normalize --auth-id 1042 --auth-id 1043`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := a.engine(store).Normalize(cmd.Context(), authIDs...)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Processed: %d\nSkipped:   %d\nFiltered:  %d\nNames:     %d\nWarnings:  %d\n",
				res.Processed, res.Skipped, res.Filtered, res.Records, len(res.Warnings))
			return nil
		},
	}

	cmd.Flags().Int64SliceVar(&authIDs, "auth-id", nil, "Only normalize these auth ids (repeatable)")
	return cmd
}
