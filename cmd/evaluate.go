package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kobza-harvester/authdedup/internal/evaluate"
)

func newEvaluateCmd(a *app) *cobra.Command {
	var truthPath string
	var outputJSON string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score the current clusters against labelled authorities",
		Long: `Compare the stored cluster table with a JSONL file of labelled authorities
({"auth_id": 1042, "group": "shevchenko-taras"}) and report pairwise precision,
recall and F1.

Only labelled authorities are scored. Useful when tuning the threshold or the
recall target on a hand-checked sample.`,
		Example: `  authdedup evaluate --truth ./labels.jsonl --output-json eval_results.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			labels, err := evaluate.LoadLabels(truthPath, a.logger)
			if err != nil {
				return err
			}
			if len(labels) == 0 {
				return fmt.Errorf("no labels in %s", truthPath)
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			assignments, err := store.Clusters(cmd.Context())
			if err != nil {
				return err
			}

			res := evaluate.Evaluate(assignments, labels)
			res.PrintSummary(cmd.OutOrStdout())

			if outputJSON != "" {
				if err := res.SaveToJSON(outputJSON); err != nil {
					return err
				}
				a.logger.Info("Evaluation saved", "path", outputJSON)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&truthPath, "truth", "", "Path to JSONL label file (required)")
	cmd.Flags().StringVar(&outputJSON, "output-json", "", "Path to write JSON results")

	_ = cmd.MarkFlagRequired("truth")
	return cmd
}
