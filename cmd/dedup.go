package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kobza-harvester/authdedup/internal/engine"
	"github.com/kobza-harvester/authdedup/internal/report"
)

func newDedupCmd(a *app) *cobra.Command {
	var linksDir string
	var reportDir string
	var exportParquet bool
	var showModel bool

	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Cluster duplicate authorities and write merge links",
		Long: `Run candidate blocking, model training, pair scoring and clustering over the
normalized name records, then replace the cluster table and write one merge
link file per server.

A YAML run report is written to the report directory together with a Parquet
export of the clusters.`,
		Example: `  # Run with the configured settings
  authdedup dedup

  # Write links somewhere else and print the trained model
  authdedup dedup --links-dir ./out/links --show-model`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if linksDir != "" {
				a.cfg.Links.Dir = linksDir
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := a.engine(store).Dedup(cmd.Context())
			if errors.Is(err, engine.ErrEmptySnapshot) {
				return fmt.Errorf("%w: run `authdedup normalize` first", err)
			}
			if err != nil {
				return err
			}

			path, err := report.SaveYAML(reportDir, report.RunConfig{
				Database:     a.cfg.Database.Path,
				Threshold:    a.cfg.Matching.Threshold,
				Recall:       a.cfg.Matching.Recall,
				TranslitPass: a.cfg.Matching.TranslitPass,
				LinksDir:     a.cfg.Links.Dir,
			}, res)
			if err != nil {
				return err
			}
			a.logger.Info("Run report saved", "path", path)

			if exportParquet {
				parquetPath := filepath.Join(reportDir, "clusters.parquet")
				if err := report.WriteClustersParquet(parquetPath, res); err != nil {
					return err
				}
				a.logger.Info("Clusters exported", "path", parquetPath)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:             %s\n", res.RunID)
			fmt.Fprintf(out, "Name records:    %d\n", res.Records)
			fmt.Fprintf(out, "Candidate pairs: %d\n", res.Blocking.Pairs)
			fmt.Fprintf(out, "Accepted pairs:  %d\n", res.AcceptedPairs)
			fmt.Fprintf(out, "Clusters:        %d (%d entities)\n", len(res.Clusters), len(res.Assignments))
			fmt.Fprintf(out, "Merge links:     %d\n", res.LinkCount())
			if len(res.SkippedServers) > 0 {
				fmt.Fprintf(out, "Skipped servers: %v\n", res.SkippedServers)
			}
			fmt.Fprintf(out, "Report:          %s\n", path)
			if showModel {
				fmt.Fprintln(out)
				fmt.Fprint(out, res.Model.String())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&linksDir, "links-dir", "", "Directory for merge link files (overrides config)")
	cmd.Flags().StringVar(&reportDir, "report-dir", "reports", "Directory for run reports")
	cmd.Flags().BoolVar(&exportParquet, "parquet", true, "Export clusters to clusters.parquet in the report directory")
	cmd.Flags().BoolVar(&showModel, "show-model", false, "Print the trained model parameters")

	return cmd
}
