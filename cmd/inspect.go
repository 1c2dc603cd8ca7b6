package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kobza-harvester/authdedup/internal/blocking"
	"github.com/kobza-harvester/authdedup/internal/feed"
	"github.com/kobza-harvester/authdedup/internal/marc"
	"github.com/kobza-harvester/authdedup/internal/models"
	"github.com/kobza-harvester/authdedup/internal/normalize"
)

func newInspectCmd(a *app) *cobra.Command {
	var source string
	var authIDs []int64
	var limit int
	var interactive bool
	var showRecord bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show how authority records are normalized",
		Long: `Inspect raw authority records and the name records normalization derives
from them, including blocking keys and homoglyph or language warnings.

Records come from a feed file or from the store by auth id. Nothing is written.`,
		Example: `  # Inspect the first 5 records of a feed interactively
  authdedup inspect --source ./authorities.jsonl --limit 5 --interactive

  # Inspect stored authorities without the raw record
  authdedup inspect --auth-id 1042 --record=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if source == "" && len(authIDs) == 0 {
				return fmt.Errorf("--source or --auth-id is required")
			}

			servers := a.cfg.Servers
			var raws []models.RawAuthority
			if source != "" {
				loader, err := feed.LoadOrDownload(ctx, source, feed.DownloadConfig{CacheDir: a.cfg.Feed.CacheDir, Token: a.cfg.Feed.Token}, a.logger)
				if err != nil {
					return err
				}
				if raws, err = loader.LoadSample(limit); err != nil {
					return fmt.Errorf("failed to load feed: %w", err)
				}
			} else {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				defer store.Close()
				if raws, err = store.RawAuthorities(ctx, authIDs...); err != nil {
					return err
				}
				if servers, err = store.Servers(ctx); err != nil {
					return err
				}
			}

			n := normalize.New(servers, normalizeOptions(a.cfg), a.logger)
			return executeInspect(cmd, n, raws, interactive, showRecord)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Feed file path or URL")
	cmd.Flags().Int64SliceVar(&authIDs, "auth-id", nil, "Stored auth ids to inspect (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of feed records to inspect (0 for all)")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "Pause after each record (press Enter to continue)")
	cmd.Flags().BoolVar(&showRecord, "record", true, "Show the raw record in mnemonic form")

	return cmd
}

func executeInspect(cmd *cobra.Command, n *normalize.Normalizer, raws []models.RawAuthority, interactive, showRecord bool) error {
	out := cmd.OutOrStdout()
	reader := bufio.NewReader(os.Stdin)

	fmt.Fprintf(out, "Loaded %d records\n", len(raws))
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintln(out)

	for i, raw := range raws {
		// Stop cleanly on Ctrl+C
		if cmd.Context().Err() != nil {
			fmt.Fprintln(out, "\nInspection interrupted.")
			return nil
		}

		fmt.Fprintf(out, "RECORD %d/%d\n", i+1, len(raws))
		fmt.Fprintln(out, strings.Repeat("-", 80))
		fmt.Fprintf(out, "Auth ID:        %d\n", raw.EntityID)
		fmt.Fprintf(out, "Server:         %d\n", raw.ServerID)
		fmt.Fprintf(out, "Source ID:      %s\n", raw.SourceAuthID)
		fmt.Fprintf(out, "Auth type:      %s\n", raw.AuthType)
		fmt.Fprintf(out, "Used:           %d\n", raw.UsedCount)

		if showRecord {
			rec, err := marc.Parse(raw.XMLRecord)
			if err != nil {
				fmt.Fprintf(out, "\nRecord:         unparseable (%v)\n", err)
			} else {
				fmt.Fprintln(out, "\nRecord:")
				fmt.Fprint(out, rec.Mnemonic())
			}
		}

		records, warnings, err := n.Authority(raw)
		if err != nil {
			fmt.Fprintf(out, "\nNormalization failed: %v\n", err)
		} else {
			printNameRecords(out, records)
			for _, w := range warnings {
				fmt.Fprintf(out, "  warning: %s %s %q\n", w.Field, w.Kind, w.Text)
			}
		}

		fmt.Fprintln(out)
		if interactive && i < len(raws)-1 {
			fmt.Fprint(out, "Press Enter to continue (q to quit)... ")
			line, _ := reader.ReadString('\n')
			if strings.TrimSpace(line) == "q" {
				return nil
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}

func printNameRecords(out io.Writer, records []models.NameRecord) {
	fmt.Fprintf(out, "\nNames (%d):\n", len(records))
	for _, r := range records {
		fmt.Fprintf(out, "  [%s] %s\n", r.FieldKind, r.FullName)
		fmt.Fprintf(out, "    entry=%q given=%q initials=%q lang=%q\n", r.EntryName, r.GivenName, r.Initials, r.Lang)
		if r.Dates != "" || r.Roman != "" || r.Identifier != "" {
			fmt.Fprintf(out, "    dates=%q roman=%q isni=%q\n", r.Dates, r.Roman, r.Identifier)
		}
		fmt.Fprintf(out, "    key=%s translit_key=%s\n", blocking.Key(r.EntryName, r.Lang), blocking.TranslitKey(r.EntryName, r.Lang))
	}
}
