package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kobza-harvester/authdedup/internal/models"
)

func newServersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Manage the library server registry",
	}

	cmd.AddCommand(newServersListCmd(a))
	cmd.AddCommand(newServersSyncCmd(a))
	cmd.AddCommand(newServersAddCmd(a))

	return cmd
}

func newServersListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			servers, err := store.Servers(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tENDPOINT\tGIVEN NAME REPEATS ENTRY")
			for _, s := range servers {
				endpoint := s.Endpoint
				if endpoint == "" {
					endpoint = "-"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%t\n", s.ID, s.Name, endpoint, s.GivenNameRepeatsEntry)
			}
			return w.Flush()
		},
	}
}

func newServersSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Register the servers listed in the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(a.cfg.Servers) == 0 {
				return fmt.Errorf("no servers configured")
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.UpsertServers(cmd.Context(), a.cfg.Servers); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %d servers\n", len(a.cfg.Servers))
			return nil
		},
	}
}

func newServersAddCmd(a *app) *cobra.Command {
	var srv models.Server

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register or update one server",
		Example: `  authdedup servers add --id 3 --name lviv --endpoint https://lviv.example.org/authorities`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.UpsertServers(cmd.Context(), []models.Server{srv}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered server %d\n", srv.ID)
			return nil
		},
	}

	cmd.Flags().IntVar(&srv.ID, "id", 0, "Server id (required)")
	cmd.Flags().StringVar(&srv.Name, "name", "", "Server name")
	cmd.Flags().StringVar(&srv.Endpoint, "endpoint", "", "Base URL used for merge links")
	cmd.Flags().BoolVar(&srv.GivenNameRepeatsEntry, "given-name-repeats-entry", false, "The server repeats the entry element in $g")

	_ = cmd.MarkFlagRequired("id")
	return cmd
}
