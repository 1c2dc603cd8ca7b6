package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kobza-harvester/authdedup/internal/config"
	"github.com/kobza-harvester/authdedup/internal/engine"
	"github.com/kobza-harvester/authdedup/internal/storage"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	verbose    bool

	cfg     config.Config
	logger  *slog.Logger
	logFile *os.File
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "authdedup",
		Short: "Authority record deduplication across library servers",
		Long: `Authdedup finds duplicate authority records describing the same person
across library servers and languages.

It normalizes harvested UNIMARC name headings, scores candidate pairs with a
Fellegi-Sunter model trained by expectation-maximisation, clusters the matches
and writes merge links for every server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logFile != nil {
				a.logFile.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("AUTHDEDUP_CONFIG"), "Path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose logging")

	// Add subcommands
	cmd.AddCommand(newImportCmd(a))
	cmd.AddCommand(newNormalizeCmd(a))
	cmd.AddCommand(newDedupCmd(a))
	cmd.AddCommand(newServersCmd(a))
	cmd.AddCommand(newInspectCmd(a))
	cmd.AddCommand(newEvaluateCmd(a))

	return cmd
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if a.verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		a.logFile = f
		out = io.MultiWriter(os.Stderr, f)
	}

	a.logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) openStore() (*storage.Store, error) {
	store, err := storage.Open(a.cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Opened store", "path", a.cfg.Database.Path)
	return store, nil
}

func (a *app) engine(store *storage.Store) *engine.Engine {
	m := a.cfg.Matching
	return engine.New(store, engine.Options{
		Normalize: normalizeOptions(a.cfg),
		Blocking:  m.BlockingOptions(),
		Trainer:   m.TrainerConfig(),
		Workers:   m.Workers,
		// Link workers default to one per CPU.
		LinkWorkers: a.cfg.Links.Workers,
		LinksDir:    a.cfg.Links.Dir,
	}, a.logger)
}
