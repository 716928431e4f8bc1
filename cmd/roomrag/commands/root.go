// Package commands defines all Cobra CLI commands for the roomrag binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/roomrag-go/internal/audit"
	"github.com/54b3r/roomrag-go/internal/config"
	"github.com/54b3r/roomrag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// state holds what PersistentPreRunE resolved for the running command.
var state struct {
	cfg        *config.Config
	log        *slog.Logger
	loadedPath string
}

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "roomrag",
		Short: "roomrag answers questions from the documents of a room",
		Long: `roomrag keeps documents in rooms and answers questions using only the
documents of the room being asked.

Uploaded PDF, Word and text files are chunked, embedded and indexed in a
per-room namespace. Answers cite the chunks they were built from.

Settings come from a YAML file (~/.roomrag/config.yaml, ./roomrag.yaml or
--config) and environment variables, which always win.
See 'roomrag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := config.Load(configPath, slog.Default())
			if err != nil {
				return err
			}
			log := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			slog.SetDefault(log)

			state.cfg = cfg
			state.log = log
			state.loadedPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.CommandPath(), path, cfg)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.roomrag/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewRoomCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewHistoryCmd(),
		NewVersionCmd(),
	)

	return root
}
