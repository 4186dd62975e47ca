// Package cmd provides the CLI commands for gundog.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gundog/gundog/internal/logging"
	"github.com/gundog/gundog/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd builds the gundog root command and wires in every
// subcommand.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "gundog",
		Short:   "Local-first hybrid semantic search over a codebase",
		Version: version.Version,
		Long: `gundog indexes a directory tree with a hybrid vector + BM25
retriever and a similarity graph, and serves hybrid search over it
either one-shot from the CLI or as a long-lived daemon.`,
	}
	cmd.SetVersionTemplate("gundog version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.gundog/logs/")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}
