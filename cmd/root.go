package cmd

import (
	"os"

	"github.com/crytic/forkdb/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "forkdb",
	Short: "A forking EVM state store",
	Long: "forkdb resolves account and storage state from a remote Ethereum node at a pinned block, caches what it " +
		"reads, and captures it in snapshots that can be restored without the remote",
}

// cmdLogger is the logger used by the CLI commands. It logs to console at info level until setupLogging replaces it
// with one built from the project configuration.
var cmdLogger = newDefaultCLILogger()

// newDefaultCLILogger sets up a console logger as the global logger and returns the CLI's sub-logger of it.
func newDefaultCLILogger() *logging.Logger {
	logging.GlobalLogger = logging.NewLogger(zerolog.InfoLevel)
	logging.GlobalLogger.AddWriter(os.Stdout, logging.UNSTRUCTURED, true)
	return logging.GlobalLogger.NewSubLogger("module", logging.CLI_SERVICE)
}

// Execute runs the root command, dispatching to the sub-command named on the command line.
func Execute() error {
	return rootCmd.Execute()
}
