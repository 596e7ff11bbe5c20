package cmd

import (
	"fmt"

	"github.com/crytic/forkdb/version"
	"github.com/spf13/cobra"
)

// versionCmd represents the version command that displays build information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and build information",
	Long: `Print detailed version and build information for forkdb.

This includes the semantic version, git commit hash, build timestamp,
the execution engine version, the snapshot format version written by
this build, and the Go version used to compile the binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		info := version.GetInfo()
		fmt.Fprint(cmd.OutOrStdout(), info.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	// forkdb --version prints the short form
	rootCmd.Version = version.GetInfo().Short()
	rootCmd.SetVersionTemplate("forkdb {{.Version}}\n")
}
