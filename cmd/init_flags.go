package cmd

import (
	"github.com/crytic/forkdb/chain/config"
	"github.com/spf13/cobra"
)

// addInitFlags adds the various flags for the init command
func addInitFlags() error {
	// Output path for configuration
	initCmd.Flags().String("out", "", "output path for the new project configuration file")

	// Remote to record in the configuration
	initCmd.Flags().String("rpc-url", "", "JSON-RPC endpoint to fork state from")
	initCmd.Flags().Uint64("block", 0, "block number to pin remote reads to (default is the latest block)")

	// Overwrite without prompting
	initCmd.Flags().Bool("force", false, "overwrite an existing configuration file without prompting")
	return nil
}

// updateProjectConfigWithInitFlags will update the given projectConfig with any CLI arguments that were provided to the init command
func updateProjectConfigWithInitFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	var err error

	// If --rpc-url was used
	if cmd.Flags().Changed("rpc-url") {
		projectConfig.Fork.RpcUrl, err = cmd.Flags().GetString("rpc-url")
		if err != nil {
			return err
		}
	}

	// If --block was used
	if cmd.Flags().Changed("block") {
		projectConfig.Fork.RpcBlock, err = cmd.Flags().GetUint64("block")
		if err != nil {
			return err
		}
	}
	return projectConfig.Validate()
}
