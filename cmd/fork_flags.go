package cmd

import (
	"fmt"

	"github.com/crytic/forkdb/chain/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// addForkFlags adds the flags shared by every command that reads state: where the project configuration lives, which
// remote and block to fork from, how to cache, and how to log.
func addForkFlags(cmd *cobra.Command) {
	defaultConfig := config.DefaultProjectConfig()

	// Prevent alphabetical sorting of usage message
	cmd.Flags().SortFlags = false

	// Config file
	cmd.Flags().String("config", "", "path to config file")

	// Remote
	cmd.Flags().String("rpc-url", "", "JSON-RPC endpoint to fork state from (if unset, state is purely local)")
	cmd.Flags().Uint64("block", 0, "block number to pin remote reads to (default is the latest block)")
	cmd.Flags().String("block-hash", "", "block hash to pin remote reads to")
	cmd.Flags().Uint("pool-size", 0,
		fmt.Sprintf("number of RPC clients to open (unless a config file is provided, default is %d)", defaultConfig.Fork.PoolSize))
	cmd.MarkFlagsMutuallyExclusive("block", "block-hash")

	// Cache
	cmd.Flags().Bool("persistent-cache", false,
		fmt.Sprintf("persist fetched state to disk for reuse by later runs (unless a config file is provided, default is %t)", defaultConfig.Cache.Persistent))
	cmd.Flags().String("cache-dir", "", "directory under which the persistent cache is kept (default is the working directory)")

	// Logging
	cmd.Flags().String("log-level", "",
		fmt.Sprintf("minimum level of logs to emit (unless a config file is provided, default is %q)", defaultConfig.Logging.Level.String()))
	cmd.Flags().Bool("no-color", false, "disable colored terminal output")
}

// updateProjectConfigWithForkFlags will update the given projectConfig with any fork, cache, or logging flags that
// were provided to the command.
func updateProjectConfigWithForkFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	var err error

	// If --rpc-url was used
	if cmd.Flags().Changed("rpc-url") {
		projectConfig.Fork.RpcUrl, err = cmd.Flags().GetString("rpc-url")
		if err != nil {
			return err
		}
	}

	// A block number or hash on the command line replaces whichever pin the config file had
	if cmd.Flags().Changed("block") {
		projectConfig.Fork.RpcBlock, err = cmd.Flags().GetUint64("block")
		if err != nil {
			return err
		}
		projectConfig.Fork.RpcBlockHash = ""
	}
	if cmd.Flags().Changed("block-hash") {
		projectConfig.Fork.RpcBlockHash, err = cmd.Flags().GetString("block-hash")
		if err != nil {
			return err
		}
		projectConfig.Fork.RpcBlock = 0
	}

	// If --pool-size was used
	if cmd.Flags().Changed("pool-size") {
		projectConfig.Fork.PoolSize, err = cmd.Flags().GetUint("pool-size")
		if err != nil {
			return err
		}
	}

	// If --persistent-cache was used
	if cmd.Flags().Changed("persistent-cache") {
		projectConfig.Cache.Persistent, err = cmd.Flags().GetBool("persistent-cache")
		if err != nil {
			return err
		}
	}

	// If --cache-dir was used
	if cmd.Flags().Changed("cache-dir") {
		projectConfig.Cache.Directory, err = cmd.Flags().GetString("cache-dir")
		if err != nil {
			return err
		}
	}

	// If --log-level was used
	if cmd.Flags().Changed("log-level") {
		levelStr, err := cmd.Flags().GetString("log-level")
		if err != nil {
			return err
		}
		projectConfig.Logging.Level, err = zerolog.ParseLevel(levelStr)
		if err != nil {
			return err
		}
	}

	// If --no-color was used
	if cmd.Flags().Changed("no-color") {
		projectConfig.Logging.NoColor, err = cmd.Flags().GetBool("no-color")
		if err != nil {
			return err
		}
	}
	return nil
}
