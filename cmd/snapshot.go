package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/crytic/forkdb/chain/state/snapshot"
	"github.com/crytic/forkdb/logging/colors"
	"github.com/spf13/cobra"
)

// snapshotCmd represents the command provider for snapshot
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Resolves state from the remote and writes it to a snapshot",
	Long: `Resolves the given accounts, storage slots, and block hashes from the remote at the pinned block, then
writes everything the store resolved to a snapshot file that can later be restored without the remote.`,
	Args:              cmdValidateSnapshotArgs,
	ValidArgsFunction: cmdValidSnapshotArgs,
	RunE:              cmdRunSnapshot,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	// Add all the flags allowed for the snapshot command
	err := addSnapshotFlags()
	if err != nil {
		cmdLogger.Panic("Failed to initialize the snapshot command", err)
	}

	// Add the snapshot command and its associated flags to the root command
	rootCmd.AddCommand(snapshotCmd)
}

// cmdValidSnapshotArgs will return which flags are valid for dynamic completion for the snapshot command
func cmdValidSnapshotArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return unusedFlagCompletions(cmd), cobra.ShellCompDirectiveNoFileComp
}

// cmdValidateSnapshotArgs makes sure that there are no positional arguments provided to the snapshot command
func cmdValidateSnapshotArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		err = fmt.Errorf("snapshot does not accept any positional arguments, only flags and their associated values")
		cmdLogger.Error("Failed to validate args to the snapshot command", err)
		return err
	}
	return nil
}

// cmdRunSnapshot executes the snapshot CLI command
func cmdRunSnapshot(cmd *cobra.Command, args []string) error {
	projectConfig, err := readProjectConfig(cmd)
	if err != nil {
		return handleCommandError("snapshot", err)
	}
	closeLog, err := setupLogging(projectConfig)
	if err != nil {
		return handleCommandError("snapshot", err)
	}
	defer closeLog()

	targets, err := getSnapshotTargets(cmd)
	if err != nil {
		return handleCommandError("snapshot", err)
	}
	outputPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return handleCommandError("snapshot", err)
	}
	concurrency, err := cmd.Flags().GetInt("concurrency")
	if err != nil {
		return handleCommandError("snapshot", err)
	}

	// Stop remote reads on keyboard interrupts
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, release, err := openStore(ctx, projectConfig, nil)
	if err != nil {
		return handleCommandError("snapshot", err)
	}
	defer release()

	// Resolve everything requested, then capture what the store holds
	err = store.Prefetch(ctx, targets.accounts, targets.slots, concurrency)
	if err != nil {
		return handleCommandError("snapshot", err)
	}
	for _, number := range targets.blockHashes {
		if _, err = store.GetBlockHash(number); err != nil {
			return handleCommandError("snapshot", err)
		}
	}

	data, err := store.Snapshot()
	if err != nil {
		return handleCommandError("snapshot", err)
	}
	err = snapshot.WriteFile(outputPath, data)
	if err != nil {
		return handleCommandError("snapshot", err)
	}

	cmdLogger.Info("Snapshot ", colors.Bold, data.ID, colors.Reset, " of ", len(data.Accounts), " account(s) written to: ", colors.Bold, outputPath, colors.Reset)
	return nil
}
