package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/crytic/forkdb/chain/state"
	"github.com/crytic/forkdb/utils"
	"github.com/spf13/cobra"
)

// fetchCmd represents the command provider for fetch
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Reads accounts and storage slots at the pinned block",
	Long: `Reads accounts, storage slots, and block hashes through the store, forking them from the remote at the
pinned block, and prints them. Balances are printed in ether and wei. With --snapshot, the store starts from the
entries of a snapshot file and only reads what the snapshot does not hold from the remote.`,
	Args:              cmdValidateFetchArgs,
	ValidArgsFunction: cmdValidFetchArgs,
	RunE:              cmdRunFetch,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	// Add all the flags allowed for the fetch command
	err := addFetchFlags()
	if err != nil {
		cmdLogger.Panic("Failed to initialize the fetch command", err)
	}

	// Add the fetch command and its associated flags to the root command
	rootCmd.AddCommand(fetchCmd)
}

// cmdValidFetchArgs will return which flags are valid for dynamic completion for the fetch command
func cmdValidFetchArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return unusedFlagCompletions(cmd), cobra.ShellCompDirectiveNoFileComp
}

// cmdValidateFetchArgs makes sure that there are no positional arguments provided to the fetch command
func cmdValidateFetchArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		err = fmt.Errorf("fetch does not accept any positional arguments, only flags and their associated values")
		cmdLogger.Error("Failed to validate args to the fetch command", err)
		return err
	}
	return nil
}

// cmdRunFetch executes the fetch CLI command
func cmdRunFetch(cmd *cobra.Command, args []string) error {
	projectConfig, err := readProjectConfig(cmd)
	if err != nil {
		return handleCommandError("fetch", err)
	}
	closeLog, err := setupLogging(projectConfig)
	if err != nil {
		return handleCommandError("fetch", err)
	}
	defer closeLog()

	targets, err := getFetchTargets(cmd)
	if err != nil {
		return handleCommandError("fetch", err)
	}

	// Stop remote reads on keyboard interrupts
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	resume, err := getResumeSnapshot(cmd)
	if err != nil {
		return handleCommandError("fetch", err)
	}
	store, release, err := openStore(ctx, projectConfig, resume)
	if err != nil {
		return handleCommandError("fetch", err)
	}
	defer release()

	err = printFetchTargets(cmd.OutOrStdout(), store, targets)
	if err != nil {
		return handleCommandError("fetch", err)
	}
	return nil
}

// printFetchTargets reads every target through the store and writes it to out.
func printFetchTargets(out io.Writer, store *state.Store, targets *fetchTargets) error {
	for _, addr := range targets.accounts {
		record, err := store.GetAccount(addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", addr.Hex())
		fmt.Fprintf(out, "  balance:   %s ether (%s wei)\n", utils.FormatEther(record.Balance), record.Balance.Dec())
		fmt.Fprintf(out, "  nonce:     %d\n", record.Nonce)
		fmt.Fprintf(out, "  code:      %d bytes\n", len(record.Code))
		fmt.Fprintf(out, "  code hash: %s\n", record.CodeHash.Hex())

		for _, slot := range targets.slots {
			value, err := store.GetStorage(addr, slot)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  [%s] = %s\n", slot.Hex(), value.Hex())
		}
	}

	for _, number := range targets.blockHashes {
		hash, err := store.GetBlockHash(number)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "block %d: %s\n", number, hash.Hex())
	}
	return nil
}
