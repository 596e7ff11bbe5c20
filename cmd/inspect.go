package cmd

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/crytic/forkdb/chain/state"
	"github.com/crytic/forkdb/chain/state/snapshot"
	"github.com/crytic/forkdb/utils"
	"github.com/crytic/medusa-geth/common"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"
)

// inspectCmd represents the command provider for inspect
var inspectCmd = &cobra.Command{
	Use:   "inspect <snapshot>",
	Short: "Prints the contents of a snapshot",
	Long: `Reads and validates a snapshot file, restores it into an in-memory store, and prints its accounts with
balances in ether.`,
	Args:          cobra.ExactArgs(1),
	RunE:          cmdRunInspect,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	inspectCmd.Flags().Bool("storage", false, "print the storage slots of every account")
	rootCmd.AddCommand(inspectCmd)
}

// cmdRunInspect executes the inspect CLI command
func cmdRunInspect(cmd *cobra.Command, args []string) error {
	showStorage, err := cmd.Flags().GetBool("storage")
	if err != nil {
		return handleCommandError("inspect", err)
	}

	data, err := snapshot.ReadFile(args[0])
	if err != nil {
		return handleCommandError("inspect", err)
	}

	// Restoring validates the snapshot the same way a consumer of it would
	store, err := state.Restore(data)
	if err != nil {
		return handleCommandError("inspect", err)
	}

	err = printSnapshot(cmd.OutOrStdout(), data, store, showStorage)
	if err != nil {
		return handleCommandError("inspect", err)
	}
	return nil
}

// printSnapshot writes a summary of data to out, reading account values back through the restored store.
func printSnapshot(out io.Writer, data *snapshot.Data, store *state.Store, showStorage bool) error {
	fmt.Fprintf(out, "snapshot %s (format v%s)\n", data.ID, data.Version)
	fmt.Fprintf(out, "  created: %s\n", data.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "  source:  %s\n", data.Source)
	if data.BlockNumber != nil {
		fmt.Fprintf(out, "  block:   %d\n", *data.BlockNumber)
	}
	if data.BlockHash != nil {
		fmt.Fprintf(out, "  hash:    %s\n", data.BlockHash.Hex())
	}
	fmt.Fprintf(out, "  accounts: %d, block hashes: %d\n", len(data.Accounts), len(data.BlockHashes))

	addrs := make([]common.Address, 0, len(data.Accounts))
	for addr := range data.Accounts {
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, func(a, b common.Address) int {
		return bytes.Compare(a[:], b[:])
	})
	for _, addr := range addrs {
		account := data.Accounts[addr]
		record, err := store.GetAccount(addr)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "%s\n", addr.Hex())
		if account.Info != nil {
			fmt.Fprintf(out, "  balance: %s ether\n", utils.FormatEther(record.Balance))
			fmt.Fprintf(out, "  nonce:   %d\n", record.Nonce)
			fmt.Fprintf(out, "  code:    %d bytes\n", len(record.Code))
		}
		fmt.Fprintf(out, "  slots:   %d", len(account.Storage))
		if account.StorageCleared {
			fmt.Fprint(out, " (storage cleared)")
		}
		fmt.Fprintln(out)

		if !showStorage {
			continue
		}
		slots := make([]common.Hash, 0, len(account.Storage))
		for slot := range account.Storage {
			slots = append(slots, slot)
		}
		slices.SortFunc(slots, func(a, b common.Hash) int {
			return bytes.Compare(a[:], b[:])
		})
		for _, slot := range slots {
			value, err := store.GetStorage(addr, slot)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  [%s] = %s\n", slot.Hex(), value.Hex())
		}
	}
	return nil
}
