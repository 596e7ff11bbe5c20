package cmd

import (
	"github.com/crytic/forkdb/chain/state/snapshot"
	"github.com/crytic/forkdb/logging/colors"
	"github.com/crytic/forkdb/utils"
	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// addFetchFlags adds the various flags for the fetch command
func addFetchFlags() error {
	addForkFlags(fetchCmd)

	// Keys to read
	fetchCmd.Flags().StringSlice("account", []string{}, "account address(es) to read")
	fetchCmd.Flags().StringSlice("slot", []string{}, "storage slot key(s), hex or decimal, to read from every account")
	fetchCmd.Flags().UintSlice("block-hashes", []uint{}, "block number(s) whose hashes to read")

	// Starting state
	fetchCmd.Flags().String("snapshot", "", "snapshot file (.cbor or .json) to resume from")
	return fetchCmd.MarkFlagRequired("account")
}

// fetchTargets describes the keys the fetch command reads.
type fetchTargets struct {
	accounts    []common.Address
	slots       []common.Hash
	blockHashes []uint64
}

// getFetchTargets parses the keys provided to the fetch command.
func getFetchTargets(cmd *cobra.Command) (*fetchTargets, error) {
	accountStrs, err := cmd.Flags().GetStringSlice("account")
	if err != nil {
		return nil, err
	}
	accounts, err := utils.HexStringsToAddresses(accountStrs)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, errors.Errorf("at least one account must be provided")
	}

	slotStrs, err := cmd.Flags().GetStringSlice("slot")
	if err != nil {
		return nil, err
	}
	slots := make([]common.Hash, len(slotStrs))
	for i, slotStr := range slotStrs {
		if slots[i], err = utils.StringToSlot(slotStr); err != nil {
			return nil, err
		}
	}

	blockHashes, err := getBlockNumbersFlag(cmd, "block-hashes")
	if err != nil {
		return nil, err
	}
	return &fetchTargets{
		accounts:    accounts,
		slots:       slots,
		blockHashes: blockHashes,
	}, nil
}

// getResumeSnapshot reads the snapshot named by --snapshot, or returns nil if the flag is unset.
func getResumeSnapshot(cmd *cobra.Command) (*snapshot.Data, error) {
	path, err := cmd.Flags().GetString("snapshot")
	if err != nil || path == "" {
		return nil, err
	}
	cmdLogger.Debug("Reading the snapshot at: ", colors.Bold, path, colors.Reset)
	return snapshot.ReadFile(path)
}
