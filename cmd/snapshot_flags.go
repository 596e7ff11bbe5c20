package cmd

import (
	"fmt"

	"github.com/crytic/forkdb/utils"
	"github.com/crytic/medusa-geth/common"
	"github.com/spf13/cobra"
)

// addSnapshotFlags adds the various flags for the snapshot command
func addSnapshotFlags() error {
	addForkFlags(snapshotCmd)

	// Keys to resolve before the snapshot is taken
	snapshotCmd.Flags().StringSlice("account", []string{}, "account address(es) to resolve into the snapshot")
	snapshotCmd.Flags().StringSlice("slot", []string{}, "storage key(s) to resolve into the snapshot, as <address>:<slot>")
	snapshotCmd.Flags().UintSlice("block-hashes", []uint{}, "block number(s) whose hashes to resolve into the snapshot")
	snapshotCmd.Flags().Int("concurrency", DefaultPrefetchConcurrency,
		fmt.Sprintf("maximum number of concurrent remote reads (default is %d)", DefaultPrefetchConcurrency))

	// Output
	snapshotCmd.Flags().String("out", "", "output path for the snapshot; a .json extension writes JSON, anything else CBOR")
	return snapshotCmd.MarkFlagRequired("out")
}

// snapshotTargets describes the keys the snapshot command resolves.
type snapshotTargets struct {
	accounts    []common.Address
	slots       map[common.Address][]common.Hash
	blockHashes []uint64
}

// getSnapshotTargets parses the keys provided to the snapshot command.
func getSnapshotTargets(cmd *cobra.Command) (*snapshotTargets, error) {
	accountStrs, err := cmd.Flags().GetStringSlice("account")
	if err != nil {
		return nil, err
	}
	accounts, err := utils.HexStringsToAddresses(accountStrs)
	if err != nil {
		return nil, err
	}

	slotStrs, err := cmd.Flags().GetStringSlice("slot")
	if err != nil {
		return nil, err
	}
	slots := make(map[common.Address][]common.Hash)
	for _, slotStr := range slotStrs {
		addr, slot, err := utils.ParseAddressSlotPair(slotStr)
		if err != nil {
			return nil, err
		}
		slots[addr] = append(slots[addr], slot)
	}

	blockHashes, err := getBlockNumbersFlag(cmd, "block-hashes")
	if err != nil {
		return nil, err
	}
	return &snapshotTargets{
		accounts:    accounts,
		slots:       slots,
		blockHashes: blockHashes,
	}, nil
}
