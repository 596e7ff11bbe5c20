package state

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// EmptyBackend is a Backend with no remote state: every account, slot and block hash reads as zero.
type EmptyBackend struct{}

func (d EmptyBackend) GetStorageAt(address common.Address, hash common.Hash) (common.Hash, error) {
	return common.Hash{}, nil
}

func (d EmptyBackend) GetStateObject(address common.Address) (*uint256.Int, uint64, []byte, error) {
	return uint256.NewInt(0), 0, nil, nil
}

func (d EmptyBackend) GetBlockHash(number uint64) (common.Hash, error) {
	return common.Hash{}, nil
}

func (d EmptyBackend) PinnedBlock() BlockReference {
	return BlockByNumber(0)
}
