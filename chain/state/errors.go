package state

import (
	"fmt"

	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
)

// ErrRemoteFetch is matched by every error caused by a failed remote read. A failed read is never turned into a zero
// value.
var ErrRemoteFetch = errors.New("remote fetch failed")

// ErrBlockMismatch is returned when a snapshot is resumed against a backend pinned to a different block.
var ErrBlockMismatch = errors.New("pinned block mismatch")

// The remote read operations, as named by FetchError.Op and RemoteFetchEvent.Op.
const (
	FetchOpAccount   = "account"
	FetchOpStorage   = "storage"
	FetchOpBlockHash = "blockhash"
)

// FetchError describes a failed remote read.
type FetchError struct {
	// Op is the operation that failed: FetchOpAccount, FetchOpStorage or FetchOpBlockHash.
	Op string
	// Address is the account being read, if any.
	Address common.Address
	// Slot is the storage key being read, for storage reads.
	Slot common.Hash
	// Number is the block number being read, for block hash reads.
	Number uint64
	// Block is the block the read was pinned to.
	Block BlockReference
	// Err is the underlying transport, protocol or decoding error.
	Err error
}

func newFetchError(op string, addr common.Address, slot common.Hash, block BlockReference, err error) *FetchError {
	return &FetchError{Op: op, Address: addr, Slot: slot, Block: block, Err: err}
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	switch e.Op {
	case FetchOpStorage:
		return fmt.Sprintf("could not fetch storage %s of %s at block %s: %v", e.Slot.Hex(), e.Address.Hex(), e.Block, e.Err)
	case FetchOpBlockHash:
		return fmt.Sprintf("could not fetch the hash of block %d: %v", e.Number, e.Err)
	default:
		return fmt.Sprintf("could not fetch account %s at block %s: %v", e.Address.Hex(), e.Block, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports ErrRemoteFetch as matching.
func (e *FetchError) Is(target error) bool {
	return target == ErrRemoteFetch
}
