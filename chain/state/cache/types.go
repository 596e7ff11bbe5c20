package cache

import (
	"errors"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// ErrCacheMiss is returned by a StateCache when the requested entry has never been written to it.
var ErrCacheMiss = errors.New("not found in cache")

// StateObject gives us a way to store remote accounts without the overhead of using geth's stateObject
type StateObject struct {
	Balance *uint256.Int
	Nonce   uint64
	Code    []byte
}

// StateCache stores data fetched from a remote chain at a single pinned block. Entries are never evicted: remote data
// at a pinned block is immutable, so a hit is always valid for the lifetime of the cache.
type StateCache interface {
	GetStateObject(addr common.Address) (*StateObject, error)
	WriteStateObject(addr common.Address, data StateObject) error

	GetSlotData(addr common.Address, slot common.Hash) (common.Hash, error)
	WriteSlotData(addr common.Address, slot common.Hash, data common.Hash) error

	GetBlockHash(number uint64) (common.Hash, error)
	WriteBlockHash(number uint64, hash common.Hash) error

	// ForEachStateObject calls fn for every state object resolved during this session.
	ForEachStateObject(fn func(addr common.Address, obj StateObject))
	// ForEachSlot calls fn for every storage slot resolved during this session.
	ForEachSlot(fn func(addr common.Address, slot common.Hash, data common.Hash))
	// ForEachBlockHash calls fn for every block hash resolved during this session.
	ForEachBlockHash(fn func(number uint64, hash common.Hash))
}
