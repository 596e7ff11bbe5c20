package state

import (
	"github.com/crytic/medusa-geth/common"
	gethstate "github.com/crytic/medusa-geth/core/state"
	"github.com/crytic/medusa-geth/core/tracing"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/holiman/uint256"
)

var _ EngineStateDB = (*gethstate.StateDB)(nil)
var _ EngineStateDB = (*gethstate.ForkStateDb)(nil)

// EngineStateDB is the state database the execution engine runs against. Plain and forked engine state databases both
// satisfy it.
type EngineStateDB interface {
	vm.StateDB
	// vm.StateDB does not cover setting balances or committing
	SetBalance(common.Address, *uint256.Int, tracing.BalanceChangeReason)
	IntermediateRoot(bool) common.Hash
	Commit(uint64, bool, bool) (common.Hash, error)
}

/*
StateFactory defines a thread-safe interface for creating new engine state databases. Every state database built by
one factory reads through the same Store, so remote data fetched by one is available to all of them, while their
local changes stay independent.
*/
type StateFactory interface {
	// New initializes a new state
	New(root common.Hash, db gethstate.Database) (EngineStateDB, error)
}

var _ StateFactory = (*UnbackedStateFactory)(nil)
var _ StateFactory = (*ForkedStateFactory)(nil)

// ForkedStateFactory is used to build StateDBs that are backed by a Store.
type ForkedStateFactory struct {
	store *Store
}

func NewForkedStateFactory(store *Store) *ForkedStateFactory {
	return &ForkedStateFactory{store}
}

func (f *ForkedStateFactory) New(root common.Hash, db gethstate.Database) (EngineStateDB, error) {
	return newForkedEngineState(root, db, f.store)
}

// UnbackedStateFactory is used to build StateDBs that are not backed by any remote state, but still use the custom
// forked stateDB logic around state object existence checks.
type UnbackedStateFactory struct {
	store *Store
}

func NewUnbackedStateFactory() *UnbackedStateFactory {
	return &UnbackedStateFactory{store: NewForkingStore(EmptyBackend{}, nil)}
}

func (f *UnbackedStateFactory) New(root common.Hash, db gethstate.Database) (EngineStateDB, error) {
	return newForkedEngineState(root, db, f.store)
}

// newForkedEngineState builds a forked engine state database reading through store.
func newForkedEngineState(root common.Hash, db gethstate.Database, store *Store) (EngineStateDB, error) {
	stateDb, err := gethstate.NewForkedStateDb(root, db, newRemoteStateProvider(store))
	if err != nil {
		return nil, err
	}
	return stateDb, nil
}
