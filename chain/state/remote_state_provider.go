package state

import (
	"fmt"

	"github.com/crytic/medusa-geth/common"
	gethstate "github.com/crytic/medusa-geth/core/state"
	"github.com/holiman/uint256"
)

var _ gethstate.RemoteStateProvider = (*RemoteStateProvider)(nil)

/*
RemoteStateProvider feeds a medusa-geth ForkedStateDb from a Store. The engine may import each account and each slot
once per series of un-reverted engine snapshots; after that, the engine's own copy is authoritative and further imports
are refused as dirty. Slots of contracts deployed locally are never imported.
*/
type RemoteStateProvider struct {
	store *Store

	accounts *importJournal[common.Address]
	slots    *importJournal[slotKey]
	deployed *importJournal[common.Address]
}

type slotKey struct {
	addr common.Address
	slot common.Hash
}

func newRemoteStateProvider(store *Store) *RemoteStateProvider {
	return &RemoteStateProvider{
		store:    store,
		accounts: newImportJournal[common.Address](),
		slots:    newImportJournal[slotKey](),
		deployed: newImportJournal[common.Address](),
	}
}

func (s *RemoteStateProvider) ImportStateObject(addr common.Address, snapId int) (bal *uint256.Int, nonce uint64, code []byte, e *gethstate.RemoteStateError) {
	if s.accounts.contains(addr) {
		return nil, 0, nil, &gethstate.RemoteStateError{
			CannotQueryDirtyAccount: true,
			Error:                   fmt.Errorf("state object %s was already imported", addr.Hex()),
		}
	}

	record, err := s.store.GetAccount(addr)
	if err != nil {
		return uint256.NewInt(0), 0, nil, &gethstate.RemoteStateError{
			CannotQueryDirtyAccount: false,
			Error:                   err,
		}
	}
	s.accounts.record(addr, snapId)
	return record.Balance, record.Nonce, record.Code, nil
}

func (s *RemoteStateProvider) ImportStorageAt(addr common.Address, slot common.Hash, snapId int) (common.Hash, *gethstate.RemoteStorageError) {
	// the remote has no data for the slots of a contract deployed locally
	if s.deployed.contains(addr) {
		return common.Hash{}, &gethstate.RemoteStorageError{
			CannotQueryDirtySlot: true,
			Error:                fmt.Errorf("slot %s of %s cannot be imported because the contract was deployed locally", slot.Hex(), addr.Hex()),
		}
	}

	key := slotKey{addr: addr, slot: slot}
	if s.slots.contains(key) {
		return common.Hash{}, &gethstate.RemoteStorageError{
			CannotQueryDirtySlot: true,
			Error:                fmt.Errorf("slot %s of %s was already imported or written", slot.Hex(), addr.Hex()),
		}
	}

	value, err := s.store.GetStorage(addr, slot)
	if err != nil {
		return common.Hash{}, &gethstate.RemoteStorageError{
			CannotQueryDirtySlot: false,
			Error:                err,
		}
	}
	s.slots.record(key, snapId)
	return value, nil
}

func (s *RemoteStateProvider) MarkSlotWritten(addr common.Address, slot common.Hash, snapId int) {
	s.slots.record(slotKey{addr: addr, slot: slot}, snapId)
}

func (s *RemoteStateProvider) MarkContractDeployed(addr common.Address, snapId int) {
	s.deployed.record(addr, snapId)
}

// NotifyRevertedToSnapshot forgets every import, write and deployment recorded after snapId.
func (s *RemoteStateProvider) NotifyRevertedToSnapshot(snapId int) {
	s.accounts.revert(snapId)
	s.slots.revert(snapId)
	s.deployed.revert(snapId)
}

// importJournal records keys per engine snapshot id. A key stays recorded while any snapshot that recorded it has not
// been reverted.
type importJournal[K comparable] struct {
	counts     map[K]int
	bySnapshot map[int][]K
}

func newImportJournal[K comparable]() *importJournal[K] {
	return &importJournal[K]{
		counts:     make(map[K]int),
		bySnapshot: make(map[int][]K),
	}
}

func (j *importJournal[K]) contains(key K) bool {
	return j.counts[key] > 0
}

func (j *importJournal[K]) record(key K, snapId int) {
	j.counts[key]++
	j.bySnapshot[snapId] = append(j.bySnapshot[snapId], key)
}

// revert drops every record made in a snapshot after snapId.
func (j *importJournal[K]) revert(snapId int) {
	for id, keys := range j.bySnapshot {
		if id <= snapId {
			continue
		}
		for _, key := range keys {
			if j.counts[key]--; j.counts[key] <= 0 {
				delete(j.counts, key)
			}
		}
		delete(j.bySnapshot, id)
	}
}
