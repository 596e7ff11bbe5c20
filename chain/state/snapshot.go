package state

import (
	"bytes"

	"github.com/crytic/forkdb/chain/state/cache"
	"github.com/crytic/forkdb/chain/state/snapshot"
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

/*
Snapshot captures everything the store knows: every entry resolved from the remote during this session and every
local write, with local writes winning. Taking a snapshot has no side effects.
*/
func (s *Store) Snapshot() (*snapshot.Data, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	data := snapshot.New(snapshot.SourceMemory)
	if s.backend != nil {
		data.Source = snapshot.SourceFork
		if number, ok := s.pinnedBlock.Number(); ok {
			data.BlockNumber = &number
		}
		if hash, ok := s.pinnedBlock.Hash(); ok {
			data.BlockHash = &hash
		}
	}

	// remote entries first, so local writes overwrite them
	if s.fetchCache != nil {
		s.fetchCache.ForEachStateObject(func(addr common.Address, obj cache.StateObject) {
			data.Account(addr).Info = toSnapshotInfo(NewAccountRecord(obj.Balance, obj.Nonce, obj.Code))
		})
		s.fetchCache.ForEachSlot(func(addr common.Address, slot common.Hash, value common.Hash) {
			if s.overlay.isStorageCleared(addr) {
				return
			}
			data.Account(addr).Storage[slot] = value
		})
		s.fetchCache.ForEachBlockHash(func(number uint64, hash common.Hash) {
			data.BlockHashes[number] = hash
		})
	}

	for addr := range s.overlay.accounts {
		record, _ := s.overlay.getAccount(addr)
		data.Account(addr).Info = toSnapshotInfo(record)
	}
	for addr := range s.overlay.storageCleared {
		data.Account(addr).StorageCleared = true
	}
	for addr, slots := range s.overlay.storage {
		account := data.Account(addr)
		for slot, value := range slots {
			account.Storage[slot] = value
		}
	}
	for number, hash := range s.overlay.blockHashes {
		data.BlockHashes[number] = hash
	}
	return data, nil
}

// Restore builds a pure in-memory store holding every entry of data in its overlay.
func Restore(data *snapshot.Data) (*Store, error) {
	store := NewMemoryStore()
	if err := store.load(data); err != nil {
		return nil, err
	}
	return store, nil
}

/*
RestoreForking builds a forking store holding every entry of data in its overlay, resuming remote reads through
backend for everything the snapshot does not cover. The snapshot must have been taken from a store pinned to the same
block as backend, or ErrBlockMismatch is returned.
*/
func RestoreForking(data *snapshot.Data, backend Backend, fetchCache cache.StateCache) (*Store, error) {
	if data == nil {
		return nil, errors.New("cannot restore a nil snapshot")
	}
	snapshotBlock := blockReferenceOf(data)
	if !snapshotBlock.Equal(backend.PinnedBlock()) {
		return nil, errors.Wrapf(ErrBlockMismatch, "snapshot taken at block %s, backend pinned at %s", snapshotBlock, backend.PinnedBlock())
	}
	store := NewForkingStore(backend, fetchCache)
	if err := store.load(data); err != nil {
		return nil, err
	}
	return store, nil
}

// load writes the contents of data into the overlay of a fresh store.
func (s *Store) load(data *snapshot.Data) error {
	if data == nil {
		return errors.New("cannot restore a nil snapshot")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	for addr, account := range data.Accounts {
		if account.Info != nil {
			balance := new(uint256.Int).Set(account.Info.Balance)
			s.overlay.setAccount(addr, NewAccountRecord(balance, account.Info.Nonce, bytes.Clone(account.Info.Code)))
		}
		if account.StorageCleared {
			s.overlay.clearStorage(addr)
		}
		for slot, value := range account.Storage {
			s.overlay.setStorage(addr, slot, value)
		}
	}
	for number, hash := range data.BlockHashes {
		s.overlay.blockHashes[number] = hash
	}
	return nil
}

func toSnapshotInfo(record AccountRecord) *snapshot.AccountInfo {
	record = record.Copy()
	return &snapshot.AccountInfo{
		Balance: record.Balance,
		Nonce:   record.Nonce,
		Code:    record.Code,
	}
}

// blockReferenceOf returns the pinned block recorded in data, preferring its hash.
func blockReferenceOf(data *snapshot.Data) BlockReference {
	var block BlockReference
	if data.BlockHash != nil {
		block = BlockByHash(*data.BlockHash)
		if data.BlockNumber != nil {
			block = block.withNumber(*data.BlockNumber)
		}
	} else if data.BlockNumber != nil {
		block = BlockByNumber(*data.BlockNumber)
	}
	return block
}
