package state

import (
	"bytes"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/types"
)

// overlay holds every local write made to a Store. Its entries always outrank the fetch cache. It is not thread-safe;
// the owning Store guards it.
type overlay struct {
	// accounts maps addresses to their records. Records are stored without code, which lives in codes.
	accounts map[common.Address]AccountRecord

	// storage maps addresses to the slots written locally.
	storage map[common.Address]map[common.Hash]common.Hash

	// storageCleared tracks accounts whose storage was wiped locally. Slots of these accounts that are missing from
	// storage read as zero instead of being fetched.
	storageCleared map[common.Address]struct{}

	// codes holds bytecode by code hash, shared by every account with the same code.
	codes map[common.Hash][]byte

	blockHashes map[uint64]common.Hash
}

func newOverlay() *overlay {
	return &overlay{
		accounts:       make(map[common.Address]AccountRecord),
		storage:        make(map[common.Address]map[common.Hash]common.Hash),
		storageCleared: make(map[common.Address]struct{}),
		codes:          map[common.Hash][]byte{types.EmptyCodeHash: {}},
		blockHashes:    make(map[uint64]common.Hash),
	}
}

// getAccount returns the record of addr with its code attached, if addr was written locally.
func (o *overlay) getAccount(addr common.Address) (AccountRecord, bool) {
	record, ok := o.accounts[addr]
	if !ok {
		return AccountRecord{}, false
	}
	record = record.Copy()
	if code := o.codes[record.CodeHash]; len(code) > 0 {
		record.Code = bytes.Clone(code)
	}
	return record, true
}

// setAccount writes a normalized copy of record, moving its code into the code table.
func (o *overlay) setAccount(addr common.Address, record AccountRecord) {
	record = record.Copy().normalize()
	if _, ok := o.codes[record.CodeHash]; !ok {
		o.codes[record.CodeHash] = record.Code
	}
	record.Code = nil
	o.accounts[addr] = record
}

func (o *overlay) getStorage(addr common.Address, slot common.Hash) (common.Hash, bool) {
	value, ok := o.storage[addr][slot]
	return value, ok
}

func (o *overlay) setStorage(addr common.Address, slot common.Hash, value common.Hash) {
	slots, ok := o.storage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		o.storage[addr] = slots
	}
	slots[slot] = value
}

// clearStorage drops the local slots of addr and stops its remaining slots from being fetched.
func (o *overlay) clearStorage(addr common.Address) {
	delete(o.storage, addr)
	o.storageCleared[addr] = struct{}{}
}

func (o *overlay) isStorageCleared(addr common.Address) bool {
	_, ok := o.storageCleared[addr]
	return ok
}
