package cache

import (
	"sync"

	"github.com/crytic/medusa-geth/common"
)

// nonPersistentStateCache provides a thread-safe cache for storing state objects and slots without persisting to disk.
type nonPersistentStateCache struct {
	stateObjectLock  sync.RWMutex
	stateObjectCache map[common.Address]*StateObject

	slotLock  sync.RWMutex
	slotCache map[common.Address]map[common.Hash]common.Hash

	blockHashLock  sync.RWMutex
	blockHashCache map[uint64]common.Hash
}

func newNonPersistentStateCache() *nonPersistentStateCache {
	return &nonPersistentStateCache{
		stateObjectCache: make(map[common.Address]*StateObject),
		slotCache:        make(map[common.Address]map[common.Hash]common.Hash),
		blockHashCache:   make(map[uint64]common.Hash),
	}
}

// GetStateObject checks if the addr is present in the cache, and if not, returns ErrCacheMiss
func (s *nonPersistentStateCache) GetStateObject(addr common.Address) (*StateObject, error) {
	s.stateObjectLock.RLock()
	defer s.stateObjectLock.RUnlock()

	obj, ok := s.stateObjectCache[addr]
	if !ok {
		return nil, ErrCacheMiss
	}
	return obj, nil
}

func (s *nonPersistentStateCache) WriteStateObject(addr common.Address, data StateObject) error {
	s.stateObjectLock.Lock()
	defer s.stateObjectLock.Unlock()
	s.stateObjectCache[addr] = &data
	return nil
}

// GetSlotData checks if the specified data is stored in the cache, and if not, returns ErrCacheMiss.
func (s *nonPersistentStateCache) GetSlotData(addr common.Address, slot common.Hash) (common.Hash, error) {
	s.slotLock.RLock()
	defer s.slotLock.RUnlock()
	if slotLookup, ok := s.slotCache[addr]; ok {
		if data, ok := slotLookup[slot]; ok {
			return data, nil
		}
	}
	return common.Hash{}, ErrCacheMiss
}

func (s *nonPersistentStateCache) WriteSlotData(addr common.Address, slot common.Hash, data common.Hash) error {
	s.slotLock.Lock()
	defer s.slotLock.Unlock()

	if _, ok := s.slotCache[addr]; !ok {
		s.slotCache[addr] = make(map[common.Hash]common.Hash)
	}

	s.slotCache[addr][slot] = data
	return nil
}

func (s *nonPersistentStateCache) GetBlockHash(number uint64) (common.Hash, error) {
	s.blockHashLock.RLock()
	defer s.blockHashLock.RUnlock()

	hash, ok := s.blockHashCache[number]
	if !ok {
		return common.Hash{}, ErrCacheMiss
	}
	return hash, nil
}

func (s *nonPersistentStateCache) WriteBlockHash(number uint64, hash common.Hash) error {
	s.blockHashLock.Lock()
	defer s.blockHashLock.Unlock()
	s.blockHashCache[number] = hash
	return nil
}

// ForEachStateObject iterates over a copy of the cached state objects, so fn may safely call back into the cache.
func (s *nonPersistentStateCache) ForEachStateObject(fn func(addr common.Address, obj StateObject)) {
	s.stateObjectLock.RLock()
	objects := make(map[common.Address]StateObject, len(s.stateObjectCache))
	for addr, obj := range s.stateObjectCache {
		objects[addr] = *obj
	}
	s.stateObjectLock.RUnlock()

	for addr, obj := range objects {
		fn(addr, obj)
	}
}

func (s *nonPersistentStateCache) ForEachSlot(fn func(addr common.Address, slot common.Hash, data common.Hash)) {
	type slotEntry struct {
		addr common.Address
		slot common.Hash
		data common.Hash
	}

	s.slotLock.RLock()
	entries := make([]slotEntry, 0)
	for addr, slots := range s.slotCache {
		for slot, data := range slots {
			entries = append(entries, slotEntry{addr, slot, data})
		}
	}
	s.slotLock.RUnlock()

	for _, e := range entries {
		fn(e.addr, e.slot, e.data)
	}
}

func (s *nonPersistentStateCache) ForEachBlockHash(fn func(number uint64, hash common.Hash)) {
	s.blockHashLock.RLock()
	hashes := make(map[uint64]common.Hash, len(s.blockHashCache))
	for number, hash := range s.blockHashCache {
		hashes[number] = hash
	}
	s.blockHashLock.RUnlock()

	for number, hash := range hashes {
		fn(number, hash)
	}
}
