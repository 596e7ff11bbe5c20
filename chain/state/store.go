package state

import (
	"sync"

	"github.com/crytic/forkdb/chain/state/cache"
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

/*
Store is a two-tier account and storage database. Local writes land in an overlay that always takes precedence. Reads
that miss the overlay fall back to a fetch cache and then to a remote Backend pinned to one block, memoizing what the
backend returns. A Store without a backend is a pure in-memory store: overlay misses resolve to zero values and no
network access is attempted.

A Store is safe for concurrent use, though it is typically driven by a single execution thread.
*/
type Store struct {
	// lock guards overlay.
	lock    sync.RWMutex
	overlay *overlay

	// fetchCache memoizes remote reads. It only ever holds remote truth, never local writes.
	fetchCache cache.StateCache

	// backend is the remote source. It is nil for a pure in-memory store.
	backend Backend

	// pinnedBlock is the block every remote read is made against. It never changes after construction.
	pinnedBlock BlockReference
}

// NewMemoryStore creates a pure in-memory store with no remote source.
func NewMemoryStore() *Store {
	return &Store{
		overlay: newOverlay(),
	}
}

/*
NewForkingStore creates a store that lazily reads state missing from its overlay from backend, at the block the
backend is pinned to. Remote reads are memoized in fetchCache; if it is nil, a fresh in-memory cache is used.
*/
func NewForkingStore(backend Backend, fetchCache cache.StateCache) *Store {
	if backend == nil {
		panic("forking store requires a backend")
	}
	pinnedBlock := backend.PinnedBlock()
	if !pinnedBlock.IsSet() {
		panic("forking store requires a pinned block")
	}
	if fetchCache == nil {
		fetchCache = cache.NewNonPersistentCache()
	}
	return &Store{
		overlay:     newOverlay(),
		fetchCache:  fetchCache,
		backend:     backend,
		pinnedBlock: pinnedBlock,
	}
}

// IsForking indicates whether the store has a remote source.
func (s *Store) IsForking() bool {
	return s.backend != nil
}

// PinnedBlock returns the block remote reads are made against. It is unset for a pure in-memory store.
func (s *Store) PinnedBlock() BlockReference {
	return s.pinnedBlock
}

/*
GetAccount resolves the record of addr: the overlay first, then the fetch cache, then the backend. An address with no
record anywhere resolves to DefaultAccountRecord. A failed remote read returns a *FetchError.
*/
func (s *Store) GetAccount(addr common.Address) (AccountRecord, error) {
	s.lock.RLock()
	record, ok := s.overlay.getAccount(addr)
	s.lock.RUnlock()
	if ok {
		return record, nil
	}
	if s.backend == nil {
		return DefaultAccountRecord(), nil
	}
	return s.fetchAccount(addr)
}

// fetchAccount reads addr through the fetch cache, querying the backend on a miss.
func (s *Store) fetchAccount(addr common.Address) (AccountRecord, error) {
	obj, err := s.fetchCache.GetStateObject(addr)
	if err == nil {
		return NewAccountRecord(obj.Balance, obj.Nonce, obj.Code).Copy(), nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		return AccountRecord{}, errors.Wrapf(err, "could not read account %s from the fetch cache", addr.Hex())
	}

	balance, nonce, code, err := s.backend.GetStateObject(addr)
	if err != nil {
		return AccountRecord{}, newFetchError(FetchOpAccount, addr, common.Hash{}, s.pinnedBlock, err)
	}
	record := NewAccountRecord(balance, nonce, code)
	err = s.fetchCache.WriteStateObject(addr, cache.StateObject{
		Balance: record.Balance,
		Nonce:   record.Nonce,
		Code:    record.Code,
	})
	if err != nil {
		return AccountRecord{}, errors.Wrapf(err, "could not cache account %s", addr.Hex())
	}
	return record.Copy(), nil
}

// GetBalance resolves the balance of addr.
func (s *Store) GetBalance(addr common.Address) (*uint256.Int, error) {
	record, err := s.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return record.Balance, nil
}

// GetNonce resolves the nonce of addr.
func (s *Store) GetNonce(addr common.Address) (uint64, error) {
	record, err := s.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return record.Nonce, nil
}

// GetCode resolves the bytecode of addr.
func (s *Store) GetCode(addr common.Address) ([]byte, error) {
	record, err := s.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return record.Code, nil
}

// GetCodeHash resolves the code hash of addr.
func (s *Store) GetCodeHash(addr common.Address) (common.Hash, error) {
	record, err := s.GetAccount(addr)
	if err != nil {
		return common.Hash{}, err
	}
	return record.CodeHash, nil
}

// Exists indicates whether addr resolves to a non-empty account.
func (s *Store) Exists(addr common.Address) (bool, error) {
	record, err := s.GetAccount(addr)
	if err != nil {
		return false, err
	}
	return !record.IsEmpty(), nil
}

/*
GetStorage resolves the value of slot in the storage of addr: the overlay first, then the fetch cache, then the
backend. Slots that were never set resolve to the zero word. Slots of an account whose storage was cleared locally are
never fetched.
*/
func (s *Store) GetStorage(addr common.Address, slot common.Hash) (common.Hash, error) {
	s.lock.RLock()
	value, ok := s.overlay.getStorage(addr, slot)
	cleared := s.overlay.isStorageCleared(addr)
	s.lock.RUnlock()
	if ok {
		return value, nil
	}
	if cleared || s.backend == nil {
		return common.Hash{}, nil
	}

	value, err := s.fetchCache.GetSlotData(addr, slot)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		return common.Hash{}, errors.Wrapf(err, "could not read slot %s of %s from the fetch cache", slot.Hex(), addr.Hex())
	}

	value, err = s.backend.GetStorageAt(addr, slot)
	if err != nil {
		return common.Hash{}, newFetchError(FetchOpStorage, addr, slot, s.pinnedBlock, err)
	}
	if err = s.fetchCache.WriteSlotData(addr, slot, value); err != nil {
		return common.Hash{}, errors.Wrapf(err, "could not cache slot %s of %s", slot.Hex(), addr.Hex())
	}
	return value, nil
}

// SetAccount writes record for addr to the overlay. The code hash is derived from the record's code.
func (s *Store) SetAccount(addr common.Address, record AccountRecord) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.overlay.setAccount(addr, record)
}

// SetStorage writes value to slot in the storage of addr, in the overlay.
func (s *Store) SetStorage(addr common.Address, slot common.Hash, value common.Hash) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.overlay.setStorage(addr, slot, value)
}

/*
ReplaceStorage wipes the storage of addr and writes slots in its place. Slots missing from slots read as zero
afterwards, even if the remote holds a value for them.
*/
func (s *Store) ReplaceStorage(addr common.Address, slots map[common.Hash]common.Hash) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.overlay.clearStorage(addr)
	for slot, value := range slots {
		s.overlay.setStorage(addr, slot, value)
	}
}

// CreateAccount writes a fresh account holding balance to the overlay. A nil balance is treated as zero.
func (s *Store) CreateAccount(addr common.Address, balance *uint256.Int) {
	if balance != nil {
		balance = new(uint256.Int).Set(balance)
	}
	s.SetAccount(addr, NewAccountRecord(balance, 0, nil))
}

// SetBalance resolves the account of addr and writes it back with balance.
func (s *Store) SetBalance(addr common.Address, balance *uint256.Int) error {
	return s.updateAccount(addr, func(record *AccountRecord) {
		record.Balance = new(uint256.Int).Set(balance)
	})
}

// SetNonce resolves the account of addr and writes it back with nonce.
func (s *Store) SetNonce(addr common.Address, nonce uint64) error {
	return s.updateAccount(addr, func(record *AccountRecord) {
		record.Nonce = nonce
	})
}

// SetCode resolves the account of addr and writes it back with code.
func (s *Store) SetCode(addr common.Address, code []byte) error {
	return s.updateAccount(addr, func(record *AccountRecord) {
		record.Code = code
	})
}

func (s *Store) updateAccount(addr common.Address, update func(record *AccountRecord)) error {
	record, err := s.GetAccount(addr)
	if err != nil {
		return err
	}
	update(&record)
	s.SetAccount(addr, record)
	return nil
}

/*
GetBlockHash resolves the hash of the block with the given number: the overlay first, then the fetch cache, then the
backend. Unknown blocks, blocks after the pinned block and every miss of a pure in-memory store resolve to the zero
hash.
*/
func (s *Store) GetBlockHash(number uint64) (common.Hash, error) {
	s.lock.RLock()
	hash, ok := s.overlay.blockHashes[number]
	s.lock.RUnlock()
	if ok {
		return hash, nil
	}
	if s.backend == nil {
		return common.Hash{}, nil
	}

	hash, err := s.fetchCache.GetBlockHash(number)
	if err == nil {
		return hash, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		return common.Hash{}, errors.Wrapf(err, "could not read block hash %d from the fetch cache", number)
	}

	hash, err = s.backend.GetBlockHash(number)
	if err != nil {
		return common.Hash{}, &FetchError{Op: FetchOpBlockHash, Number: number, Block: s.pinnedBlock, Err: err}
	}
	if err = s.fetchCache.WriteBlockHash(number, hash); err != nil {
		return common.Hash{}, errors.Wrapf(err, "could not cache block hash %d", number)
	}
	return hash, nil
}

// SetBlockHash writes the hash of the block with the given number to the overlay.
func (s *Store) SetBlockHash(number uint64, hash common.Hash) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.overlay.blockHashes[number] = hash
}
