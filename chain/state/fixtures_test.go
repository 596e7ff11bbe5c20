package state

import (
	"sync"

	"github.com/crytic/forkdb/chain/state/cache"
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

/* This file is exclusively for test fixtures. */

var _ Backend = (*prePopulatedBackend)(nil)

// prePopulatedBackend is an offline-only backend used for testing. It counts every read so tests can tell when the
// store reached the remote.
type prePopulatedBackend struct {
	lock         sync.Mutex
	block        BlockReference
	storageSlots map[common.Address]map[common.Hash]common.Hash
	stateObjects map[common.Address]cache.StateObject
	blockHashes  map[uint64]common.Hash

	stateObjectCalls int
	storageCalls     int
	blockHashCalls   int

	// failWith is returned by every read when set.
	failWith error
}

func newPrepopulatedBackend(
	block BlockReference,
	storageSlots map[common.Address]map[common.Hash]common.Hash,
	stateObjects map[common.Address]cache.StateObject,
) *prePopulatedBackend {
	return &prePopulatedBackend{
		block:        block,
		storageSlots: storageSlots,
		stateObjects: stateObjects,
		blockHashes:  make(map[uint64]common.Hash),
	}
}

func (p *prePopulatedBackend) PinnedBlock() BlockReference {
	return p.block
}

func (p *prePopulatedBackend) GetStorageAt(address common.Address, hash common.Hash) (common.Hash, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.storageCalls++
	if p.failWith != nil {
		return common.Hash{}, p.failWith
	}
	if c, exists := p.storageSlots[address]; exists {
		if data, exists := c[hash]; exists {
			return data, nil
		}
	}
	return common.Hash{}, nil
}

func (p *prePopulatedBackend) GetStateObject(address common.Address) (*uint256.Int, uint64, []byte, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.stateObjectCalls++
	if p.failWith != nil {
		return nil, 0, nil, p.failWith
	}
	if s, exists := p.stateObjects[address]; exists {
		return new(uint256.Int).Set(s.Balance), s.Nonce, s.Code, nil
	}
	return uint256.NewInt(0), uint64(0), []byte{}, nil
}

func (p *prePopulatedBackend) GetBlockHash(number uint64) (common.Hash, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.blockHashCalls++
	if p.failWith != nil {
		return common.Hash{}, p.failWith
	}
	return p.blockHashes[number], nil
}

func (p *prePopulatedBackend) SetStorageAt(address common.Address, slotKey common.Hash, value common.Hash) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if _, exists := p.storageSlots[address]; !exists {
		p.storageSlots[address] = make(map[common.Hash]common.Hash)
	}
	p.storageSlots[address][slotKey] = value
}

func (p *prePopulatedBackend) SetBlockHash(number uint64, hash common.Hash) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.blockHashes[number] = hash
}

func (p *prePopulatedBackend) fail(err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.failWith = err
}

// calls returns the number of reads served so far, across every kind.
func (p *prePopulatedBackend) calls() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.stateObjectCalls + p.storageCalls + p.blockHashCalls
}

// prepopulatedBackendFixture is a test fixture for a pre-populated backend
type prepopulatedBackendFixture struct {
	Backend *prePopulatedBackend
	Store   *Store

	StateObjectContractAddress common.Address
	StateObjectContract        cache.StateObject

	StorageSlotPopulatedKey  common.Hash
	StorageSlotPopulatedData common.Hash

	StorageSlotEmptyKey common.Hash
	StorageSlotEmpty    common.Hash

	StateObjectEOAAddress common.Address
	StateObjectEOA        cache.StateObject

	StateObjectEmptyAddress common.Address
	StateObjectEmpty        cache.StateObject
}

// fixtureBlock is the block the fixture backend is pinned to.
const fixtureBlock = 17_000_000

func newPrePopulatedBackendFixture() *prepopulatedBackendFixture {
	stateObjectContract := cache.StateObject{
		Balance: uint256.NewInt(1000),
		Nonce:   5,
		Code:    []byte{1, 2, 3},
	}
	stateObjectEOA := cache.StateObject{
		Balance: uint256.NewInt(5000),
		Nonce:   1,
		Code:    nil,
	}

	stateObjectEmpty := cache.StateObject{
		Balance: uint256.NewInt(0),
		Nonce:   0,
		Code:    nil,
	}

	contractAddress := common.BytesToAddress([]byte{5, 5, 5, 5})
	eoaAddress := common.BytesToAddress([]byte{6, 6, 6, 6})
	emptyAddress := common.BytesToAddress([]byte{0, 0, 0, 1})

	storageSlotPopulated := common.HexToHash("0xdeadbeef")
	storageSlotPopulatedAddress := common.HexToHash("0xaaaaaaaa")

	storageSlotEmpty := common.Hash{}
	storageSlotEmptyAddress := common.HexToHash("0xbbbbbbbbb")

	stateObjects := make(map[common.Address]cache.StateObject)
	stateObjects[contractAddress] = stateObjectContract
	stateObjects[eoaAddress] = stateObjectEOA
	stateObjects[emptyAddress] = stateObjectEmpty

	storageObjects := make(map[common.Address]map[common.Hash]common.Hash)
	storageObjects[contractAddress] = make(map[common.Hash]common.Hash)
	storageObjects[contractAddress][storageSlotPopulatedAddress] = storageSlotPopulated
	storageObjects[contractAddress][storageSlotEmptyAddress] = storageSlotEmpty

	prepopulatedBackend := newPrepopulatedBackend(BlockByNumber(fixtureBlock), storageObjects, stateObjects)

	return &prepopulatedBackendFixture{
		Backend:                    prepopulatedBackend,
		Store:                      NewForkingStore(prepopulatedBackend, nil),
		StateObjectContractAddress: contractAddress,
		StateObjectContract:        stateObjectContract,
		StorageSlotPopulatedKey:    storageSlotPopulatedAddress,
		StorageSlotPopulatedData:   storageSlotPopulated,
		StorageSlotEmptyKey:        storageSlotEmptyAddress,
		StorageSlotEmpty:           storageSlotEmpty,
		StateObjectEOAAddress:      eoaAddress,
		StateObjectEOA:             stateObjectEOA,
		StateObjectEmpty:           stateObjectEmpty,
		StateObjectEmptyAddress:    emptyAddress,
	}
}
