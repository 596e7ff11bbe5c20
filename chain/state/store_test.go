package state

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryStoreDefaults verifies that a pure in-memory store resolves unknown accounts and slots to zero values.
func TestMemoryStoreDefaults(t *testing.T) {
	store := NewMemoryStore()
	addr := common.HexToAddress("0x1234")

	record, err := store.GetAccount(addr)
	require.NoError(t, err)
	assert.True(t, record.Balance.IsZero())
	assert.Zero(t, record.Nonce)
	assert.Empty(t, record.Code)
	assert.Equal(t, types.EmptyCodeHash, record.CodeHash)

	value, err := store.GetStorage(addr, common.Hash{0x01})
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, value)

	hash, err := store.GetBlockHash(10)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, hash)

	exists, err := store.Exists(addr)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.False(t, store.IsForking())
	assert.False(t, store.PinnedBlock().IsSet())
}

// TestForkingStoreDefaults verifies that slots the remote has no data for resolve to zero.
func TestForkingStoreDefaults(t *testing.T) {
	fixture := newPrePopulatedBackendFixture()
	unknown := common.HexToAddress("0xffff")

	record, err := fixture.Store.GetAccount(unknown)
	require.NoError(t, err)
	assert.True(t, record.Equal(DefaultAccountRecord()))

	value, err := fixture.Store.GetStorage(unknown, common.Hash{0x01})
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, value)

	value, err = fixture.Store.GetStorage(fixture.StateObjectContractAddress, fixture.StorageSlotEmptyKey)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, value)
}

// TestOverlayPrecedence verifies that local writes are never shadowed by remote data, whether or not the remote was
// read first.
func TestOverlayPrecedence(t *testing.T) {
	fixture := newPrePopulatedBackendFixture()
	store := fixture.Store
	addr := fixture.StateObjectContractAddress

	// read the remote value first, so the fetch cache holds it
	remote, err := store.GetAccount(addr)
	require.NoError(t, err)
	assert.True(t, fixture.StateObjectContract.Balance.Eq(remote.Balance))

	local := NewAccountRecord(uint256.NewInt(7), 9, []byte{0x60, 0x00})
	store.SetAccount(addr, local)

	record, err := store.GetAccount(addr)
	require.NoError(t, err)
	assert.True(t, local.Equal(record))
	assert.Equal(t, []byte{0x60, 0x00}, record.Code)

	// a slot written before it was ever read
	store.SetStorage(addr, fixture.StorageSlotPopulatedKey, common.Hash{0x42})
	value, err := store.GetStorage(addr, fixture.StorageSlotPopulatedKey)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{0x42}, value)
	assert.Zero(t, fixture.Backend.storageCalls)
}

// TestSetAccountNeverTouchesFetchCache verifies local writes stay out of the fetch cache.
func TestSetAccountNeverTouchesFetchCache(t *testing.T) {
	fixture := newPrePopulatedBackendFixture()
	addr := common.HexToAddress("0xabc")
	fixture.Store.SetAccount(addr, NewAccountRecord(uint256.NewInt(1), 1, nil))
	fixture.Store.SetStorage(addr, common.Hash{0x01}, common.Hash{0x02})

	_, err := fixture.Store.fetchCache.GetStateObject(addr)
	assert.Error(t, err)
	_, err = fixture.Store.fetchCache.GetSlotData(addr, common.Hash{0x01})
	assert.Error(t, err)
}

// TestFetchMemoization verifies every account and slot is queried from the remote at most once.
func TestFetchMemoization(t *testing.T) {
	fixture := newPrePopulatedBackendFixture()
	store := fixture.Store

	first, err := store.GetAccount(fixture.StateObjectContractAddress)
	require.NoError(t, err)
	second, err := store.GetAccount(fixture.StateObjectContractAddress)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
	assert.Equal(t, 1, fixture.Backend.stateObjectCalls)

	slotA, err := store.GetStorage(fixture.StateObjectContractAddress, fixture.StorageSlotPopulatedKey)
	require.NoError(t, err)
	slotB, err := store.GetStorage(fixture.StateObjectContractAddress, fixture.StorageSlotPopulatedKey)
	require.NoError(t, err)
	assert.Equal(t, fixture.StorageSlotPopulatedData, slotA)
	assert.Equal(t, slotA, slotB)
	assert.Equal(t, 1, fixture.Backend.storageCalls)

	// a slot holding zero remotely is memoized too
	for i := 0; i < 3; i++ {
		_, err = store.GetStorage(fixture.StateObjectContractAddress, fixture.StorageSlotEmptyKey)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, fixture.Backend.storageCalls)
}

// TestResolvedRecordsAreCopies verifies callers mutating a resolved balance or code never change what the store
// serves next, whether the read was a fetch, a cache hit or an overlay hit.
func TestResolvedRecordsAreCopies(t *testing.T) {
	fixture := newPrePopulatedBackendFixture()
	store := fixture.Store
	contract := fixture.StateObjectContractAddress
	expected := fixture.StateObjectContract

	mutate := func() {
		balance, err := store.GetBalance(contract)
		require.NoError(t, err)
		balance.AddUint64(balance, 1000)
		code, err := store.GetCode(contract)
		require.NoError(t, err)
		if len(code) > 0 {
			code[0] ^= 0xff
		}
	}

	// miss, then hit
	mutate()
	mutate()
	balance, err := store.GetBalance(contract)
	require.NoError(t, err)
	assert.True(t, expected.Balance.Eq(balance), balance.String())
	code, err := store.GetCode(contract)
	require.NoError(t, err)
	assert.Equal(t, expected.Code, code)
	assert.Equal(t, 1, fixture.Backend.stateObjectCalls)

	require.NoError(t, store.SetBalance(contract, uint256.NewInt(5)))
	mutate()
	balance, err = store.GetBalance(contract)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), balance.Uint64())
}

// TestFetchErrorsAreNotDefaulted verifies remote failures surface as errors instead of zero values, and are not
// memoized.
func TestFetchErrorsAreNotDefaulted(t *testing.T) {
	fixture := newPrePopulatedBackendFixture()
	cause := errors.New("connection reset")
	fixture.Backend.fail(cause)

	_, err := fixture.Store.GetAccount(fixture.StateObjectEOAAddress)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteFetch)
	assert.ErrorIs(t, err, cause)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, FetchOpAccount, fetchErr.Op)
	assert.Equal(t, fixture.StateObjectEOAAddress, fetchErr.Address)
	assert.True(t, fetchErr.Block.Equal(BlockByNumber(fixtureBlock)))

	_, err = fixture.Store.GetStorage(fixture.StateObjectContractAddress, fixture.StorageSlotPopulatedKey)
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, FetchOpStorage, fetchErr.Op)
	assert.Equal(t, fixture.StorageSlotPopulatedKey, fetchErr.Slot)

	_, err = fixture.Store.GetBlockHash(5)
	assert.ErrorIs(t, err, ErrRemoteFetch)

	fixture.Backend.fail(nil)
	balance, err := fixture.Store.GetBalance(fixture.StateObjectEOAAddress)
	require.NoError(t, err)
	assert.True(t, fixture.StateObjectEOA.Balance.Eq(balance))
}

// TestBalanceScenario creates a funded and an unfunded account and checks their balances.
func TestBalanceScenario(t *testing.T) {
	twoEther, overflow := uint256.FromBig(new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18)))
	require.False(t, overflow)

	for name, store := range map[string]*Store{
		"memory": NewMemoryStore(),
		"fork":   newPrePopulatedBackendFixture().Store,
	} {
		t.Run(name, func(t *testing.T) {
			a := common.HexToAddress("0x00000000000000000000000000000000000000aa")
			b := common.HexToAddress("0x00000000000000000000000000000000000000bb")
			store.CreateAccount(a, twoEther)

			balance, err := store.GetBalance(a)
			require.NoError(t, err)
			assert.Equal(t, "2000000000000000000", balance.Dec())

			balance, err = store.GetBalance(b)
			require.NoError(t, err)
			assert.True(t, balance.IsZero())
		})
	}
}

// TestAccountSetters verifies the read-modify-write helpers keep the fields they do not change.
func TestAccountSetters(t *testing.T) {
	fixture := newPrePopulatedBackendFixture()
	store := fixture.Store
	addr := fixture.StateObjectContractAddress

	require.NoError(t, store.SetBalance(addr, uint256.NewInt(1)))
	require.NoError(t, store.SetNonce(addr, 77))

	record, err := store.GetAccount(addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), record.Balance.Uint64())
	assert.Equal(t, uint64(77), record.Nonce)
	assert.Equal(t, fixture.StateObjectContract.Code, record.Code)

	require.NoError(t, store.SetCode(addr, nil))
	codeHash, err := store.GetCodeHash(addr)
	require.NoError(t, err)
	assert.Equal(t, types.EmptyCodeHash, codeHash)

	// the remote was only consulted once, for the first read
	assert.Equal(t, 1, fixture.Backend.stateObjectCalls)
}

// TestCodeIsContentAddressed verifies accounts sharing bytecode resolve it correctly, and that changing one does not
// affect the other.
func TestCodeIsContentAddressed(t *testing.T) {
	store := NewMemoryStore()
	code := []byte{0x60, 0x01, 0x60, 0x02}
	a, b := common.Address{0x0a}, common.Address{0x0b}

	store.SetAccount(a, NewAccountRecord(nil, 0, code))
	store.SetAccount(b, NewAccountRecord(nil, 0, code))
	require.NoError(t, store.SetCode(a, []byte{0xfe}))

	codeA, err := store.GetCode(a)
	require.NoError(t, err)
	codeB, err := store.GetCode(b)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfe}, codeA)
	assert.Equal(t, code, codeB)

	// mutating a returned slice does not leak into the store
	codeB[0] = 0x00
	codeB, err = store.GetCode(b)
	require.NoError(t, err)
	assert.Equal(t, code, codeB)
}

// TestReplaceStorage verifies replaced storage hides remote slots.
func TestReplaceStorage(t *testing.T) {
	fixture := newPrePopulatedBackendFixture()
	addr := fixture.StateObjectContractAddress

	fixture.Store.ReplaceStorage(addr, map[common.Hash]common.Hash{{0x01}: {0x02}})

	value, err := fixture.Store.GetStorage(addr, common.Hash{0x01})
	require.NoError(t, err)
	assert.Equal(t, common.Hash{0x02}, value)

	value, err = fixture.Store.GetStorage(addr, fixture.StorageSlotPopulatedKey)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, value)
	assert.Zero(t, fixture.Backend.storageCalls)
}

// TestCommit verifies how each kind of account change lands in the overlay.
func TestCommit(t *testing.T) {
	fixture := newPrePopulatedBackendFixture()
	store := fixture.Store
	created := common.HexToAddress("0xc0ffee")
	updated := fixture.StateObjectEOAAddress
	destroyed := fixture.StateObjectContractAddress
	untouched := common.HexToAddress("0xdead")

	fixture.Backend.SetStorageAt(created, common.Hash{0x09}, common.Hash{0x09})

	store.Commit([]AccountChange{
		{
			Address: created,
			Account: NewAccountRecord(uint256.NewInt(3), 1, []byte{0x00}),
			Storage: map[common.Hash]common.Hash{{0x01}: {0x11}},
			Touched: true,
			Created: true,
		},
		{
			Address: updated,
			Account: NewAccountRecord(uint256.NewInt(4999), 2, nil),
			Storage: map[common.Hash]common.Hash{{0x02}: {0x22}},
			Touched: true,
		},
		{
			Address:        destroyed,
			Account:        NewAccountRecord(uint256.NewInt(1000), 5, []byte{1, 2, 3}),
			Touched:        true,
			SelfDestructed: true,
		},
		{
			Address: untouched,
			Account: NewAccountRecord(uint256.NewInt(1), 0, nil),
		},
	})

	// created accounts lose whatever storage the remote had
	value, err := store.GetStorage(created, common.Hash{0x09})
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, value)
	value, err = store.GetStorage(created, common.Hash{0x01})
	require.NoError(t, err)
	assert.Equal(t, common.Hash{0x11}, value)

	// updated accounts keep remote slots that were not written
	nonce, err := store.GetNonce(updated)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), nonce)
	value, err = store.GetStorage(updated, common.Hash{0x02})
	require.NoError(t, err)
	assert.Equal(t, common.Hash{0x22}, value)

	// destroyed accounts read as the default with empty storage
	record, err := store.GetAccount(destroyed)
	require.NoError(t, err)
	assert.True(t, record.IsEmpty())
	value, err = store.GetStorage(destroyed, fixture.StorageSlotPopulatedKey)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, value)

	// untouched changes are ignored, so the remote is still consulted
	balance, err := store.GetBalance(untouched)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.Equal(t, 1, fixture.Backend.stateObjectCalls)
	assert.Zero(t, fixture.Backend.storageCalls)
}

// TestBlockHashes verifies block hash resolution and memoization.
func TestBlockHashes(t *testing.T) {
	fixture := newPrePopulatedBackendFixture()
	fixture.Backend.SetBlockHash(fixtureBlock-1, common.Hash{0xaa})

	hash, err := fixture.Store.GetBlockHash(fixtureBlock - 1)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{0xaa}, hash)
	_, err = fixture.Store.GetBlockHash(fixtureBlock - 1)
	require.NoError(t, err)
	assert.Equal(t, 1, fixture.Backend.blockHashCalls)

	fixture.Store.SetBlockHash(fixtureBlock-1, common.Hash{0xbb})
	hash, err = fixture.Store.GetBlockHash(fixtureBlock - 1)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{0xbb}, hash)
}

// TestExists verifies existence follows account emptiness.
func TestExists(t *testing.T) {
	fixture := newPrePopulatedBackendFixture()
	for addr, expected := range map[common.Address]bool{
		fixture.StateObjectContractAddress: true,
		fixture.StateObjectEOAAddress:      true,
		fixture.StateObjectEmptyAddress:    false,
	} {
		exists, err := fixture.Store.Exists(addr)
		require.NoError(t, err)
		assert.Equal(t, expected, exists, addr.Hex())
	}
}

// TestPrefetch verifies prefetched entries are served without further remote reads.
func TestPrefetch(t *testing.T) {
	fixture := newPrePopulatedBackendFixture()
	addrs := []common.Address{fixture.StateObjectContractAddress, fixture.StateObjectEOAAddress}
	slots := map[common.Address][]common.Hash{
		fixture.StateObjectContractAddress: {fixture.StorageSlotPopulatedKey, fixture.StorageSlotEmptyKey},
	}

	require.NoError(t, fixture.Store.Prefetch(context.Background(), addrs, slots, 2))
	calls := fixture.Backend.calls()
	assert.Equal(t, 4, calls)

	_, err := fixture.Store.GetAccount(fixture.StateObjectEOAAddress)
	require.NoError(t, err)
	value, err := fixture.Store.GetStorage(fixture.StateObjectContractAddress, fixture.StorageSlotPopulatedKey)
	require.NoError(t, err)
	assert.Equal(t, fixture.StorageSlotPopulatedData, value)
	assert.Equal(t, calls, fixture.Backend.calls())

	// failures are reported
	fixture.Backend.fail(errors.New("unavailable"))
	err = fixture.Store.Prefetch(context.Background(), []common.Address{{0x99}}, nil, 0)
	assert.ErrorIs(t, err, ErrRemoteFetch)

	// memory stores have nothing to prefetch
	assert.NoError(t, NewMemoryStore().Prefetch(context.Background(), addrs, slots, 1))
}
