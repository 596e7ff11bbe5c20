package state

import (
	"path/filepath"
	"testing"

	"github.com/crytic/forkdb/chain/state/snapshot"
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resolvedKeys is every key a test resolved before taking a snapshot, with the values it saw.
type resolvedKeys struct {
	accounts    map[common.Address]AccountRecord
	slots       map[common.Address]map[common.Hash]common.Hash
	blockHashes map[uint64]common.Hash
}

// resolveAll reads every account and slot of the fixture through store, plus some local writes, and records the values.
func resolveAll(t *testing.T, fixture *prepopulatedBackendFixture, store *Store) resolvedKeys {
	keys := resolvedKeys{
		accounts:    make(map[common.Address]AccountRecord),
		slots:       make(map[common.Address]map[common.Hash]common.Hash),
		blockHashes: make(map[uint64]common.Hash),
	}

	local := common.HexToAddress("0x0101")
	store.CreateAccount(local, uint256.NewInt(123))
	store.SetStorage(local, common.Hash{0x01}, common.Hash{0x02})
	store.SetBlockHash(fixtureBlock-2, common.Hash{0x22})
	fixture.Backend.SetBlockHash(fixtureBlock-1, common.Hash{0x11})
	require.NoError(t, store.SetNonce(fixture.StateObjectEOAAddress, 3))

	for _, addr := range []common.Address{
		fixture.StateObjectContractAddress,
		fixture.StateObjectEOAAddress,
		fixture.StateObjectEmptyAddress,
		local,
	} {
		record, err := store.GetAccount(addr)
		require.NoError(t, err)
		keys.accounts[addr] = record
	}
	read := func(addr common.Address, slot common.Hash) {
		value, err := store.GetStorage(addr, slot)
		require.NoError(t, err)
		if keys.slots[addr] == nil {
			keys.slots[addr] = make(map[common.Hash]common.Hash)
		}
		keys.slots[addr][slot] = value
	}
	read(fixture.StateObjectContractAddress, fixture.StorageSlotPopulatedKey)
	read(fixture.StateObjectContractAddress, fixture.StorageSlotEmptyKey)
	read(local, common.Hash{0x01})
	for _, number := range []uint64{fixtureBlock - 1, fixtureBlock - 2} {
		hash, err := store.GetBlockHash(number)
		require.NoError(t, err)
		keys.blockHashes[number] = hash
	}
	return keys
}

// verifyResolved checks that store returns the recorded value for every key.
func (keys resolvedKeys) verifyResolved(t *testing.T, store *Store) {
	for addr, expected := range keys.accounts {
		record, err := store.GetAccount(addr)
		require.NoError(t, err)
		assert.True(t, expected.Equal(record), addr.Hex())
	}
	for addr, slots := range keys.slots {
		for slot, expected := range slots {
			value, err := store.GetStorage(addr, slot)
			require.NoError(t, err)
			assert.Equal(t, expected, value)
		}
	}
	for number, expected := range keys.blockHashes {
		hash, err := store.GetBlockHash(number)
		require.NoError(t, err)
		assert.Equal(t, expected, hash)
	}
}

// TestSnapshotRoundTrip verifies that a restored store returns the same values for every key resolved before the
// snapshot, without a remote.
func TestSnapshotRoundTrip(t *testing.T) {
	fixture := newPrePopulatedBackendFixture()
	keys := resolveAll(t, fixture, fixture.Store)

	data, err := fixture.Store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, snapshot.SourceFork, data.Source)
	require.NotNil(t, data.BlockNumber)
	assert.EqualValues(t, fixtureBlock, *data.BlockNumber)
	assert.Nil(t, data.BlockHash)

	restored, err := Restore(data)
	require.NoError(t, err)
	assert.False(t, restored.IsForking())
	keys.verifyResolved(t, restored)

	// keys never resolved are absent and read as defaults
	record, err := restored.GetAccount(common.HexToAddress("0x0202"))
	require.NoError(t, err)
	assert.True(t, record.IsEmpty())
}

// TestSnapshotRoundTripThroughFiles runs the round trip through both file formats.
func TestSnapshotRoundTripThroughFiles(t *testing.T) {
	for _, name := range []string{"state.snap", "state.json"} {
		t.Run(name, func(t *testing.T) {
			fixture := newPrePopulatedBackendFixture()
			keys := resolveAll(t, fixture, fixture.Store)

			data, err := fixture.Store.Snapshot()
			require.NoError(t, err)
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, snapshot.WriteFile(path, data))

			read, err := snapshot.ReadFile(path)
			require.NoError(t, err)
			restored, err := Restore(read)
			require.NoError(t, err)
			keys.verifyResolved(t, restored)
		})
	}
}

// TestSnapshotIsPure verifies taking a snapshot neither reads the remote nor changes the store.
func TestSnapshotIsPure(t *testing.T) {
	fixture := newPrePopulatedBackendFixture()
	keys := resolveAll(t, fixture, fixture.Store)
	calls := fixture.Backend.calls()

	first, err := fixture.Store.Snapshot()
	require.NoError(t, err)
	second, err := fixture.Store.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, calls, fixture.Backend.calls())
	assert.Equal(t, first.Accounts, second.Accounts)
	assert.Equal(t, first.BlockHashes, second.BlockHashes)
	keys.verifyResolved(t, fixture.Store)
}

// TestSnapshotOverlayWins verifies local writes replace remote values in a snapshot, and that storage cleared locally
// drops cached remote slots.
func TestSnapshotOverlayWins(t *testing.T) {
	fixture := newPrePopulatedBackendFixture()
	store := fixture.Store
	contract := fixture.StateObjectContractAddress

	_, err := store.GetStorage(contract, fixture.StorageSlotPopulatedKey)
	require.NoError(t, err)
	_, err = store.GetAccount(contract)
	require.NoError(t, err)
	require.NoError(t, store.SetBalance(contract, uint256.NewInt(1)))
	store.ReplaceStorage(contract, map[common.Hash]common.Hash{{0x05}: {0x06}})

	data, err := store.Snapshot()
	require.NoError(t, err)
	account := data.Accounts[contract]
	require.NotNil(t, account)
	require.NotNil(t, account.Info)
	assert.Equal(t, uint64(1), account.Info.Balance.Uint64())
	assert.EqualValues(t, fixture.StateObjectContract.Code, account.Info.Code)
	assert.True(t, account.StorageCleared)
	assert.Equal(t, map[common.Hash]common.Hash{{0x05}: {0x06}}, account.Storage)
}

// TestMemorySnapshot verifies a snapshot of a pure in-memory store.
func TestMemorySnapshot(t *testing.T) {
	store := NewMemoryStore()
	addr := common.HexToAddress("0xaa")
	store.CreateAccount(addr, uint256.NewInt(2))

	data, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, snapshot.SourceMemory, data.Source)
	assert.Nil(t, data.BlockNumber)
	assert.Len(t, data.Accounts, 1)

	restored, err := Restore(data)
	require.NoError(t, err)
	balance, err := restored.GetBalance(addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), balance.Uint64())
}

// TestRestoreForking verifies a restored forking store resumes remote reads for keys the snapshot does not cover.
func TestRestoreForking(t *testing.T) {
	fixture := newPrePopulatedBackendFixture()
	keys := resolveAll(t, fixture, fixture.Store)
	data, err := fixture.Store.Snapshot()
	require.NoError(t, err)

	backend := newPrepopulatedBackend(BlockByNumber(fixtureBlock), fixture.Backend.storageSlots, fixture.Backend.stateObjects)
	backend.SetStorageAt(fixture.StateObjectContractAddress, common.Hash{0x77}, common.Hash{0x78})
	restored, err := RestoreForking(data, backend, nil)
	require.NoError(t, err)
	assert.True(t, restored.IsForking())

	keys.verifyResolved(t, restored)
	assert.Zero(t, backend.calls())

	value, err := restored.GetStorage(fixture.StateObjectContractAddress, common.Hash{0x77})
	require.NoError(t, err)
	assert.Equal(t, common.Hash{0x78}, value)
	assert.Equal(t, 1, backend.calls())

	// a backend pinned elsewhere is refused
	other := newPrepopulatedBackend(BlockByNumber(fixtureBlock+1), nil, nil)
	_, err = RestoreForking(data, other, nil)
	assert.ErrorIs(t, err, ErrBlockMismatch)
}

// TestRestoreRejectsInvalidSnapshots verifies no store is produced from a snapshot that does not validate.
func TestRestoreRejectsInvalidSnapshots(t *testing.T) {
	data := snapshot.New(snapshot.SourceMemory)
	data.Version = "2.0.0"
	store, err := Restore(data)
	assert.Nil(t, store)
	assert.ErrorIs(t, err, snapshot.ErrUnsupportedVersion)
	assert.ErrorIs(t, err, snapshot.ErrFormat)

	data = snapshot.New(snapshot.SourceMemory)
	data.Account(common.Address{0x01}).Info = &snapshot.AccountInfo{}
	store, err = Restore(data)
	assert.Nil(t, store)
	assert.ErrorIs(t, err, snapshot.ErrFormat)
}
