package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/fxamacker/cbor"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestData builds a snapshot exercising every field.
func newTestData() *Data {
	data := New(SourceFork)
	number := uint64(19_000_000)
	hash := common.HexToHash("0x1234")
	data.BlockNumber = &number
	data.BlockHash = &hash

	contract := data.Account(common.HexToAddress("0xc0"))
	contract.Info = &AccountInfo{
		Balance: new(uint256.Int).SetAllOne(),
		Nonce:   1,
		Code:    []byte{0x60, 0x80, 0x60, 0x40},
	}
	contract.Storage[common.Hash{0x01}] = common.Hash{0x02}
	contract.Storage[common.Hash{0x03}] = common.Hash{}

	eoa := data.Account(common.HexToAddress("0xe0"))
	eoa.Info = &AccountInfo{Balance: uint256.NewInt(0), Nonce: 0}

	cleared := data.Account(common.HexToAddress("0xd0"))
	cleared.StorageCleared = true

	data.BlockHashes[number-1] = common.Hash{0xaa}
	return data
}

// assertSameData compares two snapshots field by field.
func assertSameData(t *testing.T, expected *Data, actual *Data) {
	assert.Equal(t, expected.Version, actual.Version)
	assert.Equal(t, expected.ID, actual.ID)
	assert.True(t, expected.CreatedAt.Equal(actual.CreatedAt))
	assert.Equal(t, expected.Source, actual.Source)
	assert.Equal(t, expected.BlockNumber, actual.BlockNumber)
	assert.Equal(t, expected.BlockHash, actual.BlockHash)
	assert.Equal(t, expected.BlockHashes, actual.BlockHashes)
	require.Len(t, actual.Accounts, len(expected.Accounts))
	for addr, account := range expected.Accounts {
		other, ok := actual.Accounts[addr]
		require.True(t, ok, addr.Hex())
		assert.Equal(t, account.StorageCleared, other.StorageCleared)
		assert.Equal(t, len(account.Storage), len(other.Storage))
		for slot, value := range account.Storage {
			assert.Equal(t, value, other.Storage[slot])
		}
		if account.Info == nil {
			assert.Nil(t, other.Info)
			continue
		}
		require.NotNil(t, other.Info)
		assert.True(t, account.Info.Balance.Eq(other.Info.Balance))
		assert.Equal(t, account.Info.Nonce, other.Info.Nonce)
		assert.Equal(t, len(account.Info.Code), len(other.Info.Code))
		assert.EqualValues(t, account.Info.Code, other.Info.Code)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	data := newTestData()
	encoded, err := Encode(data)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assertSameData(t, data, decoded)

	// equal snapshots encode to equal bytes
	again, err := Encode(decoded)
	require.NoError(t, err)
	assert.Equal(t, encoded, again)
}

func TestJSONRoundTrip(t *testing.T) {
	data := newTestData()
	encoded, err := EncodeJSON(data)
	require.NoError(t, err)

	decoded, err := DecodeJSON(encoded)
	require.NoError(t, err)
	assertSameData(t, data, decoded)
}

func TestDecodeRejectsCorruptData(t *testing.T) {
	encoded, err := Encode(newTestData())
	require.NoError(t, err)

	// truncated
	_, err = Decode(encoded[:len(encoded)/2])
	assert.ErrorIs(t, err, ErrFormat)

	// garbage
	_, err = Decode([]byte("not a snapshot"))
	assert.ErrorIs(t, err, ErrFormat)

	// a flipped bit in the body fails the checksum
	var env envelope
	require.NoError(t, cbor.Unmarshal(encoded, &env))
	env.Body[len(env.Body)-1] ^= 0x01
	tampered, err := cbor.Marshal(env, cbor.EncOptions{})
	require.NoError(t, err)
	_, err = Decode(tampered)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = DecodeJSON([]byte(`{"version": "1.0.0", "accounts": {`))
	assert.ErrorIs(t, err, ErrFormat)
}

func TestDecodeRejectsOtherVersions(t *testing.T) {
	data := newTestData()

	data.Version = "2.0.0"
	encoded, err := Encode(data)
	require.NoError(t, err)
	_, err = Decode(encoded)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
	assert.ErrorIs(t, err, ErrFormat)

	data.Version = "not-a-version"
	encoded, err = EncodeJSON(data)
	require.NoError(t, err)
	_, err = DecodeJSON(encoded)
	assert.ErrorIs(t, err, ErrFormat)
	assert.NotErrorIs(t, err, ErrUnsupportedVersion)

	// minor revisions stay readable
	data.Version = "1.3.0"
	encoded, err = Encode(data)
	require.NoError(t, err)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", decoded.Version)
}

func TestValidate(t *testing.T) {
	data := newTestData()
	require.NoError(t, data.Validate())

	data.Source = "disk"
	assert.ErrorIs(t, data.Validate(), ErrFormat)

	data = newTestData()
	data.Accounts[common.Address{0x01}] = nil
	assert.ErrorIs(t, data.Validate(), ErrFormat)
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	data := newTestData()

	for _, name := range []string{"nested/state.cbor", "state.JSON"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(path, data))
		read, err := ReadFile(path)
		require.NoError(t, err)
		assertSameData(t, data, read)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "state.JSON"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"source": "fork"`)

	_, err = ReadFile(filepath.Join(dir, "missing.cbor"))
	assert.Error(t, err)
}
