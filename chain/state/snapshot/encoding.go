package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/crytic/medusa-geth/common"
	"github.com/fxamacker/cbor"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// ErrFormat is matched by every error caused by a corrupt, truncated or incompatible snapshot.
var ErrFormat = errors.New("malformed snapshot")

// ErrUnsupportedVersion is returned for snapshots written with an incompatible format version. It also matches
// ErrFormat.
var ErrUnsupportedVersion error = unsupportedVersionError{}

type unsupportedVersionError struct{}

func (unsupportedVersionError) Error() string {
	return "unsupported snapshot version"
}

func (unsupportedVersionError) Is(target error) bool {
	return target == ErrFormat
}

// envelope is the outer layer of the binary format. The version is readable without decoding the body.
type envelope struct {
	Version  string
	Body     []byte
	Checksum []byte
}

type wireData struct {
	ID             []byte
	CreatedAt      int64
	Source         string
	HasBlockNumber bool
	BlockNumber    uint64
	BlockHash      []byte
	Accounts       []wireAccount
	BlockHashes    []wireBlockHash
}

type wireAccount struct {
	Address        []byte
	HasInfo        bool
	Balance        []byte
	Nonce          uint64
	Code           []byte
	Storage        []wireSlot
	StorageCleared bool
}

type wireSlot struct {
	Key   []byte
	Value []byte
}

type wireBlockHash struct {
	Number uint64
	Hash   []byte
}

/*
Encode serializes a snapshot to its binary form: a CBOR envelope carrying the format version, a CBOR body and a
checksum of the body. Entries are sorted, so equal snapshots encode to equal bytes.
*/
func Encode(data *Data) ([]byte, error) {
	if data == nil {
		return nil, errors.New("cannot encode a nil snapshot")
	}
	body, err := cbor.Marshal(toWire(data), cbor.EncOptions{})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	checksum := sha256.Sum256(body)
	encoded, err := cbor.Marshal(envelope{
		Version:  data.Version,
		Body:     body,
		Checksum: checksum[:],
	}, cbor.EncOptions{})
	return encoded, errors.WithStack(err)
}

// Decode parses a snapshot produced by Encode. Any failure matches ErrFormat and no snapshot is returned.
func Decode(encoded []byte) (*Data, error) {
	var env envelope
	if err := cbor.Unmarshal(encoded, &env); err != nil {
		return nil, errors.Wrapf(ErrFormat, "could not decode snapshot envelope: %v", err)
	}
	if err := checkVersion(env.Version); err != nil {
		return nil, err
	}
	checksum := sha256.Sum256(env.Body)
	if !bytes.Equal(checksum[:], env.Checksum) {
		return nil, errors.Wrap(ErrFormat, "snapshot checksum mismatch")
	}

	var wire wireData
	if err := cbor.Unmarshal(env.Body, &wire); err != nil {
		return nil, errors.Wrapf(ErrFormat, "could not decode snapshot body: %v", err)
	}
	data, err := fromWire(env.Version, &wire)
	if err != nil {
		return nil, err
	}
	if err = data.Validate(); err != nil {
		return nil, err
	}
	return data, nil
}

// EncodeJSON serializes a snapshot to indented JSON.
func EncodeJSON(data *Data) ([]byte, error) {
	encoded, err := json.MarshalIndent(data, "", "\t")
	return encoded, errors.WithStack(err)
}

// DecodeJSON parses a snapshot produced by EncodeJSON. Any failure matches ErrFormat.
func DecodeJSON(encoded []byte) (*Data, error) {
	var data Data
	if err := json.Unmarshal(encoded, &data); err != nil {
		return nil, errors.Wrapf(ErrFormat, "could not decode snapshot json: %v", err)
	}
	if data.Accounts == nil {
		data.Accounts = make(map[common.Address]*Account)
	}
	if data.BlockHashes == nil {
		data.BlockHashes = make(map[uint64]common.Hash)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return &data, nil
}

// WriteFile writes a snapshot to path, as JSON if the path ends in .json and in the binary form otherwise.
func WriteFile(path string, data *Data) error {
	encode := Encode
	if isJSONPath(path) {
		encode = EncodeJSON
	}
	encoded, err := encode(data)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err = os.MkdirAll(dir, 0755); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(os.WriteFile(path, encoded, 0644))
}

// ReadFile reads a snapshot written by WriteFile.
func ReadFile(path string) (*Data, error) {
	encoded, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if isJSONPath(path) {
		return DecodeJSON(encoded)
	}
	return Decode(encoded)
}

func isJSONPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func toWire(data *Data) *wireData {
	wire := &wireData{
		ID:        data.ID[:],
		CreatedAt: data.CreatedAt.UnixNano(),
		Source:    string(data.Source),
	}
	if data.BlockNumber != nil {
		wire.HasBlockNumber = true
		wire.BlockNumber = *data.BlockNumber
	}
	if data.BlockHash != nil {
		wire.BlockHash = data.BlockHash.Bytes()
	}

	for addr, account := range data.Accounts {
		if account == nil {
			continue
		}
		wireAcct := wireAccount{
			Address:        addr.Bytes(),
			StorageCleared: account.StorageCleared,
		}
		if account.Info != nil {
			wireAcct.HasInfo = true
			if account.Info.Balance != nil {
				wireAcct.Balance = account.Info.Balance.Bytes()
			}
			wireAcct.Nonce = account.Info.Nonce
			wireAcct.Code = account.Info.Code
		}
		for key, value := range account.Storage {
			wireAcct.Storage = append(wireAcct.Storage, wireSlot{Key: key.Bytes(), Value: value.Bytes()})
		}
		slices.SortFunc(wireAcct.Storage, func(a, b wireSlot) int {
			return bytes.Compare(a.Key, b.Key)
		})
		wire.Accounts = append(wire.Accounts, wireAcct)
	}
	slices.SortFunc(wire.Accounts, func(a, b wireAccount) int {
		return bytes.Compare(a.Address, b.Address)
	})

	for number, hash := range data.BlockHashes {
		wire.BlockHashes = append(wire.BlockHashes, wireBlockHash{Number: number, Hash: hash.Bytes()})
	}
	slices.SortFunc(wire.BlockHashes, func(a, b wireBlockHash) int {
		switch {
		case a.Number < b.Number:
			return -1
		case a.Number > b.Number:
			return 1
		}
		return 0
	})
	return wire
}

func fromWire(version string, wire *wireData) (*Data, error) {
	id, err := uuid.FromBytes(wire.ID)
	if err != nil {
		return nil, errors.Wrapf(ErrFormat, "invalid snapshot id: %v", err)
	}
	data := &Data{
		Version:     version,
		ID:          id,
		CreatedAt:   time.Unix(0, wire.CreatedAt).UTC(),
		Source:      Source(wire.Source),
		Accounts:    make(map[common.Address]*Account, len(wire.Accounts)),
		BlockHashes: make(map[uint64]common.Hash, len(wire.BlockHashes)),
	}
	if wire.HasBlockNumber {
		number := wire.BlockNumber
		data.BlockNumber = &number
	}
	if wire.BlockHash != nil {
		hash, err := toHash(wire.BlockHash)
		if err != nil {
			return nil, err
		}
		data.BlockHash = &hash
	}

	for _, wireAcct := range wire.Accounts {
		if len(wireAcct.Address) != common.AddressLength {
			return nil, errors.Wrapf(ErrFormat, "invalid address of %d bytes", len(wireAcct.Address))
		}
		addr := common.BytesToAddress(wireAcct.Address)
		account := data.Account(addr)
		account.StorageCleared = wireAcct.StorageCleared
		if wireAcct.HasInfo {
			if len(wireAcct.Balance) > 32 {
				return nil, errors.Wrapf(ErrFormat, "balance of %s exceeds 256 bits", addr.Hex())
			}
			account.Info = &AccountInfo{
				Balance: new(uint256.Int).SetBytes(wireAcct.Balance),
				Nonce:   wireAcct.Nonce,
				Code:    wireAcct.Code,
			}
		}
		for _, slot := range wireAcct.Storage {
			key, err := toHash(slot.Key)
			if err != nil {
				return nil, err
			}
			value, err := toHash(slot.Value)
			if err != nil {
				return nil, err
			}
			account.Storage[key] = value
		}
	}

	for _, entry := range wire.BlockHashes {
		hash, err := toHash(entry.Hash)
		if err != nil {
			return nil, err
		}
		data.BlockHashes[entry.Number] = hash
	}
	return data, nil
}

func toHash(b []byte) (common.Hash, error) {
	if len(b) != common.HashLength {
		return common.Hash{}, errors.Wrapf(ErrFormat, "invalid word of %d bytes", len(b))
	}
	return common.BytesToHash(b), nil
}
