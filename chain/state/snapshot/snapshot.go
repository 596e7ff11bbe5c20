package snapshot

import (
	"time"

	"github.com/Masterminds/semver"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// FormatVersion is the version of the snapshot layout written by this package. Snapshots with a different major
// version are rejected.
const FormatVersion = "1.0.0"

// Source describes the kind of store a snapshot was taken from.
type Source string

const (
	// SourceMemory marks a snapshot of a pure in-memory store.
	SourceMemory Source = "memory"
	// SourceFork marks a snapshot of a store forking a remote chain.
	SourceFork Source = "fork"
)

// AccountInfo is the top-level state of an account.
type AccountInfo struct {
	Balance *uint256.Int  `json:"balance"`
	Nonce   uint64        `json:"nonce"`
	Code    hexutil.Bytes `json:"code,omitempty"`
}

// Account is everything a snapshot knows about one address.
type Account struct {
	// Info is nil when only storage of the account was known.
	Info *AccountInfo `json:"info,omitempty"`

	Storage map[common.Hash]common.Hash `json:"storage,omitempty"`

	// StorageCleared indicates the storage of the account was wiped locally, so slots missing from Storage are zero.
	StorageCleared bool `json:"storageCleared,omitempty"`
}

// Data is a capture of the contents of a store at one point in time.
type Data struct {
	Version   string    `json:"version"`
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Source    Source    `json:"source"`

	// BlockNumber and BlockHash describe the pinned block of a forking store. Either may be nil.
	BlockNumber *uint64      `json:"blockNumber,omitempty"`
	BlockHash   *common.Hash `json:"blockHash,omitempty"`

	Accounts    map[common.Address]*Account `json:"accounts"`
	BlockHashes map[uint64]common.Hash      `json:"blockHashes,omitempty"`
}

// New creates an empty snapshot of the current format version.
func New(source Source) *Data {
	return &Data{
		Version:     FormatVersion,
		ID:          uuid.New(),
		CreatedAt:   time.Now().UTC(),
		Source:      source,
		Accounts:    make(map[common.Address]*Account),
		BlockHashes: make(map[uint64]common.Hash),
	}
}

// Account returns the entry of addr, creating it if needed.
func (d *Data) Account(addr common.Address) *Account {
	account, ok := d.Accounts[addr]
	if !ok {
		account = &Account{Storage: make(map[common.Hash]common.Hash)}
		d.Accounts[addr] = account
	}
	if account.Storage == nil {
		account.Storage = make(map[common.Hash]common.Hash)
	}
	return account
}

// Validate checks that the snapshot can be restored by this version of the package.
func (d *Data) Validate() error {
	if err := checkVersion(d.Version); err != nil {
		return err
	}
	switch d.Source {
	case SourceMemory, SourceFork:
	default:
		return errors.Wrapf(ErrFormat, "unknown snapshot source %q", d.Source)
	}
	for addr, account := range d.Accounts {
		if account == nil {
			return errors.Wrapf(ErrFormat, "account %s has no entry", addr.Hex())
		}
		if account.Info != nil && account.Info.Balance == nil {
			return errors.Wrapf(ErrFormat, "account %s has no balance", addr.Hex())
		}
	}
	return nil
}

// checkVersion accepts any version sharing the major version of FormatVersion.
func checkVersion(version string) error {
	parsed, err := semver.NewVersion(version)
	if err != nil {
		return errors.Wrapf(ErrFormat, "invalid snapshot version %q", version)
	}
	current, err := semver.NewVersion(FormatVersion)
	if err != nil {
		return errors.WithStack(err)
	}
	if parsed.Major() != current.Major() {
		return errors.Wrapf(ErrUnsupportedVersion, "snapshot version %s, supported %d.x", version, current.Major())
	}
	return nil
}
