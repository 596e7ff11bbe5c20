package state

import (
	"bytes"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/types"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// AccountRecord describes the top-level state of an account: its balance, nonce and code.
type AccountRecord struct {
	// Balance is the account balance in wei. It is never nil for records returned by a Store.
	Balance *uint256.Int

	// Nonce is the account nonce.
	Nonce uint64

	// CodeHash is the keccak256 hash of Code. Accounts without code carry types.EmptyCodeHash.
	CodeHash common.Hash

	// Code is the account bytecode, empty for externally owned accounts.
	Code []byte
}

// NewAccountRecord creates a record for the provided values, deriving the code hash from the code. A nil balance is
// treated as zero.
func NewAccountRecord(balance *uint256.Int, nonce uint64, code []byte) AccountRecord {
	record := AccountRecord{
		Balance: balance,
		Nonce:   nonce,
		Code:    code,
	}
	return record.normalize()
}

// DefaultAccountRecord returns the record of an account that does not exist: zero balance, zero nonce, no code.
func DefaultAccountRecord() AccountRecord {
	return AccountRecord{
		Balance:  uint256.NewInt(0),
		CodeHash: types.EmptyCodeHash,
	}
}

// IsEmpty indicates whether the account has no balance, nonce, or code, as defined by EIP-161.
func (a AccountRecord) IsEmpty() bool {
	return (a.Balance == nil || a.Balance.IsZero()) && a.Nonce == 0 && a.CodeHash == types.EmptyCodeHash
}

// Copy returns a deep copy of the record.
func (a AccountRecord) Copy() AccountRecord {
	c := AccountRecord{
		Nonce:    a.Nonce,
		CodeHash: a.CodeHash,
	}
	if a.Balance != nil {
		c.Balance = new(uint256.Int).Set(a.Balance)
	}
	if a.Code != nil {
		c.Code = bytes.Clone(a.Code)
	}
	return c
}

// Equal compares two records by value.
func (a AccountRecord) Equal(other AccountRecord) bool {
	a, other = a.normalize(), other.normalize()
	return a.Balance.Eq(other.Balance) &&
		a.Nonce == other.Nonce &&
		a.CodeHash == other.CodeHash &&
		bytes.Equal(a.Code, other.Code)
}

// normalize fills a nil balance with zero and recomputes the code hash, so the empty code hash invariant holds no
// matter how the record was built.
func (a AccountRecord) normalize() AccountRecord {
	if a.Balance == nil {
		a.Balance = uint256.NewInt(0)
	}
	a.CodeHash = codeHash(a.Code)
	if len(a.Code) == 0 {
		a.Code = nil
	}
	return a
}

// codeHash computes the keccak256 hash of the provided bytecode.
func codeHash(code []byte) common.Hash {
	if len(code) == 0 {
		return types.EmptyCodeHash
	}
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(code)
	return common.BytesToHash(hasher.Sum(nil))
}
