package state

import (
	"encoding/json"
	"fmt"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
)

// BlockReference pins remote reads to a single historical block, identified either by number or by hash. The zero
// value is unset. A BlockReference is immutable once built.
type BlockReference struct {
	number *uint64
	hash   *common.Hash
}

// BlockByNumber references the block with the provided number.
func BlockByNumber(number uint64) BlockReference {
	return BlockReference{number: &number}
}

// BlockByHash references the block with the provided hash.
func BlockByHash(hash common.Hash) BlockReference {
	return BlockReference{hash: &hash}
}

// withNumber returns a copy of a hash reference that also carries the resolved block number. The hash stays the
// identity of the reference.
func (b BlockReference) withNumber(number uint64) BlockReference {
	b.number = &number
	return b
}

// IsSet indicates whether the reference points at a block.
func (b BlockReference) IsSet() bool {
	return b.number != nil || b.hash != nil
}

// Number returns the block number, if known.
func (b BlockReference) Number() (uint64, bool) {
	if b.number == nil {
		return 0, false
	}
	return *b.number, true
}

// Hash returns the block hash, if the reference was built from one.
func (b BlockReference) Hash() (common.Hash, bool) {
	if b.hash == nil {
		return common.Hash{}, false
	}
	return *b.hash, true
}

// Equal compares two references by hash when both carry one, otherwise by number. Two unset references are equal.
func (b BlockReference) Equal(other BlockReference) bool {
	if b.hash != nil && other.hash != nil {
		return *b.hash == *other.hash
	}
	if b.number != nil && other.number != nil {
		return *b.number == *other.number
	}
	return !b.IsSet() && !other.IsSet()
}

// String returns the decimal block number or the hex block hash.
func (b BlockReference) String() string {
	if b.hash != nil {
		return b.hash.Hex()
	}
	if b.number != nil {
		return fmt.Sprintf("%d", *b.number)
	}
	return "unset"
}

// MarshalJSON encodes the reference as the block parameter of eth_* requests: a hex quantity for numbers, an EIP-1898
// object for hashes.
func (b BlockReference) MarshalJSON() ([]byte, error) {
	if b.hash != nil {
		return json.Marshal(struct {
			BlockHash        common.Hash `json:"blockHash"`
			RequireCanonical bool        `json:"requireCanonical"`
		}{*b.hash, false})
	}
	if b.number != nil {
		return json.Marshal(hexutil.Uint64(*b.number))
	}
	return nil, fmt.Errorf("cannot encode an unset block reference")
}
