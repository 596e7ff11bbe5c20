package utils

import (
	"strings"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// HexStringToAddress converts a hex string (with or without the "0x" prefix) to a common.Address. Returns the parsed
// address, or an error if the string is not exactly 20 hex-encoded bytes.
func HexStringToAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Address{}, errors.Wrapf(err, "invalid address %q", s)
	}
	if len(b) != common.AddressLength {
		return common.Address{}, errors.Errorf("invalid address %q: expected %d bytes, got %d", s, common.AddressLength, len(b))
	}
	return common.BytesToAddress(b), nil
}

// HexStringsToAddresses converts each hex string to a common.Address. Returns an error for the first string that
// fails to parse.
func HexStringsToAddresses(strs []string) ([]common.Address, error) {
	addresses := make([]common.Address, len(strs))
	for i, s := range strs {
		address, err := HexStringToAddress(s)
		if err != nil {
			return nil, err
		}
		addresses[i] = address
	}
	return addresses, nil
}

// StringToSlot parses a storage slot key. Hex strings ("0x" prefixed) of up to 32 bytes are left-padded, and decimal
// strings are parsed as 256-bit integers, so "0x03" and "3" denote the same slot.
func StringToSlot(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		// hexutil rejects odd-length input, so pad a nibble first
		digits := s[2:]
		if len(digits)%2 == 1 {
			digits = "0" + digits
		}
		b, err := hexutil.Decode("0x" + digits)
		if err != nil {
			return common.Hash{}, errors.Wrapf(err, "invalid storage slot %q", s)
		}
		if len(b) > common.HashLength {
			return common.Hash{}, errors.Errorf("invalid storage slot %q: longer than %d bytes", s, common.HashLength)
		}
		return common.BytesToHash(b), nil
	}

	value, err := uint256.FromDecimal(s)
	if err != nil {
		return common.Hash{}, errors.Wrapf(err, "invalid storage slot %q", s)
	}
	return common.Hash(value.Bytes32()), nil
}

// ParseAddressSlotPair parses an "address:slot" pair, as accepted by the snapshot command's --slot flag.
func ParseAddressSlotPair(s string) (common.Address, common.Hash, error) {
	addrStr, slotStr, found := strings.Cut(s, ":")
	if !found {
		return common.Address{}, common.Hash{}, errors.Errorf("invalid storage key %q: expected <address>:<slot>", s)
	}
	address, err := HexStringToAddress(addrStr)
	if err != nil {
		return common.Address{}, common.Hash{}, err
	}
	slot, err := StringToSlot(slotStr)
	if err != nil {
		return common.Address{}, common.Hash{}, err
	}
	return address, slot, nil
}
