package utils

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// etherDecimals is the number of decimal places between wei and ether.
const etherDecimals = 18

// WeiToEther converts a wei amount to ether without loss of precision. A nil amount is zero.
func WeiToEther(wei *uint256.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei.ToBig(), -etherDecimals)
}

// FormatEther renders a wei amount in ether, trimming trailing zeros (e.g. 2e18 wei renders as "2").
func FormatEther(wei *uint256.Int) string {
	return WeiToEther(wei).String()
}
