package netpute

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// MaxDecimals is the precision of native currency amounts
const MaxDecimals = 18

// DefaultDeployFee is the native value sent with a collection deployment (0.0006 ether)
var DefaultDeployFee = big.NewInt(600_000_000_000_000)

// ParseUnits converts a human-readable decimal amount to base units
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return nil, fmt.Errorf("decimals must be between 0 and %d, got: %d", MaxDecimals, decimals)
	}

	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative, got: %s", amount)
	}

	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", amount, decimals)
	}

	result := scaled.BigInt()
	if result.BitLen() > 256 {
		return nil, fmt.Errorf("amount too large for uint256: %s", result.String())
	}
	return result, nil
}

// ParseEther converts an ether amount to wei
func ParseEther(amount string) (*big.Int, error) {
	return ParseUnits(amount, MaxDecimals)
}

// FormatUnits renders base units as a decimal string
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// FormatEther renders wei as ether
func FormatEther(amount *big.Int) string {
	return FormatUnits(amount, MaxDecimals)
}

// validAddress reports whether s is a hex address. Mixed-case input must
// carry a valid EIP-55 checksum.
func validAddress(s string) bool {
	if !common.IsHexAddress(s) {
		return false
	}
	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return common.HexToAddress(s).Hex() == "0x"+body
}

// isSet reports whether v is present and non-zero
func isSet(v *big.Int) bool {
	return v != nil && v.Sign() != 0
}

func sum(values []*big.Int) *big.Int {
	total := new(big.Int)
	for _, v := range values {
		if v != nil {
			total.Add(total, v)
		}
	}
	return total
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
