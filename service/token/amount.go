package token

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxDecimals is the highest decimal precision a mint can be created with.
const MaxDecimals = 9

// DisplayToRaw converts a human display amount (e.g. "10.00") into raw
// integer token units using the mint's decimal precision. The conversion is
// exact: amounts that do not scale to an integer are rejected rather than
// rounded, as are non-positive amounts and values that overflow uint64.
func DisplayToRaw(display string, decimals uint8) (uint64, error) {
	if decimals > MaxDecimals {
		return 0, fmt.Errorf("%w: decimals %d exceeds maximum %d", ErrInvalidArgument, decimals, MaxDecimals)
	}

	d, err := decimal.NewFromString(strings.TrimSpace(display))
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q is not a number", ErrInvalidArgument, display)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be positive, got %q", ErrInvalidArgument, display)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%w: amount %q has more than %d decimal places", ErrInvalidArgument, display, decimals)
	}

	raw := scaled.BigInt()
	if !raw.IsUint64() {
		return 0, fmt.Errorf("%w: amount %q overflows at %d decimals", ErrInvalidArgument, display, decimals)
	}

	return raw.Uint64(), nil
}

// RawToDisplay converts raw integer token units back into a display amount
// using the mint's decimal precision.
func RawToDisplay(raw uint64, decimals uint8) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals)).String()
}
