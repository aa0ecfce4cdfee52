package fare

import (
	"errors"
	"math"
)

// ErrAmountOutOfRange is returned by ToCents for amounts that are not finite
// or too large to hold as cents.
var ErrAmountOutOfRange = errors.New("amount out of range")

// maxAmount is the largest magnitude ToCents accepts, in whole currency
// units. It leaves headroom below math.MaxInt64 cents for summed balances.
const maxAmount = 1e15

// ToCents converts a decimal amount to integer cents, rounding half away from zero.
func ToCents(amount float64) (int64, error) {
	if !(math.Abs(amount) <= maxAmount) {
		return 0, ErrAmountOutOfRange
	}
	return int64(math.Round(amount * 100)), nil
}

// FromCents converts integer cents back to a decimal amount.
func FromCents(cents int64) float64 {
	return float64(cents) / 100
}
