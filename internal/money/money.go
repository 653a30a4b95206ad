package money

import (
	"errors"
	"regexp"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
	ErrNotPositive     = errors.New("amount must be positive")
)

var (
	amountPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)
	hundred       = decimal.NewFromInt(100)
	basisPoints   = decimal.NewFromInt(10000)
)

// ParseMinor converts a decimal string such as "50" or "12.5" to cents.
// Signs, exponents and more than two fraction digits are rejected.
func ParseMinor(input string) (int64, error) {
	if !amountPattern.MatchString(input) {
		return 0, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(input)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if value.Exponent() < -2 {
		return 0, ErrTooManyDecimals
	}
	minor := value.Mul(hundred)
	if !minor.IsInteger() || minor.GreaterThan(decimal.NewFromInt(1<<53)) {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

// ParsePositiveMinor is ParseMinor that also rejects zero.
func ParsePositiveMinor(input string) (int64, error) {
	minor, err := ParseMinor(input)
	if err != nil {
		return 0, err
	}
	if minor <= 0 {
		return 0, ErrNotPositive
	}
	return minor, nil
}

func FormatMinor(value int64) string {
	return decimal.New(value, -2).StringFixed(2)
}

// FeeMinor applies a basis-point rate to amount, rounding half away from zero.
func FeeMinor(amount, bps int64) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	fee := decimal.NewFromInt(amount).Mul(decimal.NewFromInt(bps)).Div(basisPoints).Round(0).IntPart()
	if fee > amount {
		return amount
	}
	return fee
}
