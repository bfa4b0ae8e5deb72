package task

import (
	"github.com/shopspring/decimal"

	"github.com/dukerupert/taskpay/internal/errs"
)

// CryptoPlaces is the precision of stored crypto rewards.
const CryptoPlaces = 6

// FiatPlaces is the maximum precision accepted for fiat rewards.
const FiatPlaces = 2

// Convert turns a fiat amount into crypto at rate (fiat per crypto unit),
// rounding half away from zero to CryptoPlaces.
func Convert(fiat, rate decimal.Decimal) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, errs.Validation("convert reward", "exchange rate must be positive, got %s", rate)
	}
	if fiat.IsNegative() {
		return decimal.Zero, errs.Validation("convert reward", "reward must be >= 0, got %s", fiat)
	}
	return fiat.DivRound(rate, CryptoPlaces), nil
}

// ValidateReward checks a fiat reward is non-negative with at most FiatPlaces decimals.
func ValidateReward(fiat decimal.Decimal) error {
	if fiat.IsNegative() {
		return errs.Validation("validate reward", "reward must be >= 0, got %s", fiat)
	}
	if !fiat.Equal(fiat.Truncate(FiatPlaces)) {
		return errs.Validation("validate reward", "reward %s has more than %d decimal places", fiat, FiatPlaces)
	}
	return nil
}
