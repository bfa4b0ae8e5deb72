package task

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/taskpay/internal/errs"
)

func TestConvert(t *testing.T) {
	tests := []struct {
		fiat, rate, want string
	}{
		{"10", "3200", "0.003125"},
		{"2", "3", "0.666667"},
		{"10", "3", "3.333333"},
		{"1", "3000000", "0.000000"},
		{"1.5", "3000000", "0.000001"},
		{"0", "3200", "0"},
		{"25.50", "2550", "0.01"},
	}
	for _, tt := range tests {
		got, err := Convert(decimal.RequireFromString(tt.fiat), decimal.RequireFromString(tt.rate))
		if err != nil {
			t.Fatalf("Convert(%s, %s): %v", tt.fiat, tt.rate, err)
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Convert(%s, %s) = %s, want %s", tt.fiat, tt.rate, got, tt.want)
		}
	}
}

func TestConvertRejectsBadRate(t *testing.T) {
	for _, rate := range []string{"0", "-1"} {
		_, err := Convert(decimal.NewFromInt(10), decimal.RequireFromString(rate))
		if !errors.Is(err, errs.ErrValidation) {
			t.Errorf("rate %s: err = %v, want validation error", rate, err)
		}
	}
}

func TestValidateReward(t *testing.T) {
	for _, ok := range []string{"0", "10", "10.5", "10.25"} {
		if err := ValidateReward(decimal.RequireFromString(ok)); err != nil {
			t.Errorf("ValidateReward(%s): %v", ok, err)
		}
	}
	for _, bad := range []string{"-0.01", "10.123"} {
		if err := ValidateReward(decimal.RequireFromString(bad)); !errors.Is(err, errs.ErrValidation) {
			t.Errorf("ValidateReward(%s) = %v, want validation error", bad, err)
		}
	}
}
