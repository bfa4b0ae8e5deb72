package wallet

import (
	"errors"
	"strings"
	"testing"

	"github.com/dukerupert/taskpay/internal/errs"
)

// Reference vectors from EIP-55.
var checksummed = []string{
	"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
	"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
	"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
}

func TestValidateAddressChecksummed(t *testing.T) {
	for _, addr := range checksummed {
		got, err := ValidateAddress(addr)
		if err != nil {
			t.Errorf("ValidateAddress(%s): %v", addr, err)
			continue
		}
		if got != addr {
			t.Errorf("ValidateAddress(%s) = %s", addr, got)
		}
	}
}

func TestValidateAddressNormalizesSingleCase(t *testing.T) {
	for _, addr := range checksummed {
		lower := "0x" + strings.ToLower(addr[2:])
		got, err := ValidateAddress(lower)
		if err != nil {
			t.Fatalf("ValidateAddress(%s): %v", lower, err)
		}
		if got != addr {
			t.Errorf("ValidateAddress(%s) = %s, want %s", lower, got, addr)
		}

		upper := "0x" + strings.ToUpper(addr[2:])
		if _, err := ValidateAddress(upper); err != nil {
			t.Errorf("ValidateAddress(%s): %v", upper, err)
		}
	}
}

func TestValidateAddressRejects(t *testing.T) {
	bad := []string{
		"",
		"5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAe",
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAedd",
		"0xZaAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", // bad checksum
	}
	for _, addr := range bad {
		if _, err := ValidateAddress(addr); !errors.Is(err, errs.ErrValidation) {
			t.Errorf("ValidateAddress(%q) = %v, want validation error", addr, err)
		}
	}
}
