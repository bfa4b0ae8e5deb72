package wallet

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/dukerupert/taskpay/internal/errs"
)

// ValidateAddress checks an EVM wallet address and returns its EIP-55
// checksummed form. All-lowercase and all-uppercase addresses carry no
// checksum and are accepted; mixed case must match the checksum exactly.
func ValidateAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return "", errs.Validation("validate address", "wallet address must be 0x followed by 40 hex characters")
	}
	body := addr[2:]
	if _, err := hex.DecodeString(body); err != nil {
		return "", errs.Validation("validate address", "wallet address contains non-hex characters")
	}

	sum := checksum(body)
	lower, upper := strings.ToLower(body), strings.ToUpper(body)
	if body != lower && body != upper && "0x"+body != sum {
		return "", errs.Validation("validate address", "wallet address checksum mismatch")
	}
	return sum, nil
}

func checksum(body string) string {
	lower := strings.ToLower(body)

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := h.Sum(nil)

	out := []byte(lower)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] = c - 32
		}
	}
	return "0x" + string(out)
}
