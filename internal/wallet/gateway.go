package wallet

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Gateway moves value from the custodial account to a child's wallet.
type Gateway interface {
	Pay(ctx context.Context, req PayRequest) (*Receipt, error)
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
	ExchangeRate(ctx context.Context, base, quote string) (decimal.Decimal, error)
}

// PayRequest asks the gateway to send the crypto equivalent of AmountFiat.
// Requests sharing an IdempotencyKey are executed at most once downstream.
type PayRequest struct {
	ToAddress      string          `json:"to_address"`
	AmountFiat     decimal.Decimal `json:"amount_fiat"`
	Currency       string          `json:"currency"`
	Asset          string          `json:"asset"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// Receipt is the gateway's proof of a completed transfer. Amount is what
// actually left the account, in Asset units.
type Receipt struct {
	ID     string          `json:"receipt_id"`
	Amount decimal.Decimal `json:"amount"`
	Asset  string          `json:"asset"`
}

// Failure reasons reported by the gateway or assigned locally.
const (
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonRejected          = "rejected"
	ReasonInvalidAddress    = "invalid_address"
	ReasonNetwork           = "network"
	ReasonTimeout           = "timeout"
	ReasonUnavailable       = "unavailable"
)

// PaymentError is a gateway-side failure with a machine-readable reason.
type PaymentError struct {
	Reason string
	Status int
	Detail string
}

func (e *PaymentError) Error() string {
	msg := "payment failed: " + e.Reason
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}
