package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type IntentState string

const (
	IntentPending IntentState = "pending"
	IntentPaid    IntentState = "paid"
	IntentSettled IntentState = "settled"
	IntentFailed  IntentState = "failed"
)

// SettlementIntent tracks one approval from claim to ledger entry. Its ID
// doubles as the idempotency key sent to the wallet gateway.
type SettlementIntent struct {
	ID            string          `json:"id"`
	TaskID        int64           `json:"task_id"`
	ParentID      string          `json:"parent_id"`
	ChildID       string          `json:"child_id"`
	ToAddress     string          `json:"to_address"`
	AmountFiat    decimal.Decimal `json:"amount_fiat"`
	State         IntentState     `json:"state"`
	ReceiptID     string          `json:"receipt_id,omitempty"`
	AmountCrypto  decimal.Decimal `json:"amount_crypto"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
