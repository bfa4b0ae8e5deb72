package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceHistoryEntry is the durable record of one settled task.
type BalanceHistoryEntry struct {
	ID           int64           `json:"id"`
	ParentID     string          `json:"parent_id"`
	ChildID      string          `json:"child_id"`
	TaskID       int64           `json:"task_id"`
	IntentID     string          `json:"intent_id"`
	ReceiptID    string          `json:"receipt_id"`
	Date         time.Time       `json:"date"`
	RewardFiat   decimal.Decimal `json:"reward_fiat"`
	RewardCrypto decimal.Decimal `json:"reward_crypto"`
}

type LedgerTotals struct {
	ChildID     string          `json:"child_id"`
	Entries     int             `json:"entries"`
	TotalFiat   decimal.Decimal `json:"total_fiat"`
	TotalCrypto decimal.Decimal `json:"total_crypto"`
}
