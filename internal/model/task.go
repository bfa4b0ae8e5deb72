package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TaskStatus string

const (
	TaskActive           TaskStatus = "active"
	TaskWaitingForReview TaskStatus = "waiting_for_review"
	TaskCompleted        TaskStatus = "completed"
	TaskFailed           TaskStatus = "failed"
)

// Proof is what a child attaches when submitting a task for review.
type Proof struct {
	Text     string `json:"text"`
	ImageRef string `json:"image_ref,omitempty"`
}

type Task struct {
	ID                int64           `json:"id"`
	OwnerChildID      string          `json:"owner_child_id"`
	CreatedByParentID string          `json:"created_by_parent_id"`
	Description       string          `json:"description"`
	RewardFiat        decimal.Decimal `json:"reward_fiat"`
	RewardCrypto      decimal.Decimal `json:"reward_crypto"`
	FiatCurrency      string          `json:"fiat_currency"`
	CryptoCurrency    string          `json:"crypto_currency"`
	RateUsed          decimal.Decimal `json:"rate_used"`
	Deadline          *time.Time      `json:"deadline"`
	Status            TaskStatus      `json:"status"`
	Proof             *Proof          `json:"proof,omitempty"`
	SubmittedAt       *time.Time      `json:"submitted_at,omitempty"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewTask carries the validated fields for inserting a task.
type NewTask struct {
	OwnerChildID      string
	CreatedByParentID string
	Description       string
	RewardFiat        decimal.Decimal
	RewardCrypto      decimal.Decimal
	FiatCurrency      string
	CryptoCurrency    string
	RateUsed          decimal.Decimal
	Deadline          *time.Time
}

// TaskEdit holds the mutable fields of an active task.
type TaskEdit struct {
	Description  string
	RewardFiat   decimal.Decimal
	RewardCrypto decimal.Decimal
	RateUsed     decimal.Decimal
	Deadline     *time.Time
}
