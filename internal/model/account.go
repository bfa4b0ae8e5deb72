package model

import "time"

type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

type Account struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	ParentID      string    `json:"parent_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AccountUpdate lists the editable account fields; nil means unchanged.
type AccountUpdate struct {
	Name          *string `json:"name"`
	WalletAddress *string `json:"wallet_address"`
}
