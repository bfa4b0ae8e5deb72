package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/taskpay/internal/errs"
	"github.com/dukerupert/taskpay/internal/model"
	"github.com/dukerupert/taskpay/internal/wallet"
)

// AccountStore is the sqlite-backed account directory.
type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

func scanAccount(s scanner) (*model.Account, error) {
	var a model.Account
	var wallet, parentID sql.NullString

	err := s.Scan(&a.ID, &a.Name, &a.Role, &wallet, &parentID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.WalletAddress = wallet.String
	a.ParentID = parentID.String
	return &a, nil
}

const accountCols = `id, name, role, wallet_address, parent_id, created_at, updated_at`

// Create registers a parent (parentID empty) or a child of an existing parent.
func (s *AccountStore) Create(ctx context.Context, id, name string, role model.Role, parentID string) (*model.Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errs.Validation("create account", "id is required")
	}

	switch role {
	case model.RoleParent:
		if parentID != "" {
			return nil, errs.Validation("create account", "a parent cannot have a parent")
		}
	case model.RoleChild:
		parent, err := s.Get(ctx, parentID)
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.Validation("create account", "parent %q does not exist", parentID)
		}
		if err != nil {
			return nil, err
		}
		if parent.Role != model.RoleParent {
			return nil, errs.Validation("create account", "account %q is not a parent", parentID)
		}
	default:
		return nil, errs.Validation("create account", "unknown role %q", role)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name, role, parent_id) VALUES (?, ?, ?, ?)`,
		id, strings.TrimSpace(name), role, nullString(parentID),
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *AccountStore) Get(ctx context.Context, id string) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("get account", "account %q", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *AccountStore) GetRole(ctx context.Context, userID string) (model.Role, error) {
	a, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return a.Role, nil
}

// GetWallet returns the account's wallet address, or "" when none is set.
func (s *AccountStore) GetWallet(ctx context.Context, userID string) (string, error) {
	a, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return a.WalletAddress, nil
}

func (s *AccountStore) GetParentOf(ctx context.Context, childID string) (string, error) {
	a, err := s.Get(ctx, childID)
	if err != nil {
		return "", err
	}
	if a.Role != model.RoleChild {
		return "", errs.Validation("get parent", "account %q is not a child", childID)
	}
	return a.ParentID, nil
}

// SetWallet stores a validated, checksummed address. An empty address clears it.
func (s *AccountStore) SetWallet(ctx context.Context, id, address string) (*model.Account, error) {
	return s.Update(ctx, id, model.AccountUpdate{WalletAddress: &address})
}

// Update changes the name, the wallet address, or both in one statement.
// Nil fields are left alone; an empty wallet address clears it.
func (s *AccountStore) Update(ctx context.Context, id string, u model.AccountUpdate) (*model.Account, error) {
	const op = "update account"

	sets := []string{"updated_at = ?"}
	args := []any{now()}

	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, errs.Validation(op, "name must not be empty")
		}
		sets = append(sets, "name = ?")
		args = append(args, name)
	}
	if u.WalletAddress != nil {
		var stored sql.NullString
		if strings.TrimSpace(*u.WalletAddress) != "" {
			sum, err := wallet.ValidateAddress(*u.WalletAddress)
			if err != nil {
				return nil, err
			}
			stored = sql.NullString{String: sum, Valid: true}
		}
		sets = append(sets, "wallet_address = ?")
		args = append(args, stored)
	}
	if len(sets) == 1 {
		return nil, errs.Validation(op, "nothing to update")
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errs.NotFound(op, "account %q", id)
	}
	return s.Get(ctx, id)
}

// ListChildren returns a parent's children ordered by name.
func (s *AccountStore) ListChildren(ctx context.Context, parentID string) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE parent_id = ? ORDER BY name ASC, id ASC`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var children []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		children = append(children, *a)
	}
	return children, rows.Err()
}
