package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/taskpay/internal/errs"
	"github.com/dukerupert/taskpay/internal/model"
)

// LedgerStore is the append-only balance history. It exposes no update or
// delete; the schema rejects both with triggers.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func scanEntry(s scanner) (*model.BalanceHistoryEntry, error) {
	var e model.BalanceHistoryEntry
	err := s.Scan(&e.ID, &e.ParentID, &e.ChildID, &e.TaskID, &e.IntentID, &e.ReceiptID,
		&e.Date, &e.RewardFiat, &e.RewardCrypto)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const entryCols = `id, parent_id, child_id, task_id, intent_id, receipt_id, date, reward_fiat, reward_crypto`

// Append writes a new entry and returns its id. A second entry for the same
// task is a StateError.
func (s *LedgerStore) Append(ctx context.Context, e model.BalanceHistoryEntry) (int64, error) {
	if err := validateEntry(e); err != nil {
		return 0, err
	}

	result, err := insertEntry(ctx, s.db, e)
	if err != nil {
		return 0, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return 0, errs.State("append ledger entry", "task %d already has a ledger entry", e.TaskID)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func validateEntry(e model.BalanceHistoryEntry) error {
	if strings.TrimSpace(e.ChildID) == "" || strings.TrimSpace(e.ParentID) == "" {
		return errs.Validation("append ledger entry", "parent and child are required")
	}
	if e.TaskID == 0 {
		return errs.Validation("append ledger entry", "task id is required")
	}
	if e.Date.IsZero() {
		return errs.Validation("append ledger entry", "date is required")
	}
	if e.RewardFiat.IsNegative() || e.RewardCrypto.IsNegative() {
		return errs.Validation("append ledger entry", "amounts must be >= 0")
	}
	return nil
}

// appendOnce inserts the entry for a task unless one already exists and
// returns whichever row is stored.
func appendOnce(ctx context.Context, q querier, e model.BalanceHistoryEntry) (*model.BalanceHistoryEntry, error) {
	if err := validateEntry(e); err != nil {
		return nil, err
	}
	if _, err := insertEntry(ctx, q, e); err != nil {
		return nil, err
	}
	return entryByTask(ctx, q, e.TaskID)
}

func insertEntry(ctx context.Context, q querier, e model.BalanceHistoryEntry) (sql.Result, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO balance_history (parent_id, child_id, task_id, intent_id, receipt_id, date, reward_fiat, reward_crypto)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO NOTHING`,
		e.ParentID, e.ChildID, e.TaskID, e.IntentID, e.ReceiptID, e.Date.UTC(), e.RewardFiat, e.RewardCrypto,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	return result, nil
}

func entryByTask(ctx context.Context, q querier, taskID int64) (*model.BalanceHistoryEntry, error) {
	row := q.QueryRowContext(ctx, `SELECT `+entryCols+` FROM balance_history WHERE task_id = ?`, taskID)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("get ledger entry", "no entry for task %d", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return e, nil
}

func (s *LedgerStore) GetByTask(ctx context.Context, taskID int64) (*model.BalanceHistoryEntry, error) {
	return entryByTask(ctx, s.db, taskID)
}

// List returns a child's entries in insertion order, the audit order.
func (s *LedgerStore) List(ctx context.Context, childID string) ([]model.BalanceHistoryEntry, error) {
	return s.list(ctx, `WHERE child_id = ? ORDER BY id ASC`, childID)
}

// ListForDisplay returns the (parent, child) history newest first.
func (s *LedgerStore) ListForDisplay(ctx context.Context, parentID, childID string) ([]model.BalanceHistoryEntry, error) {
	return s.list(ctx, `WHERE parent_id = ? AND child_id = ? ORDER BY date DESC, id DESC`, parentID, childID)
}

func (s *LedgerStore) list(ctx context.Context, clause string, args ...any) ([]model.BalanceHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryCols+` FROM balance_history `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	var entries []model.BalanceHistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Totals sums a child's history. Amounts are stored as decimal text, so the
// sum is done here rather than in SQL.
func (s *LedgerStore) Totals(ctx context.Context, childID string) (*model.LedgerTotals, error) {
	entries, err := s.List(ctx, childID)
	if err != nil {
		return nil, err
	}

	totals := &model.LedgerTotals{ChildID: childID, TotalFiat: decimal.Zero, TotalCrypto: decimal.Zero}
	for _, e := range entries {
		totals.Entries++
		totals.TotalFiat = totals.TotalFiat.Add(e.RewardFiat)
		totals.TotalCrypto = totals.TotalCrypto.Add(e.RewardCrypto)
	}
	return totals, nil
}
