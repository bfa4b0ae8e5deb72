package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/taskpay/internal/errs"
	"github.com/dukerupert/taskpay/internal/model"
)

// SettlementStore holds settlement intents, the outbox that makes
// pay -> append ledger -> complete task resumable after a crash.
type SettlementStore struct {
	db    *sql.DB
	tasks *TaskStore
}

func NewSettlementStore(db *sql.DB, tasks *TaskStore) *SettlementStore {
	return &SettlementStore{db: db, tasks: tasks}
}

func scanIntent(s scanner) (*model.SettlementIntent, error) {
	var in model.SettlementIntent
	err := s.Scan(&in.ID, &in.TaskID, &in.ParentID, &in.ChildID, &in.ToAddress, &in.AmountFiat,
		&in.State, &in.ReceiptID, &in.AmountCrypto, &in.FailureReason, &in.Attempts,
		&in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

const intentCols = `id, task_id, parent_id, child_id, to_address, amount_fiat,
	state, receipt_id, amount_crypto, failure_reason, attempts, created_at, updated_at`

// Claim atomically reserves a task for payment. It succeeds only while the
// task is waiting_for_review and has no pending, paid or settled intent; a
// failed intent is re-armed and keeps its id, so a retry reuses the same
// gateway idempotency key. Losing the race is a StateError.
func (s *SettlementStore) Claim(ctx context.Context, taskID int64, parentID, toAddress string) (*model.SettlementIntent, error) {
	ts := now()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO settlement_intents (id, task_id, parent_id, child_id, to_address, amount_fiat, state, created_at, updated_at)
		SELECT ?, id, ?, owner_child_id, ?, reward_fiat, ?, ?, ?
		FROM tasks WHERE id = ? AND status = ?
		ON CONFLICT(task_id) DO UPDATE SET
			state = excluded.state,
			parent_id = excluded.parent_id,
			to_address = excluded.to_address,
			amount_fiat = excluded.amount_fiat,
			failure_reason = '',
			attempts = settlement_intents.attempts + 1,
			updated_at = excluded.updated_at
		WHERE settlement_intents.state = 'failed'`,
		uuid.NewString(), parentID, toAddress, model.IntentPending, ts, ts,
		taskID, model.TaskWaitingForReview,
	)
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, explainStatus(ctx, s.db, "claim task", taskID, model.TaskWaitingForReview)
	}
	return s.GetByTask(ctx, taskID)
}

// MarkFailed releases a pending intent after a failed payment attempt.
func (s *SettlementStore) MarkFailed(ctx context.Context, id, reason string) error {
	return s.advance(ctx, "mark intent failed", id, model.IntentPending, model.IntentFailed,
		`failure_reason = ?`, reason)
}

// MarkPaid durably records a successful payment before any further step.
func (s *SettlementStore) MarkPaid(ctx context.Context, id, receiptID string, amountCrypto decimal.Decimal) error {
	return s.advance(ctx, "mark intent paid", id, model.IntentPending, model.IntentPaid,
		`receipt_id = ?, amount_crypto = ?`, receiptID, amountCrypto)
}

func (s *SettlementStore) advance(ctx context.Context, op, id string, from, to model.IntentState, set string, args ...any) error {
	args = append(args, to, now(), id, from)
	result, err := s.db.ExecContext(ctx,
		`UPDATE settlement_intents SET `+set+`, state = ?, updated_at = ? WHERE id = ? AND state = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		in, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		return errs.State(op, "intent %s is %s, want %s", id, in.State, from)
	}
	return nil
}

// Finalize appends the ledger entry, completes the task and settles the
// intent in one transaction. Each step tolerates having already happened, so
// Finalize may be repeated after a crash or a partial earlier attempt.
func (s *SettlementStore) Finalize(ctx context.Context, id string, at time.Time) (*model.BalanceHistoryEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+intentCols+` FROM settlement_intents WHERE id = ?`, id)
	in, err := scanIntent(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("finalize settlement", "intent %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("finalize settlement: read intent: %w", err)
	}

	switch in.State {
	case model.IntentSettled:
		return entryByTask(ctx, tx, in.TaskID)
	case model.IntentPaid:
	default:
		return nil, errs.State("finalize settlement", "intent %s is %s, want %s", id, in.State, model.IntentPaid)
	}

	t, err := getTask(ctx, tx, in.TaskID)
	if err != nil {
		return nil, err
	}

	entry, err := appendOnce(ctx, tx, model.BalanceHistoryEntry{
		ParentID:     in.ParentID,
		ChildID:      in.ChildID,
		TaskID:       in.TaskID,
		IntentID:     in.ID,
		ReceiptID:    in.ReceiptID,
		Date:         at,
		RewardFiat:   t.RewardFiat,
		RewardCrypto: in.AmountCrypto,
	})
	if err != nil {
		return nil, err
	}

	switch t.Status {
	case model.TaskWaitingForReview:
		if _, err := transition(ctx, tx, "finalize settlement", t.ID, model.TaskWaitingForReview, model.TaskCompleted); err != nil {
			return nil, err
		}
	case model.TaskCompleted:
	default:
		return nil, errs.State("finalize settlement", "task %d is %s", t.ID, t.Status)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE settlement_intents SET state = ?, updated_at = ? WHERE id = ?`,
		model.IntentSettled, now(), id,
	); err != nil {
		return nil, fmt.Errorf("finalize settlement: settle intent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	if s.tasks != nil {
		s.tasks.changes.publish(in.ChildID)
	}
	return entry, nil
}

func (s *SettlementStore) Get(ctx context.Context, id string) (*model.SettlementIntent, error) {
	return s.getWhere(ctx, `id = ?`, id)
}

func (s *SettlementStore) GetByTask(ctx context.Context, taskID int64) (*model.SettlementIntent, error) {
	return s.getWhere(ctx, `task_id = ?`, taskID)
}

func (s *SettlementStore) getWhere(ctx context.Context, where string, arg any) (*model.SettlementIntent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+intentCols+` FROM settlement_intents WHERE `+where, arg)
	in, err := scanIntent(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("get intent", "%v", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("get intent: %w", err)
	}
	return in, nil
}

// ListByState returns intents in a state, oldest first.
func (s *SettlementStore) ListByState(ctx context.Context, state model.IntentState) ([]model.SettlementIntent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+intentCols+` FROM settlement_intents WHERE state = ? ORDER BY updated_at ASC, id ASC`,
		state,
	)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()

	var intents []model.SettlementIntent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		intents = append(intents, *in)
	}
	return intents, rows.Err()
}
