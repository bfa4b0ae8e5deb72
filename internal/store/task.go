package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/taskpay/internal/errs"
	"github.com/dukerupert/taskpay/internal/model"
	"github.com/dukerupert/taskpay/internal/task"
)

// TaskStore persists tasks. Every status change is a compare-and-swap on the
// status column, so two callers racing on the same task cannot both win.
type TaskStore struct {
	db      *sql.DB
	changes *changes
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db, changes: newChanges()}
}

func scanTask(s scanner) (*model.Task, error) {
	var t model.Task
	var deadline, submittedAt, resolvedAt sql.NullTime
	var proofText, proofImage sql.NullString

	err := s.Scan(
		&t.ID, &t.OwnerChildID, &t.CreatedByParentID, &t.Description,
		&t.RewardFiat, &t.RewardCrypto, &t.FiatCurrency, &t.CryptoCurrency, &t.RateUsed,
		&deadline, &t.Status, &proofText, &proofImage,
		&submittedAt, &resolvedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if !task.Valid(t.Status) {
		return nil, fmt.Errorf("task %d has unknown status %q", t.ID, t.Status)
	}
	t.Deadline = timePtr(deadline)
	t.SubmittedAt = timePtr(submittedAt)
	t.ResolvedAt = timePtr(resolvedAt)
	if proofText.Valid || proofImage.Valid {
		t.Proof = &model.Proof{Text: proofText.String, ImageRef: proofImage.String}
	}
	return &t, nil
}

const taskCols = `id, owner_child_id, created_by_parent_id, description,
	reward_fiat, reward_crypto, fiat_currency, crypto_currency, rate_used,
	deadline, status, proof_text, proof_image_ref,
	submitted_at, resolved_at, created_at, updated_at`

// Create inserts an active task for a child of CreatedByParentID.
func (s *TaskStore) Create(ctx context.Context, nt model.NewTask) (*model.Task, error) {
	nt.Description = strings.TrimSpace(nt.Description)
	if nt.Description == "" {
		return nil, errs.Validation("create task", "description is required")
	}
	if err := task.ValidateReward(nt.RewardFiat); err != nil {
		return nil, err
	}
	if nt.RewardCrypto.IsNegative() {
		return nil, errs.Validation("create task", "crypto reward must be >= 0")
	}

	var role model.Role
	var parentID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT role, parent_id FROM accounts WHERE id = ?`, nt.OwnerChildID,
	).Scan(&role, &parentID)
	if err == sql.ErrNoRows || (err == nil && role != model.RoleChild) {
		return nil, errs.Validation("create task", "owner %q is not a child account", nt.OwnerChildID)
	}
	if err != nil {
		return nil, fmt.Errorf("look up owner: %w", err)
	}
	if parentID.String != nt.CreatedByParentID {
		return nil, errs.Validation("create task", "child %q does not belong to parent %q", nt.OwnerChildID, nt.CreatedByParentID)
	}

	ts := now()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (owner_child_id, created_by_parent_id, description,
			reward_fiat, reward_crypto, fiat_currency, crypto_currency, rate_used,
			deadline, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nt.OwnerChildID, nt.CreatedByParentID, nt.Description,
		nt.RewardFiat, nt.RewardCrypto, nt.FiatCurrency, nt.CryptoCurrency, nt.RateUsed,
		nullTime(nt.Deadline), model.TaskActive, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	s.changes.publish(nt.OwnerChildID)
	return s.Get(ctx, id)
}

func (s *TaskStore) Get(ctx context.Context, id int64) (*model.Task, error) {
	return getTask(ctx, s.db, id)
}

func getTask(ctx context.Context, q querier, id int64) (*model.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("get task", "task %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// Edit replaces the description, reward and deadline of an active task.
func (s *TaskStore) Edit(ctx context.Context, id int64, e model.TaskEdit) (*model.Task, error) {
	e.Description = strings.TrimSpace(e.Description)
	if e.Description == "" {
		return nil, errs.Validation("edit task", "description is required")
	}
	if err := task.ValidateReward(e.RewardFiat); err != nil {
		return nil, err
	}

	var childID string
	err := s.db.QueryRowContext(ctx,
		`UPDATE tasks SET description = ?, reward_fiat = ?, reward_crypto = ?, rate_used = ?,
			deadline = ?, updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING owner_child_id`,
		e.Description, e.RewardFiat, e.RewardCrypto, e.RateUsed,
		nullTime(e.Deadline), now(), id, model.TaskActive,
	).Scan(&childID)
	if err == sql.ErrNoRows {
		return nil, explainStatus(ctx, s.db, "edit task", id, model.TaskActive)
	}
	if err != nil {
		return nil, fmt.Errorf("edit task: %w", err)
	}

	s.changes.publish(childID)
	return s.Get(ctx, id)
}

// Submit moves an active task to waiting_for_review, storing the proof and the
// crypto reward recomputed at the submission rate.
func (s *TaskStore) Submit(ctx context.Context, id int64, proof *model.Proof, rewardCrypto, rate decimal.Decimal) error {
	var text, image sql.NullString
	if proof != nil {
		text = nullString(strings.TrimSpace(proof.Text))
		image = nullString(strings.TrimSpace(proof.ImageRef))
	}

	ts := now()
	var childID string
	err := s.db.QueryRowContext(ctx,
		`UPDATE tasks SET status = ?, proof_text = ?, proof_image_ref = ?,
			reward_crypto = ?, rate_used = ?, submitted_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING owner_child_id`,
		model.TaskWaitingForReview, text, image, rewardCrypto, rate, ts, ts,
		id, model.TaskActive,
	).Scan(&childID)
	if err == sql.ErrNoRows {
		return explainStatus(ctx, s.db, "submit task", id, model.TaskActive)
	}
	if err != nil {
		return fmt.Errorf("submit task: %w", err)
	}

	s.changes.publish(childID)
	return nil
}

// Approve marks a reviewed task completed without touching the ledger. The
// settlement engine completes tasks through SettlementStore.Finalize instead.
func (s *TaskStore) Approve(ctx context.Context, id int64) error {
	childID, err := transition(ctx, s.db, "approve task", id, model.TaskWaitingForReview, model.TaskCompleted)
	if err != nil {
		return err
	}
	s.changes.publish(childID)
	return nil
}

// Reject fails a reviewed task. It refuses while a settlement for the task is
// in flight or done, so a paid task can never end up failed.
func (s *TaskStore) Reject(ctx context.Context, id int64) error {
	ts := now()
	var childID string
	err := s.db.QueryRowContext(ctx,
		`UPDATE tasks SET status = ?, resolved_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
		  AND NOT EXISTS (
			SELECT 1 FROM settlement_intents
			WHERE task_id = tasks.id AND state IN ('pending', 'paid', 'settled'))
		RETURNING owner_child_id`,
		model.TaskFailed, ts, ts, id, model.TaskWaitingForReview,
	).Scan(&childID)
	if err == sql.ErrNoRows {
		return explainStatus(ctx, s.db, "reject task", id, model.TaskWaitingForReview)
	}
	if err != nil {
		return fmt.Errorf("reject task: %w", err)
	}

	s.changes.publish(childID)
	return nil
}

// transition applies from -> to if the task is still in from and returns the
// owning child id.
func transition(ctx context.Context, q querier, op string, id int64, from, to model.TaskStatus) (string, error) {
	if !task.CanTransition(from, to) {
		return "", errs.State(op, "transition %s -> %s is not allowed", from, to)
	}

	ts := now()
	var resolvedAt sql.NullTime
	if task.IsTerminal(to) {
		resolvedAt = sql.NullTime{Time: ts, Valid: true}
	}

	var childID string
	err := q.QueryRowContext(ctx,
		`UPDATE tasks SET status = ?, resolved_at = COALESCE(?, resolved_at), updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING owner_child_id`,
		to, resolvedAt, ts, id, from,
	).Scan(&childID)
	if err == sql.ErrNoRows {
		return "", explainStatus(ctx, q, op, id, from)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return childID, nil
}

// explainStatus turns a zero-row conditional update into NotFound or State.
func explainStatus(ctx context.Context, q querier, op string, id int64, want model.TaskStatus) error {
	var status model.TaskStatus
	err := q.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return errs.NotFound(op, "task %d", id)
	}
	if err != nil {
		return fmt.Errorf("%s: read status: %w", op, err)
	}
	if status != want {
		return errs.State(op, "task %d is %s, want %s", id, status, want)
	}

	var state model.IntentState
	err = q.QueryRowContext(ctx, `SELECT state FROM settlement_intents WHERE task_id = ?`, id).Scan(&state)
	if err == nil && state != model.IntentFailed {
		return errs.State(op, "task %d has a %s settlement", id, state)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: read settlement: %w", op, err)
	}
	return errs.State(op, "task %d changed concurrently", id)
}

// ListByChild returns all of a child's tasks, newest first.
func (s *TaskStore) ListByChild(ctx context.Context, childID string) ([]model.Task, error) {
	return s.list(ctx, `WHERE owner_child_id = ?`, childID)
}

func (s *TaskStore) ListByStatus(ctx context.Context, childID string, status model.TaskStatus) ([]model.Task, error) {
	if !task.Valid(status) {
		return nil, errs.Validation("list tasks", "unknown status %q", status)
	}
	return s.list(ctx, `WHERE owner_child_id = ? AND status = ?`, childID, status)
}

func (s *TaskStore) list(ctx context.Context, where string, args ...any) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Watch returns a lazy feed of a child's task list. Each range over it yields
// the current snapshot, then a fresh snapshot after every change, until ctx
// is done, the consumer stops, or a read fails.
func (s *TaskStore) Watch(ctx context.Context, childID string) iter.Seq2[[]model.Task, error] {
	return func(yield func([]model.Task, error) bool) {
		signal, cancel := s.changes.subscribe(childID)
		defer cancel()

		for {
			tasks, err := s.ListByChild(ctx, childID)
			if !yield(tasks, err) || err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-signal:
			}
		}
	}
}
