// Package settlement approves and rejects reviewed tasks. Approval pays the
// child through the wallet gateway and records the payment in the balance
// history, at most once per task.
//
// An approval moves a settlement intent through pending -> paid -> settled.
// The claim that creates the pending intent is the single point where
// concurrent approvals are serialized; the paid state makes a successful
// payment durable before the ledger is touched, so a crash between the two
// is repaired by Resume rather than by paying again.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/taskpay/internal/errs"
	"github.com/dukerupert/taskpay/internal/metrics"
	"github.com/dukerupert/taskpay/internal/model"
	"github.com/dukerupert/taskpay/internal/wallet"
)

type Tasks interface {
	Get(ctx context.Context, id int64) (*model.Task, error)
	Reject(ctx context.Context, id int64) error
}

type Intents interface {
	Claim(ctx context.Context, taskID int64, parentID, toAddress string) (*model.SettlementIntent, error)
	MarkFailed(ctx context.Context, id, reason string) error
	MarkPaid(ctx context.Context, id, receiptID string, amountCrypto decimal.Decimal) error
	Finalize(ctx context.Context, id string, at time.Time) (*model.BalanceHistoryEntry, error)
	Get(ctx context.Context, id string) (*model.SettlementIntent, error)
	ListByState(ctx context.Context, state model.IntentState) ([]model.SettlementIntent, error)
}

type Directory interface {
	GetRole(ctx context.Context, userID string) (model.Role, error)
	GetWallet(ctx context.Context, userID string) (string, error)
	GetParentOf(ctx context.Context, childID string) (string, error)
}

type Config struct {
	// PaymentTimeout bounds a single gateway Pay call.
	PaymentTimeout time.Duration
	// StaleAfter is how long an intent may stay pending before Resume reports it.
	StaleAfter time.Duration
	Currency   string
	Asset      string
}

type Engine struct {
	tasks   Tasks
	intents Intents
	dir     Directory
	gateway wallet.Gateway
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewEngine(tasks Tasks, intents Intents, dir Directory, gateway wallet.Gateway, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if cfg.PaymentTimeout == 0 {
		cfg.PaymentTimeout = 30 * time.Second
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		tasks:   tasks,
		intents: intents,
		dir:     dir,
		gateway: gateway,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("component", "settlement"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Approve pays the child for a task waiting for review and returns the new
// balance history entry. A payment failure leaves the task waiting for
// review with no ledger entry; the parent may approve again later.
func (e *Engine) Approve(ctx context.Context, taskID int64, actingUserID string) (*model.BalanceHistoryEntry, error) {
	const op = "approve task"

	t, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, op, actingUserID, t.OwnerChildID); err != nil {
		return nil, err
	}
	if t.Status != model.TaskWaitingForReview {
		e.conflict(ctx, op, taskID, t.Status)
		return nil, errs.State(op, "task %d is %s", taskID, t.Status)
	}

	stored, err := e.dir.GetWallet(ctx, t.OwnerChildID)
	if err != nil {
		return nil, err
	}
	if stored == "" {
		return nil, errs.Validation(op, "child %q has no wallet address", t.OwnerChildID)
	}
	address, err := wallet.ValidateAddress(stored)
	if err != nil {
		return nil, err
	}

	intent, err := e.intents.Claim(ctx, taskID, actingUserID, address)
	if errors.Is(err, errs.ErrState) {
		e.metrics.Settlement(metrics.OutcomeConflict)
		e.logger.DebugContext(ctx, "approval lost claim", "task_id", taskID, "error", err)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	log := e.logger.With("task_id", taskID, "intent_id", intent.ID, "child_id", t.OwnerChildID)

	receipt, err := e.pay(ctx, intent)
	// The outcome must be recorded even if the caller has gone away.
	bg := context.WithoutCancel(ctx)
	if err != nil {
		reason := failureReason(err)
		if ferr := e.intents.MarkFailed(bg, intent.ID, reason); ferr != nil {
			log.ErrorContext(ctx, "mark intent failed", "error", ferr)
		}
		e.metrics.Settlement(metrics.OutcomePaymentFailed)
		log.WarnContext(ctx, "payment failed", "reason", reason, "error", err)
		if !errors.Is(err, errs.ErrWallet) {
			err = errs.Wallet(op, err)
		}
		return nil, err
	}

	if err := e.intents.MarkPaid(bg, intent.ID, receipt.ID, receipt.Amount); err != nil {
		e.metrics.Settlement(metrics.OutcomeFinalizeFailed)
		log.ErrorContext(ctx, "payment sent but not recorded", "receipt_id", receipt.ID, "error", err)
		return nil, fmt.Errorf("%s %d: payment %s sent but not recorded: %w", op, taskID, receipt.ID, err)
	}

	entry, err := e.intents.Finalize(bg, intent.ID, e.now())
	if err != nil {
		e.metrics.Settlement(metrics.OutcomeFinalizeFailed)
		log.ErrorContext(ctx, "finalize settlement", "receipt_id", receipt.ID, "error", err)
		return nil, fmt.Errorf("%s %d: payment %s sent, settlement pending: %w", op, taskID, receipt.ID, err)
	}

	e.metrics.Settlement(metrics.OutcomeSettled)
	log.InfoContext(ctx, "task settled",
		"receipt_id", receipt.ID,
		"reward_fiat", entry.RewardFiat,
		"reward_crypto", entry.RewardCrypto,
	)
	return entry, nil
}

func (e *Engine) pay(ctx context.Context, intent *model.SettlementIntent) (*wallet.Receipt, error) {
	payCtx, cancel := context.WithTimeout(ctx, e.cfg.PaymentTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := e.gateway.Pay(payCtx, wallet.PayRequest{
		ToAddress:      intent.ToAddress,
		AmountFiat:     intent.AmountFiat,
		Currency:       e.cfg.Currency,
		Asset:          e.cfg.Asset,
		IdempotencyKey: intent.ID,
	})
	e.metrics.ObservePayment(time.Since(start), err == nil)

	if err == nil && receipt == nil {
		err = &wallet.PaymentError{Reason: wallet.ReasonRejected, Detail: "gateway returned no receipt"}
	}
	if err != nil && errors.Is(payCtx.Err(), context.DeadlineExceeded) {
		var pe *wallet.PaymentError
		if !errors.As(err, &pe) {
			err = &wallet.PaymentError{Reason: wallet.ReasonTimeout, Detail: err.Error()}
		}
	}
	return receipt, err
}

func failureReason(err error) string {
	var pe *wallet.PaymentError
	if errors.As(err, &pe) && pe.Reason != "" {
		return pe.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wallet.ReasonTimeout
	}
	return "error"
}

// Reject fails a task waiting for review. It never pays and never writes
// to the balance history.
func (e *Engine) Reject(ctx context.Context, taskID int64, actingUserID string) error {
	const op = "reject task"

	t, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if err := e.authorize(ctx, op, actingUserID, t.OwnerChildID); err != nil {
		return err
	}
	if t.Status != model.TaskWaitingForReview {
		e.conflict(ctx, op, taskID, t.Status)
		return errs.State(op, "task %d is %s", taskID, t.Status)
	}

	if err := e.tasks.Reject(ctx, taskID); err != nil {
		if errors.Is(err, errs.ErrState) {
			e.metrics.Settlement(metrics.OutcomeConflict)
			e.logger.DebugContext(ctx, "rejection lost race", "task_id", taskID, "error", err)
		}
		return err
	}

	e.metrics.Settlement(metrics.OutcomeRejected)
	e.logger.InfoContext(ctx, "task rejected", "task_id", taskID, "child_id", t.OwnerChildID)
	return nil
}

// Balance returns the on-chain balance of a child's wallet. The child and
// its parent may ask.
func (e *Engine) Balance(ctx context.Context, actingUserID, childID string) (decimal.Decimal, error) {
	const op = "wallet balance"

	if actingUserID != childID {
		if err := e.authorize(ctx, op, actingUserID, childID); err != nil {
			return decimal.Zero, err
		}
	}
	address, err := e.dir.GetWallet(ctx, childID)
	if err != nil {
		return decimal.Zero, err
	}
	if address == "" {
		return decimal.Zero, errs.Validation(op, "child %q has no wallet address", childID)
	}
	return e.gateway.GetBalance(ctx, address)
}

// authorize requires actingUserID to be the parent of childID.
func (e *Engine) authorize(ctx context.Context, op, actingUserID, childID string) error {
	role, err := e.dir.GetRole(ctx, actingUserID)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.Auth(op, "unknown user %q", actingUserID)
	}
	if err != nil {
		return err
	}
	if role != model.RoleParent {
		return errs.Auth(op, "%q is not a parent", actingUserID)
	}

	parentID, err := e.dir.GetParentOf(ctx, childID)
	if err != nil {
		return err
	}
	if parentID != actingUserID {
		return errs.Auth(op, "%q is not the parent of %q", actingUserID, childID)
	}
	return nil
}

// conflict records an expected lost race or repeated click. These are
// routine and stay out of the error log.
func (e *Engine) conflict(ctx context.Context, op string, taskID int64, status model.TaskStatus) {
	e.metrics.Settlement(metrics.OutcomeConflict)
	e.logger.DebugContext(ctx, "task not reviewable", "op", op, "task_id", taskID, "status", status)
}
