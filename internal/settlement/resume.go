package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/taskpay/internal/errs"
	"github.com/dukerupert/taskpay/internal/metrics"
	"github.com/dukerupert/taskpay/internal/model"
)

// ResumeReport summarizes one reconcile pass.
type ResumeReport struct {
	Finalized    int
	Failed       int
	StalePending []model.SettlementIntent
}

// Resume finalizes every intent whose payment succeeded but whose ledger
// entry and task completion were never committed. It also reports pending
// intents older than StaleAfter: their payment outcome is unknown and they
// need an operator to check the gateway and Release them.
func (e *Engine) Resume(ctx context.Context) (*ResumeReport, error) {
	paid, err := e.intents.ListByState(ctx, model.IntentPaid)
	if err != nil {
		return nil, fmt.Errorf("list paid intents: %w", err)
	}

	report := &ResumeReport{}
	var errList []error
	for _, in := range paid {
		if _, err := e.intents.Finalize(ctx, in.ID, e.now()); err != nil {
			report.Failed++
			errList = append(errList, fmt.Errorf("finalize intent %s: %w", in.ID, err))
			e.logger.ErrorContext(ctx, "resume finalize", "intent_id", in.ID, "task_id", in.TaskID, "error", err)
			continue
		}
		report.Finalized++
		e.metrics.Settlement(metrics.OutcomeResumed)
		e.logger.InfoContext(ctx, "settlement resumed", "intent_id", in.ID, "task_id", in.TaskID, "receipt_id", in.ReceiptID)
	}

	pending, err := e.intents.ListByState(ctx, model.IntentPending)
	if err != nil {
		errList = append(errList, fmt.Errorf("list pending intents: %w", err))
	}
	cutoff := e.now().Add(-e.cfg.StaleAfter)
	for _, in := range pending {
		if in.UpdatedAt.Before(cutoff) {
			report.StalePending = append(report.StalePending, in)
			e.logger.WarnContext(ctx, "stale pending settlement", "intent_id", in.ID, "task_id", in.TaskID, "since", in.UpdatedAt)
		}
	}
	e.metrics.SetStalePending(len(report.StalePending))

	return report, errors.Join(errList...)
}

// Release marks a stale pending intent failed so the task can be approved
// or rejected again. A later approval reuses the intent id as the
// idempotency key, so a payment that did go through is not repeated by a
// gateway that honours the key.
func (e *Engine) Release(ctx context.Context, intentID string) error {
	in, err := e.intents.Get(ctx, intentID)
	if err != nil {
		return err
	}
	if in.State != model.IntentPending {
		return errs.State("release intent", "intent %s is %s", intentID, in.State)
	}
	if in.UpdatedAt.After(e.now().Add(-e.cfg.StaleAfter)) {
		return errs.State("release intent", "intent %s is still in flight", intentID)
	}
	if err := e.intents.MarkFailed(ctx, intentID, "released"); err != nil {
		return err
	}
	e.logger.WarnContext(ctx, "settlement intent released", "intent_id", intentID, "task_id", in.TaskID)
	return nil
}

// Reconciler runs Resume on a cron schedule.
type Reconciler struct {
	engine *Engine
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

func NewReconciler(engine *Engine, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		engine: engine,
		cron:   cron.New(),
		logger: logger.With("component", "reconciler"),
	}
}

// Cron exposes the scheduler so other periodic jobs can share it.
func (r *Reconciler) Cron() *cron.Cron {
	return r.cron
}

// Start schedules the reconcile pass and starts the scheduler.
func (r *Reconciler) Start(spec string) error {
	if _, err := r.cron.AddFunc(spec, r.RunOnce); err != nil {
		return fmt.Errorf("schedule reconcile: %w", err)
	}
	r.cron.Start()
	r.logger.Info("reconciler started", "schedule", spec)
	return nil
}

// Stop waits for a running pass to finish.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce performs a single pass. Overlapping runs are skipped.
func (r *Reconciler) RunOnce() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Debug("reconcile already running, skipping")
		return
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := r.engine.Resume(ctx)
	if err != nil {
		r.logger.Error("reconcile pass", "error", err)
	}
	if report != nil && (report.Finalized > 0 || len(report.StalePending) > 0) {
		r.logger.Info("reconcile pass",
			"finalized", report.Finalized,
			"failed", report.Failed,
			"stale_pending", len(report.StalePending),
		)
	}
}
