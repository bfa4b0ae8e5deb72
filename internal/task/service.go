package task

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/taskpay/internal/errs"
	"github.com/dukerupert/taskpay/internal/model"
)

// Store is the task persistence the service drives.
type Store interface {
	Create(ctx context.Context, nt model.NewTask) (*model.Task, error)
	Get(ctx context.Context, id int64) (*model.Task, error)
	Edit(ctx context.Context, id int64, e model.TaskEdit) (*model.Task, error)
	Submit(ctx context.Context, id int64, proof *model.Proof, rewardCrypto, rate decimal.Decimal) error
	ListByChild(ctx context.Context, childID string) ([]model.Task, error)
	ListByStatus(ctx context.Context, childID string, status model.TaskStatus) ([]model.Task, error)
}

// Directory answers who is who.
type Directory interface {
	GetRole(ctx context.Context, userID string) (model.Role, error)
	GetParentOf(ctx context.Context, childID string) (string, error)
}

type RateProvider interface {
	Current(ctx context.Context) model.Rate
}

type Config struct {
	FiatCurrency   string
	CryptoCurrency string
}

// Input is what a parent supplies when creating or editing a task.
type Input struct {
	ChildID     string          `json:"child_id"`
	Description string          `json:"description"`
	RewardFiat  decimal.Decimal `json:"reward_fiat"`
	Deadline    *time.Time      `json:"deadline"`
}

// Service applies the parent and child side of the task lifecycle. Approval
// and rejection belong to the settlement engine.
type Service struct {
	tasks  Store
	dir    Directory
	rates  RateProvider
	cfg    Config
	logger *slog.Logger
}

func NewService(tasks Store, dir Directory, rates RateProvider, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tasks:  tasks,
		dir:    dir,
		rates:  rates,
		cfg:    cfg,
		logger: logger.With("component", "tasks"),
	}
}

// Create assigns a new task to one of the parent's children, pricing the
// reward in crypto at the current rate.
func (s *Service) Create(ctx context.Context, parentID string, in Input) (*model.Task, error) {
	if err := s.requireParentOf(ctx, "create task", parentID, in.ChildID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, errs.Validation("create task", "description is required")
	}
	if err := ValidateReward(in.RewardFiat); err != nil {
		return nil, err
	}

	rate := s.rates.Current(ctx)
	crypto, err := Convert(in.RewardFiat, rate.Value)
	if err != nil {
		return nil, err
	}

	t, err := s.tasks.Create(ctx, model.NewTask{
		OwnerChildID:      in.ChildID,
		CreatedByParentID: parentID,
		Description:       in.Description,
		RewardFiat:        in.RewardFiat,
		RewardCrypto:      crypto,
		FiatCurrency:      s.cfg.FiatCurrency,
		CryptoCurrency:    s.cfg.CryptoCurrency,
		RateUsed:          rate.Value,
		Deadline:          in.Deadline,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("task created", "task_id", t.ID, "child_id", t.OwnerChildID, "reward_fiat", t.RewardFiat, "stale_rate", rate.Stale)
	return t, nil
}

// Edit changes an active task. Only the owning child's parent may edit.
func (s *Service) Edit(ctx context.Context, parentID string, taskID int64, in Input) (*model.Task, error) {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParentOf(ctx, "edit task", parentID, t.OwnerChildID); err != nil {
		return nil, err
	}
	if !Editable(t.Status) {
		return nil, errs.State("edit task", "task %d is %s", t.ID, t.Status)
	}
	if err := ValidateReward(in.RewardFiat); err != nil {
		return nil, err
	}

	rate := s.rates.Current(ctx)
	crypto, err := Convert(in.RewardFiat, rate.Value)
	if err != nil {
		return nil, err
	}

	return s.tasks.Edit(ctx, taskID, model.TaskEdit{
		Description:  in.Description,
		RewardFiat:   in.RewardFiat,
		RewardCrypto: crypto,
		RateUsed:     rate.Value,
		Deadline:     in.Deadline,
	})
}

// Submit hands an active task in for review. The crypto reward is repriced
// at the submission rate and frozen from then on.
func (s *Service) Submit(ctx context.Context, childID string, taskID int64, proof *model.Proof) (*model.Task, error) {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.OwnerChildID != childID {
		return nil, errs.Auth("submit task", "task %d does not belong to %q", taskID, childID)
	}

	rate := s.rates.Current(ctx)
	crypto, err := Convert(t.RewardFiat, rate.Value)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.Submit(ctx, taskID, proof, crypto, rate.Value); err != nil {
		return nil, err
	}

	s.logger.Info("task submitted", "task_id", taskID, "child_id", childID, "reward_crypto", crypto)
	return s.tasks.Get(ctx, taskID)
}

// Get returns a task visible to the acting user: the owning child or its parent.
func (s *Service) Get(ctx context.Context, actingID string, taskID int64) (*model.Task, error) {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireViewer(ctx, "get task", actingID, t.OwnerChildID); err != nil {
		return nil, err
	}
	return t, nil
}

// List returns a child's tasks, optionally filtered by status.
func (s *Service) List(ctx context.Context, actingID, childID string, status model.TaskStatus) ([]model.Task, error) {
	if err := s.requireViewer(ctx, "list tasks", actingID, childID); err != nil {
		return nil, err
	}
	if status == "" {
		return s.tasks.ListByChild(ctx, childID)
	}
	return s.tasks.ListByStatus(ctx, childID, status)
}

// CanView reports nil when actingID may see childID's tasks.
func (s *Service) CanView(ctx context.Context, actingID, childID string) error {
	return s.requireViewer(ctx, "view tasks", actingID, childID)
}

func (s *Service) requireParentOf(ctx context.Context, op, parentID, childID string) error {
	role, err := s.dir.GetRole(ctx, parentID)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.Auth(op, "unknown user %q", parentID)
	}
	if err != nil {
		return err
	}
	if role != model.RoleParent {
		return errs.Auth(op, "%q is not a parent", parentID)
	}

	owner, err := s.dir.GetParentOf(ctx, childID)
	if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrValidation) {
		return errs.Validation(op, "%q is not a child account", childID)
	}
	if err != nil {
		return err
	}
	if owner != parentID {
		return errs.Auth(op, "%q is not the parent of %q", parentID, childID)
	}
	return nil
}

func (s *Service) requireViewer(ctx context.Context, op, actingID, childID string) error {
	if actingID == childID {
		return nil
	}
	owner, err := s.dir.GetParentOf(ctx, childID)
	if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrValidation) {
		return errs.NotFound(op, "child %q", childID)
	}
	if err != nil {
		return err
	}
	if owner != actingID {
		return errs.Auth(op, "%q may not view tasks of %q", actingID, childID)
	}
	return nil
}
