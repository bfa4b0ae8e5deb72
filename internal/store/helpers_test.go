package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/taskpay/internal/database"
	"github.com/dukerupert/taskpay/internal/model"
)

const childWallet = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

type testStores struct {
	db          *sql.DB
	accounts    *AccountStore
	tasks       *TaskStore
	ledger      *LedgerStore
	settlements *SettlementStore
}

func setupTestDB(t *testing.T) *testStores {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tasks := NewTaskStore(db)
	return &testStores{
		db:          db,
		accounts:    NewAccountStore(db),
		tasks:       tasks,
		ledger:      NewLedgerStore(db),
		settlements: NewSettlementStore(db, tasks),
	}
}

// seedFamily creates parent p1 with child c1 (wallet set) and child c2 (no wallet).
func seedFamily(t *testing.T, s *testStores) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.accounts.Create(ctx, "p1", "Parent", model.RoleParent, ""); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	if _, err := s.accounts.Create(ctx, "c1", "Ona", model.RoleChild, "p1"); err != nil {
		t.Fatalf("create child: %v", err)
	}
	if _, err := s.accounts.Create(ctx, "c2", "Jonas", model.RoleChild, "p1"); err != nil {
		t.Fatalf("create child: %v", err)
	}
	if _, err := s.accounts.SetWallet(ctx, "c1", childWallet); err != nil {
		t.Fatalf("set wallet: %v", err)
	}
}

func newTask(child, description, fiat string) model.NewTask {
	return model.NewTask{
		OwnerChildID:      child,
		CreatedByParentID: "p1",
		Description:       description,
		RewardFiat:        decimal.RequireFromString(fiat),
		RewardCrypto:      decimal.RequireFromString(fiat).DivRound(decimal.NewFromInt(3200), 6),
		FiatCurrency:      "EUR",
		CryptoCurrency:    "ETH",
		RateUsed:          decimal.NewFromInt(3200),
	}
}

func createTask(t *testing.T, s *testStores, child, description, fiat string) *model.Task {
	t.Helper()
	task, err := s.tasks.Create(context.Background(), newTask(child, description, fiat))
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func submittedTask(t *testing.T, s *testStores, description, fiat string) *model.Task {
	t.Helper()
	task := createTask(t, s, "c1", description, fiat)
	err := s.tasks.Submit(context.Background(), task.ID, &model.Proof{Text: "done"}, task.RewardCrypto, task.RateUsed)
	if err != nil {
		t.Fatalf("submit task: %v", err)
	}
	return task
}
