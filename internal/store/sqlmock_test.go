package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/taskpay/internal/errs"
	"github.com/dukerupert/taskpay/internal/model"
)

var errDisk = errors.New("disk I/O error")

func TestAccountGetDriverErrorIsUnclassified(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE id = \?`).
		WithArgs("p1").
		WillReturnError(errDisk)

	_, err = NewAccountStore(db).Get(context.Background(), "p1")
	if !errors.Is(err, errDisk) {
		t.Fatalf("expected driver error to be wrapped, got %v", err)
	}
	if errs.KindOf(err) != nil {
		t.Errorf("driver failure classified as %v", errs.KindOf(err))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLedgerTotalsPropagatesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM balance_history WHERE child_id = \?`).
		WithArgs("c1").
		WillReturnError(errDisk)

	totals, err := NewLedgerStore(db).Totals(context.Background(), "c1")
	if !errors.Is(err, errDisk) || totals != nil {
		t.Fatalf("Totals = %v, %v; want driver error", totals, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLedgerAppendRejectsInvalidEntryWithoutQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	_, err = NewLedgerStore(db).Append(context.Background(), model.BalanceHistoryEntry{
		ChildID:    "c1",
		RewardFiat: decimal.NewFromInt(-1),
	})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	// No expectations were set, so any statement would have failed the test.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
