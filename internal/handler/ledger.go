package handler

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/taskpay/internal/auth"
	"github.com/dukerupert/taskpay/internal/model"
	"github.com/dukerupert/taskpay/internal/settlement"
	"github.com/dukerupert/taskpay/internal/store"
	"github.com/dukerupert/taskpay/internal/task"
	"github.com/dukerupert/taskpay/internal/wallet"
)

type LedgerHandler struct {
	ledger   *store.LedgerStore
	accounts *store.AccountStore
	tasks    *task.Service
	engine   *settlement.Engine
	rates    *wallet.RateCache
	logger   *slog.Logger
}

func NewLedgerHandler(ledger *store.LedgerStore, accounts *store.AccountStore, tasks *task.Service, engine *settlement.Engine, rates *wallet.RateCache, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, accounts: accounts, tasks: tasks, engine: engine, rates: rates, logger: logger}
}

type ledgerResponse struct {
	Entries []model.BalanceHistoryEntry `json:"entries"`
	Totals  *model.LedgerTotals         `json:"totals"`
}

// History returns a child's balance history newest first with running totals.
func (h *LedgerHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	childID := r.PathValue("id")

	if err := h.tasks.CanView(ctx, auth.UserID(ctx), childID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	parentID, err := h.accounts.GetParentOf(ctx, childID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	entries, err := h.ledger.ListForDisplay(ctx, parentID, childID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []model.BalanceHistoryEntry{}
	}
	totals, err := h.ledger.Totals(ctx, childID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ledgerResponse{Entries: entries, Totals: totals})
}

// Balance reports the live balance of a child's wallet.
func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	childID := r.PathValue("id")

	balance, err := h.engine.Balance(ctx, auth.UserID(ctx), childID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"child_id": childID,
		"balance":  balance,
	})
}

// Rate returns the exchange rate rewards are currently converted at.
func (h *LedgerHandler) Rate(w http.ResponseWriter, r *http.Request) {
	rate := h.rates.Current(r.Context())
	if !rate.Value.IsPositive() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no exchange rate available"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rate":       rate,
		"one_crypto": rate.Value,
		"one_fiat":   decimal.NewFromInt(1).DivRound(rate.Value, 6),
	})
}
