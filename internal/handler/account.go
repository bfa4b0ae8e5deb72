package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/taskpay/internal/auth"
	"github.com/dukerupert/taskpay/internal/errs"
	"github.com/dukerupert/taskpay/internal/middleware"
	"github.com/dukerupert/taskpay/internal/model"
	"github.com/dukerupert/taskpay/internal/store"
)

type AccountHandler struct {
	accounts *store.AccountStore
	logger   *slog.Logger
}

func NewAccountHandler(accounts *store.AccountStore, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

type accountRequest struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Role     model.Role `json:"role"`
	ParentID string     `json:"parent_id"`
}

// Create registers an account. Parents may sign up on their own; a child can
// only be added by the parent named in parent_id.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	if req.Role == model.RoleChild {
		acting := strings.TrimSpace(r.Header.Get(middleware.UserHeader))
		if acting == "" || acting != req.ParentID {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "only the parent can add a child"})
			return
		}
	}

	account, err := h.accounts.Create(r.Context(), req.ID, req.Name, req.Role, req.ParentID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("account created", "account_id", account.ID, "role", account.Role)
	writeJSON(w, http.StatusCreated, account)
}

// Get returns an account to itself, to its parent, or to one of its children.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.visible(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *AccountHandler) SetWallet(w http.ResponseWriter, r *http.Request) {
	account, err := h.editable(r, "set wallet")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req struct {
		WalletAddress string `json:"wallet_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	updated, err := h.accounts.SetWallet(r.Context(), account.ID, req.WalletAddress)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("wallet address updated", "account_id", updated.ID, "wallet", updated.WalletAddress)
	writeJSON(w, http.StatusOK, updated)
}

// Update changes an account's name and/or wallet address. Omitted fields
// keep their current value.
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	account, err := h.editable(r, "update account")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req model.AccountUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	updated, err := h.accounts.Update(r.Context(), account.ID, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("account updated",
		"account_id", updated.ID,
		"name_changed", req.Name != nil,
		"wallet_changed", req.WalletAddress != nil,
	)
	writeJSON(w, http.StatusOK, updated)
}

// editable resolves the path account and checks that the acting user is the
// account itself or its parent.
func (h *AccountHandler) editable(r *http.Request, op string) (*model.Account, error) {
	account, err := h.visible(r)
	if err != nil {
		return nil, err
	}
	acting := auth.UserID(r.Context())
	if acting != account.ID && acting != account.ParentID {
		return nil, errs.Auth(op, "%q may not change account %q", acting, account.ID)
	}
	return account, nil
}

// ListChildren returns the acting parent's children.
func (h *AccountHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.accounts.ListChildren(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if children == nil {
		children = []model.Account{}
	}
	writeJSON(w, http.StatusOK, children)
}

func (h *AccountHandler) visible(r *http.Request) (*model.Account, error) {
	id := r.PathValue("id")
	account, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}

	acting := auth.UserID(r.Context())
	if acting == account.ID || acting == account.ParentID {
		return account, nil
	}
	if account.Role == model.RoleParent {
		caller, err := h.accounts.Get(r.Context(), acting)
		if err == nil && caller.ParentID == account.ID {
			return account, nil
		}
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
	}
	return nil, errs.Auth("get account", "%q may not view %q", acting, id)
}

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a classified error to its status. Unclassified errors are
// logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := errs.HTTPStatus(err)
	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed", "error", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	case http.StatusBadGateway:
		logger.Warn("wallet gateway failure", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
