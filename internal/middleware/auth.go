package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dukerupert/taskpay/internal/auth"
	"github.com/dukerupert/taskpay/internal/errs"
	"github.com/dukerupert/taskpay/internal/model"
)

// UserHeader carries the acting user id set by the upstream auth proxy.
const UserHeader = "X-User-ID"

type RoleLookup interface {
	GetRole(ctx context.Context, userID string) (model.Role, error)
}

// RequireUser resolves the acting user from UserHeader and populates
// AuthContext. Requests without the header get 401, unknown users 403.
func RequireUser(dir RoleLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(UserHeader))
			if userID == "" {
				writeError(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
				return
			}

			role, err := dir.GetRole(r.Context(), userID)
			if errors.Is(err, errs.ErrNotFound) {
				writeError(w, http.StatusForbidden, "unknown user")
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to resolve user")
				return
			}

			noteActor(r.Context(), userID, role)
			ctx := auth.WithAuth(r.Context(), auth.AuthContext{UserID: userID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireParent rejects requests whose acting user is not a parent.
func RequireParent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsParent(r.Context()) {
			writeError(w, http.StatusForbidden, "parent role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
