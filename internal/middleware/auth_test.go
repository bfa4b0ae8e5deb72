package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/taskpay/internal/auth"
	"github.com/dukerupert/taskpay/internal/errs"
	"github.com/dukerupert/taskpay/internal/model"
)

type roles map[string]model.Role

func (m roles) GetRole(ctx context.Context, userID string) (model.Role, error) {
	role, ok := m[userID]
	if !ok {
		return "", errs.NotFound("get role", "account %q", userID)
	}
	return role, nil
}

var family = roles{"p1": model.RoleParent, "c1": model.RoleChild}

func TestRequireUserMissingHeader(t *testing.T) {
	handler := RequireUser(family)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireUserUnknown(t *testing.T) {
	handler := RequireUser(family)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(UserHeader, "stranger")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRequireUserPopulatesContext(t *testing.T) {
	var got auth.AuthContext
	handler := RequireUser(family)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			t.Fatal("expected AuthContext in request context")
		}
		got = ac
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(UserHeader, "c1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got.UserID != "c1" || got.Role != model.RoleChild {
		t.Errorf("AuthContext = %+v", got)
	}
}

func TestRequireParent(t *testing.T) {
	handler := RequireUser(family)(RequireParent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	for user, want := range map[string]int{"p1": http.StatusNoContent, "c1": http.StatusForbidden} {
		req := httptest.NewRequest("POST", "/", nil)
		req.Header.Set(UserHeader, user)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("%s: status = %d, want %d", user, rec.Code, want)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RequestLogger(logger)(RequireUser(family)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})))

	req := httptest.NewRequest("POST", "/api/tasks/1/approve", nil)
	req.Header.Set(UserHeader, "p1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"level=WARN", "status=409", "path=/api/tasks/1/approve", "user=p1", "role=parent"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestRequestLoggerOmitsUnresolvedUser(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RequestLogger(logger)(RequireUser(family)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	})))

	req := httptest.NewRequest("GET", "/api/tasks/1", nil)
	req.Header.Set(UserHeader, "mallory")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, "status=403") {
		t.Errorf("log %q missing status=403", out)
	}
	if strings.Contains(out, "user=") || strings.Contains(out, "mallory") {
		t.Errorf("log %q names an unresolved user", out)
	}
}
