package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/taskpay/internal/model"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// actor is filled in by RequireUser once the acting user is resolved. The
// request logger sits outside the mux and never sees the derived context,
// so it hands this slot down instead.
type actor struct {
	userID string
	role   model.Role
}

type actorKey struct{}

func noteActor(ctx context.Context, userID string, role model.Role) {
	if a, ok := ctx.Value(actorKey{}).(*actor); ok {
		a.userID, a.role = userID, role
	}
}

// RequestLogger logs one line per request at a level picked from the status
// code. The acting user and role are included only when RequireUser accepted
// them, so an unknown or spoofed header never shows up as a user.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			who := &actor{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), actorKey{}, who)))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", RealIP(r)),
			}
			if who.userID != "" {
				attrs = append(attrs, slog.String("user", who.userID), slog.String("role", string(who.role)))
			}

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "request", attrs...)
		})
	}
}
