package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/taskpay/internal/auth"
	"github.com/dukerupert/taskpay/internal/errs"
)

// Viewer decides whether the acting user may follow a child's tasks.
type Viewer interface {
	CanView(ctx context.Context, actingID, childID string) error
}

// HandleTaskFeed upgrades GET /ws/children/{id}/tasks and streams that
// child's task snapshots. Authorization is checked before the upgrade so
// failures are plain HTTP errors.
func HandleTaskFeed(hub *Hub, watcher Watcher, viewer Viewer, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		childID := r.PathValue("id")
		if err := viewer.CanView(r.Context(), auth.UserID(r.Context()), childID); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(errs.HTTPStatus(err))
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		client := NewClient(hub, conn, childID)
		if err := client.Run(r.Context(), watcher); err != nil {
			logger.Error("task feed", "child_id", childID, "error", err)
			conn.Close(ws.StatusInternalError, "task feed failed")
			return
		}
		conn.Close(ws.StatusNormalClosure, "")
	}
}
