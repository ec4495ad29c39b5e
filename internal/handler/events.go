package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/inflect/internal/middleware"
	"github.com/hitoshi/inflect/internal/model"
)

// eventBufferSize はクライアントへの送信待ちにできる通知の数。
const eventBufferSize = 16

// Events はログイン中ユーザーのセッション変更通知をServer-Sent Eventsで配信する。
// クライアントが切断すると購読を解除する。自セッションのサインアウトを配信したら終了する。
// GET /auth/events
func (h *AuthHandler) Events(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionMissingError())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.ErrorContext(r.Context(), "streaming not supported")
		middleware.WriteInternalServerError(w)
		return
	}

	changes := make(chan model.SessionChange, eventBufferSize)
	unsubscribe := h.service.OnAuthStateChange(func(change model.SessionChange) {
		if change.UserID != session.UserID {
			return
		}
		select {
		case changes <- change:
		default:
			slog.Warn("session change dropped: subscriber is slow",
				slog.String("user_id", session.UserID),
				slog.String("event", string(change.Event)),
			)
		}
	})
	defer unsubscribe()

	// サーバーのWriteTimeoutでストリームが切られないよう解除する
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case change := <-changes:
			data, err := json.Marshal(change)
			if err != nil {
				slog.Error("failed to encode session change", slog.String("error", err.Error()))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", change.Event, data)
			flusher.Flush()

			if change.Event == model.EventSignedOut && change.SessionID == session.ID {
				return
			}
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
