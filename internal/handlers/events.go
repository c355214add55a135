package handlers

import (
	"Kladovka/internal/broadcast"
	"Kladovka/internal/config"
	"Kladovka/internal/service"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// EventsHandler — SSE-поток событий workspace-а. Токена возобновления нет:
// пропущенное за время разрыва добирается дельта-синхронизацией.
type EventsHandler struct {
	Workspaces *service.WorkspaceService
	Bus        *broadcast.Broadcaster
	Logger     *zap.SugaredLogger
	Heartbeat  time.Duration
}

func NewEventsHandler(ws *service.WorkspaceService, bus *broadcast.Broadcaster, logger *zap.SugaredLogger, cfg *config.Config) *EventsHandler {
	return &EventsHandler{Workspaces: ws, Bus: bus, Logger: logger, Heartbeat: cfg.SSEHeartbeat}
}

// Stream держит соединение открытым и пишет события по одному JSON-объекту
// на строку data:. Отписка от брокастера привязана к закрытию соединения.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	workspaceID := chi.URLParam(r, "workspaceID")
	if _, err := h.Workspaces.MemberRole(r.Context(), userID, workspaceID); err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, unsubscribe := h.Bus.Subscribe(workspaceID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.Logger.Infow("sse subscribed", "workspace_id", workspaceID, "user_id", userID)

	ticker := time.NewTicker(h.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.Logger.Infow("sse disconnected", "workspace_id", workspaceID, "user_id", userID)
			return
		case <-ticker.C:
			// комментарий-heartbeat удерживает соединение через прокси
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
