package handlers

import (
	"Kladovka/internal/repo"
	"Kladovka/internal/service"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SyncHandler — дельта-синхронизация.
type SyncHandler struct {
	Sync   *service.SyncService
	Logger *zap.SugaredLogger
}

func NewSyncHandler(s *service.SyncService, logger *zap.SugaredLogger) *SyncHandler {
	return &SyncHandler{Sync: s, Logger: logger}
}

// GetDelta обрабатывает
// GET /api/workspaces/{id}/sync/delta?modified_since&last_id&entity_types&limit.
// Битый modified_since трактуется как отсутствующий (полная синхронизация):
// клиент со сломанным курсором чинит себя сам, а не получает ошибку.
func (h *SyncHandler) GetDelta(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()

	var since *repo.SyncCursor
	if raw := q.Get("modified_since"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			since = &repo.SyncCursor{ModifiedAt: ts.UTC(), LastID: q.Get("last_id")}
		} else {
			h.Logger.Warnw("GetDelta: malformed cursor, falling back to full sync",
				"modified_since", raw, "error", err)
		}
	}

	var types []string
	if raw := q.Get("entity_types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	delta, err := h.Sync.GetDelta(r.Context(), service.DeltaRequest{
		UserID:      userID,
		WorkspaceID: chi.URLParam(r, "workspaceID"),
		Since:       since,
		EntityTypes: types,
		Limit:       limit,
	})
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, delta)
}
