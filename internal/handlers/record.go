package handlers

import (
	"Kladovka/internal/model"
	"Kladovka/internal/service"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RecordHandler — мутации записей. Один вход для прямого и гейтированного
// путей: если политика требует ревью, ответ — 202 с PendingChange id.
type RecordHandler struct {
	Mutations *service.MutationService
	Logger    *zap.SugaredLogger
}

func NewRecordHandler(m *service.MutationService, logger *zap.SugaredLogger) *RecordHandler {
	return &RecordHandler{Mutations: m, Logger: logger}
}

type mutateRequest struct {
	ID             string          `json:"id,omitempty"` // клиентский uuid при CREATE
	Payload        json.RawMessage `json:"payload,omitempty"`
	BaseModifiedAt *time.Time      `json:"base_modified_at,omitempty"`
}

type recordResponse struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entity_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ModifiedAt time.Time       `json:"modified_at"`
	Deleted    bool            `json:"deleted"`
}

type pendingResponse struct {
	PendingChangeID string `json:"pending_change_id"`
	Status          string `json:"status"`
}

func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, model.ActionCreate, http.StatusCreated)
}

func (h *RecordHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, model.ActionUpdate, http.StatusOK)
}

func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, model.ActionDelete, http.StatusOK)
}

func (h *RecordHandler) mutate(w http.ResponseWriter, r *http.Request, action string, okStatus int) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	req := service.MutationRequest{
		WorkspaceID: chi.URLParam(r, "workspaceID"),
		EntityType:  chi.URLParam(r, "entityType"),
		Action:      action,
		RecordID:    chi.URLParam(r, "recordID"),
	}

	if action != model.ActionDelete {
		var body mutateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		req.Payload = []byte(body.Payload)
		req.BaseModifiedAt = body.BaseModifiedAt
		if action == model.ActionCreate && body.ID != "" {
			req.RecordID = body.ID
		}
	}

	res, err := h.Mutations.Apply(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}

	if res.Pending != nil {
		writeJSON(w, http.StatusAccepted, pendingResponse{
			PendingChangeID: res.Pending.ID,
			Status:          res.Pending.Status,
		})
		return
	}

	rec := res.Record
	writeJSON(w, okStatus, recordResponse{
		ID:         rec.ID,
		EntityType: rec.EntityType,
		Payload:    json.RawMessage(rec.Payload),
		ModifiedAt: rec.ModifiedAt.UTC(),
		Deleted:    rec.Deleted(),
	})
}
