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

// PendingChangeHandler — список/одобрение/отклонение отложенных изменений.
type PendingChangeHandler struct {
	Approvals *service.ApprovalService
	Logger    *zap.SugaredLogger
}

func NewPendingChangeHandler(a *service.ApprovalService, logger *zap.SugaredLogger) *PendingChangeHandler {
	return &PendingChangeHandler{Approvals: a, Logger: logger}
}

type pendingChangeDTO struct {
	ID              string          `json:"id"`
	WorkspaceID     string          `json:"workspace_id"`
	EntityType      string          `json:"entity_type"`
	EntityID        string          `json:"entity_id,omitempty"`
	Action          string          `json:"action"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	RequesterID     int64           `json:"requester_id"`
	Status          string          `json:"status"`
	ReviewerID      *int64          `json:"reviewer_id,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
}

func toPendingChangeDTO(pc *model.PendingChange) pendingChangeDTO {
	return pendingChangeDTO{
		ID:              pc.ID,
		WorkspaceID:     pc.WorkspaceID,
		EntityType:      pc.EntityType,
		EntityID:        pc.EntityID,
		Action:          pc.Action,
		Payload:         json.RawMessage(pc.Payload),
		RequesterID:     pc.RequesterID,
		Status:          pc.Status,
		ReviewerID:      pc.ReviewerID,
		RejectionReason: pc.RejectionReason,
		CreatedAt:       pc.CreatedAt,
		ReviewedAt:      pc.ReviewedAt,
	}
}

func (h *PendingChangeHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	pcs, err := h.Approvals.List(r.Context(), userID,
		chi.URLParam(r, "workspaceID"), r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	out := make([]pendingChangeDTO, 0, len(pcs))
	for i := range pcs {
		out = append(out, toPendingChangeDTO(&pcs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *PendingChangeHandler) Approve(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	pc, err := h.Approvals.Approve(r.Context(), userID, chi.URLParam(r, "changeID"))
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPendingChangeDTO(pc))
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *PendingChangeHandler) Reject(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	pc, err := h.Approvals.Reject(r.Context(), userID, chi.URLParam(r, "changeID"), req.Reason)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPendingChangeDTO(pc))
}
