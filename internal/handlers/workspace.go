package handlers

import (
	"Kladovka/internal/service"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// WorkspaceHandler — создание workspace-ов, участники, политика гейтинга.
type WorkspaceHandler struct {
	Workspaces *service.WorkspaceService
	Logger     *zap.SugaredLogger
}

func NewWorkspaceHandler(ws *service.WorkspaceService, logger *zap.SugaredLogger) *WorkspaceHandler {
	return &WorkspaceHandler{Workspaces: ws, Logger: logger}
}

type createWorkspaceRequest struct {
	Name       string   `json:"name"`
	GatedTypes []string `json:"gated_types,omitempty"`
}

type workspaceResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	GatedTypes []string `json:"gated_types"`
}

func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	ws, err := h.Workspaces.Create(r.Context(), userID, req.Name, req.GatedTypes)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	gated := req.GatedTypes
	if gated == nil {
		gated = []string{}
	}
	writeJSON(w, http.StatusCreated, workspaceResponse{ID: ws.ID, Name: ws.Name, GatedTypes: gated})
}

type addMemberRequest struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

func (h *WorkspaceHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	workspaceID := chi.URLParam(r, "workspaceID")
	if err := h.Workspaces.AddMember(r.Context(), userID, workspaceID, req.UserID, req.Role); err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": req.UserID, "role": req.Role})
}

type policyResponse struct {
	Role  string          `json:"role"`
	Gated map[string]bool `json:"gated"`
}

// Policy возвращает карту гейтинга для роли вызывающего. Клиент забирает её
// раз в сессию, чтобы помечать отложенные записи в UI.
func (h *WorkspaceHandler) Policy(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	workspaceID := chi.URLParam(r, "workspaceID")
	gated, role, err := h.Workspaces.Policy(r.Context(), userID, workspaceID)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, policyResponse{Role: role, Gated: gated})
}
