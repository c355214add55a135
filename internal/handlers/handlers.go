package handlers

import (
	"Kladovka/internal/broadcast"
	"Kladovka/internal/config"
	"Kladovka/internal/middleware"
	"Kladovka/internal/service"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	Router chi.Router
}

// NewHandler разводящий для хендлеров
func NewHandler(
	userService *service.UserService,
	workspaceService *service.WorkspaceService,
	syncService *service.SyncService,
	mutationService *service.MutationService,
	approvalService *service.ApprovalService,
	bus *broadcast.Broadcaster,
	logger *zap.SugaredLogger,
	cfg *config.Config,
) *Handler {
	r := chi.NewRouter()

	r.Use(middleware.WithGzip)
	r.Use(middleware.WithLogging)
	r.Use(middleware.WithAuth(cfg.AuthSecret))

	// Handlers
	userHandler := NewUserHandler(userService, logger, cfg)
	wsHandler := NewWorkspaceHandler(workspaceService, logger)
	recordHandler := NewRecordHandler(mutationService, logger)
	syncHandler := NewSyncHandler(syncService, logger)
	changeHandler := NewPendingChangeHandler(approvalService, logger)
	eventsHandler := NewEventsHandler(workspaceService, bus, logger, cfg)

	// User routes
	r.Post("/api/user/register", userHandler.Register)
	r.Post("/api/user/login", userHandler.Login)
	r.Post("/api/user/test", userHandler.Status)

	// Workspace routes
	r.Post("/api/workspaces", wsHandler.Create)
	r.Post("/api/workspaces/{workspaceID}/members", wsHandler.AddMember)
	r.Get("/api/workspaces/{workspaceID}/policy", wsHandler.Policy)

	// Sync + events
	r.Get("/api/workspaces/{workspaceID}/sync/delta", syncHandler.GetDelta)
	r.Get("/api/workspaces/{workspaceID}/events", eventsHandler.Stream)

	// Record mutations
	r.Post("/api/workspaces/{workspaceID}/records/{entityType}", recordHandler.Create)
	r.Put("/api/workspaces/{workspaceID}/records/{entityType}/{recordID}", recordHandler.Update)
	r.Delete("/api/workspaces/{workspaceID}/records/{entityType}/{recordID}", recordHandler.Delete)

	// Pending changes
	r.Get("/api/workspaces/{workspaceID}/pending-changes", changeHandler.List)
	r.Post("/api/pending-changes/{changeID}/approve", changeHandler.Approve)
	r.Post("/api/pending-changes/{changeID}/reject", changeHandler.Reject)

	return &Handler{Router: r}
}

// errorBody — типизированный JSON-ответ об ошибке.
type errorBody struct {
	Code       string     `json:"code"`
	Error      string     `json:"error"`
	Field      string     `json:"field,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"` // для conflict
}

// Коды ошибок на проводе. Клиентская очередь по ним классифицирует исход.
const (
	codeValidation      = "validation"
	codeNotFound        = "not_found"
	codeConflict        = "conflict"
	codeAlreadyReviewed = "already_reviewed"
	codePermission      = "permission"
	codeInternal        = "internal"
)

// writeServiceError маппит типизированные ошибки сервисов на HTTP-статусы.
func writeServiceError(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	var (
		vErr *service.ValidationError
		nErr *service.NotFoundError
		cErr *service.ConflictError
		pErr *service.PermissionError
	)
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, errorBody{Code: codeValidation, Error: vErr.Error(), Field: vErr.Field})
	case errors.As(err, &nErr):
		writeJSON(w, http.StatusNotFound, errorBody{Code: codeNotFound, Error: nErr.Error()})
	case errors.As(err, &cErr):
		mod := cErr.ModifiedAt.UTC()
		writeJSON(w, http.StatusConflict, errorBody{Code: codeConflict, Error: cErr.Error(), ModifiedAt: &mod})
	case errors.Is(err, service.ErrAlreadyReviewed):
		writeJSON(w, http.StatusConflict, errorBody{Code: codeAlreadyReviewed, Error: err.Error()})
	case errors.As(err, &pErr):
		writeJSON(w, http.StatusForbidden, errorBody{Code: codePermission, Error: pErr.Error()})
	default:
		logger.Errorw("internal error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: codeInternal, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requireUser достаёт user_id из контекста или пишет 401.
func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}
