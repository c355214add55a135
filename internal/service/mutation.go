package service

import (
	"Kladovka/internal/broadcast"
	"Kladovka/internal/model"
	"Kladovka/internal/repo"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MutationRequest — одна мутация записи от клиента.
type MutationRequest struct {
	WorkspaceID    string
	EntityType     string
	Action         string // model.ActionCreate | ActionUpdate | ActionDelete
	RecordID       string // обязателен для UPDATE/DELETE; для CREATE может задать клиент
	Payload        []byte
	BaseModifiedAt *time.Time // оптимистическая проверка для UPDATE
}

// MutationResult — исход мутации: либо применённая запись (прямой путь),
// либо созданный PendingChange (гейтированный путь). Ровно одно поле не nil.
type MutationResult struct {
	Record  *model.Record
	Pending *model.PendingChange
}

// MutationService — единая входная точка всех записей. Здесь, и только здесь,
// решается: применить напрямую или завести PendingChange.
type MutationService struct {
	records    repo.RecordRepository
	workspaces repo.WorkspaceRepository
	approvals  *ApprovalService
	bus        *broadcast.Broadcaster
	logger     *zap.SugaredLogger
}

// NewMutationService создаёт сервис мутаций.
func NewMutationService(
	records repo.RecordRepository,
	workspaces repo.WorkspaceRepository,
	approvals *ApprovalService,
	bus *broadcast.Broadcaster,
	logger *zap.SugaredLogger,
) *MutationService {
	return &MutationService{
		records:    records,
		workspaces: workspaces,
		approvals:  approvals,
		bus:        bus,
		logger:     logger,
	}
}

// Apply проверяет права и политику гейтинга, затем либо применяет мутацию к
// хранилищу (с публикацией события), либо создаёт PendingChange.
func (s *MutationService) Apply(ctx context.Context, userID int64, req MutationRequest) (MutationResult, error) {
	ws, role, err := s.authorize(ctx, userID, req.WorkspaceID)
	if err != nil {
		return MutationResult{}, err
	}
	if err := validateMutation(req); err != nil {
		return MutationResult{}, err
	}

	if IsGated(ws, req.EntityType, req.Action, role) {
		pc, err := s.approvals.Submit(ctx, userID, req)
		if err != nil {
			return MutationResult{}, err
		}
		return MutationResult{Pending: pc}, nil
	}

	rec, err := applyAction(ctx, s.records, req, time.Now().UTC())
	if err != nil {
		return MutationResult{}, err
	}

	evType := broadcast.EventRecordChanged
	if req.Action == model.ActionDelete {
		evType = broadcast.EventRecordDeleted
	}
	s.bus.Publish(req.WorkspaceID, broadcast.Event{
		Type:       evType,
		EntityType: req.EntityType,
		EntityID:   rec.ID,
		UserID:     userID,
		Data:       RecordEventData(rec),
	})
	return MutationResult{Record: rec}, nil
}

// authorize возвращает workspace и роль участника, либо типизированную ошибку.
func (s *MutationService) authorize(ctx context.Context, userID int64, workspaceID string) (*model.Workspace, string, error) {
	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", &NotFoundError{Kind: "workspace", ID: workspaceID}
		}
		return nil, "", err
	}
	role, err := s.workspaces.GetMemberRole(ctx, workspaceID, userID)
	if err != nil {
		return nil, "", err
	}
	if role == "" {
		return nil, "", &PermissionError{Reason: "not a workspace member"}
	}
	if !CanWrite(role) {
		return nil, "", &PermissionError{Reason: "role " + role + " cannot write"}
	}
	return ws, role, nil
}

// validateMutation проверяет форму запроса и payload. Общая для прямого и
// гейтированного пути: одобрение не сможет применить payload, который прямой
// путь отверг бы.
func validateMutation(req MutationRequest) error {
	if !model.ValidAction(req.Action) {
		return &ValidationError{Field: "action", Reason: "unknown action " + req.Action}
	}
	if !KnownEntityType(req.EntityType) {
		return &ValidationError{Field: "entity_type", Reason: "unknown entity type " + req.EntityType}
	}
	if req.Action != model.ActionCreate && req.RecordID == "" {
		return &ValidationError{Field: "id", Reason: "record id required"}
	}
	if req.Action != model.ActionDelete {
		if len(req.Payload) == 0 {
			return &ValidationError{Field: "payload", Reason: "required"}
		}
		if err := ValidatePayload(req.EntityType, req.Payload); err != nil {
			return err
		}
	}
	return nil
}

// applyAction — общий путь применения мутации к хранилищу записей. Его же,
// с tx-скоупным репозиторием, использует Approval Engine при одобрении.
// На каждом применении проставляется свежий серверный modified_at.
func applyAction(ctx context.Context, records repo.RecordRepository, req MutationRequest, now time.Time) (*model.Record, error) {
	switch req.Action {
	case model.ActionCreate:
		id := req.RecordID
		if id == "" {
			id = uuid.NewString()
		}
		if existing, err := records.GetByID(ctx, req.WorkspaceID, req.EntityType, id); err == nil {
			// дубликат create: клиент должен пересинхронизироваться
			return nil, &ConflictError{EntityType: req.EntityType, EntityID: id, ModifiedAt: existing.ModifiedAt}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		rec := &model.Record{
			WorkspaceID: req.WorkspaceID,
			EntityType:  req.EntityType,
			ID:          id,
			Payload:     req.Payload,
			ModifiedAt:  now,
		}
		if err := records.Create(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil

	case model.ActionUpdate:
		updates := map[string]any{"payload": req.Payload, "modified_at": now}
		n, err := records.UpdateChecked(ctx, req.WorkspaceID, req.EntityType, req.RecordID, updates, req.BaseModifiedAt)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, explainZeroRows(ctx, records, req)
		}
		return records.GetByID(ctx, req.WorkspaceID, req.EntityType, req.RecordID)

	case model.ActionDelete:
		updates := map[string]any{"deleted_at": now, "modified_at": now}
		n, err := records.UpdateChecked(ctx, req.WorkspaceID, req.EntityType, req.RecordID, updates, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			existing, err := records.GetByID(ctx, req.WorkspaceID, req.EntityType, req.RecordID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &NotFoundError{Kind: "record", ID: req.RecordID}
			}
			if err != nil {
				return nil, err
			}
			// уже удалена: повтор delete безопасен
			return existing, nil
		}
		return records.GetByID(ctx, req.WorkspaceID, req.EntityType, req.RecordID)

	default:
		return nil, &ValidationError{Field: "action", Reason: "unknown action " + req.Action}
	}
}

// explainZeroRows различает «записи нет» и «оптимистическая проверка не прошла».
func explainZeroRows(ctx context.Context, records repo.RecordRepository, req MutationRequest) error {
	existing, err := records.GetByID(ctx, req.WorkspaceID, req.EntityType, req.RecordID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Kind: "record", ID: req.RecordID}
	}
	if err != nil {
		return err
	}
	if existing.Deleted() {
		return &NotFoundError{Kind: "record", ID: req.RecordID}
	}
	return &ConflictError{EntityType: req.EntityType, EntityID: req.RecordID, ModifiedAt: existing.ModifiedAt}
}
