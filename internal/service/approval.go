package service

import (
	"Kladovka/internal/broadcast"
	"Kladovka/internal/model"
	"Kladovka/internal/repo"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ApprovalService — конечный автомат PendingChange:
// PENDING -> {APPROVED, REJECTED}, терминально. Применение payload и смена
// статуса на APPROVED происходят в одной транзакции БД: либо оба, либо никто.
type ApprovalService struct {
	db         *gorm.DB
	changes    repo.PendingChangeRepository
	workspaces repo.WorkspaceRepository
	bus        *broadcast.Broadcaster
	logger     *zap.SugaredLogger
}

// NewApprovalService создаёт Approval Engine. db нужен для транзакционного
// применения — репозитории внутри Approve строятся на tx-handle.
func NewApprovalService(db *gorm.DB, workspaces repo.WorkspaceRepository, bus *broadcast.Broadcaster, logger *zap.SugaredLogger) *ApprovalService {
	return &ApprovalService{
		db:         db,
		changes:    repo.NewPendingChangeRepository(db),
		workspaces: workspaces,
		bus:        bus,
		logger:     logger,
	}
}

// Submit создаёт PendingChange в статусе PENDING. Payload проходит ту же
// проверку, что и на прямом пути (validateMutation выполняется до вызова).
// Права и гейтинг проверяет вызывающий MutationService. Возвращённый id —
// ключ идемпотентности для клиентской очереди.
func (s *ApprovalService) Submit(ctx context.Context, requesterID int64, req MutationRequest) (*model.PendingChange, error) {
	pc := &model.PendingChange{
		ID:          uuid.NewString(),
		WorkspaceID: req.WorkspaceID,
		EntityType:  req.EntityType,
		EntityID:    req.RecordID,
		Action:      req.Action,
		Payload:     req.Payload,
		RequesterID: requesterID,
		Status:      model.ChangePending,
	}
	if err := s.changes.Create(ctx, pc); err != nil {
		return nil, err
	}
	s.logger.Infow("pending change submitted",
		"pending_change_id", pc.ID, "workspace_id", pc.WorkspaceID,
		"entity_type", pc.EntityType, "action", pc.Action, "requester_id", requesterID)
	return pc, nil
}

// Approve одобряет изменение и применяет его. Повторный Approve уже
// одобренного id — no-op успех (ретраи по сети должны быть безопасны);
// Approve отклонённого — ErrAlreadyReviewed. Ревьюер не может одобрить
// собственное изменение.
func (s *ApprovalService) Approve(ctx context.Context, reviewerID int64, pendingChangeID string) (*model.PendingChange, error) {
	var result *model.PendingChange
	var applied *model.Record

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changes := repo.NewPendingChangeRepository(tx)
		records := repo.NewRecordRepository(tx)

		pc, err := s.loadForReview(ctx, changes, reviewerID, pendingChangeID)
		if err != nil {
			return err
		}
		if pc.Status == model.ChangeApproved {
			// идемпотентный повтор: мутация уже применена ровно один раз
			result = pc
			return nil
		}

		now := time.Now().UTC()
		n, err := changes.MarkReviewed(ctx, pc.ID, model.ChangeApproved, reviewerID, "", now)
		if err != nil {
			return err
		}
		if n == 0 {
			// параллельный ревьюер успел первым; одобрение другим ревьюером
			// остаётся идемпотентным успехом, отклонение — конфликтом
			cur, err := changes.GetByID(ctx, pc.ID)
			if err != nil {
				return err
			}
			if cur.Status == model.ChangeApproved {
				result = cur
				return nil
			}
			return ErrAlreadyReviewed
		}

		rec, err := applyAction(ctx, records, MutationRequest{
			WorkspaceID: pc.WorkspaceID,
			EntityType:  pc.EntityType,
			Action:      pc.Action,
			RecordID:    pc.EntityID,
			Payload:     pc.Payload,
		}, now)
		if err != nil {
			// откат транзакции вернёт и статус в PENDING
			return err
		}
		applied = rec

		pc.Status = model.ChangeApproved
		pc.ReviewerID = &reviewerID
		pc.ReviewedAt = &now
		if pc.EntityID == "" {
			pc.EntityID = rec.ID
			if err := tx.Model(&model.PendingChange{}).Where("id = ?", pc.ID).
				Update("entity_id", rec.ID).Error; err != nil {
				return err
			}
		}
		result = pc
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied != nil {
		s.publishResolution(result, applied, broadcast.EventChangeApproved)
		s.logger.Infow("pending change approved",
			"pending_change_id", result.ID, "entity_id", applied.ID, "reviewer_id", reviewerID)
	}
	return result, nil
}

// Reject отклоняет изменение: только смена статуса, запись не трогается.
func (s *ApprovalService) Reject(ctx context.Context, reviewerID int64, pendingChangeID, reason string) (*model.PendingChange, error) {
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Reason: "required"}
	}

	pc, err := s.loadForReview(ctx, s.changes, reviewerID, pendingChangeID)
	if err != nil {
		return nil, err
	}
	if pc.Status != model.ChangePending {
		return nil, ErrAlreadyReviewed
	}

	now := time.Now().UTC()
	n, err := s.changes.MarkReviewed(ctx, pc.ID, model.ChangeRejected, reviewerID, reason, now)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrAlreadyReviewed
	}

	pc.Status = model.ChangeRejected
	pc.ReviewerID = &reviewerID
	pc.RejectionReason = reason
	pc.ReviewedAt = &now

	s.publishResolution(pc, nil, broadcast.EventChangeRejected)
	s.logger.Infow("pending change rejected",
		"pending_change_id", pc.ID, "reviewer_id", reviewerID, "reason", reason)
	return pc, nil
}

// List возвращает изменения workspace-а для ревьюера или реквестера.
func (s *ApprovalService) List(ctx context.Context, userID int64, workspaceID, status string) ([]model.PendingChange, error) {
	role, err := s.workspaces.GetMemberRole(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return nil, &PermissionError{Reason: "not a workspace member"}
	}
	pcs, err := s.changes.ListByWorkspace(ctx, workspaceID, status)
	if err != nil {
		return nil, err
	}
	if CanReview(role) {
		return pcs, nil
	}
	// не-ревьюер видит только собственные изменения (для аудита)
	own := pcs[:0]
	for _, pc := range pcs {
		if pc.RequesterID == userID {
			own = append(own, pc)
		}
	}
	return own, nil
}

// loadForReview загружает изменение и проверяет права ревьюера:
// членство, роль и запрет self-review.
func (s *ApprovalService) loadForReview(ctx context.Context, changes repo.PendingChangeRepository, reviewerID int64, id string) (*model.PendingChange, error) {
	pc, err := changes.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Kind: "pending_change", ID: id}
	}
	if err != nil {
		return nil, err
	}
	role, err := s.workspaces.GetMemberRole(ctx, pc.WorkspaceID, reviewerID)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return nil, &PermissionError{Reason: "not a workspace member"}
	}
	if !CanReview(role) {
		return nil, &PermissionError{Reason: "role " + role + " cannot review"}
	}
	if pc.RequesterID == reviewerID {
		return nil, &PermissionError{Reason: "cannot review own change"}
	}
	return pc, nil
}

// resolutionData — полезная нагрузка события о решении по изменению.
// Содержимого payload здесь нет: эффекты до одобрения не видны, а после —
// приходят отдельным record-событием и дельтой.
type resolutionData struct {
	PendingChangeID string `json:"pending_change_id"`
	Status          string `json:"status"`
	RequesterID     int64  `json:"requester_id"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

func jsonMarshalResolution(pc *model.PendingChange) ([]byte, error) {
	return json.Marshal(resolutionData{
		PendingChangeID: pc.ID,
		Status:          pc.Status,
		RequesterID:     pc.RequesterID,
		RejectionReason: pc.RejectionReason,
	})
}

// publishResolution рассылает событие о решении; при одобрении — также
// событие по самой записи, чтобы наблюдатели узнали о её новом состоянии.
// До одобрения никаких событий не публикуется.
func (s *ApprovalService) publishResolution(pc *model.PendingChange, rec *model.Record, evType string) {
	ev := broadcast.Event{
		Type:       evType,
		EntityType: pc.EntityType,
		EntityID:   pc.EntityID,
	}
	if pc.ReviewerID != nil {
		ev.UserID = *pc.ReviewerID
	}
	if b, err := jsonMarshalResolution(pc); err == nil {
		ev.Data = b
	}
	s.bus.Publish(pc.WorkspaceID, ev)

	if rec != nil {
		recEv := broadcast.EventRecordChanged
		if rec.Deleted() {
			recEv = broadcast.EventRecordDeleted
		}
		s.bus.Publish(pc.WorkspaceID, broadcast.Event{
			Type:       recEv,
			EntityType: pc.EntityType,
			EntityID:   rec.ID,
			UserID:     ev.UserID,
			Data:       RecordEventData(rec),
		})
	}
}
