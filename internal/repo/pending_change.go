package repo

import (
	"Kladovka/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
)

// PendingChangeRepository — доступ к отложенным изменениям.
type PendingChangeRepository interface {
	Create(ctx context.Context, pc *model.PendingChange) error

	// GetByID возвращает изменение или gorm.ErrRecordNotFound.
	GetByID(ctx context.Context, id string) (*model.PendingChange, error)

	// ListByWorkspace возвращает изменения workspace, опционально по статусу,
	// в порядке создания.
	ListByWorkspace(ctx context.Context, workspaceID, status string) ([]model.PendingChange, error)

	// MarkReviewed переводит изменение из PENDING в указанный статус.
	// Возвращает число затронутых строк: 0 — изменение уже было ревьюировано
	// (или его нет), и перевод не состоялся.
	MarkReviewed(ctx context.Context, id, status string, reviewerID int64, reason string, reviewedAt time.Time) (int64, error)
}

type pendingChangeRepo struct {
	db *gorm.DB
}

// NewPendingChangeRepository создаёт реализацию репозитория отложенных изменений.
// Принимает и транзакционный handle: ApprovalService по нему строит tx-скоуп.
func NewPendingChangeRepository(db *gorm.DB) PendingChangeRepository {
	return &pendingChangeRepo{db: db}
}

func (r *pendingChangeRepo) Create(ctx context.Context, pc *model.PendingChange) error {
	return r.db.WithContext(ctx).Create(pc).Error
}

func (r *pendingChangeRepo) GetByID(ctx context.Context, id string) (*model.PendingChange, error) {
	var pc model.PendingChange
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&pc).Error; err != nil {
		return nil, err
	}
	return &pc, nil
}

func (r *pendingChangeRepo) ListByWorkspace(ctx context.Context, workspaceID, status string) ([]model.PendingChange, error) {
	q := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var pcs []model.PendingChange
	err := q.Order("created_at ASC, id ASC").Find(&pcs).Error
	return pcs, err
}

func (r *pendingChangeRepo) MarkReviewed(ctx context.Context, id, status string, reviewerID int64, reason string, reviewedAt time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&model.PendingChange{}).
		Where("id = ? AND status = ?", id, model.ChangePending).
		Updates(map[string]any{
			"status":           status,
			"reviewer_id":      reviewerID,
			"rejection_reason": reason,
			"reviewed_at":      reviewedAt.UTC(),
		})
	if tx.Error != nil {
		return 0, tx.Error
	}
	return tx.RowsAffected, nil
}
