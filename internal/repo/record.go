package repo

import (
	"Kladovka/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
)

// SyncCursor — составной курсор дельта-синхронизации (modified_at, id).
// Сравнение строгое: строка входит в дельту, если она строго после курсора
// в порядке (modified_at, id). Тай-брейк по id гарантирует, что граница
// страницы внутри одного timestamp ничего не пропустит и не продублирует.
type SyncCursor struct {
	ModifiedAt time.Time
	LastID     string
}

// RecordRepository — доступ к универсальным записям сущностей.
type RecordRepository interface {
	// GetByID возвращает запись (включая мягко удалённую) или gorm.ErrRecordNotFound.
	GetByID(ctx context.Context, workspaceID, entityType, id string) (*model.Record, error)

	// Create вставляет новую запись. Дубликат ключа — ошибка БД.
	Create(ctx context.Context, rec *model.Record) error

	// UpdateChecked обновляет payload (и/или deleted_at) живой записи,
	// проставляя modified_at = now. Если baseModifiedAt != nil, обновление
	// проходит только при совпадении текущего modified_at (оптимистическая
	// проверка). Возвращает число затронутых строк: 0 — либо записи нет,
	// либо проверка не прошла; различает вызывающий код повторным чтением.
	UpdateChecked(ctx context.Context, workspaceID, entityType, id string, updates map[string]any, baseModifiedAt *time.Time) (int64, error)

	// ListForSync возвращает до limit строк после курсора в порядке
	// (modified_at, id). При includeDeleted=false tombstone-ы отфильтровываются
	// (режим полной синхронизации).
	ListForSync(ctx context.Context, workspaceID, entityType string, cursor *SyncCursor, includeDeleted bool, limit int) ([]model.Record, error)
}

type recordRepo struct {
	db *gorm.DB
}

// NewRecordRepository создаёт реализацию репозитория записей.
func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepo{db: db}
}

func (r *recordRepo) GetByID(ctx context.Context, workspaceID, entityType, id string) (*model.Record, error) {
	var rec model.Record
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND entity_type = ? AND id = ?", workspaceID, entityType, id).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepo) Create(ctx context.Context, rec *model.Record) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *recordRepo) UpdateChecked(ctx context.Context, workspaceID, entityType, id string, updates map[string]any, baseModifiedAt *time.Time) (int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Record{}).
		Where("workspace_id = ? AND entity_type = ? AND id = ? AND deleted_at IS NULL", workspaceID, entityType, id)
	if baseModifiedAt != nil {
		q = q.Where("modified_at = ?", baseModifiedAt.UTC())
	}
	tx := q.Updates(updates)
	if tx.Error != nil {
		return 0, tx.Error
	}
	return tx.RowsAffected, nil
}

func (r *recordRepo) ListForSync(ctx context.Context, workspaceID, entityType string, cursor *SyncCursor, includeDeleted bool, limit int) ([]model.Record, error) {
	q := r.db.WithContext(ctx).Model(&model.Record{}).
		Where("workspace_id = ? AND entity_type = ?", workspaceID, entityType)
	if cursor != nil {
		q = q.Where("modified_at > ? OR (modified_at = ? AND id > ?)",
			cursor.ModifiedAt.UTC(), cursor.ModifiedAt.UTC(), cursor.LastID)
	}
	if !includeDeleted {
		q = q.Where("deleted_at IS NULL")
	}
	var recs []model.Record
	err := q.Order("modified_at ASC, id ASC").Limit(limit).Find(&recs).Error
	return recs, err
}
