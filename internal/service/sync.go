package service

import (
	"Kladovka/internal/model"
	"Kladovka/internal/repo"
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Ограничения на размер страницы дельты (строк на тип сущности).
const (
	DefaultSyncLimit = 500
	MaxSyncLimit     = 1000
)

// RecordDTO — запись в ответе дельта-синхронизации.
type RecordDTO struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ModifiedAt time.Time       `json:"modified_at"`
}

// CursorDTO — составной курсор (modified_at, id) на проводе.
type CursorDTO struct {
	ModifiedAt time.Time `json:"modified_at"`
	LastID     string    `json:"last_id"`
}

// TypeDelta — дельта одного типа сущности: живые записи, tombstone-ы и
// курсор, с которого продолжать.
type TypeDelta struct {
	Upserts    []RecordDTO `json:"upserts"`
	Tombstones []string    `json:"tombstones"`
	NextCursor *CursorDTO  `json:"next_cursor,omitempty"`
}

// DeltaRequest — параметры дельта-запроса.
type DeltaRequest struct {
	UserID      int64
	WorkspaceID string
	Since       *repo.SyncCursor // nil — полная синхронизация
	EntityTypes []string         // пусто — все известные типы
	Limit       int
}

// SyncService считает инкрементальные дельты по курсору.
type SyncService struct {
	records    repo.RecordRepository
	workspaces repo.WorkspaceRepository
	logger     *zap.SugaredLogger
}

// NewSyncService создаёт сервис дельта-синхронизации.
func NewSyncService(records repo.RecordRepository, workspaces repo.WorkspaceRepository, logger *zap.SugaredLogger) *SyncService {
	return &SyncService{records: records, workspaces: workspaces, logger: logger}
}

// GetDelta возвращает по каждому запрошенному типу строки с
// (modified_at, id) строго после курсора, в этом же порядке, не более Limit
// на тип. Без курсора — полный снимок живых строк без tombstone-ов.
// Неизвестные типы молча игнорируются; запрошенный тип присутствует в ответе
// даже с пустой дельтой, незапрошенный — отсутствует.
func (s *SyncService) GetDelta(ctx context.Context, req DeltaRequest) (map[string]*TypeDelta, error) {
	if _, err := s.workspaces.GetByID(ctx, req.WorkspaceID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Kind: "workspace", ID: req.WorkspaceID}
		}
		return nil, err
	}
	role, err := s.workspaces.GetMemberRole(ctx, req.WorkspaceID, req.UserID)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return nil, &PermissionError{Reason: "not a workspace member"}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSyncLimit
	}
	if limit > MaxSyncLimit {
		limit = MaxSyncLimit
	}

	types := req.EntityTypes
	if len(types) == 0 {
		types = KnownEntityTypes()
	}

	out := make(map[string]*TypeDelta)
	for _, t := range types {
		if !KnownEntityType(t) {
			continue
		}
		if _, done := out[t]; done {
			continue
		}

		includeDeleted := req.Since != nil
		recs, err := s.records.ListForSync(ctx, req.WorkspaceID, t, req.Since, includeDeleted, limit)
		if err != nil {
			return nil, err
		}

		delta := &TypeDelta{Upserts: []RecordDTO{}, Tombstones: []string{}}
		for i := range recs {
			rec := &recs[i]
			if rec.Deleted() {
				delta.Tombstones = append(delta.Tombstones, rec.ID)
			} else {
				delta.Upserts = append(delta.Upserts, RecordDTO{
					ID:         rec.ID,
					Payload:    json.RawMessage(rec.Payload),
					ModifiedAt: rec.ModifiedAt.UTC(),
				})
			}
		}
		if n := len(recs); n > 0 {
			last := recs[n-1]
			delta.NextCursor = &CursorDTO{ModifiedAt: last.ModifiedAt.UTC(), LastID: last.ID}
		} else if req.Since != nil {
			// пустая дельта — курсор не двигается
			delta.NextCursor = &CursorDTO{ModifiedAt: req.Since.ModifiedAt.UTC(), LastID: req.Since.LastID}
		}
		out[t] = delta
	}
	return out, nil
}

// RecordEventData сериализует запись для события реального времени.
func RecordEventData(rec *model.Record) json.RawMessage {
	dto := RecordDTO{ID: rec.ID, ModifiedAt: rec.ModifiedAt.UTC()}
	if !rec.Deleted() {
		dto.Payload = json.RawMessage(rec.Payload)
	}
	b, err := json.Marshal(dto)
	if err != nil {
		return nil
	}
	return b
}
