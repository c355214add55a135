package api

import (
	"encoding/json"
	"time"
)

// RecordDTO — живая запись в ответе дельта-синка.
type RecordDTO struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ModifiedAt time.Time       `json:"modified_at"`
}

// CursorDTO — составной курсор (modified_at, id) для следующей страницы.
type CursorDTO struct {
	ModifiedAt time.Time `json:"modified_at"`
	LastID     string    `json:"last_id"`
}

// TypeDelta — порция изменений одного типа сущностей.
type TypeDelta struct {
	Upserts    []RecordDTO `json:"upserts"`
	Tombstones []string    `json:"tombstones"`
	NextCursor *CursorDTO  `json:"next_cursor,omitempty"`
}

// DeltaResponse — ответ GET /sync/delta: тип → дельта.
type DeltaResponse map[string]TypeDelta

// MutateRequest — тело запроса мутации записи.
type MutateRequest struct {
	ID             string          `json:"id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	BaseModifiedAt *time.Time      `json:"base_modified_at,omitempty"`
}

// MutateResponse — ответ мутации: поля записи при прямом применении,
// pending_change_id со статусом при 202 (отправлено на согласование).
type MutateResponse struct {
	ID         string          `json:"id,omitempty"`
	EntityType string          `json:"entity_type,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ModifiedAt time.Time       `json:"modified_at"`
	Deleted    bool            `json:"deleted,omitempty"`

	PendingChangeID string `json:"pending_change_id,omitempty"`
	Status          string `json:"status,omitempty"`
}

// PendingChangeDTO — отложенное изменение в списке согласований.
type PendingChangeDTO struct {
	ID              string          `json:"id"`
	EntityType      string          `json:"entity_type"`
	EntityID        string          `json:"entity_id,omitempty"`
	Action          string          `json:"action"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	RequesterID     int64           `json:"requester_id"`
	Status          string          `json:"status"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PolicyResponse — роль текущего пользователя и карта гейтинга воркспейса.
type PolicyResponse struct {
	Role       string          `json:"role"`
	GatedTypes map[string]bool `json:"gated"`
}

// Event — событие из SSE-потока воркспейса.
type Event struct {
	Type       string          `json:"type"`
	EntityType string          `json:"entity_type,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
	UserID     int64           `json:"user_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// ResolutionData — полезная нагрузка событий change.approved / change.rejected.
type ResolutionData struct {
	PendingChangeID string `json:"pending_change_id"`
	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}
