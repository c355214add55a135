package model

import "time"

// Действия над записями.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// ValidAction проверяет, что строка — одно из известных действий.
func ValidAction(action string) bool {
	switch action {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Record — универсальная строка доменной сущности (item, location, container,
// borrower, loan). Содержимое лежит в Payload (JSON), а ключ синхронизации —
// ModifiedAt: сервер проставляет его на каждом create/update/delete и никогда
// на чтении. DeletedAt != nil — мягкое удаление (tombstone в дельте).
type Record struct {
	WorkspaceID string `gorm:"primaryKey;type:uuid;index:idx_records_sync,priority:1"`
	EntityType  string `gorm:"primaryKey;index:idx_records_sync,priority:2"`
	ID          string `gorm:"primaryKey;type:uuid;index:idx_records_sync,priority:4"`

	Payload []byte `gorm:"type:jsonb"`

	ModifiedAt time.Time  `gorm:"not null;index:idx_records_sync,priority:3"`
	DeletedAt  *time.Time `gorm:"index"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Deleted сообщает, является ли запись tombstone-ом.
func (r *Record) Deleted() bool { return r.DeletedAt != nil }
