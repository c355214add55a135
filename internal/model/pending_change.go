package model

import "time"

// Статусы PendingChange. Переход ровно один: PENDING -> APPROVED | REJECTED.
const (
	ChangePending  = "PENDING"
	ChangeApproved = "APPROVED"
	ChangeRejected = "REJECTED"
)

// PendingChange — отложенная мутация, ожидающая ревью. Payload — новые
// значения полей целевой записи; EntityID пуст для CREATE до применения.
// Id записи служит ключом идемпотентности: применение происходит ровно один
// раз, в одной транзакции со сменой статуса на APPROVED.
type PendingChange struct {
	ID          string `gorm:"primaryKey;type:uuid"`
	WorkspaceID string `gorm:"not null;type:uuid;index:idx_changes_ws_status,priority:1"`

	EntityType string `gorm:"not null"`
	EntityID   string `gorm:"type:uuid"` // пуст для CREATE
	Action     string `gorm:"not null"`
	Payload    []byte `gorm:"type:jsonb"`

	RequesterID int64  `gorm:"not null;index"`
	Status      string `gorm:"not null;default:PENDING;index:idx_changes_ws_status,priority:2"`

	ReviewerID      *int64
	RejectionReason string

	CreatedAt  time.Time `gorm:"autoCreateTime"`
	ReviewedAt *time.Time
}
