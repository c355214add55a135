package model

import "time"

// Статусы локальной очереди мутаций.
const (
	MutationQueued          = "QUEUED"
	MutationPendingApproval = "PENDING_APPROVAL"
	MutationFailed          = "FAILED"
)

// QueuedMutation — мутация, накопленная офлайн и ожидающая реплея.
// Порядок реплея — FIFO по LocalID в пределах одной сущности.
type QueuedMutation struct {
	LocalID         int64
	EntityType      string
	EntityID        string
	Action          string
	Payload         []byte
	BaseModifiedAt  *time.Time
	AttemptCount    int
	Status          string
	PendingChangeID string
	FailureReason   string
	CreatedAt       time.Time
	NextRetryAt     time.Time
}
