package service

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyReviewed — PendingChange уже не в статусе PENDING.
var ErrAlreadyReviewed = errors.New("pending change already reviewed")

// ErrLoginTaken — логин уже занят при регистрации.
var ErrLoginTaken = errors.New("login already taken")

// ValidationError — нарушение формы payload или бизнес-правила.
// Клиент такие ошибки не ретраит.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NotFoundError — отсутствует workspace или запись.
type NotFoundError struct {
	Kind string // "workspace", "record", "pending_change", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// ConflictError — устаревший base_modified_at при UPDATE: запись на сервере
// ушла вперёд. Клиент должен отбросить мутацию и пересобрать её от свежего
// состояния, а не перезаписывать вслепую.
type ConflictError struct {
	EntityType string
	EntityID   string
	ModifiedAt time.Time // актуальное серверное значение
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s/%s modified at %s", e.EntityType, e.EntityID, e.ModifiedAt.UTC().Format(time.RFC3339Nano))
}

// PermissionError — роль не позволяет операцию, либо попытка самостоятельного
// ревью собственного изменения.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string { return "permission denied: " + e.Reason }
