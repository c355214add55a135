package model

import "time"

// Record — локальная копия серверной записи.
// Provisional — запись изменена локально и ещё не подтверждена сервером
// (в очереди или на согласовании); такие записи синк не перезатирает.
type Record struct {
	EntityType  string
	ID          string
	Payload     []byte
	ModifiedAt  time.Time
	Deleted     bool
	Provisional bool
}

// Cursor — составной курсор синхронизации одного типа сущностей.
type Cursor struct {
	EntityType string
	ModifiedAt time.Time
	LastID     string
}
