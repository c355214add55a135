package repo

import "Kladovka/internal/cli/model"

// Store — локальное хранилище клиента: кэш записей, курсоры синка
// и очередь офлайн-мутаций.
type Store interface {
	// Записи.
	GetRecord(entityType, id string) (*model.Record, error)
	ListRecords(entityType string) ([]model.Record, error)
	SaveProvisional(rec model.Record) error
	ResolveProvisional(entityType, id string) error
	DeleteRecord(entityType, id string) error

	// ApplySyncPage атомарно применяет страницу дельты и продвигает курсор.
	// Записи с id из skip не трогаются: их локальное состояние побеждает,
	// пока мутация не подтверждена или не отклонена.
	ApplySyncPage(entityType string, upserts []model.Record, tombstones []string, cursor model.Cursor, skip map[string]bool) error
	GetCursor(entityType string) (*model.Cursor, error)
	ResetCursor(entityType string) error

	// Очередь мутаций.
	Enqueue(m *model.QueuedMutation) error
	QueuedMutations() ([]model.QueuedMutation, error)
	MutationsByStatus(status string) ([]model.QueuedMutation, error)
	ActiveMutationIDs(entityType string) (map[string]bool, error)
	UpdateMutation(m *model.QueuedMutation) error
	DeleteMutation(localID int64) error
	MutationByPendingChange(pendingChangeID string) (*model.QueuedMutation, error)

	Close() error
}
