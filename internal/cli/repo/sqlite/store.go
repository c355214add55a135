package sqlite

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"Kladovka/internal/cli/model"
	"Kladovka/internal/cli/repo"

	_ "modernc.org/sqlite"
)

// StoreSQLite — локальная БД клиента (SQLite), по файлу на пользователя.
type StoreSQLite struct {
	db    *sql.DB
	login string
}

var _ repo.Store = (*StoreSQLite)(nil)

// OpenForUser открывает (и создаёт при необходимости) файл БД для указанного логина.
// Базовую директорию можно переопределить через CLIENT_DB_PATH.
func OpenForUser(login string) (*StoreSQLite, string, error) {
	if login == "" {
		return nil, "", errors.New("empty login for user store")
	}
	base := os.Getenv("CLIENT_DB_PATH")
	if base == "" {
		cfgDir, err := os.UserConfigDir()
		if err != nil {
			return nil, "", err
		}
		base = filepath.Join(cfgDir, "Kladovka", "users")
	}
	dir := filepath.Join(base, login)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, "", err
	}
	dbPath := filepath.Join(dir, "client.sqlite")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, "", err
	}
	return &StoreSQLite{db: db, login: login}, dbPath, nil
}

// OpenMemory открывает БД в памяти (для тестов).
func OpenMemory() (*StoreSQLite, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// у каждого соединения пула своя in-memory БД, поэтому соединение одно
	db.SetMaxOpenConns(1)
	s := &StoreSQLite{db: db}
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close закрывает соединение с БД.
func (s *StoreSQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate гарантирует наличие необходимых таблиц/индексов.
func (s *StoreSQLite) Migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS records (
  entity_type TEXT NOT NULL,
  id TEXT NOT NULL,
  payload BLOB,
  modified_at INTEGER NOT NULL,
  deleted INTEGER NOT NULL DEFAULT 0,
  provisional INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (entity_type, id)
);
CREATE INDEX IF NOT EXISTS idx_records_type ON records(entity_type, deleted);

CREATE TABLE IF NOT EXISTS mutations (
  local_id INTEGER PRIMARY KEY AUTOINCREMENT,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  action TEXT NOT NULL,
  payload BLOB,
  base_modified_at INTEGER,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'QUEUED',
  pending_change_id TEXT NOT NULL DEFAULT '',
  failure_reason TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  next_retry_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_mutations_status ON mutations(status, local_id);
CREATE INDEX IF NOT EXISTS idx_mutations_entity ON mutations(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS cursors (
  entity_type TEXT PRIMARY KEY,
  modified_at INTEGER NOT NULL,
  last_id TEXT NOT NULL
);
`
	_, err := s.db.Exec(ddl)
	return err
}

// GetRecord возвращает запись по ключу; (nil, nil), если записи нет.
func (s *StoreSQLite) GetRecord(entityType, id string) (*model.Record, error) {
	row := s.db.QueryRow(`SELECT entity_type, id, payload, modified_at, deleted, provisional
FROM records WHERE entity_type = ? AND id = ?`, entityType, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRecords возвращает живые записи типа, по id.
func (s *StoreSQLite) ListRecords(entityType string) ([]model.Record, error) {
	rows, err := s.db.Query(`SELECT entity_type, id, payload, modified_at, deleted, provisional
FROM records WHERE entity_type = ? AND deleted = 0 ORDER BY id`, entityType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *rec)
	}
	return res, rows.Err()
}

// SaveProvisional записывает локальное (ещё не подтверждённое) состояние записи.
func (s *StoreSQLite) SaveProvisional(rec model.Record) error {
	_, err := s.db.Exec(`INSERT INTO records(entity_type, id, payload, modified_at, deleted, provisional)
VALUES(?, ?, ?, ?, ?, 1)
ON CONFLICT(entity_type, id) DO UPDATE SET
  payload = excluded.payload,
  modified_at = excluded.modified_at,
  deleted = excluded.deleted,
  provisional = 1`,
		rec.EntityType, rec.ID, rec.Payload, rec.ModifiedAt.UnixNano(), boolInt(rec.Deleted))
	return err
}

// ResolveProvisional снимает флаг provisional: запись снова под управлением синка.
func (s *StoreSQLite) ResolveProvisional(entityType, id string) error {
	_, err := s.db.Exec(`UPDATE records SET provisional = 0 WHERE entity_type = ? AND id = ?`, entityType, id)
	return err
}

// DeleteRecord физически удаляет локальную запись (откат отклонённого CREATE).
func (s *StoreSQLite) DeleteRecord(entityType, id string) error {
	_, err := s.db.Exec(`DELETE FROM records WHERE entity_type = ? AND id = ?`, entityType, id)
	return err
}

// ApplySyncPage применяет страницу дельты в одной транзакции: upsert-ы,
// tombstone-ы и курсор либо записываются все, либо никакие.
func (s *StoreSQLite) ApplySyncPage(entityType string, upserts []model.Record, tombstones []string, cursor model.Cursor, skip map[string]bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range upserts {
		if skip[rec.ID] {
			continue
		}
		_, err := tx.Exec(`INSERT INTO records(entity_type, id, payload, modified_at, deleted, provisional)
VALUES(?, ?, ?, ?, ?, 0)
ON CONFLICT(entity_type, id) DO UPDATE SET
  payload = excluded.payload,
  modified_at = excluded.modified_at,
  deleted = excluded.deleted,
  provisional = 0`,
			entityType, rec.ID, rec.Payload, rec.ModifiedAt.UnixNano(), boolInt(rec.Deleted))
		if err != nil {
			return err
		}
	}
	for _, id := range tombstones {
		if skip[id] {
			continue
		}
		_, err := tx.Exec(`UPDATE records SET deleted = 1, provisional = 0 WHERE entity_type = ? AND id = ?`, entityType, id)
		if err != nil {
			return err
		}
	}
	_, err = tx.Exec(`INSERT INTO cursors(entity_type, modified_at, last_id) VALUES(?, ?, ?)
ON CONFLICT(entity_type) DO UPDATE SET modified_at = excluded.modified_at, last_id = excluded.last_id`,
		entityType, cursor.ModifiedAt.UnixNano(), cursor.LastID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// GetCursor возвращает курсор типа; (nil, nil) — тип ещё не синхронизировался.
func (s *StoreSQLite) GetCursor(entityType string) (*model.Cursor, error) {
	var modNano int64
	var lastID string
	err := s.db.QueryRow(`SELECT modified_at, last_id FROM cursors WHERE entity_type = ?`, entityType).
		Scan(&modNano, &lastID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.Cursor{EntityType: entityType, ModifiedAt: time.Unix(0, modNano), LastID: lastID}, nil
}

// ResetCursor сбрасывает курсор типа: следующий синк будет полным.
func (s *StoreSQLite) ResetCursor(entityType string) error {
	_, err := s.db.Exec(`DELETE FROM cursors WHERE entity_type = ?`, entityType)
	return err
}

// Enqueue добавляет мутацию в хвост очереди и заполняет LocalID.
func (s *StoreSQLite) Enqueue(m *model.QueuedMutation) error {
	if m.Status == "" {
		m.Status = model.MutationQueued
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	var base any
	if m.BaseModifiedAt != nil {
		base = m.BaseModifiedAt.UnixNano()
	}
	res, err := s.db.Exec(`INSERT INTO mutations(entity_type, entity_id, action, payload, base_modified_at, attempt_count, status, pending_change_id, failure_reason, created_at, next_retry_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.EntityType, m.EntityID, m.Action, m.Payload, base,
		m.AttemptCount, m.Status, m.PendingChangeID, m.FailureReason,
		m.CreatedAt.UnixNano(), retryNano(m.NextRetryAt))
	if err != nil {
		return err
	}
	m.LocalID, err = res.LastInsertId()
	return err
}

// QueuedMutations возвращает все QUEUED-мутации в порядке постановки.
func (s *StoreSQLite) QueuedMutations() ([]model.QueuedMutation, error) {
	return s.MutationsByStatus(model.MutationQueued)
}

// MutationsByStatus возвращает мутации статуса в порядке local_id.
func (s *StoreSQLite) MutationsByStatus(status string) ([]model.QueuedMutation, error) {
	rows, err := s.db.Query(`SELECT local_id, entity_type, entity_id, action, payload, base_modified_at, attempt_count, status, pending_change_id, failure_reason, created_at, next_retry_at
FROM mutations WHERE status = ? ORDER BY local_id`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.QueuedMutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *m)
	}
	return res, rows.Err()
}

// ActiveMutationIDs возвращает id сущностей типа с незавершёнными мутациями
// (QUEUED или PENDING_APPROVAL) — их локальное состояние синк не трогает.
func (s *StoreSQLite) ActiveMutationIDs(entityType string) (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT DISTINCT entity_id FROM mutations
WHERE entity_type = ? AND status IN (?, ?)`, entityType, model.MutationQueued, model.MutationPendingApproval)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// UpdateMutation сохраняет изменившиеся поля мутации.
func (s *StoreSQLite) UpdateMutation(m *model.QueuedMutation) error {
	_, err := s.db.Exec(`UPDATE mutations SET attempt_count = ?, status = ?, pending_change_id = ?, failure_reason = ?, next_retry_at = ?
WHERE local_id = ?`,
		m.AttemptCount, m.Status, m.PendingChangeID, m.FailureReason, retryNano(m.NextRetryAt), m.LocalID)
	return err
}

// DeleteMutation удаляет мутацию из очереди.
func (s *StoreSQLite) DeleteMutation(localID int64) error {
	_, err := s.db.Exec(`DELETE FROM mutations WHERE local_id = ?`, localID)
	return err
}

// MutationByPendingChange находит мутацию по id отложенного изменения;
// (nil, nil), если такой нет (изменение создано с другого устройства).
func (s *StoreSQLite) MutationByPendingChange(pendingChangeID string) (*model.QueuedMutation, error) {
	row := s.db.QueryRow(`SELECT local_id, entity_type, entity_id, action, payload, base_modified_at, attempt_count, status, pending_change_id, failure_reason, created_at, next_retry_at
FROM mutations WHERE pending_change_id = ?`, pendingChangeID)
	m, err := scanMutation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.Record, error) {
	var rec model.Record
	var modNano int64
	var delInt, provInt int
	if err := row.Scan(&rec.EntityType, &rec.ID, &rec.Payload, &modNano, &delInt, &provInt); err != nil {
		return nil, err
	}
	rec.ModifiedAt = time.Unix(0, modNano)
	rec.Deleted = delInt != 0
	rec.Provisional = provInt != 0
	return &rec, nil
}

func scanMutation(row rowScanner) (*model.QueuedMutation, error) {
	var m model.QueuedMutation
	var base sql.NullInt64
	var createdNano, retryNanoV int64
	if err := row.Scan(&m.LocalID, &m.EntityType, &m.EntityID, &m.Action, &m.Payload, &base,
		&m.AttemptCount, &m.Status, &m.PendingChangeID, &m.FailureReason, &createdNano, &retryNanoV); err != nil {
		return nil, err
	}
	if base.Valid {
		t := time.Unix(0, base.Int64)
		m.BaseModifiedAt = &t
	}
	m.CreatedAt = time.Unix(0, createdNano)
	if retryNanoV != 0 {
		m.NextRetryAt = time.Unix(0, retryNanoV)
	}
	return &m, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func retryNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
