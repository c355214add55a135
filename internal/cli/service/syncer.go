package service

import (
	"context"
	"fmt"

	"Kladovka/internal/cli/api"
	"Kladovka/internal/cli/model"
	"Kladovka/internal/cli/repo"
	"Kladovka/internal/config"
)

// DefaultEntityTypes — типы, синхронизируемые по умолчанию.
var DefaultEntityTypes = []string{"item", "location", "container", "borrower", "loan"}

// SyncReport — итог синка: сколько применено по каждому типу.
type SyncReport struct {
	Applied map[string]int
	Errors  map[string]error
}

// Syncer тянет дельты с сервера постранично и применяет их в локальный кэш.
// Курсор типа продвигается только после успешной записи всей страницы.
type Syncer struct {
	cfg    *config.Config
	client *api.Client
	store  repo.Store
	locks  *TypeLocks

	workspaceID string
}

// NewSyncer собирает синхронизатор.
func NewSyncer(cfg *config.Config, client *api.Client, store repo.Store, locks *TypeLocks, workspaceID string) *Syncer {
	return &Syncer{cfg: cfg, client: client, store: store, locks: locks, workspaceID: workspaceID}
}

// SyncAll синхронизирует перечисленные типы до исчерпания дельты.
// Ошибка одного типа не прерывает остальные.
func (s *Syncer) SyncAll(ctx context.Context, entityTypes []string) SyncReport {
	rep := SyncReport{Applied: make(map[string]int), Errors: make(map[string]error)}
	for _, t := range entityTypes {
		n, err := s.SyncType(ctx, t)
		rep.Applied[t] = n
		if err != nil {
			rep.Errors[t] = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return rep
}

// SyncType синхронизирует один тип. Держит блокировку типа на время
// применения каждой страницы, но не на время сетевого запроса.
func (s *Syncer) SyncType(ctx context.Context, entityType string) (int, error) {
	applied := 0
	for {
		cur, err := s.store.GetCursor(entityType)
		if err != nil {
			return applied, err
		}
		var curDTO *api.CursorDTO
		if cur != nil {
			curDTO = &api.CursorDTO{ModifiedAt: cur.ModifiedAt, LastID: cur.LastID}
		}

		resp, err := s.client.GetDelta(ctx, s.workspaceID, entityType, curDTO, s.cfg.SyncPageLimit)
		if err != nil {
			return applied, fmt.Errorf("delta %s: %w", entityType, err)
		}
		delta, ok := resp[entityType]
		if !ok {
			return applied, nil
		}

		n, err := s.applyPage(entityType, delta)
		if err != nil {
			return applied, fmt.Errorf("apply %s: %w", entityType, err)
		}
		applied += n

		if len(delta.Upserts)+len(delta.Tombstones) < s.cfg.SyncPageLimit {
			return applied, nil
		}
		if ctx.Err() != nil {
			return applied, ctx.Err()
		}
	}
}

func (s *Syncer) applyPage(entityType string, delta api.TypeDelta) (int, error) {
	unlock := s.locks.Lock(entityType)
	defer unlock()

	skip, err := s.store.ActiveMutationIDs(entityType)
	if err != nil {
		return 0, err
	}

	if delta.NextCursor == nil {
		// пустая полная синхронизация: применять и двигать нечего
		return 0, nil
	}

	upserts := make([]model.Record, 0, len(delta.Upserts))
	for _, dto := range delta.Upserts {
		upserts = append(upserts, model.Record{
			EntityType: entityType,
			ID:         dto.ID,
			Payload:    dto.Payload,
			ModifiedAt: dto.ModifiedAt,
		})
	}
	cursor := model.Cursor{
		EntityType: entityType,
		ModifiedAt: delta.NextCursor.ModifiedAt,
		LastID:     delta.NextCursor.LastID,
	}

	if err := s.store.ApplySyncPage(entityType, upserts, delta.Tombstones, cursor, skip); err != nil {
		return 0, err
	}
	return len(upserts) + len(delta.Tombstones), nil
}
