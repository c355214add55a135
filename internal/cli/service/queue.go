package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"Kladovka/internal/cli/api"
	"Kladovka/internal/cli/model"
	"Kladovka/internal/cli/repo"
	"Kladovka/internal/config"
)

// ReplayOutcome — итог одного прохода реплея очереди.
type ReplayOutcome struct {
	Confirmed       int
	PendingApproval int
	Failed          int
	Discarded       int
	Deferred        int
	// ResyncTypes — типы, по которым локальный кэш устарел (конфликты):
	// после реплея по ним стоит прогнать синк.
	ResyncTypes map[string]bool
}

// Replayer последовательно отправляет офлайн-мутации на сервер.
// Порядок строгий в пределах одной сущности; ошибка одной мутации
// блокирует только её «полосу», остальные сущности продолжаются.
type Replayer struct {
	cfg    *config.Config
	client *api.Client
	store  repo.Store
	locks  *TypeLocks

	workspaceID string
}

// NewReplayer собирает реплеер очереди.
func NewReplayer(cfg *config.Config, client *api.Client, store repo.Store, locks *TypeLocks, workspaceID string) *Replayer {
	return &Replayer{cfg: cfg, client: client, store: store, locks: locks, workspaceID: workspaceID}
}

// Enqueue ставит мутацию в очередь и записывает provisional-состояние в кэш.
// Для CREATE id генерируется локально, чтобы реплей был идемпотентным.
func (r *Replayer) Enqueue(entityType, action, entityID string, payload json.RawMessage) (*model.QueuedMutation, error) {
	if action == "CREATE" && entityID == "" {
		entityID = uuid.NewString()
	}
	if entityID == "" {
		return nil, errors.New("entity id is required")
	}

	var base *time.Time
	cur, err := r.store.GetRecord(entityType, entityID)
	if err != nil {
		return nil, err
	}
	if cur != nil && action != "CREATE" && !cur.Provisional {
		t := cur.ModifiedAt
		base = &t
	}

	m := &model.QueuedMutation{
		EntityType:     entityType,
		EntityID:       entityID,
		Action:         action,
		Payload:        payload,
		BaseModifiedAt: base,
	}
	if err := r.store.Enqueue(m); err != nil {
		return nil, err
	}

	rec := model.Record{
		EntityType: entityType,
		ID:         entityID,
		Payload:    payload,
		ModifiedAt: time.Now(),
		Deleted:    action == "DELETE",
	}
	if rec.Payload == nil && cur != nil {
		rec.Payload = cur.Payload
	}
	if err := r.store.SaveProvisional(rec); err != nil {
		return nil, err
	}
	return m, nil
}

// ReplayAll прогоняет всю очередь один раз.
func (r *Replayer) ReplayAll(ctx context.Context) (ReplayOutcome, error) {
	out := ReplayOutcome{ResyncTypes: make(map[string]bool)}

	muts, err := r.store.QueuedMutations()
	if err != nil {
		return out, err
	}
	if len(muts) == 0 {
		return out, nil
	}

	// Группируем по типу: реплей типа держит его блокировку, чтобы
	// параллельный синк не вмешался между запросом и записью результата.
	byType := make(map[string][]model.QueuedMutation)
	var typeOrder []string
	for _, m := range muts {
		if _, ok := byType[m.EntityType]; !ok {
			typeOrder = append(typeOrder, m.EntityType)
		}
		byType[m.EntityType] = append(byType[m.EntityType], m)
	}

	for _, t := range typeOrder {
		unlock := r.locks.Lock(t)
		r.replayType(ctx, byType[t], &out)
		unlock()
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
	}
	return out, nil
}

// replayType гонит мутации одного типа, по полосе на сущность:
// после первой неотправленной мутации полоса останавливается.
func (r *Replayer) replayType(ctx context.Context, muts []model.QueuedMutation, out *ReplayOutcome) {
	blocked := make(map[string]bool)
	now := time.Now()

	for i := range muts {
		m := muts[i]
		if blocked[m.EntityID] {
			out.Deferred++
			continue
		}
		if !m.NextRetryAt.IsZero() && m.NextRetryAt.After(now) {
			blocked[m.EntityID] = true
			out.Deferred++
			continue
		}
		if !r.replayOne(ctx, &m, out) {
			blocked[m.EntityID] = true
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// replayOne отправляет одну мутацию. Возвращает true, если полоса сущности
// может продолжаться (мутация подтверждена или отброшена).
func (r *Replayer) replayOne(ctx context.Context, m *model.QueuedMutation, out *ReplayOutcome) bool {
	req := api.MutateRequest{ID: m.EntityID, Payload: m.Payload, BaseModifiedAt: m.BaseModifiedAt}
	if m.Action == "UPDATE" && req.BaseModifiedAt == nil {
		// База не была известна при постановке: запись была provisional
		// из-за предыдущей мутации полосы. К моменту реплея предшественник
		// уже подтверждён или отброшен, и локальная запись снова несёт
		// актуальный (или заведомо конфликтный) modified_at.
		if cur, err := r.store.GetRecord(m.EntityType, m.EntityID); err == nil && cur != nil && !cur.Provisional {
			base := cur.ModifiedAt
			req.BaseModifiedAt = &base
		}
	}

	var resp *api.MutateResponse
	var code int
	backoff := retry.WithMaxRetries(2, retry.NewExponential(300*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		resp, code, callErr = r.client.Mutate(ctx, r.workspaceID, m.EntityType, m.Action, req)
		if callErr == nil {
			return nil
		}
		var apiErr *api.APIError
		if errors.As(callErr, &apiErr) && !apiErr.Transient() {
			return callErr
		}
		return retry.RetryableError(callErr)
	})

	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && !apiErr.Transient() {
			if apiErr.Conflict() {
				// База устарела: отбрасываем мутацию, локальную копию
				// перезапишет ближайший синк.
				_ = r.store.DeleteMutation(m.LocalID)
				_ = r.store.ResolveProvisional(m.EntityType, m.EntityID)
				out.Discarded++
				out.ResyncTypes[m.EntityType] = true
				return true
			}
			m.Status = model.MutationFailed
			m.FailureReason = apiErr.Message
			_ = r.store.UpdateMutation(m)
			out.Failed++
			return false
		}
		// Transient: откладываем с экспоненциальной паузой между проходами.
		m.AttemptCount++
		if m.AttemptCount >= r.cfg.ReplayMaxAttempt {
			m.Status = model.MutationFailed
			m.FailureReason = fmt.Sprintf("giving up after %d attempts: %v", m.AttemptCount, err)
			_ = r.store.UpdateMutation(m)
			out.Failed++
			return false
		}
		m.NextRetryAt = time.Now().Add(replayDelay(m.AttemptCount))
		_ = r.store.UpdateMutation(m)
		out.Deferred++
		return false
	}

	if code == http.StatusAccepted {
		// Мутация ушла на согласование: выходит из очереди реплея,
		// но provisional-состояние живёт до решения ревьюера.
		m.Status = model.MutationPendingApproval
		m.PendingChangeID = resp.PendingChangeID
		_ = r.store.UpdateMutation(m)
		out.PendingApproval++
		return false
	}

	// Подтверждено: фиксируем серверное состояние и снимаем мутацию.
	if resp.ID != "" {
		rec := model.Record{
			EntityType: m.EntityType,
			ID:         resp.ID,
			Payload:    resp.Payload,
			ModifiedAt: resp.ModifiedAt,
			Deleted:    resp.Deleted,
		}
		if err := r.store.SaveProvisional(rec); err == nil {
			_ = r.store.ResolveProvisional(rec.EntityType, rec.ID)
		}
	}
	_ = r.store.DeleteMutation(m.LocalID)
	out.Confirmed++
	return true
}

// replayDelay — пауза перед следующим проходом по неудачной мутации.
func replayDelay(attempt int) time.Duration {
	d := time.Second << uint(attempt-1)
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return d
}
