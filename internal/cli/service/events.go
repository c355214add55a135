package service

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"Kladovka/internal/cli/api"
	"Kladovka/internal/cli/repo"
)

// Resolver применяет решения по отложенным изменениям к локальной очереди.
type Resolver struct {
	store repo.Store
	locks *TypeLocks
}

// NewResolver собирает резолвер.
func NewResolver(store repo.Store, locks *TypeLocks) *Resolver {
	return &Resolver{store: store, locks: locks}
}

// Resolve обрабатывает событие change.approved / change.rejected.
// Возвращает тип сущности, который стоит пересинхронизировать
// ("" — событие чужое или нерелевантное).
func (r *Resolver) Resolve(ev api.Event) (string, error) {
	if ev.Type != "change.approved" && ev.Type != "change.rejected" {
		return "", nil
	}
	var data api.ResolutionData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		return "", fmt.Errorf("decode resolution: %w", err)
	}
	m, err := r.store.MutationByPendingChange(data.PendingChangeID)
	if err != nil {
		return "", err
	}
	if m == nil {
		// Изменение подано с другого устройства: локально нечего закрывать,
		// но свежее состояние стоит подтянуть.
		return ev.EntityType, nil
	}

	unlock := r.locks.Lock(m.EntityType)
	defer unlock()

	if ev.Type == "change.rejected" {
		// Откатываем provisional-состояние: созданную запись убираем,
		// изменённую вернёт ближайший синк.
		if m.Action == "CREATE" {
			if err := r.store.DeleteRecord(m.EntityType, m.EntityID); err != nil {
				return "", err
			}
		} else {
			if err := r.store.ResolveProvisional(m.EntityType, m.EntityID); err != nil {
				return "", err
			}
		}
	} else {
		if err := r.store.ResolveProvisional(m.EntityType, m.EntityID); err != nil {
			return "", err
		}
	}
	if err := r.store.DeleteMutation(m.LocalID); err != nil {
		return "", err
	}
	return m.EntityType, nil
}

// ListenEvents читает SSE-поток воркспейса и зовёт handler на каждое событие.
// Блокируется до обрыва потока или отмены ctx.
func ListenEvents(ctx context.Context, client *api.Client, workspaceID string, handler func(api.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		client.BaseURL+"/api/workspaces/"+workspaceID+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if client.Token != "" {
		req.Header.Set("Cookie", "auth_token="+client.Token)
	}

	// Отдельный клиент без общего таймаута: поток живёт, пока жив ctx.
	httpClient := &http.Client{Transport: client.HTTP.Transport}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream: status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue // heartbeat-комментарии и пустые строки
		}
		var ev api.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		handler(ev)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scanner.Err()
}
