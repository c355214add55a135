package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// GetDelta запрашивает дельту одного типа сущностей от курсора (nil — полный снапшот).
func (c *Client) GetDelta(ctx context.Context, workspaceID, entityType string, cursor *CursorDTO, limit int) (DeltaResponse, error) {
	q := url.Values{}
	q.Set("entity_types", entityType)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != nil {
		q.Set("modified_since", cursor.ModifiedAt.Format("2006-01-02T15:04:05.999999999Z07:00"))
		q.Set("last_id", cursor.LastID)
	}
	var out DeltaResponse
	_, err := c.DoJSON(ctx, http.MethodGet, "/api/workspaces/"+workspaceID+"/sync/delta?"+q.Encode(), nil, &out)
	return out, err
}

// Mutate отправляет мутацию записи. Код 202 означает отправку на согласование.
func (c *Client) Mutate(ctx context.Context, workspaceID, entityType, action string, req MutateRequest) (*MutateResponse, int, error) {
	base := "/api/workspaces/" + workspaceID + "/records/" + entityType
	var method, path string
	switch action {
	case "CREATE":
		method, path = http.MethodPost, base
	case "UPDATE":
		method, path = http.MethodPut, base+"/"+req.ID
	case "DELETE":
		method, path = http.MethodDelete, base+"/"+req.ID
	default:
		return nil, 0, fmt.Errorf("unknown action %q", action)
	}
	var out MutateResponse
	code, err := c.DoJSON(ctx, method, path, req, &out)
	if err != nil {
		return nil, code, err
	}
	return &out, code, nil
}

// ListPending возвращает отложенные изменения воркспейса, опционально по статусу.
func (c *Client) ListPending(ctx context.Context, workspaceID, status string) ([]PendingChangeDTO, error) {
	path := "/api/workspaces/" + workspaceID + "/pending-changes"
	if status != "" {
		path += "?status=" + url.QueryEscape(strings.ToUpper(status))
	}
	var out []PendingChangeDTO
	_, err := c.DoJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Approve подтверждает отложенное изменение.
func (c *Client) Approve(ctx context.Context, changeID string) (*PendingChangeDTO, error) {
	var out PendingChangeDTO
	_, err := c.DoJSON(ctx, http.MethodPost, "/api/pending-changes/"+changeID+"/approve", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Reject отклоняет отложенное изменение с обязательной причиной.
func (c *Client) Reject(ctx context.Context, changeID, reason string) (*PendingChangeDTO, error) {
	body := map[string]string{"reason": reason}
	var out PendingChangeDTO
	_, err := c.DoJSON(ctx, http.MethodPost, "/api/pending-changes/"+changeID+"/reject", body, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Policy возвращает роль пользователя и карту гейтинга воркспейса.
func (c *Client) Policy(ctx context.Context, workspaceID string) (*PolicyResponse, error) {
	var out PolicyResponse
	_, err := c.DoJSON(ctx, http.MethodGet, "/api/workspaces/"+workspaceID+"/policy", nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateWorkspace создаёт воркспейс; создатель становится админом.
func (c *Client) CreateWorkspace(ctx context.Context, name string, gatedTypes []string) (string, error) {
	body := map[string]any{"name": name, "gated_types": gatedTypes}
	var out struct {
		ID string `json:"id"`
	}
	_, err := c.DoJSON(ctx, http.MethodPost, "/api/workspaces", body, &out)
	return out.ID, err
}

// AddMember добавляет или обновляет участника воркспейса.
func (c *Client) AddMember(ctx context.Context, workspaceID string, userID int64, role string) error {
	body := map[string]any{"user_id": userID, "role": role}
	_, err := c.DoJSON(ctx, http.MethodPost, "/api/workspaces/"+workspaceID+"/members", body, nil)
	return err
}
