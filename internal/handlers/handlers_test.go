package handlers

import (
	"Kladovka/internal/broadcast"
	"Kladovka/internal/config"
	"Kladovka/internal/model"
	"Kladovka/internal/repo"
	"Kladovka/internal/service"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	// Уникальное имя и cache=shared: иначе каждое соединение пула получает
	// собственную пустую in-memory БД и транзакции не видят мигрированные таблицы.
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	dial := gormsqlite.Dialector{DriverName: "sqlite", DSN: dsn}
	db, err := gorm.Open(dial, &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{}, &model.Workspace{}, &model.Member{}, &model.Record{}, &model.PendingChange{}))

	logger := zap.NewNop().Sugar()
	cfg := &config.Config{AuthSecret: "test-secret", SSEHeartbeat: time.Second, EventBufferSize: 16}

	userRepo := repo.NewUserRepository(db)
	wsRepo := repo.NewWorkspaceRepository(db)
	recRepo := repo.NewRecordRepository(db)
	bus := broadcast.New(cfg.EventBufferSize, logger)

	userSvc := service.NewUserService(userRepo)
	wsSvc := service.NewWorkspaceService(wsRepo)
	syncSvc := service.NewSyncService(recRepo, wsRepo, logger)
	approvalSvc := service.NewApprovalService(db, wsRepo, bus, logger)
	mutationSvc := service.NewMutationService(recRepo, wsRepo, approvalSvc, bus, logger)

	h := NewHandler(userSvc, wsSvc, syncSvc, mutationSvc, approvalSvc, bus, logger, cfg)
	ts := httptest.NewServer(h.Router)
	t.Cleanup(ts.Close)
	return ts
}

// registerUser регистрирует пользователя и возвращает клиента с auth cookie и id.
func registerUser(t *testing.T, ts *httptest.Server, login string) (*http.Client, int64) {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	status, body := doJSON(t, client, http.MethodPost, ts.URL+"/api/user/register",
		map[string]string{"login": login, "password": "secret123"})
	require.Equal(t, http.StatusOK, status, string(body))

	var u struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &u))
	return client, u.ID
}

func doJSON(t *testing.T, client *http.Client, method, url string, payload any) (int, []byte) {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

func TestUserRoutes(t *testing.T) {
	ts := newTestServer(t)

	client, _ := registerUser(t, ts, "alice")

	// дубликат логина
	status, _ := doJSON(t, client, http.MethodPost, ts.URL+"/api/user/register",
		map[string]string{"login": "alice", "password": "x"})
	assert.Equal(t, http.StatusConflict, status)

	// вход с неверным паролем
	status, _ = doJSON(t, client, http.MethodPost, ts.URL+"/api/user/login",
		map[string]string{"login": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)

	// статус с cookie и без
	status, _ = doJSON(t, client, http.MethodPost, ts.URL+"/api/user/test", nil)
	assert.Equal(t, http.StatusOK, status)

	anon := &http.Client{}
	status, _ = doJSON(t, anon, http.MethodPost, ts.URL+"/api/user/test", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

// setupWorkspace создаёт workspace с гейтингом item и трёх участников.
func setupWorkspace(t *testing.T, ts *httptest.Server) (admin, editor, reviewer *http.Client, wsID string) {
	t.Helper()
	admin, _ = registerUser(t, ts, "boss")
	editor, editorUID := registerUser(t, ts, "ed")
	reviewer, reviewerUID := registerUser(t, ts, "rev")

	status, body := doJSON(t, admin, http.MethodPost, ts.URL+"/api/workspaces",
		map[string]any{"name": "garage", "gated_types": []string{"item"}})
	require.Equal(t, http.StatusCreated, status, string(body))
	var ws struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &ws))
	wsID = ws.ID

	for uid, role := range map[int64]string{editorUID: "editor", reviewerUID: "manager"} {
		status, body = doJSON(t, admin, http.MethodPost, ts.URL+"/api/workspaces/"+wsID+"/members",
			map[string]any{"user_id": uid, "role": role})
		require.Equal(t, http.StatusOK, status, string(body))
	}
	return admin, editor, reviewer, wsID
}

func TestGatedMutationLifecycle(t *testing.T) {
	ts := newTestServer(t)
	_, editor, reviewer, wsID := setupWorkspace(t, ts)
	recordsURL := ts.URL + "/api/workspaces/" + wsID + "/records/item"

	// editor пишет в гейтированный тип — 202 с id изменения
	status, body := doJSON(t, editor, http.MethodPost, recordsURL,
		map[string]any{"payload": map[string]any{"name": "drill", "quantity": 1}})
	require.Equal(t, http.StatusAccepted, status, string(body))
	var pending struct {
		PendingChangeID string `json:"pending_change_id"`
		Status          string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body, &pending))
	assert.Equal(t, "PENDING", pending.Status)
	require.NotEmpty(t, pending.PendingChangeID)

	// до одобрения дельта пуста
	status, body = doJSON(t, reviewer, http.MethodGet,
		ts.URL+"/api/workspaces/"+wsID+"/sync/delta?entity_types=item", nil)
	require.Equal(t, http.StatusOK, status)
	var delta map[string]struct {
		Upserts    []json.RawMessage `json:"upserts"`
		Tombstones []string          `json:"tombstones"`
	}
	require.NoError(t, json.Unmarshal(body, &delta))
	assert.Empty(t, delta["item"].Upserts)

	// сам автор одобрить не может
	approveURL := ts.URL + "/api/pending-changes/" + pending.PendingChangeID + "/approve"
	status, body = doJSON(t, editor, http.MethodPost, approveURL, nil)
	assert.Equal(t, http.StatusForbidden, status, string(body))

	// ревьюер одобряет; повтор — идемпотентный успех
	status, body = doJSON(t, reviewer, http.MethodPost, approveURL, nil)
	require.Equal(t, http.StatusOK, status, string(body))
	status, _ = doJSON(t, reviewer, http.MethodPost, approveURL, nil)
	assert.Equal(t, http.StatusOK, status)

	// запись появилась в дельте
	status, body = doJSON(t, editor, http.MethodGet,
		ts.URL+"/api/workspaces/"+wsID+"/sync/delta?entity_types=item", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &delta))
	assert.Len(t, delta["item"].Upserts, 1)
}

func TestRejectLifecycle(t *testing.T) {
	ts := newTestServer(t)
	_, editor, reviewer, wsID := setupWorkspace(t, ts)
	recordsURL := ts.URL + "/api/workspaces/" + wsID + "/records/item"

	status, body := doJSON(t, editor, http.MethodPost, recordsURL,
		map[string]any{"payload": map[string]any{"name": "saw"}})
	require.Equal(t, http.StatusAccepted, status)
	var pending struct {
		PendingChangeID string `json:"pending_change_id"`
	}
	require.NoError(t, json.Unmarshal(body, &pending))

	rejectURL := ts.URL + "/api/pending-changes/" + pending.PendingChangeID + "/reject"

	// причина обязательна
	status, body = doJSON(t, reviewer, http.MethodPost, rejectURL, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status, string(body))

	status, _ = doJSON(t, reviewer, http.MethodPost, rejectURL, map[string]string{"reason": "duplicate"})
	require.Equal(t, http.StatusOK, status)

	// одобрить после отклонения нельзя
	status, body = doJSON(t, reviewer, http.MethodPost,
		ts.URL+"/api/pending-changes/"+pending.PendingChangeID+"/approve", nil)
	assert.Equal(t, http.StatusConflict, status)
	var eb struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(body, &eb))
	assert.Equal(t, "already_reviewed", eb.Code)

	// автор видит отклонение со статусом и причиной в списке
	status, body = doJSON(t, editor, http.MethodGet,
		ts.URL+"/api/workspaces/"+wsID+"/pending-changes?status=REJECTED", nil)
	require.Equal(t, http.StatusOK, status)
	var list []struct {
		Status          string `json:"status"`
		RejectionReason string `json:"rejection_reason"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "REJECTED", list[0].Status)
	assert.Equal(t, "duplicate", list[0].RejectionReason)
}

func TestDirectMutationAndConflict(t *testing.T) {
	ts := newTestServer(t)
	_, editor, _, wsID := setupWorkspace(t, ts)
	locURL := ts.URL + "/api/workspaces/" + wsID + "/records/location"

	// location не гейтится — editor пишет напрямую
	status, body := doJSON(t, editor, http.MethodPost, locURL,
		map[string]any{"payload": map[string]any{"name": "shelf A"}})
	require.Equal(t, http.StatusCreated, status, string(body))
	var rec struct {
		ID         string    `json:"id"`
		ModifiedAt time.Time `json:"modified_at"`
	}
	require.NoError(t, json.Unmarshal(body, &rec))

	// update со свежим base
	status, body = doJSON(t, editor, http.MethodPut, locURL+"/"+rec.ID,
		map[string]any{"payload": map[string]any{"name": "shelf B"}, "base_modified_at": rec.ModifiedAt})
	require.Equal(t, http.StatusOK, status, string(body))

	// повтор с тем же base — конфликт с кодом и актуальным modified_at
	status, body = doJSON(t, editor, http.MethodPut, locURL+"/"+rec.ID,
		map[string]any{"payload": map[string]any{"name": "shelf C"}, "base_modified_at": rec.ModifiedAt})
	assert.Equal(t, http.StatusConflict, status)
	var eb struct {
		Code       string     `json:"code"`
		ModifiedAt *time.Time `json:"modified_at"`
	}
	require.NoError(t, json.Unmarshal(body, &eb))
	assert.Equal(t, "conflict", eb.Code)
	assert.NotNil(t, eb.ModifiedAt)

	// delete и tombstone в инкрементальной дельте
	status, _ = doJSON(t, editor, http.MethodDelete, locURL+"/"+rec.ID, nil)
	require.Equal(t, http.StatusOK, status)

	status, body = doJSON(t, editor, http.MethodGet,
		ts.URL+"/api/workspaces/"+wsID+"/sync/delta?entity_types=location&modified_since="+
			rec.ModifiedAt.UTC().Format(time.RFC3339Nano)+"&last_id="+rec.ID, nil)
	require.Equal(t, http.StatusOK, status)
	var delta map[string]struct {
		Tombstones []string `json:"tombstones"`
	}
	require.NoError(t, json.Unmarshal(body, &delta))
	assert.Contains(t, delta["location"].Tombstones, rec.ID)
}

func TestMutationAccess(t *testing.T) {
	ts := newTestServer(t)
	admin, _, _, wsID := setupWorkspace(t, ts)
	itemURL := ts.URL + "/api/workspaces/" + wsID + "/records/item"

	// без cookie — 401
	anon := &http.Client{}
	status, _ := doJSON(t, anon, http.MethodPost, itemURL,
		map[string]any{"payload": map[string]any{"name": "x"}})
	assert.Equal(t, http.StatusUnauthorized, status)

	// не-участник — 403
	stranger, _ := registerUser(t, ts, "stranger")
	status, body := doJSON(t, stranger, http.MethodPost, itemURL,
		map[string]any{"payload": map[string]any{"name": "x"}})
	assert.Equal(t, http.StatusForbidden, status, string(body))

	// неизвестный тип — 400
	status, _ = doJSON(t, admin, http.MethodPost,
		ts.URL+"/api/workspaces/"+wsID+"/records/spaceship",
		map[string]any{"payload": map[string]any{"name": "x"}})
	assert.Equal(t, http.StatusBadRequest, status)

	// чужой workspace — 404
	status, _ = doJSON(t, admin, http.MethodPost,
		ts.URL+"/api/workspaces/44444444-4444-4444-4444-444444444444/records/item",
		map[string]any{"payload": map[string]any{"name": "x"}})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPolicyEndpoint(t *testing.T) {
	ts := newTestServer(t)
	_, editor, reviewer, wsID := setupWorkspace(t, ts)

	status, body := doJSON(t, editor, http.MethodGet, ts.URL+"/api/workspaces/"+wsID+"/policy", nil)
	require.Equal(t, http.StatusOK, status)
	var pol struct {
		Role       string          `json:"role"`
		GatedTypes map[string]bool `json:"gated"`
	}
	require.NoError(t, json.Unmarshal(body, &pol))
	assert.Equal(t, "editor", pol.Role)
	assert.True(t, pol.GatedTypes["item"])
	assert.False(t, pol.GatedTypes["location"])

	status, body = doJSON(t, reviewer, http.MethodGet, ts.URL+"/api/workspaces/"+wsID+"/policy", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &pol))
	assert.Equal(t, "manager", pol.Role)
	assert.False(t, pol.GatedTypes["item"])
}
