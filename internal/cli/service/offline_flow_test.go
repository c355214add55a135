package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
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

	"Kladovka/internal/broadcast"
	"Kladovka/internal/cli/api"
	"Kladovka/internal/cli/model"
	"Kladovka/internal/config"
	"Kladovka/internal/handlers"
	srvmodel "Kladovka/internal/model"
	srvrepo "Kladovka/internal/repo"
	srv "Kladovka/internal/service"
)

// newSyncBackend поднимает настоящий сервер на in-memory БД.
func newSyncBackend(t *testing.T) *httptest.Server {
	t.Helper()
	// Уникальное имя и cache=shared: иначе каждое соединение пула получает
	// собственную пустую in-memory БД и транзакции не видят мигрированные таблицы.
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	dial := gormsqlite.Dialector{DriverName: "sqlite", DSN: dsn}
	db, err := gorm.Open(dial, &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&srvmodel.User{}, &srvmodel.Workspace{}, &srvmodel.Member{},
		&srvmodel.Record{}, &srvmodel.PendingChange{}))

	logger := zap.NewNop().Sugar()
	cfg := &config.Config{AuthSecret: "flow-secret", SSEHeartbeat: time.Second, EventBufferSize: 16}
	userRepo := srvrepo.NewUserRepository(db)
	wsRepo := srvrepo.NewWorkspaceRepository(db)
	recRepo := srvrepo.NewRecordRepository(db)
	bus := broadcast.New(cfg.EventBufferSize, logger)
	approvals := srv.NewApprovalService(db, wsRepo, bus, logger)

	h := handlers.NewHandler(
		srv.NewUserService(userRepo),
		srv.NewWorkspaceService(wsRepo),
		srv.NewSyncService(recRepo, wsRepo, logger),
		srv.NewMutationService(recRepo, wsRepo, approvals, bus, logger),
		approvals,
		bus, logger, cfg,
	)
	ts := httptest.NewServer(h.Router)
	t.Cleanup(ts.Close)
	return ts
}

// registerFlowUser регистрирует пользователя и возвращает auth-токен и id.
func registerFlowUser(t *testing.T, ts *httptest.Server, login string) (string, int64) {
	t.Helper()
	body, err := json.Marshal(map[string]string{"login": login, "password": "secret123"})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/user/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var u struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&u))
	for _, c := range resp.Cookies() {
		if c.Name == "auth_token" {
			return c.Value, u.ID
		}
	}
	t.Fatal("no auth cookie in register response")
	return "", 0
}

// Полный офлайн-цикл против настоящего сервера: прямая и гейтированная правки
// в очереди, реплей после реконнекта, одобрение третьим участником и дельта
// от прежнего курсора, приносящая запись ровно один раз.
func TestOfflineEditsFlowThroughApprovalAndSync(t *testing.T) {
	ts := newSyncBackend(t)
	ctx := context.Background()

	adminTok, _ := registerFlowUser(t, ts, "boss")
	editorTok, editorUID := registerFlowUser(t, ts, "ed")
	mgrTok, mgrUID := registerFlowUser(t, ts, "rev")

	admin := &api.Client{BaseURL: ts.URL, Token: adminTok, HTTP: ts.Client()}
	wsID, err := admin.CreateWorkspace(ctx, "garage", []string{"item"})
	require.NoError(t, err)
	require.NoError(t, admin.AddMember(ctx, wsID, editorUID, "editor"))
	require.NoError(t, admin.AddMember(ctx, wsID, mgrUID, "manager"))

	// менеджер кладёт первую запись напрямую
	mgr := &api.Client{BaseURL: ts.URL, Token: mgrTok, HTTP: ts.Client()}
	_, code, err := mgr.Mutate(ctx, wsID, "item", "CREATE",
		api.MutateRequest{Payload: json.RawMessage(`{"name":"hammer"}`)})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, code)

	// клиент редактора: начальный синк, затем правки в офлайне
	editor := &api.Client{BaseURL: ts.URL, Token: editorTok, HTTP: ts.Client()}
	store := newStore(t)
	locks := NewTypeLocks()
	cfg := testCfg()
	replayer := NewReplayer(cfg, editor, store, locks, wsID)
	syncer := NewSyncer(cfg, editor, store, locks, wsID)

	rep := syncer.SyncAll(ctx, []string{"item", "location"})
	require.Empty(t, rep.Errors)
	require.Equal(t, 1, rep.Applied["item"])

	_, err = replayer.Enqueue("location", "CREATE", "", json.RawMessage(`{"name":"shelf"}`))
	require.NoError(t, err)
	gatedMut, err := replayer.Enqueue("item", "CREATE", "", json.RawMessage(`{"name":"drill"}`))
	require.NoError(t, err)

	// реконнект: реплей очереди
	out, err := replayer.ReplayAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Confirmed)       // location применилась напрямую
	assert.Equal(t, 1, out.PendingApproval) // item ушла на согласование

	pendingMuts, err := store.MutationsByStatus(model.MutationPendingApproval)
	require.NoError(t, err)
	require.Len(t, pendingMuts, 1)
	pcID := pendingMuts[0].PendingChangeID
	require.NotEmpty(t, pcID)

	// до одобрения дельта не выдаёт неодобренную запись
	n, err := syncer.SyncType(ctx, "item")
	require.NoError(t, err)
	assert.Zero(t, n)

	// третий участник одобряет
	_, err = mgr.Approve(ctx, pcID)
	require.NoError(t, err)

	// решение закрывает мутацию, затем дельта от прежнего курсора
	resolver := NewResolver(store, locks)
	data, err := json.Marshal(api.ResolutionData{PendingChangeID: pcID, Status: "APPROVED"})
	require.NoError(t, err)
	resync, err := resolver.Resolve(api.Event{Type: "change.approved", EntityType: "item", Data: data})
	require.NoError(t, err)
	assert.Equal(t, "item", resync)

	n, err = syncer.SyncType(ctx, "item")
	require.NoError(t, err)
	assert.Equal(t, 1, n) // одобренная запись приходит ровно один раз

	items, err := store.ListRecords("item")
	require.NoError(t, err)
	require.Len(t, items, 2) // hammer и drill, без дубликатов
	seen := map[string]bool{}
	for _, it := range items {
		assert.False(t, it.Provisional)
		require.False(t, seen[it.ID])
		seen[it.ID] = true
	}
	assert.True(t, seen[gatedMut.EntityID]) // сервер сохранил клиентский id

	locs, err := store.ListRecords("location")
	require.NoError(t, err)
	require.Len(t, locs, 1)

	queued, err := store.QueuedMutations()
	require.NoError(t, err)
	assert.Empty(t, queued)
}
