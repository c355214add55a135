package service

import (
	"Kladovka/internal/broadcast"
	"Kladovka/internal/model"
	"Kladovka/internal/repo"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

// Фикстура: workspace с гейтингом по item и пользователи всех ролей.
const (
	wsID = "11111111-1111-1111-1111-111111111111"

	adminID   int64 = 1
	editorID  int64 = 2
	managerID int64 = 3
	viewerID  int64 = 4
	editor2ID int64 = 5
	outsider  int64 = 99
)

type testEnv struct {
	db         *gorm.DB
	records    repo.RecordRepository
	workspaces repo.WorkspaceRepository
	bus        *broadcast.Broadcaster

	mutations *MutationService
	approvals *ApprovalService
	sync      *SyncService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	// Уникальное имя и cache=shared: иначе каждое соединение пула получает
	// собственную пустую in-memory БД и транзакции не видят мигрированные таблицы.
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	dial := gormsqlite.Dialector{DriverName: "sqlite", DSN: dsn}
	db, err := gorm.Open(dial, &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{}, &model.Workspace{}, &model.Member{}, &model.Record{}, &model.PendingChange{}))

	records := repo.NewRecordRepository(db)
	workspaces := repo.NewWorkspaceRepository(db)
	bus := broadcast.New(16, zap.NewNop().Sugar())
	logger := zap.NewNop().Sugar()

	approvals := NewApprovalService(db, workspaces, bus, logger)
	mutations := NewMutationService(records, workspaces, approvals, bus, logger)
	sync := NewSyncService(records, workspaces, logger)

	env := &testEnv{
		db:         db,
		records:    records,
		workspaces: workspaces,
		bus:        bus,
		mutations:  mutations,
		approvals:  approvals,
		sync:       sync,
	}
	env.seed(t)
	return env
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	gated, _ := json.Marshal([]string{TypeItem})
	ws := &model.Workspace{ID: wsID, Name: "garage", OwnerID: adminID, GatedTypes: gated}
	require.NoError(t, e.workspaces.CreateWorkspace(ctx, ws))
	for uid, role := range map[int64]string{
		editorID:  model.RoleEditor,
		managerID: model.RoleManager,
		viewerID:  model.RoleViewer,
		editor2ID: model.RoleEditor,
	} {
		require.NoError(t, e.workspaces.UpsertMember(ctx, &model.Member{
			WorkspaceID: wsID, UserID: uid, Role: role,
		}))
	}
}

func itemReq(action, recordID, payload string) MutationRequest {
	req := MutationRequest{
		WorkspaceID: wsID,
		EntityType:  TypeItem,
		Action:      action,
		RecordID:    recordID,
	}
	if payload != "" {
		req.Payload = []byte(payload)
	}
	return req
}

func locationReq(action, recordID, payload string) MutationRequest {
	req := itemReq(action, recordID, payload)
	req.EntityType = TypeLocation
	return req
}
