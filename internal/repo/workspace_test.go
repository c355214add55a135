package repo

import (
	"Kladovka/internal/model"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceRepository_CreateAndMembers(t *testing.T) {
	db := newTestDB(t)
	r := NewWorkspaceRepository(db)
	ctx := context.Background()

	ws := &model.Workspace{ID: testWS, Name: "garage", OwnerID: 7}
	require.NoError(t, r.CreateWorkspace(ctx, ws))

	// владелец автоматически становится админом
	role, err := r.GetMemberRole(ctx, testWS, 7)
	assert.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, role)

	// не-участник — пустая роль без ошибки
	role, err = r.GetMemberRole(ctx, testWS, 99)
	assert.NoError(t, err)
	assert.Empty(t, role)

	// добавление и смена роли через upsert
	require.NoError(t, r.UpsertMember(ctx, &model.Member{WorkspaceID: testWS, UserID: 8, Role: model.RoleEditor}))
	role, _ = r.GetMemberRole(ctx, testWS, 8)
	assert.Equal(t, model.RoleEditor, role)

	require.NoError(t, r.UpsertMember(ctx, &model.Member{WorkspaceID: testWS, UserID: 8, Role: model.RoleManager}))
	role, _ = r.GetMemberRole(ctx, testWS, 8)
	assert.Equal(t, model.RoleManager, role)

	got, err := r.GetByID(ctx, testWS)
	assert.NoError(t, err)
	assert.Equal(t, "garage", got.Name)
}
