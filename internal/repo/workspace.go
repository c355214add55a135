package repo

import (
	"Kladovka/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkspaceRepository — доступ к workspace-ам и членству.
type WorkspaceRepository interface {
	// CreateWorkspace создаёт workspace и членство владельца (admin) одной транзакцией.
	CreateWorkspace(ctx context.Context, ws *model.Workspace) error

	// GetByID возвращает workspace или gorm.ErrRecordNotFound.
	GetByID(ctx context.Context, id string) (*model.Workspace, error)

	// UpsertMember добавляет участника или обновляет его роль.
	UpsertMember(ctx context.Context, m *model.Member) error

	// GetMemberRole возвращает роль пользователя в workspace.
	// Если пользователь не участник — ("", nil).
	GetMemberRole(ctx context.Context, workspaceID string, userID int64) (string, error)
}

type workspaceRepo struct {
	db *gorm.DB
}

// NewWorkspaceRepository создаёт реализацию репозитория workspace-ов.
func NewWorkspaceRepository(db *gorm.DB) WorkspaceRepository {
	return &workspaceRepo{db: db}
}

func (r *workspaceRepo) CreateWorkspace(ctx context.Context, ws *model.Workspace) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ws).Error; err != nil {
			return err
		}
		member := &model.Member{WorkspaceID: ws.ID, UserID: ws.OwnerID, Role: model.RoleAdmin}
		return tx.Create(member).Error
	})
}

func (r *workspaceRepo) GetByID(ctx context.Context, id string) (*model.Workspace, error) {
	var ws model.Workspace
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ws).Error; err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *workspaceRepo) UpsertMember(ctx context.Context, m *model.Member) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(m).Error
}

func (r *workspaceRepo) GetMemberRole(ctx context.Context, workspaceID string, userID int64) (string, error) {
	var m model.Member
	err := r.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return m.Role, nil
}
