package service

import (
	"Kladovka/internal/model"
	"Kladovka/internal/repo"
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WorkspaceService — операции над workspace-ами и членством.
type WorkspaceService struct {
	repo repo.WorkspaceRepository
}

func NewWorkspaceService(r repo.WorkspaceRepository) *WorkspaceService {
	return &WorkspaceService{repo: r}
}

// Create создаёт workspace; создатель становится admin. gatedTypes — типы
// сущностей, записи редакторов в которые пойдут через ревью.
func (s *WorkspaceService) Create(ctx context.Context, ownerID int64, name string, gatedTypes []string) (*model.Workspace, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	for _, t := range gatedTypes {
		if !KnownEntityType(t) {
			return nil, &ValidationError{Field: "gated_types", Reason: "unknown entity type " + t}
		}
	}
	gated, err := json.Marshal(gatedTypes)
	if err != nil {
		return nil, err
	}
	ws := &model.Workspace{
		ID:         uuid.NewString(),
		Name:       name,
		OwnerID:    ownerID,
		GatedTypes: gated,
	}
	if err := s.repo.CreateWorkspace(ctx, ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// AddMember добавляет участника (или меняет роль). Только admin.
func (s *WorkspaceService) AddMember(ctx context.Context, actorID int64, workspaceID string, userID int64, role string) error {
	if !model.ValidRole(role) {
		return &ValidationError{Field: "role", Reason: "unknown role " + role}
	}
	actorRole, err := s.memberRole(ctx, actorID, workspaceID)
	if err != nil {
		return err
	}
	if actorRole != model.RoleAdmin {
		return &PermissionError{Reason: "only admin can manage members"}
	}
	return s.repo.UpsertMember(ctx, &model.Member{WorkspaceID: workspaceID, UserID: userID, Role: role})
}

// Policy возвращает карту гейтинга для роли вызывающего.
func (s *WorkspaceService) Policy(ctx context.Context, userID int64, workspaceID string) (map[string]bool, string, error) {
	ws, err := s.repo.GetByID(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", &NotFoundError{Kind: "workspace", ID: workspaceID}
		}
		return nil, "", err
	}
	role, err := s.repo.GetMemberRole(ctx, workspaceID, userID)
	if err != nil {
		return nil, "", err
	}
	if role == "" {
		return nil, "", &PermissionError{Reason: "not a workspace member"}
	}
	return GatingMap(ws, role), role, nil
}

// MemberRole — роль пользователя в workspace (или PermissionError).
func (s *WorkspaceService) MemberRole(ctx context.Context, userID int64, workspaceID string) (string, error) {
	return s.memberRole(ctx, userID, workspaceID)
}

func (s *WorkspaceService) memberRole(ctx context.Context, userID int64, workspaceID string) (string, error) {
	if _, err := s.repo.GetByID(ctx, workspaceID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", &NotFoundError{Kind: "workspace", ID: workspaceID}
		}
		return "", err
	}
	role, err := s.repo.GetMemberRole(ctx, workspaceID, userID)
	if err != nil {
		return "", err
	}
	if role == "" {
		return "", &PermissionError{Reason: "not a workspace member"}
	}
	return role, nil
}
