package model

import (
	"encoding/json"
	"time"
)

// Роли участников рабочего пространства.
const (
	RoleViewer  = "viewer"
	RoleEditor  = "editor"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// ValidRole проверяет, что строка — одна из известных ролей.
func ValidRole(role string) bool {
	switch role {
	case RoleViewer, RoleEditor, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Workspace — рабочее пространство (tenant). GatedTypes — JSON-список типов
// сущностей, записи которых от редакторов требуют ревью перед применением.
type Workspace struct {
	ID      string `gorm:"primaryKey;type:uuid"`
	Name    string `gorm:"not null"`
	OwnerID int64  `gorm:"not null;index"`

	GatedTypes []byte `gorm:"type:jsonb"` // JSON array of entity type names

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// GatedTypeSet разбирает GatedTypes в множество. Пустая/битая колонка — пустое множество.
func (w *Workspace) GatedTypeSet() map[string]bool {
	set := map[string]bool{}
	if len(w.GatedTypes) == 0 {
		return set
	}
	var types []string
	if err := json.Unmarshal(w.GatedTypes, &types); err != nil {
		return set
	}
	for _, t := range types {
		set[t] = true
	}
	return set
}

// Member — членство пользователя в workspace с ролью.
type Member struct {
	WorkspaceID string `gorm:"primaryKey;type:uuid"`
	UserID      int64  `gorm:"primaryKey"`
	Role        string `gorm:"not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}
