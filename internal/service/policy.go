package service

import "Kladovka/internal/model"

// Политика доступа и гейтинга. Единственная точка ответа на вопрос «нужно ли
// этому действию ревью» — и прямой путь записи, и Approval Engine ходят сюда,
// поэтому разойтись в решении они не могут.

// CanWrite сообщает, может ли роль вообще изменять записи.
func CanWrite(role string) bool {
	switch role {
	case model.RoleEditor, model.RoleManager, model.RoleAdmin:
		return true
	}
	return false
}

// CanReview сообщает, может ли роль одобрять/отклонять отложенные изменения.
func CanReview(role string) bool {
	return role == model.RoleManager || role == model.RoleAdmin
}

// IsGated сообщает, требует ли мутация ревью: тип сущности включён в гейтинг
// workspace-а, а роль — editor. Менеджеры и админы пишут напрямую.
func IsGated(ws *model.Workspace, entityType, action, role string) bool {
	if role == model.RoleManager || role == model.RoleAdmin {
		return false
	}
	_ = action // сейчас гейтинг по типу; действие в сигнатуре — для расширения
	return ws.GatedTypeSet()[entityType]
}

// GatingMap возвращает карту «тип -> гейтится ли» для роли вызывающего.
// Клиент запрашивает её раз в сессию и подсвечивает отложенные записи.
func GatingMap(ws *model.Workspace, role string) map[string]bool {
	m := make(map[string]bool, len(validators))
	for _, t := range KnownEntityTypes() {
		m[t] = IsGated(ws, t, model.ActionUpdate, role)
	}
	return m
}
