package bootstrap

import (
	"fmt"

	"Kladovka/internal/cli/api"
	"Kladovka/internal/cli/repo"
	fsrepo "Kladovka/internal/cli/repo/fs"
	reposqlite "Kladovka/internal/cli/repo/sqlite"
	"Kladovka/internal/config"
)

// Session — открытый рабочий контекст команды: API-клиент с токеном,
// локальное хранилище текущего пользователя и активный воркспейс.
type Session struct {
	Client      *api.Client
	Store       repo.Store
	WorkspaceID string
}

// OpenStore открывает локальное хранилище текущего пользователя,
// выполняет миграции и возвращает (store, cleanup, error).
func OpenStore() (repo.Store, func() error, error) {
	login, err := (fsrepo.AuthFSStore{}).LoadLogin()
	if err != nil {
		return nil, nil, fmt.Errorf("нет активного пользователя: выполните login/register: %w", err)
	}
	s, _, err := reposqlite.OpenForUser(login)
	if err != nil {
		return nil, nil, fmt.Errorf("open user db: %w", err)
	}
	if err := s.Migrate(); err != nil {
		_ = s.Close()
		return nil, nil, fmt.Errorf("migrate user db: %w", err)
	}
	cleanup := func() error { return s.Close() }
	return s, cleanup, nil
}

// OpenSession открывает полный контекст: токен, хранилище и воркспейс.
// cleanup необходимо вызвать после окончания работы.
func OpenSession(cfg *config.Config) (*Session, func() error, error) {
	auth := fsrepo.AuthFSStore{}
	token, err := auth.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("нет auth-токена: выполните login/register: %w", err)
	}
	ws, err := auth.LoadWorkspace()
	if err != nil {
		return nil, nil, err
	}
	store, cleanup, err := OpenStore()
	if err != nil {
		return nil, nil, err
	}
	return &Session{
		Client:      api.NewClient(cfg, token),
		Store:       store,
		WorkspaceID: ws,
	}, cleanup, nil
}
