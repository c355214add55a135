package fs

import (
	"errors"
	"os"
	"path/filepath"
)

// AuthFSStore — файловое хранилище контекста CLI-сессии: auth-токен,
// последний логин и активный воркспейс, по файлу на значение.
type AuthFSStore struct{}

const (
	tokenFile     = "auth_token"
	lastLoginFile = "last_login"
	workspaceFile = "current_workspace"
)

func statePath(name string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, "Kladovka")
	if err := os.MkdirAll(p, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(p, name), nil
}

// tokenPath нужен тестам для дозаписи в файл токена.
func tokenPath() (string, error) {
	return statePath(tokenFile)
}

func writeState(name, value string) error {
	p, err := statePath(name)
	if err != nil {
		return err
	}
	return os.WriteFile(p, []byte(value), 0o600)
}

func readState(name string) (string, error) {
	p, err := statePath(name)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	for len(b) > 0 {
		switch b[len(b)-1] {
		case '\n', '\r', ' ', '\t':
			b = b[:len(b)-1]
		default:
			return string(b), nil
		}
	}
	return "", nil
}

// Save сохраняет auth-токен.
func (AuthFSStore) Save(token string) error {
	return writeState(tokenFile, token)
}

// Load читает auth-токен; пустой или отсутствующий файл — ошибка.
func (AuthFSStore) Load() (string, error) {
	tok, err := readState(tokenFile)
	if err != nil {
		return "", err
	}
	if tok == "" {
		return "", errors.New("empty token file")
	}
	return tok, nil
}

// SaveLogin запоминает логин последнего входа.
func (AuthFSStore) SaveLogin(login string) error {
	if login == "" {
		return errors.New("empty login")
	}
	return writeState(lastLoginFile, login)
}

// LoadLogin возвращает логин последнего входа.
func (AuthFSStore) LoadLogin() (string, error) {
	login, err := readState(lastLoginFile)
	if err != nil {
		return "", err
	}
	if login == "" {
		return "", errors.New("no stored login")
	}
	return login, nil
}

// SaveWorkspace запоминает id активного воркспейса.
func (AuthFSStore) SaveWorkspace(id string) error {
	if id == "" {
		return errors.New("empty workspace id")
	}
	return writeState(workspaceFile, id)
}

// LoadWorkspace возвращает id активного воркспейса.
func (AuthFSStore) LoadWorkspace() (string, error) {
	id, err := readState(workspaceFile)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("no active workspace: run workspace-use")
	}
	return id, nil
}
