package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"Kladovka/internal/cli/api"
	fsrepo "Kladovka/internal/cli/repo/fs"
	"Kladovka/internal/config"
)

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type registerCmd struct{}

func (registerCmd) Name() string        { return "register" }
func (registerCmd) Description() string { return "Зарегистрировать пользователя и сохранить токен" }
func (registerCmd) Usage() string       { return "register <login> <password>" }

func (registerCmd) Run(_ context.Context, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return ErrUsage
	}
	login, password := args[0], args[1]
	endpoint := strings.TrimRight(cfg.ServerURL, "/") + "/api/user/register"
	resp, body, err := api.PostJSON(endpoint, credentialsRequest{Login: login, Password: password}, "", cfg.RequestTimeout)
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		if err := api.PersistAuthFromResponse(resp); err != nil {
			return fmt.Errorf("saving auth: %w", err)
		}
		if err := (fsrepo.AuthFSStore{}).SaveLogin(login); err != nil {
			return fmt.Errorf("saving login: %w", err)
		}
		fmt.Fprintln(Out, "Registered and logged in")
		return nil
	case http.StatusConflict:
		return errors.New("login already taken")
	default:
		return fmt.Errorf("server error: %s", strings.TrimSpace(string(body)))
	}
}

func init() { RegisterCmd(registerCmd{}) }
