package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"Kladovka/internal/cli/api"
	fsrepo "Kladovka/internal/cli/repo/fs"
	"Kladovka/internal/config"
)

func apiClient(cfg *config.Config) (*api.Client, error) {
	token, err := (fsrepo.AuthFSStore{}).Load()
	if err != nil {
		return nil, fmt.Errorf("нет auth-токена: выполните login/register: %w", err)
	}
	return api.NewClient(cfg, token), nil
}

type workspaceCreateCmd struct{}

func (workspaceCreateCmd) Name() string        { return "workspace-create" }
func (workspaceCreateCmd) Description() string { return "Создать воркспейс и сделать его активным" }
func (workspaceCreateCmd) Usage() string {
	return "workspace-create <name> [gated_type,gated_type...]"
}

func (workspaceCreateCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return ErrUsage
	}
	var gated []string
	if len(args) > 1 {
		for _, t := range strings.Split(args[1], ",") {
			if t = strings.TrimSpace(t); t != "" {
				gated = append(gated, t)
			}
		}
	}
	client, err := apiClient(cfg)
	if err != nil {
		return err
	}
	id, err := client.CreateWorkspace(ctx, args[0], gated)
	if err != nil {
		return err
	}
	if err := (fsrepo.AuthFSStore{}).SaveWorkspace(id); err != nil {
		return err
	}
	fmt.Fprintf(Out, "Воркспейс создан и выбран: %s\n", id)
	return nil
}

type workspaceUseCmd struct{}

func (workspaceUseCmd) Name() string        { return "workspace-use" }
func (workspaceUseCmd) Description() string { return "Выбрать активный воркспейс" }
func (workspaceUseCmd) Usage() string       { return "workspace-use <workspace_id>" }

func (workspaceUseCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return ErrUsage
	}
	client, err := apiClient(cfg)
	if err != nil {
		return err
	}
	// Проверяем членство до сохранения: policy вернёт 403 для чужого воркспейса.
	pol, err := client.Policy(ctx, args[0])
	if err != nil {
		return err
	}
	if err := (fsrepo.AuthFSStore{}).SaveWorkspace(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(Out, "Активный воркспейс: %s (роль: %s)\n", args[0], pol.Role)
	return nil
}

type workspaceMemberCmd struct{}

func (workspaceMemberCmd) Name() string        { return "workspace-member" }
func (workspaceMemberCmd) Description() string { return "Добавить участника в активный воркспейс" }
func (workspaceMemberCmd) Usage() string {
	return "workspace-member <user_id> <viewer|editor|manager|admin>"
}

func (workspaceMemberCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return ErrUsage
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return ErrUsage
	}
	client, err := apiClient(cfg)
	if err != nil {
		return err
	}
	ws, err := (fsrepo.AuthFSStore{}).LoadWorkspace()
	if err != nil {
		return err
	}
	if err := client.AddMember(ctx, ws, userID, args[1]); err != nil {
		return err
	}
	fmt.Fprintf(Out, "Участник %d добавлен с ролью %s\n", userID, args[1])
	return nil
}

type policyCmd struct{}

func (policyCmd) Name() string        { return "policy" }
func (policyCmd) Description() string { return "Показать роль и гейтинг активного воркспейса" }
func (policyCmd) Usage() string       { return "policy" }

func (policyCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	client, err := apiClient(cfg)
	if err != nil {
		return err
	}
	ws, err := (fsrepo.AuthFSStore{}).LoadWorkspace()
	if err != nil {
		return err
	}
	pol, err := client.Policy(ctx, ws)
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "Роль: %s\n", pol.Role)
	gated := make([]string, 0, len(pol.GatedTypes))
	for t, g := range pol.GatedTypes {
		if g {
			gated = append(gated, t)
		}
	}
	if len(gated) == 0 {
		fmt.Fprintln(Out, "Гейтинг отключён: изменения применяются сразу")
	} else {
		fmt.Fprintf(Out, "Через согласование: %s\n", strings.Join(gated, ", "))
	}
	return nil
}

func init() {
	RegisterCmd(workspaceCreateCmd{})
	RegisterCmd(workspaceUseCmd{})
	RegisterCmd(workspaceMemberCmd{})
	RegisterCmd(policyCmd{})
}
