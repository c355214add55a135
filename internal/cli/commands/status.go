package commands

import (
	"context"
	"fmt"

	"Kladovka/internal/cli/bootstrap"
	"Kladovka/internal/cli/model"
	fsrepo "Kladovka/internal/cli/repo/fs"
	"Kladovka/internal/config"
)

type statusCmd struct{}

func (statusCmd) Name() string        { return "status" }
func (statusCmd) Description() string { return "Показать пользователя, воркспейс и состояние очереди" }
func (statusCmd) Usage() string       { return "status" }

func (statusCmd) Run(_ context.Context, cfg *config.Config, args []string) error {
	auth := fsrepo.AuthFSStore{}
	login, err := auth.LoadLogin()
	if err != nil {
		fmt.Fprintln(Out, "Не авторизован: выполните login/register")
		return nil
	}
	fmt.Fprintf(Out, "Пользователь: %s\n", login)
	if ws, err := auth.LoadWorkspace(); err == nil {
		fmt.Fprintf(Out, "Воркспейс: %s\n", ws)
	} else {
		fmt.Fprintln(Out, "Воркспейс не выбран: workspace-use <id>")
	}

	store, done, err := bootstrap.OpenStore()
	if err != nil {
		return err
	}
	defer done()

	queued, err := store.QueuedMutations()
	if err != nil {
		return err
	}
	pending, err := store.MutationsByStatus(model.MutationPendingApproval)
	if err != nil {
		return err
	}
	failed, err := store.MutationsByStatus(model.MutationFailed)
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "Очередь: %d в ожидании отправки, %d на согласовании, %d с ошибкой\n",
		len(queued), len(pending), len(failed))
	for _, m := range failed {
		fmt.Fprintf(Out, "  × %s %s/%s: %s\n", m.Action, m.EntityType, m.EntityID, m.FailureReason)
	}
	return nil
}

func init() { RegisterCmd(statusCmd{}) }
