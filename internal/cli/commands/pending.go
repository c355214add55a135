package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"Kladovka/internal/cli/api"
	fsrepo "Kladovka/internal/cli/repo/fs"
	"Kladovka/internal/config"
)

type pendingCmd struct{}

func (pendingCmd) Name() string        { return "pending" }
func (pendingCmd) Description() string { return "Показать отложенные изменения воркспейса" }
func (pendingCmd) Usage() string       { return "pending [pending|approved|rejected]" }

func (pendingCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	status := "PENDING"
	if len(args) > 0 {
		status = strings.ToUpper(args[0])
	}
	client, err := apiClient(cfg)
	if err != nil {
		return err
	}
	ws, err := (fsrepo.AuthFSStore{}).LoadWorkspace()
	if err != nil {
		return err
	}
	changes, err := client.ListPending(ctx, ws, status)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		fmt.Fprintln(Out, "Изменений нет")
		return nil
	}
	for _, c := range changes {
		fmt.Fprintf(Out, "%s  %-8s %s %s/%s (от пользователя %d)\n",
			c.ID, c.Status, c.Action, c.EntityType, c.EntityID, c.RequesterID)
		if c.RejectionReason != "" {
			fmt.Fprintf(Out, "    причина: %s\n", c.RejectionReason)
		}
	}
	return nil
}

type approveCmd struct{}

func (approveCmd) Name() string        { return "approve" }
func (approveCmd) Description() string { return "Подтвердить отложенное изменение" }
func (approveCmd) Usage() string       { return "approve <change_id>" }

func (approveCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return ErrUsage
	}
	client, err := apiClient(cfg)
	if err != nil {
		return err
	}
	ch, err := client.Approve(ctx, args[0])
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Code == api.CodeAlreadyReviewed {
			return errors.New("изменение уже рассмотрено")
		}
		return err
	}
	fmt.Fprintf(Out, "✓ Изменение %s применено (%s %s/%s)\n", ch.ID, ch.Action, ch.EntityType, ch.EntityID)
	return nil
}

type rejectCmd struct{}

func (rejectCmd) Name() string        { return "reject" }
func (rejectCmd) Description() string { return "Отклонить отложенное изменение с причиной" }
func (rejectCmd) Usage() string       { return "reject <change_id> <reason>" }

func (rejectCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return ErrUsage
	}
	client, err := apiClient(cfg)
	if err != nil {
		return err
	}
	ch, err := client.Reject(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "✓ Изменение %s отклонено\n", ch.ID)
	return nil
}

func init() {
	RegisterCmd(pendingCmd{})
	RegisterCmd(approveCmd{})
	RegisterCmd(rejectCmd{})
}
