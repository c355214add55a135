package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"Kladovka/internal/cli/bootstrap"
	"Kladovka/internal/cli/service"
	"Kladovka/internal/config"
)

// enqueueAndReplay ставит мутацию в очередь и сразу пробует отправить.
// Недоступность сервера — не ошибка: мутация дождётся следующего sync.
func enqueueAndReplay(ctx context.Context, cfg *config.Config, entityType, action, id string, payload json.RawMessage) error {
	sess, done, err := bootstrap.OpenSession(cfg)
	if err != nil {
		return err
	}
	defer done()

	locks := service.NewTypeLocks()
	replayer := service.NewReplayer(cfg, sess.Client, sess.Store, locks, sess.WorkspaceID)

	m, err := replayer.Enqueue(entityType, action, id, payload)
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "• В очереди: %s %s/%s\n", action, entityType, m.EntityID)

	out, err := replayer.ReplayAll(ctx)
	if err != nil {
		return err
	}
	printReplaySummary(out)
	return nil
}

func printReplaySummary(out service.ReplayOutcome) {
	if out.Confirmed > 0 {
		fmt.Fprintf(Out, "✓ Подтверждено сервером: %d\n", out.Confirmed)
	}
	if out.PendingApproval > 0 {
		fmt.Fprintf(Out, "• Отправлено на согласование: %d\n", out.PendingApproval)
	}
	if out.Discarded > 0 {
		fmt.Fprintf(Out, "! Отброшено из-за конфликта: %d (выполните sync)\n", out.Discarded)
	}
	if out.Failed > 0 {
		fmt.Fprintf(Out, "× Отклонено сервером: %d (см. status)\n", out.Failed)
	}
	if out.Deferred > 0 {
		fmt.Fprintf(Out, "• Отложено до следующей попытки: %d\n", out.Deferred)
	}
}

func parsePayload(raw string) (json.RawMessage, error) {
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return json.RawMessage(raw), nil
}

type itemAddCmd struct{}

func (itemAddCmd) Name() string        { return "item-add" }
func (itemAddCmd) Description() string { return "Создать запись (офлайн-очередь)" }
func (itemAddCmd) Usage() string       { return "item-add <entity_type> <json-payload>" }

func (itemAddCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return ErrUsage
	}
	payload, err := parsePayload(args[1])
	if err != nil {
		return err
	}
	return enqueueAndReplay(ctx, cfg, args[0], "CREATE", "", payload)
}

type itemSetCmd struct{}

func (itemSetCmd) Name() string        { return "item-set" }
func (itemSetCmd) Description() string { return "Изменить запись (офлайн-очередь)" }
func (itemSetCmd) Usage() string       { return "item-set <entity_type> <id> <json-payload>" }

func (itemSetCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 3 {
		return ErrUsage
	}
	payload, err := parsePayload(args[2])
	if err != nil {
		return err
	}
	return enqueueAndReplay(ctx, cfg, args[0], "UPDATE", args[1], payload)
}

type itemDelCmd struct{}

func (itemDelCmd) Name() string        { return "item-del" }
func (itemDelCmd) Description() string { return "Удалить запись (офлайн-очередь)" }
func (itemDelCmd) Usage() string       { return "item-del <entity_type> <id>" }

func (itemDelCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return ErrUsage
	}
	return enqueueAndReplay(ctx, cfg, args[0], "DELETE", args[1], nil)
}

type itemsCmd struct{}

func (itemsCmd) Name() string        { return "items" }
func (itemsCmd) Description() string { return "Показать локальные записи типа" }
func (itemsCmd) Usage() string       { return "items <entity_type>" }

func (itemsCmd) Run(_ context.Context, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return ErrUsage
	}
	store, done, err := bootstrap.OpenStore()
	if err != nil {
		return err
	}
	defer done()

	recs, err := store.ListRecords(args[0])
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(Out, "Записей нет")
		return nil
	}
	for _, r := range recs {
		mark := " "
		if r.Provisional {
			mark = "~" // локальное, не подтверждённое сервером состояние
		}
		fmt.Fprintf(Out, "%s %s  %s  %s\n", mark, r.ID, r.ModifiedAt.Format("2006-01-02 15:04:05"), string(r.Payload))
	}
	return nil
}

func init() {
	RegisterCmd(itemAddCmd{})
	RegisterCmd(itemSetCmd{})
	RegisterCmd(itemDelCmd{})
	RegisterCmd(itemsCmd{})
}
