package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"Kladovka/internal/cli/bootstrap"
	"Kladovka/internal/cli/service"
	"Kladovka/internal/config"
)

type syncCmd struct{}

func (syncCmd) Name() string { return "sync" }
func (syncCmd) Description() string {
	return "Отправить очередь мутаций и подтянуть дельту с сервера"
}
func (syncCmd) Usage() string {
	return "sync [--types item,location,...] [--full]"
}

func (syncCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	typesFlag := fs.String("types", "", "типы сущностей через запятую (по умолчанию все)")
	full := fs.Bool("full", false, "сбросить курсоры и скачать всё заново")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	entityTypes := service.DefaultEntityTypes
	if *typesFlag != "" {
		entityTypes = nil
		for _, t := range strings.Split(*typesFlag, ",") {
			if t = strings.TrimSpace(t); t != "" {
				entityTypes = append(entityTypes, t)
			}
		}
	}

	sess, done, err := bootstrap.OpenSession(cfg)
	if err != nil {
		return err
	}
	defer done()

	if *full {
		for _, t := range entityTypes {
			if err := sess.Store.ResetCursor(t); err != nil {
				return err
			}
		}
	}

	locks := service.NewTypeLocks()
	replayer := service.NewReplayer(cfg, sess.Client, sess.Store, locks, sess.WorkspaceID)
	syncer := service.NewSyncer(cfg, sess.Client, sess.Store, locks, sess.WorkspaceID)

	fmt.Fprintln(Out, "→ Отправка очереди мутаций…")
	rep, err := replayer.ReplayAll(ctx)
	if err != nil {
		return err
	}
	printReplaySummary(rep)

	fmt.Fprintln(Out, "→ Загрузка изменений с сервера…")
	report := syncer.SyncAll(ctx, entityTypes)

	total := 0
	for _, n := range report.Applied {
		total += n
	}
	if total > 0 {
		fmt.Fprintf(Out, "✓ Применено записей: %d\n", total)
	} else {
		fmt.Fprintln(Out, "• Локальная копия актуальна")
	}
	for t, err := range report.Errors {
		fmt.Fprintf(Out, "× %s: %v\n", t, err)
	}
	return nil
}

func init() { RegisterCmd(syncCmd{}) }
