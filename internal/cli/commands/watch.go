package commands

import (
	"context"
	"fmt"

	"Kladovka/internal/cli/api"
	"Kladovka/internal/cli/bootstrap"
	"Kladovka/internal/cli/service"
	"Kladovka/internal/config"
)

type watchCmd struct{}

func (watchCmd) Name() string { return "watch" }
func (watchCmd) Description() string {
	return "Слушать события воркспейса и применять решения по согласованиям"
}
func (watchCmd) Usage() string { return "watch" }

func (watchCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	sess, done, err := bootstrap.OpenSession(cfg)
	if err != nil {
		return err
	}
	defer done()

	locks := service.NewTypeLocks()
	resolver := service.NewResolver(sess.Store, locks)
	syncer := service.NewSyncer(cfg, sess.Client, sess.Store, locks, sess.WorkspaceID)

	fmt.Fprintln(Out, "→ Подписка на события… (Ctrl+C для выхода)")
	return service.ListenEvents(ctx, sess.Client, sess.WorkspaceID, func(ev api.Event) {
		switch ev.Type {
		case "change.approved", "change.rejected":
			resyncType, err := resolver.Resolve(ev)
			if err != nil {
				fmt.Fprintf(Out, "× %s: %v\n", ev.Type, err)
				return
			}
			fmt.Fprintf(Out, "• %s: %s/%s\n", ev.Type, ev.EntityType, ev.EntityID)
			if resyncType != "" {
				if _, err := syncer.SyncType(ctx, resyncType); err != nil {
					fmt.Fprintf(Out, "× sync %s: %v\n", resyncType, err)
				}
			}
		case "record.changed", "record.deleted":
			fmt.Fprintf(Out, "• %s: %s/%s\n", ev.Type, ev.EntityType, ev.EntityID)
			if _, err := syncer.SyncType(ctx, ev.EntityType); err != nil {
				fmt.Fprintf(Out, "× sync %s: %v\n", ev.EntityType, err)
			}
		}
	})
}

func init() { RegisterCmd(watchCmd{}) }
