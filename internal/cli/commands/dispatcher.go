package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"Kladovka/internal/cli/api"
	"Kladovka/internal/config"
)

// Dispatch — единая точка запуска подкоманд. Возвращает код выхода процесса.
func Dispatch(ctx context.Context, cfg *config.Config, args []string) int {
	if !flag.Parsed() {
		flag.Parse()
	}
	if len(args) == 0 {
		fmt.Fprint(Out, FormatGlobalUsage())
		return 2
	}

	name := strings.ToLower(args[0])
	switch name {
	case "help", "--help", "-h":
		return runHelp(args[1:])
	}

	c, ok := Get(name)
	if !ok {
		fmt.Fprintf(Out, "unknown command %q\n\n", name)
		fmt.Fprint(Out, FormatGlobalUsage())
		return 2
	}

	err := c.Run(ctx, cfg, args[1:])
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrUsage) {
		fmt.Fprintf(Out, "Usage: %s\n", c.Usage())
		return 2
	}
	// Серверные ошибки печатаем без обвязки Go-ошибок: пользователю
	// важен код и сообщение, не цепочка wrap-ов.
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(Out, "%s: server refused (%s): %s\n", name, apiErr.Code, apiErr.Message)
		return 1
	}
	fmt.Fprintf(Out, "%s: %v\n", name, err)
	return 1
}

// runHelp печатает общую помощь или usage конкретной команды.
func runHelp(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(Out, FormatGlobalUsage())
		return 0
	}
	c, ok := Get(args[0])
	if !ok {
		fmt.Fprintf(Out, "unknown command %q\n\n", args[0])
		fmt.Fprint(Out, FormatGlobalUsage())
		return 2
	}
	fmt.Fprintf(Out, "Usage: %s\n       %s\n", c.Usage(), c.Description())
	return 0
}
