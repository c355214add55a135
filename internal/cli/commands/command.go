package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"Kladovka/internal/config"
)

// ErrUsage возвращается командой при неверных аргументах: диспетчер
// печатает usage вместо текста ошибки.
var ErrUsage = errors.New("usage")

// Command — подкоманда CLI. Регистрируется из init() своего файла.
type Command interface {
	// Name — имя команды, как его набирает пользователь ("login").
	Name() string
	// Description — короткое описание для помощи.
	Description() string
	// Usage — точная строка вызова ("item-add <json>").
	Usage() string
	// Run выполняет команду; args без имени команды.
	Run(ctx context.Context, cfg *config.Config, args []string) error
}

// Out — writer для вывода CLI; в тестах переназначается.
var Out io.Writer = os.Stdout

var registry = map[string]Command{}

// helpGroups задаёт порядок разделов помощи; команды вне групп
// попадают в хвостовой раздел.
var helpGroups = []struct {
	title string
	names []string
}{
	{"Account", []string{"register", "login", "status"}},
	{"Workspace", []string{"workspace-create", "workspace-use", "workspace-member", "policy"}},
	{"Inventory", []string{"item-add", "item-set", "item-del", "items"}},
	{"Sync", []string{"sync", "watch"}},
	{"Review", []string{"pending", "approve", "reject"}},
}

// RegisterCmd добавляет команду в реестр.
func RegisterCmd(cmd Command) {
	registry[cmd.Name()] = cmd
}

// Get возвращает команду по имени.
func Get(name string) (Command, bool) {
	c, ok := registry[name]
	return c, ok
}

// FormatGlobalUsage собирает текст помощи по разделам.
func FormatGlobalUsage() string {
	var b strings.Builder
	b.WriteString("Kladovka — offline-first inventory client\n\n")
	b.WriteString("Usage:\n  kladovka [flags] <command> [args]\n")

	listed := map[string]bool{}
	for _, g := range helpGroups {
		var lines []string
		for _, name := range g.names {
			if c, ok := registry[name]; ok {
				lines = append(lines, fmt.Sprintf("  %-44s %s", c.Usage(), c.Description()))
				listed[name] = true
			}
		}
		if len(lines) == 0 {
			continue
		}
		b.WriteString("\n" + g.title + ":\n" + strings.Join(lines, "\n") + "\n")
	}

	var rest []string
	for name, c := range registry {
		if !listed[name] {
			rest = append(rest, fmt.Sprintf("  %-44s %s", c.Usage(), c.Description()))
		}
	}
	if len(rest) > 0 {
		sort.Strings(rest)
		b.WriteString("\nOther:\n" + strings.Join(rest, "\n") + "\n")
	}
	return b.String()
}
