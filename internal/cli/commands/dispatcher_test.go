package commands

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"Kladovka/internal/config"
)

type fakeCmd struct {
	name string
	err  error
	ran  bool
}

func (c *fakeCmd) Name() string        { return c.name }
func (c *fakeCmd) Description() string { return "fake command" }
func (c *fakeCmd) Usage() string       { return c.name + " <arg>" }
func (c *fakeCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	c.ran = true
	return c.err
}

func captureOut(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := Out
	buf := &bytes.Buffer{}
	Out = buf
	t.Cleanup(func() { Out = prev })
	return buf
}

func TestDispatch_RunsRegisteredCommand(t *testing.T) {
	captureOut(t)
	cmd := &fakeCmd{name: "fake-ok"}
	RegisterCmd(cmd)
	t.Cleanup(func() { delete(registry, cmd.name) })

	code := Dispatch(context.Background(), &config.Config{}, []string{"fake-ok", "x"})
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !cmd.ran {
		t.Fatalf("command did not run")
	}
}

func TestDispatch_UsageErrorPrintsUsage(t *testing.T) {
	buf := captureOut(t)
	cmd := &fakeCmd{name: "fake-usage", err: ErrUsage}
	RegisterCmd(cmd)
	t.Cleanup(func() { delete(registry, cmd.name) })

	code := Dispatch(context.Background(), &config.Config{}, []string{"fake-usage"})
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(buf.String(), "Usage: fake-usage <arg>") {
		t.Fatalf("usage not printed, got %q", buf.String())
	}
}

func TestDispatch_CommandErrorExitsNonZero(t *testing.T) {
	buf := captureOut(t)
	cmd := &fakeCmd{name: "fake-err", err: errors.New("boom")}
	RegisterCmd(cmd)
	t.Cleanup(func() { delete(registry, cmd.name) })

	code := Dispatch(context.Background(), &config.Config{}, []string{"fake-err"})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(buf.String(), "boom") {
		t.Fatalf("error not printed, got %q", buf.String())
	}
}

func TestDispatch_UnknownCommandShowsHelp(t *testing.T) {
	buf := captureOut(t)
	code := Dispatch(context.Background(), &config.Config{}, []string{"no-such"})
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	out := buf.String()
	if !strings.Contains(out, `unknown command "no-such"`) {
		t.Fatalf("missing unknown-command notice: %q", out)
	}
	// реальная команда из реестра присутствует в помощи
	if !strings.Contains(out, "item-add") {
		t.Fatalf("help does not list registered commands: %q", out)
	}
}

func TestFormatGlobalUsage_GroupsCommands(t *testing.T) {
	help := FormatGlobalUsage()
	for _, section := range []string{"Account:", "Inventory:", "Sync:", "Review:"} {
		if !strings.Contains(help, section) {
			t.Fatalf("help missing section %q", section)
		}
	}
}
