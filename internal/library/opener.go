package library

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/teamcutter/gportal/internal/config"
)

// Opener hands a path to the platform so it starts the game.
type Opener interface {
	Open(ctx context.Context, path string) error
}

type CommandOpener struct {
	command string
	args    []string
}

func NewCommandOpener(cfg config.Launcher) *CommandOpener {
	return &CommandOpener{command: cfg.Command, args: cfg.Args}
}

// Open starts the launcher and does not wait for the game to exit.
func (o *CommandOpener) Open(ctx context.Context, path string) error {
	if o.command == "" {
		return fmt.Errorf("no launcher command configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	args := append(append([]string{}, o.args...), path)
	cmd := exec.Command(o.command, args...)
	if err := cmd.Start(); err != nil {
		return err
	}

	go cmd.Wait()
	return nil
}
