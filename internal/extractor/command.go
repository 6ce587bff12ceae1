package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/teamcutter/gportal/internal/domain"
)

const maxOutput = 64 << 10

// presets maps a tool name to its command line. {archive} and {dest} are
// substituted per call; every preset overwrites existing files.
var presets = map[string][]string{
	"7z":     {"7z", "x", "-y", "-bd", "-o{dest}", "{archive}"},
	"unzip":  {"unzip", "-o", "-q", "{archive}", "-d", "{dest}"},
	"tar":    {"tar", "-xf", "{archive}", "-C", "{dest}"},
	"bsdtar": {"bsdtar", "-xf", "{archive}", "-C", "{dest}"},
}

// CommandExtractor runs an external archiver and waits for it to exit.
type CommandExtractor struct {
	tool    string
	command string
	args    []string
	timeout time.Duration
}

func NewCommand(tool, command string, args []string, timeout time.Duration) (*CommandExtractor, error) {
	if command == "" {
		return nil, fmt.Errorf("archiver %s: empty command", tool)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandExtractor{
		tool:    tool,
		command: command,
		args:    args,
		timeout: timeout,
	}, nil
}

func (ce *CommandExtractor) Tool() string {
	return ce.tool
}

func (ce *CommandExtractor) Args(archive, dest string) []string {
	r := strings.NewReplacer("{archive}", archive, "{dest}", dest)
	out := make([]string, len(ce.args))
	for i, a := range ce.args {
		out[i] = r.Replace(a)
	}
	return out
}

func (ce *CommandExtractor) Extract(ctx context.Context, archive, dest string) (domain.ExtractResult, error) {
	res := domain.ExtractResult{Tool: ce.tool, ExitCode: -1}

	if info, err := os.Stat(dest); err != nil || !info.IsDir() {
		return res, &domain.ExtractError{Tool: ce.tool, ExitCode: -1, Err: fmt.Errorf("destination %s is not a directory", dest)}
	}

	runCtx, cancel := context.WithTimeout(ctx, ce.timeout)
	defer cancel()

	out := &limitedBuffer{limit: maxOutput}
	cmd := exec.CommandContext(runCtx, ce.command, ce.Args(archive, dest)...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	res.Output = out.String()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err == nil {
		return res, nil
	}

	extractErr := &domain.ExtractError{Tool: ce.tool, ExitCode: res.ExitCode, Output: res.Output}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		extractErr.Err = ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		extractErr.Err = fmt.Errorf("timed out after %s", ce.timeout)
	case errors.As(err, &exitErr):
		// plain non-zero exit, ExitCode already set
	default:
		extractErr.ExitCode = -1
		extractErr.Err = err
	}

	return res, extractErr
}

// limitedBuffer keeps the first limit bytes written and drops the rest.
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
