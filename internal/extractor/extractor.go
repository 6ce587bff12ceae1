package extractor

import (
	"fmt"
	"time"

	"github.com/teamcutter/gportal/internal/config"
	"github.com/teamcutter/gportal/internal/domain"
)

const (
	ToolBuiltin = "builtin"
	ToolCustom  = "custom"

	DefaultTimeout = 30 * time.Minute
)

// New returns the archiver selected in cfg. A configured command always wins
// over the tool preset.
func New(cfg config.Archiver) (domain.Extractor, error) {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if cfg.Command != "" {
		return NewCommand(ToolCustom, cfg.Command, cfg.Args, timeout)
	}

	switch cfg.Tool {
	case ToolBuiltin:
		return NewNative(), nil
	case "":
		return nil, fmt.Errorf("no archiver configured")
	default:
		preset, ok := presets[cfg.Tool]
		if !ok {
			return nil, fmt.Errorf("unknown archiver tool %q", cfg.Tool)
		}
		return NewCommand(cfg.Tool, preset[0], preset[1:], timeout)
	}
}
