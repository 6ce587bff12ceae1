// Package layout tidies freshly extracted game directories so that every
// install looks the same on disk regardless of how the archive was packed.
package layout

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/teamcutter/gportal/internal/domain"
)

const (
	StepCollapse = "collapse-single-root"
	StepCheats   = "relocate-cheats"

	CheatsDirName = "cheats"
)

type Result struct {
	Step    string
	Applied bool
	Detail  string
	Err     error
}

type Normalizer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize runs every fix-up in order. A failed fix-up is reported in its
// Result and does not stop the next one.
func (n *Normalizer) Normalize(dest, cheatStore string) []Result {
	results := []Result{
		n.CollapseSingleRoot(dest),
		n.RelocateCheats(dest, cheatStore),
	}

	for _, r := range results {
		switch {
		case r.Err != nil:
			n.logger.Warn("layout fix-up failed", "step", r.Step, "dest", dest, "error", r.Err)
		case r.Applied:
			n.logger.Debug("layout fix-up applied", "step", r.Step, "dest", dest, "detail", r.Detail)
		}
	}
	return results
}

// CollapseSingleRoot flattens dest/<dir>/... into dest/... when dir is the
// only entry of dest.
func (n *Normalizer) CollapseSingleRoot(dest string) Result {
	res := Result{Step: StepCollapse}

	entries, err := os.ReadDir(dest)
	if err != nil {
		res.Err = fixupErr("read %s: %w", dest, err)
		return res
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return res
	}

	name := entries[0].Name()
	// The nested dir moves aside first so a child sharing its name can land
	// in dest without clashing.
	nested := filepath.Join(dest, "."+name+".collapse")
	if err := os.Rename(filepath.Join(dest, name), nested); err != nil {
		res.Err = fixupErr("move %s aside: %w", name, err)
		return res
	}

	children, err := os.ReadDir(nested)
	if err != nil {
		res.Err = fixupErr("read %s: %w", name, err)
		return res
	}

	for _, child := range children {
		from := filepath.Join(nested, child.Name())
		to := filepath.Join(dest, child.Name())
		if err := os.Rename(from, to); err != nil {
			res.Err = fixupErr("move %s: %w", child.Name(), err)
			return res
		}
	}

	if err := os.Remove(nested); err != nil {
		res.Err = fixupErr("remove %s: %w", name, err)
		return res
	}

	res.Applied = true
	res.Detail = fmt.Sprintf("collapsed %s (%d entries)", name, len(children))
	return res
}

// RelocateCheats moves dest/cheats into cheatStore, merging with whatever is
// already there.
func (n *Normalizer) RelocateCheats(dest, cheatStore string) Result {
	res := Result{Step: StepCheats}

	src := filepath.Join(dest, CheatsDirName)
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		return res
	}
	if err != nil {
		res.Err = fixupErr("stat %s: %w", src, err)
		return res
	}
	if !info.IsDir() {
		return res
	}

	if err := os.MkdirAll(cheatStore, 0755); err != nil {
		res.Err = fixupErr("create cheat store: %w", err)
		return res
	}

	if err := copyDir(src, cheatStore); err != nil {
		res.Err = fixupErr("copy cheats: %w", err)
		return res
	}

	if err := os.RemoveAll(src); err != nil {
		res.Err = fixupErr("remove %s: %w", src, err)
		return res
	}

	res.Applied = true
	res.Detail = "cheats moved to " + cheatStore
	return res
}

func fixupErr(format string, args ...any) error {
	return fmt.Errorf("%w: %w", domain.ErrLayoutFixupFailed, fmt.Errorf(format, args...))
}
