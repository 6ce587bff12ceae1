package resolver

import (
	"fmt"

	"github.com/teamcutter/gportal/internal/domain"
)

type Resolver struct {
	catalog domain.Catalog
	state   domain.State
}

type ResolvedGame struct {
	Entry            domain.CatalogEntry
	AlreadyInstalled bool
}

func New(catalog domain.Catalog, state domain.State) *Resolver {
	return &Resolver{
		catalog: catalog,
		state:   state,
	}
}

// Resolve maps each argument (an id or a title) to a catalog entry that can
// be acquired. Duplicates are collapsed and the first failure stops the run.
func (r *Resolver) Resolve(args []string) ([]ResolvedGame, error) {
	seen := make(map[string]bool)
	var result []ResolvedGame

	for _, arg := range args {
		entry, err := r.catalog.Find(arg)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", arg, err)
		}

		if seen[entry.ID] {
			continue
		}
		seen[entry.ID] = true

		if !entry.Acquirable() {
			return nil, fmt.Errorf("resolving %s: %w", arg, domain.ErrNotAcquirable)
		}
		if err := domain.ValidateTitle(entry.Title); err != nil {
			return nil, fmt.Errorf("resolving %s: %q: %w", arg, entry.Title, err)
		}

		alreadyInstalled := false
		if r.state != nil {
			if _, installed, _ := r.state.Get(entry.Title); installed {
				alreadyInstalled = true
			}
		}

		result = append(result, ResolvedGame{
			Entry:            entry,
			AlreadyInstalled: alreadyInstalled,
		})
	}

	return result, nil
}
