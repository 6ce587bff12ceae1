package state

import (
	"fmt"
	"log/slog"

	"github.com/teamcutter/gportal/internal/domain"
)

const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Open returns the ledger for backend together with its close func.
func Open(backend, dbPath, manifestPath string, logger *slog.Logger) (domain.State, func() error, error) {
	switch backend {
	case "", BackendSQLite:
		s, err := NewSQLite(dbPath, manifestPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case BackendJSON:
		return New(manifestPath), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", backend)
	}
}
