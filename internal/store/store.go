// Package store persists courts, inventory runs, run logs and API usage, and
// serves the read-only queries behind the CLI and the HTTP API.
package store

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/db"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrRunActive is returned when another inventory run is in progress.
	ErrRunActive = eris.New("store: an inventory run is already active")
)

// Advisory lock keys. They must differ: the run lock is held on one
// connection for the whole run while BeginRun takes its own lock on another.
const (
	runLockID   int64 = 7230119
	beginLockID int64 = 7230120
)

// Store is the Postgres-backed court inventory store.
type Store struct {
	pool db.Pool
	log  *zap.Logger
}

// New creates a Store over pool. The caller owns the pool.
func New(pool db.Pool) *Store {
	return &Store{pool: pool, log: zap.L().With(zap.String("component", "store"))}
}

// Pool returns the underlying pool for subsystems that share it.
func (s *Store) Pool() db.Pool {
	return s.pool
}
