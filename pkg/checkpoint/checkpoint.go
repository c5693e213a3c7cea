// Package checkpoint persists workflow snapshots keyed by thread id.
//
// Every step of a run appends a Checkpoint; the latest one for a thread is
// what a resume starts from. Memory keeps snapshots for the life of the
// process, SQLite keeps them across restarts.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a thread has no checkpoints.
var ErrNotFound = errors.New("checkpoint: not found")

// Status is the run status recorded with a checkpoint.
type Status string

const (
	StatusRunning     Status = "running"
	StatusInterrupted Status = "interrupted"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Checkpoint is one persisted snapshot of a thread.
type Checkpoint struct {
	ID        string          `json:"id"`
	ThreadID  string          `json:"thread_id"`
	Step      int             `json:"step"`
	Node      string          `json:"node,omitempty"` // node that just ran
	Next      string          `json:"next,omitempty"` // node to run on resume
	Status    Status          `json:"status"`
	Error     string          `json:"error,omitempty"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// Saver stores checkpoints. Implementations must be safe for concurrent use.
type Saver interface {
	// Put appends cp, filling ID and CreatedAt when empty.
	Put(ctx context.Context, cp *Checkpoint) error
	// Latest returns the newest checkpoint of a thread.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)
	// History returns all checkpoints of a thread, oldest first.
	History(ctx context.Context, threadID string) ([]*Checkpoint, error)
	// Threads returns the latest checkpoint of every thread, newest first.
	Threads(ctx context.Context) ([]*Checkpoint, error)
	// Delete removes every checkpoint of a thread.
	Delete(ctx context.Context, threadID string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Open returns the saver for backend; path is only used by sqlite.
func Open(backend, path string) (Saver, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		if path == "" {
			return nil, fmt.Errorf("checkpoint: sqlite backend requires a path")
		}
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("checkpoint: unknown backend %q (use memory or sqlite)", backend)
	}
}

// Durable reports whether checkpoints from backend survive a restart.
func Durable(backend string) bool {
	return backend == BackendSQLite
}

func prepare(cp *Checkpoint) error {
	if cp.ThreadID == "" {
		return fmt.Errorf("checkpoint: thread id is required")
	}
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	return nil
}

func clone(cp *Checkpoint) *Checkpoint {
	c := *cp
	c.State = append(json.RawMessage(nil), cp.State...)
	return &c
}
