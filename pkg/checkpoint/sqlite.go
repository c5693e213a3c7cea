package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite stores checkpoints in a single-file database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path, creating parent
// directories as needed.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer keeps step ordering deterministic
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		thread_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		node TEXT,
		next TEXT,
		status TEXT NOT NULL,
		error TEXT,
		state TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON checkpoints(thread_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) Put(ctx context.Context, cp *Checkpoint) error {
	if err := prepare(cp); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, thread_id, step, node, next, status, error, state, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.ThreadID, cp.Step, cp.Node, cp.Next, string(cp.Status), cp.Error, string(cp.State), cp.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

const selectColumns = `id, thread_id, step, node, next, status, error, state, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (*Checkpoint, error) {
	var (
		cp                Checkpoint
		node, next, errS  sql.NullString
		status, state, ts string
	)
	if err := row.Scan(&cp.ID, &cp.ThreadID, &cp.Step, &node, &next, &status, &errS, &state, &ts); err != nil {
		return nil, err
	}
	created, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("bad checkpoint timestamp %q: %w", ts, err)
	}
	cp.Node = node.String
	cp.Next = next.String
	cp.Error = errS.String
	cp.Status = Status(status)
	cp.State = []byte(state)
	cp.CreatedAt = created
	return &cp, nil
}

func (s *SQLite) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM checkpoints WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`, threadID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

func (s *SQLite) History(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	out, err := s.query(ctx,
		`SELECT `+selectColumns+` FROM checkpoints WHERE thread_id = ? ORDER BY seq ASC`, threadID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *SQLite) Threads(ctx context.Context) ([]*Checkpoint, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM checkpoints
		WHERE seq IN (SELECT MAX(seq) FROM checkpoints GROUP BY thread_id)
		ORDER BY seq DESC`)
}

func (s *SQLite) query(ctx context.Context, q string, args ...any) ([]*Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *SQLite) Delete(ctx context.Context, threadID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
