package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for backfill checkpoints.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Checkpoint records how far a named backfill job has progressed. Next is
// the first block not yet synced; To is the job's last block.
type Checkpoint struct {
	Job       string    `json:"job"`
	Next      uint64    `json:"next"`
	To        uint64    `json:"to"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Done reports whether the job has covered its whole range.
func (c Checkpoint) Done() bool { return c.Next > c.To }

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS sync_checkpoints (
  job         TEXT PRIMARY KEY,
  next_block  INTEGER NOT NULL,
  to_block    INTEGER NOT NULL,
  updated_at  TIMESTAMP NOT NULL
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SaveCheckpoint records that job has synced every block before next.
func (s *Store) SaveCheckpoint(ctx context.Context, job string, next, to uint64) error {
	if job == "" {
		return errors.New("job required")
	}
	if next > math.MaxInt64 || to > math.MaxInt64 {
		return fmt.Errorf("checkpoint %s: block out of range", job)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sync_checkpoints (job, next_block, to_block, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(job) DO UPDATE SET
  next_block=excluded.next_block,
  to_block=excluded.to_block,
  updated_at=excluded.updated_at;
`, job, int64(next), int64(to), s.now().UTC())
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves the checkpoint for a job.
func (s *Store) GetCheckpoint(ctx context.Context, job string) (Checkpoint, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT job, next_block, to_block, updated_at FROM sync_checkpoints WHERE job = ?;
`, job)
	cp, err := scanCheckpoint(row)
	switch {
	case err == nil:
		return cp, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return Checkpoint{}, false, nil
	default:
		return Checkpoint{}, false, fmt.Errorf("get checkpoint: %w", err)
	}
}

// ListCheckpoints returns every checkpoint ordered by job name.
func (s *Store) ListCheckpoints(ctx context.Context) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT job, next_block, to_block, updated_at FROM sync_checkpoints ORDER BY job;
`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return out, nil
}

// DeleteCheckpoint removes a job's checkpoint and reports whether it existed.
func (s *Store) DeleteCheckpoint(ctx context.Context, job string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_checkpoints WHERE job = ?;`, job)
	if err != nil {
		return false, fmt.Errorf("delete checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete checkpoint: %w", err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (Checkpoint, error) {
	var (
		cp       Checkpoint
		next, to int64
	)
	if err := row.Scan(&cp.Job, &next, &to, &cp.UpdatedAt); err != nil {
		return Checkpoint{}, err
	}
	cp.Next, cp.To = uint64(next), uint64(to)
	return cp, nil
}
