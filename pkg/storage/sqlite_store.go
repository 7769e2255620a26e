package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/clausewise/clausewise/pkg/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_runs (
	policy_id   TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	state       TEXT NOT NULL,
	fingerprint TEXT NOT NULL DEFAULT '',
	payload     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_runs_state ON audit_runs(state);
`

// SQLiteStore persists audit runs in a local SQLite database. The frozen run
// is stored as its canonical JSON alongside indexed columns for polling
// queries; the upsert makes save-on-completion atomic.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite %s: %w", path, err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// LoadAuditRun retrieves a run by policy id.
func (s *SQLiteStore) LoadAuditRun(ctx context.Context, policyID string) (*domain.AuditRun, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM audit_runs WHERE policy_id = ?`, policyID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: policy %s", domain.ErrRunNotFound, policyID)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load run for %s: %w", policyID, err)
	}

	var run domain.AuditRun
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, fmt.Errorf("storage: decode run for %s: %w", policyID, err)
	}
	return &run, nil
}

// SaveAuditRun upserts the run keyed by policy id.
func (s *SQLiteStore) SaveAuditRun(ctx context.Context, run *domain.AuditRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("storage: encode run %s: %w", run.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_runs (policy_id, run_id, state, fingerprint, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(policy_id) DO UPDATE SET
			run_id = excluded.run_id,
			state = excluded.state,
			fingerprint = excluded.fingerprint,
			payload = excluded.payload`,
		run.PolicyID, run.ID, string(run.State), run.Fingerprint, string(payload))
	if err != nil {
		return fmt.Errorf("storage: save run %s: %w", run.ID, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
