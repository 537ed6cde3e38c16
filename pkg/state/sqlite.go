package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"vortexl2/pkg/model"
)

const dbFileName = "state.db"

// Store is the node's persistent state: a JSON document for identity-level
// facts and a sqlite db for service states, forwards and the audit trail.
// It is the single source of truth for idempotent re-provisioning.
type Store struct {
	root string
	db   *sql.DB
}

// Open creates the config root if needed and opens the state db.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("%w: mkdir %s: %v", model.ErrStorage, root, err)
	}
	dsn := "file:" + filepath.Join(root, dbFileName) + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open state db: %v", model.ErrStorage, err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	schema := `
CREATE TABLE IF NOT EXISTS service_states(
	name TEXT PRIMARY KEY,
	desired TEXT NOT NULL,
	observed TEXT NOT NULL,
	restart_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS forwards(
	local_port INTEGER PRIMARY KEY,
	target_host TEXT NOT NULL,
	target_port INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS audit(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	target TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	ts INTEGER NOT NULL
);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init state schema: %v", model.ErrStorage, err)
	}
	return &Store{root: root, db: db}, nil
}

// Root returns the config root directory.
func (s *Store) Root() string { return s.root }

// Close releases the underlying db handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveServiceState upserts one service's state. Satisfies supervisor.StateSink.
func (s *Store) SaveServiceState(st model.ServiceState) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO service_states(name, desired, observed, restart_count, last_error, updated_at)
VALUES(?,?,?,?,?,?)
ON CONFLICT(name) DO UPDATE SET
	desired=excluded.desired,
	observed=excluded.observed,
	restart_count=excluded.restart_count,
	last_error=excluded.last_error,
	updated_at=excluded.updated_at`,
		st.Name, string(st.Desired), string(st.Observed), st.RestartCount, st.LastError, st.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("%w: save service state %s: %v", model.ErrStorage, st.Name, err)
	}
	return nil
}

// ListServiceStates returns all known service states.
func (s *Store) ListServiceStates() ([]model.ServiceState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT name, desired, observed, restart_count, last_error, updated_at FROM service_states ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: list service states: %v", model.ErrStorage, err)
	}
	defer rows.Close()
	var out []model.ServiceState
	for rows.Next() {
		var st model.ServiceState
		var desired, observed string
		var ts int64
		if err := rows.Scan(&st.Name, &desired, &observed, &st.RestartCount, &st.LastError, &ts); err != nil {
			return nil, fmt.Errorf("%w: scan service state: %v", model.ErrStorage, err)
		}
		st.Desired = model.DesiredState(desired)
		st.Observed = model.ObservedState(observed)
		st.UpdatedAt = time.Unix(ts, 0)
		out = append(out, st)
	}
	return out, rows.Err()
}

// SaveForward records a port-forward entry. A duplicate local port fails with
// ErrInvalidArgument.
func (s *Store) SaveForward(f model.Forward) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM forwards WHERE local_port=?`, f.LocalPort).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%w: check forward %d: %v", model.ErrStorage, f.LocalPort, err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: local port %d is already forwarded", model.ErrInvalidArgument, f.LocalPort)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO forwards(local_port, target_host, target_port) VALUES(?,?,?)`,
		f.LocalPort, f.TargetHost, f.TargetPort); err != nil {
		return fmt.Errorf("%w: save forward %d: %v", model.ErrStorage, f.LocalPort, err)
	}
	return nil
}

// DeleteForward removes a forward entry; removing an absent port is a no-op.
func (s *Store) DeleteForward(localPort int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM forwards WHERE local_port=?`, localPort); err != nil {
		return fmt.Errorf("%w: delete forward %d: %v", model.ErrStorage, localPort, err)
	}
	return nil
}

// ListForwards returns all persisted forward entries.
func (s *Store) ListForwards() ([]model.Forward, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT local_port, target_host, target_port FROM forwards ORDER BY local_port`)
	if err != nil {
		return nil, fmt.Errorf("%w: list forwards: %v", model.ErrStorage, err)
	}
	defer rows.Close()
	var out []model.Forward
	for rows.Next() {
		var f model.Forward
		if err := rows.Scan(&f.LocalPort, &f.TargetHost, &f.TargetPort); err != nil {
			return nil, fmt.Errorf("%w: scan forward: %v", model.ErrStorage, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// AppendAudit records a provisioning/management action.
func (s *Store) AppendAudit(e model.AuditEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO audit(actor, action, target, detail, ts) VALUES(?,?,?,?,?)`,
		e.Actor, e.Action, e.Target, e.Detail, ts.Unix()); err != nil {
		return fmt.Errorf("%w: append audit: %v", model.ErrStorage, err)
	}
	return nil
}

// ListAudit returns the most recent entries, newest first.
func (s *Store) ListAudit(limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT actor, action, target, detail, ts FROM audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list audit: %v", model.ErrStorage, err)
	}
	defer rows.Close()
	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var ts int64
		if err := rows.Scan(&e.Actor, &e.Action, &e.Target, &e.Detail, &ts); err != nil {
			return nil, fmt.Errorf("%w: scan audit: %v", model.ErrStorage, err)
		}
		e.Timestamp = time.Unix(ts, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
