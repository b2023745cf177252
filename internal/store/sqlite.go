package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/miradorstack/mirador-hotspot/internal/models"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
CREATE TABLE IF NOT EXISTS signals (
	id           TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	payload      TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS analyses (
	signal_id    TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	action       TEXT NOT NULL,
	payload      TEXT NOT NULL,
	processed_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tags (
	signal_id    TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	tags         TEXT NOT NULL,
	generated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshot (
	slot       INTEGER PRIMARY KEY CHECK (slot = 1),
	run_id     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	payload    TEXT NOT NULL,
	started_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS patterns (
	id        TEXT PRIMARY KEY,
	payload   TEXT NOT NULL,
	last_seen TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// Store persists signals, analyses, the committed hotspot snapshot, run
// history and mined patterns in a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serialises writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	var v int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case v != schemaVersion:
		return fmt.Errorf("unsupported schema version %d", v)
	}
	return nil
}

// UpsertSignals inserts or replaces signals in one transaction.
func (s *Store) UpsertSignals(ctx context.Context, signals []models.Signal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, sig := range signals {
		payload, err := json.Marshal(sig)
		if err != nil {
			return fmt.Errorf("marshal signal %s: %w", sig.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO signals(id, content_hash, payload, updated_at) VALUES(?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET content_hash = excluded.content_hash, payload = excluded.payload, updated_at = excluded.updated_at`,
			sig.ID, sig.ContentHash(), string(payload), formatTime(sig.UpdatedAt))
		if err != nil {
			return fmt.Errorf("upsert signal %s: %w", sig.ID, err)
		}
	}
	return tx.Commit()
}

// GetSignal loads one signal.
func (s *Store) GetSignal(ctx context.Context, id string) (models.Signal, error) {
	var sig models.Signal
	err := s.getJSON(ctx, &sig, "SELECT payload FROM signals WHERE id = ?", id)
	return sig, err
}

// ListSignals returns every stored signal ordered by ID.
func (s *Store) ListSignals(ctx context.Context) ([]models.Signal, error) {
	return listJSON[models.Signal](ctx, s.db, "SELECT payload FROM signals ORDER BY id")
}

// DeleteSignal removes a signal together with its analysis and tags.
func (s *Store) DeleteSignal(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM signals WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete signal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	for _, q := range []string{"DELETE FROM analyses WHERE signal_id = ?", "DELETE FROM tags WHERE signal_id = ?"} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete signal dependents: %w", err)
		}
	}
	return tx.Commit()
}

// SaveAnalyses stores the latest pipeline result per signal.
func (s *Store) SaveAnalyses(ctx context.Context, results []models.PipelineResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, res := range results {
		payload, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("marshal analysis %s: %w", res.SignalID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO analyses(signal_id, content_hash, action, payload, processed_at) VALUES(?, ?, ?, ?, ?)
			 ON CONFLICT(signal_id) DO UPDATE SET content_hash = excluded.content_hash, action = excluded.action,
			   payload = excluded.payload, processed_at = excluded.processed_at`,
			res.SignalID, res.ContentHash, string(res.QualityAssessment.RecommendedAction), string(payload), formatTime(res.ProcessedAt))
		if err != nil {
			return fmt.Errorf("save analysis %s: %w", res.SignalID, err)
		}
	}
	return tx.Commit()
}

// GetAnalysis loads the latest pipeline result for a signal.
func (s *Store) GetAnalysis(ctx context.Context, signalID string) (models.PipelineResult, error) {
	var res models.PipelineResult
	err := s.getJSON(ctx, &res, "SELECT payload FROM analyses WHERE signal_id = ?", signalID)
	return res, err
}

// ListAnalyses returns stored pipeline results ordered by signal ID. When
// action is non-empty only results with that readiness verdict are returned.
func (s *Store) ListAnalyses(ctx context.Context, action models.RecommendedAction) ([]models.PipelineResult, error) {
	if action == "" {
		return listJSON[models.PipelineResult](ctx, s.db, "SELECT payload FROM analyses ORDER BY signal_id")
	}
	return listJSON[models.PipelineResult](ctx, s.db, "SELECT payload FROM analyses WHERE action = ? ORDER BY signal_id", string(action))
}

// SaveTags stores generated tags keyed by the signal content hash they were derived from.
func (s *Store) SaveTags(ctx context.Context, signalID, contentHash string, tags []string, at time.Time) error {
	payload, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tags(signal_id, content_hash, tags, generated_at) VALUES(?, ?, ?, ?)
		 ON CONFLICT(signal_id) DO UPDATE SET content_hash = excluded.content_hash, tags = excluded.tags, generated_at = excluded.generated_at`,
		signalID, contentHash, string(payload), formatTime(at))
	if err != nil {
		return fmt.Errorf("save tags %s: %w", signalID, err)
	}
	return nil
}

// GetTags returns stored tags and the content hash they were generated for.
func (s *Store) GetTags(ctx context.Context, signalID string) (string, []string, error) {
	var hash, raw string
	err := s.db.QueryRowContext(ctx, "SELECT content_hash, tags FROM tags WHERE signal_id = ?", signalID).Scan(&hash, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("get tags: %w", err)
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return "", nil, fmt.Errorf("decode tags: %w", err)
	}
	return hash, tags, nil
}

// CommitSnapshot replaces the current hotspot snapshot and records the run in
// one transaction. Readers see either the old or the new snapshot.
func (s *Store) CommitSnapshot(ctx context.Context, run models.ClusteringRun, snap models.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshot(slot, run_id, payload, created_at) VALUES(1, ?, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET run_id = excluded.run_id, payload = excluded.payload, created_at = excluded.created_at`,
		snap.RunID, string(payload), formatTime(snap.CreatedAt))
	if err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	if err := saveRun(ctx, tx, run); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadSnapshot returns the committed snapshot or ErrNotFound before the first run.
func (s *Store) LoadSnapshot(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	err := s.getJSON(ctx, &snap, "SELECT payload FROM snapshot WHERE slot = 1")
	return snap, err
}

// SaveRun records a run outside of a snapshot commit (failed or cancelled runs).
func (s *Store) SaveRun(ctx context.Context, run models.ClusteringRun) error {
	return saveRun(ctx, s.db, run)
}

// GetRun loads one run.
func (s *Store) GetRun(ctx context.Context, id string) (models.ClusteringRun, error) {
	var run models.ClusteringRun
	err := s.getJSON(ctx, &run, "SELECT payload FROM runs WHERE id = ?", id)
	return run, err
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]models.ClusteringRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return listJSON[models.ClusteringRun](ctx, s.db, "SELECT payload FROM runs ORDER BY started_at DESC LIMIT ?", limit)
}

// ReplacePatterns swaps the mined pattern set.
func (s *Store) ReplacePatterns(ctx context.Context, patterns []models.HotspotPattern) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM patterns"); err != nil {
		return fmt.Errorf("clear patterns: %w", err)
	}
	for _, p := range patterns {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal pattern %s: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO patterns(id, payload, last_seen) VALUES(?, ?, ?)",
			p.ID, string(payload), formatTime(p.LastSeen)); err != nil {
			return fmt.Errorf("insert pattern %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// ListPatterns returns mined patterns, most recently seen first.
func (s *Store) ListPatterns(ctx context.Context) ([]models.HotspotPattern, error) {
	return listJSON[models.HotspotPattern](ctx, s.db, "SELECT payload FROM patterns ORDER BY last_seen DESC, id")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveRun(ctx context.Context, db execer, run models.ClusteringRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO runs(id, status, payload, started_at) VALUES(?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, payload = excluded.payload`,
		run.ID, string(run.Status), string(payload), formatTime(run.StartedAt))
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, out any, query string, args ...any) error {
	var raw string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), out)
}

func listJSON[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var item T
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}
