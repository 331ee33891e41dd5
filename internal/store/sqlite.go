// Package store persists fingerprints, change records and detection runs in
// SQLite. It is a reference adapter: the detection core only sees it
// through the monitor package's small interfaces.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/raysh454/rivalscope/internal/logging"
	"github.com/raysh454/rivalscope/internal/model"
)

//go:embed schema.sql
var schemaFS embed.FS

// ErrNotFound is returned when a change record or run id does not exist.
var ErrNotFound = errors.New("store: not found")

// SQLiteStore is safe for concurrent use.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

// Open creates (or reuses) the database at path, creating parent
// directories as needed.
func Open(path string, logger logging.Logger) (*SQLiteStore, error) {
	logger = logging.OrNop(logger).With(logging.Field{Key: "component", Value: "store"})
	if path == "" {
		return nil, errors.New("store: empty database path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps SQLite lock contention out of the picture.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	logger.Info("store opened", logging.Field{Key: "path", Value: path})
	return &SQLiteStore{db: db, logger: logger}, nil
}

func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-16000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// ─── Fingerprints ──────────────────────────────────────────────────────

// SaveFingerprint appends fp as the newest fingerprint for page.
func (s *SQLiteStore) SaveFingerprint(ctx context.Context, page model.PageCheck, fp model.PageFingerprint, at time.Time) error {
	extracted, err := json.Marshal(fp.Extracted)
	if err != nil {
		return fmt.Errorf("marshal extracted signals: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fingerprints (page_id, url, content_hash, cleaned_text, extracted_json, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		page.PageID, page.URL, fp.ContentHash, fp.CleanedText, string(extracted), at.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("insert fingerprint for %s: %w", page.PageID, err)
	}
	return nil
}

// LatestFingerprint returns the newest fingerprint for pageID, or nil when
// the page has never been fingerprinted.
func (s *SQLiteStore) LatestFingerprint(ctx context.Context, pageID string) (*model.PageFingerprint, error) {
	var (
		fp        model.PageFingerprint
		extracted string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash, cleaned_text, extracted_json FROM fingerprints
		 WHERE page_id = ? ORDER BY id DESC LIMIT 1`, pageID).
		Scan(&fp.ContentHash, &fp.CleanedText, &extracted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query fingerprint for %s: %w", pageID, err)
	}
	if err := json.Unmarshal([]byte(extracted), &fp.Extracted); err != nil {
		return nil, fmt.Errorf("decode extracted signals for %s: %w", pageID, err)
	}
	return &fp, nil
}

// ─── Change records ────────────────────────────────────────────────────

// Publish stores rec. Publishing the same id twice is a no-op, so the store
// can sit behind at-least-once delivery.
func (s *SQLiteStore) Publish(ctx context.Context, rec model.ChangeRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO change_records (id, page_id, url, competitor, change_type, change_summary,
		   old_value, new_value, impact_level, confidence, competitive_analysis, priority, diff_excerpt, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		rec.ID, rec.PageID, rec.URL, rec.CompetitorName, string(rec.ChangeType), rec.ChangeSummary,
		rec.OldValue, rec.NewValue, string(rec.ImpactLevel), string(rec.Confidence), rec.CompetitiveAnalysis,
		rec.Priority, rec.DiffExcerpt, rec.DetectedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("insert change record %s: %w", rec.ID, err)
	}
	return nil
}

// ChangeFilter narrows ListChanges. Zero values match everything.
type ChangeFilter struct {
	PageID     string
	ChangeType model.ChangeType
	Since      time.Time
	Limit      int
}

const changeColumns = `id, page_id, url, competitor, change_type, change_summary, old_value, new_value,
	impact_level, confidence, competitive_analysis, priority, diff_excerpt, detected_at`

// ListChanges returns matching records, newest first.
func (s *SQLiteStore) ListChanges(ctx context.Context, f ChangeFilter) ([]model.ChangeRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.PageID != "" {
		where = append(where, "page_id = ?")
		args = append(args, f.PageID)
	}
	if f.ChangeType != "" {
		where = append(where, "change_type = ?")
		args = append(args, string(f.ChangeType))
	}
	if !f.Since.IsZero() {
		where = append(where, "detected_at >= ?")
		args = append(args, f.Since.UTC().UnixNano())
	}

	q := "SELECT " + changeColumns + " FROM change_records"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY detected_at DESC, id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	var out []model.ChangeRecord
	for rows.Next() {
		rec, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetChange loads one record by id.
func (s *SQLiteStore) GetChange(ctx context.Context, id string) (model.ChangeRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+changeColumns+" FROM change_records WHERE id = ?", id)
	rec, err := scanChange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ChangeRecord{}, fmt.Errorf("change %s: %w", id, ErrNotFound)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChange(sc scanner) (model.ChangeRecord, error) {
	var (
		rec                                model.ChangeRecord
		url, competitor, priority, excerpt sql.NullString
		oldValue, newValue, analysis       sql.NullString
		changeType, impact, confidence     string
		detectedAt                         int64
	)
	err := sc.Scan(&rec.ID, &rec.PageID, &url, &competitor, &changeType, &rec.ChangeSummary,
		&oldValue, &newValue, &impact, &confidence, &analysis, &priority, &excerpt, &detectedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan change record: %w", err)
	}
	rec.URL = url.String
	rec.CompetitorName = competitor.String
	rec.ChangeType = model.ChangeType(changeType)
	rec.ImpactLevel = model.Level(impact)
	rec.Confidence = model.Level(confidence)
	rec.OldValue = nullable(oldValue)
	rec.NewValue = nullable(newValue)
	rec.CompetitiveAnalysis = nullable(analysis)
	rec.Priority = priority.String
	rec.DiffExcerpt = excerpt.String
	rec.DetectedAt = time.Unix(0, detectedAt).UTC()
	return rec, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// ─── Detection runs ────────────────────────────────────────────────────

// SaveRun inserts or replaces run, outcomes included.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.DetectionRun) error {
	// Fingerprints are stored separately; keep the outcome log small.
	outcomes := make([]model.PageOutcome, len(run.Outcomes))
	for i, o := range run.Outcomes {
		o.Fingerprint = nil
		outcomes[i] = o
	}
	outcomesJSON, err := json.Marshal(outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}

	var completed sql.NullInt64
	if run.CompletedAt != nil {
		completed = sql.NullInt64{Int64: run.CompletedAt.UTC().UnixNano(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO detection_runs (id, status, started_at, completed_at, pages_checked, changes_found, errors, outcomes_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   completed_at = excluded.completed_at,
		   pages_checked = excluded.pages_checked,
		   changes_found = excluded.changes_found,
		   errors = excluded.errors,
		   outcomes_json = excluded.outcomes_json`,
		run.ID, string(run.Status), run.StartedAt.UTC().UnixNano(), completed,
		run.PagesChecked, run.ChangesFound, run.Errors, string(outcomesJSON))
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.DetectionRun, error) {
	var (
		run          model.DetectionRun
		status       string
		startedAt    int64
		completedAt  sql.NullInt64
		outcomesJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, started_at, completed_at, pages_checked, changes_found, errors, outcomes_json
		 FROM detection_runs WHERE id = ?`, id).
		Scan(&run.ID, &status, &startedAt, &completedAt, &run.PagesChecked, &run.ChangesFound, &run.Errors, &outcomesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", id, err)
	}

	run.Status = model.RunStatus(status)
	run.StartedAt = time.Unix(0, startedAt).UTC()
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64).UTC()
		run.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(outcomesJSON), &run.Outcomes); err != nil {
		return nil, fmt.Errorf("decode outcomes for run %s: %w", id, err)
	}
	return &run, nil
}
