package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/plexsync/internal/models"
	"github.com/desertthunder/plexsync/internal/shared"
)

// HistoryLimit is how many runs [SyncRunRepository.Record] keeps.
const HistoryLimit = 50

const syncRunColumns = `
	id, sequence, source, mode, dry_run, status,
	seen, matched, skipped, mutated, planned, errors,
	error_message, started_at, finished_at, created_at, updated_at
`

// SyncRunRepository implements models.Repository[*models.SyncRun] for the sync history.
//
// Runs are hard-deleted; the history is a rolling window, not an audit log.
type SyncRunRepository struct {
	db *sql.DB
}

// NewSyncRunRepository creates a new SyncRunRepository with the given database connection
func NewSyncRunRepository(db *sql.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Create inserts a new run with a generated ID and sequence
func (r *SyncRunRepository) Create(run *models.SyncRun) error {
	sequence, err := NextSequence(r.db, "sync_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	run.SetID(id)
	run.SetSequence(sequence)

	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `INSERT INTO sync_runs (` + syncRunColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	c := run.Counts()
	_, err = r.db.Exec(query,
		id,
		sequence,
		run.Source(),
		run.Mode(),
		run.DryRun(),
		run.Status(),
		c.Seen, c.Matched, c.Skipped, c.Mutated, c.Planned, c.Errors,
		run.ErrorMessage(),
		run.StartedAt(),
		run.FinishedAt(),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID
func (r *SyncRunRepository) Get(id string) (*models.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE id = ?`

	run, err := scanSyncRun(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sync run %s", shared.ErrNotFound, id)
	}
	return run, err
}

// Update writes the status, counters and timestamps of an existing run
func (r *SyncRunRepository) Update(run *models.SyncRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	query := `
		UPDATE sync_runs
		SET status = ?, seen = ?, matched = ?, skipped = ?, mutated = ?, planned = ?,
			errors = ?, error_message = ?, finished_at = ?, updated_at = ?
		WHERE id = ?
	`

	c := run.Counts()
	result, err := r.db.Exec(query,
		run.Status(),
		c.Seen, c.Matched, c.Skipped, c.Mutated, c.Planned, c.Errors,
		run.ErrorMessage(),
		run.FinishedAt(),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}

	return expectRow(result, run.ID())
}

// Delete removes a run by ID
func (r *SyncRunRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sync_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sync run: %w", err)
	}
	return expectRow(result, id)
}

// List retrieves runs matching the given criteria, newest first.
//
// Supported criteria: "status" (string), "source" (string), "dry_run" (bool) and "limit" (int).
func (r *SyncRunRepository) List(criteria map[string]any) ([]*models.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE 1 = 1`
	args := []any{}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	if source, ok := criteria["source"].(string); ok && source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}

	if dryRun, ok := criteria["dry_run"].(bool); ok {
		query += " AND dry_run = ?"
		args = append(args, dryRun)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// Recent returns up to limit runs, newest first
func (r *SyncRunRepository) Recent(limit int) ([]*models.SyncRun, error) {
	return r.List(map[string]any{"limit": limit})
}

// Latest returns the most recent run, or nil when the history is empty
func (r *SyncRunRepository) Latest() (*models.SyncRun, error) {
	runs, err := r.Recent(1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// Prune deletes all but the newest keep runs and reports how many were removed
func (r *SyncRunRepository) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	result, err := r.db.Exec(`
		DELETE FROM sync_runs
		WHERE id NOT IN (SELECT id FROM sync_runs ORDER BY sequence DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sync runs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}

// Record stores a finished run and trims the history to [HistoryLimit] entries
func (r *SyncRunRepository) Record(run *models.SyncRun) error {
	if run.ID() == "" {
		if err := r.Create(run); err != nil {
			return err
		}
	} else if err := r.Update(run); err != nil {
		return err
	}

	if _, err := r.Prune(HistoryLimit); err != nil {
		return err
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSyncRun scans a single row from [sql.Row] or [sql.Rows] into a [models.SyncRun]
func scanSyncRun(row rowScanner) (*models.SyncRun, error) {
	var (
		id           string
		sequence     int
		source       string
		mode         string
		dryRun       bool
		status       string
		counts       models.RunCounts
		errorMessage string
		startedAt    time.Time
		finishedAt   sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(
		&id, &sequence, &source, &mode, &dryRun, &status,
		&counts.Seen, &counts.Matched, &counts.Skipped, &counts.Mutated, &counts.Planned, &counts.Errors,
		&errorMessage, &startedAt, &finishedAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync run: %w", err)
	}

	run := models.NewSyncRun(source, mode, dryRun, startedAt)
	run.SetID(id)
	run.SetSequence(sequence)
	run.SetStatus(models.RunStatus(status))
	run.SetCounts(counts)
	run.SetErrorMessage(errorMessage)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)
	if finishedAt.Valid {
		run.SetFinishedAt(&finishedAt.Time)
	}

	return run, nil
}

func expectRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: sync run %s", shared.ErrNotFound, id)
	}
	return nil
}
