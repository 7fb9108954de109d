package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/triageops/triage/internal/types"
)

// TrackingUpdate is a partial update of a tracking record. Nil fields are
// left untouched.
type TrackingUpdate struct {
	Status         *types.Status
	CauseContext   *types.CauseContext
	HistoryContext *types.HistoryContext
	Solution       *types.Solution
}

// Empty reports whether the update would touch no fields
func (u *TrackingUpdate) Empty() bool {
	return u.Status == nil && u.CauseContext == nil &&
		u.HistoryContext == nil && u.Solution == nil
}

// CreateTracking inserts the tracking record for an issue. Each issue has at
// most one tracking record (enforced by a UNIQUE constraint on issue_id).
func (s *SQLiteStorage) CreateTracking(ctx context.Context, rec *types.TrackingRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = types.StatusCreated
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = rec.CreatedAt

	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid tracking record: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracking_records (id, issue_id, status, worker_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.IssueID, rec.Status, rec.WorkerID, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tracking record: %w", err)
	}
	return nil
}

// GetTracking retrieves a tracking record by ID
func (s *SQLiteStorage) GetTracking(ctx context.Context, id string) (*types.TrackingRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, issue_id, status, worker_id, cause_context, history_context, solution, created_at, updated_at
		FROM tracking_records WHERE id = ?
	`, id)

	rec, err := scanTracking(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tracking record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracking record: %w", err)
	}
	return rec, nil
}

// GetTrackingByIssue retrieves the tracking record bound to an issue
func (s *SQLiteStorage) GetTrackingByIssue(ctx context.Context, issueID string) (*types.TrackingRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, issue_id, status, worker_id, cause_context, history_context, solution, created_at, updated_at
		FROM tracking_records WHERE issue_id = ?
	`, issueID)

	rec, err := scanTracking(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tracking record for issue %s: %w", issueID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracking record: %w", err)
	}
	return rec, nil
}

// ClaimTracking atomically claims a tracking record for a worker.
// The conditional UPDATE succeeds only when no worker owns the record and
// the record is not already terminal, so two workers racing for the same
// record cannot both win, and a finished record cannot be re-run.
func (s *SQLiteStorage) ClaimTracking(ctx context.Context, trackingID, workerID string) error {
	if workerID == "" {
		return fmt.Errorf("worker ID is required")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tracking_records
		SET worker_id = ?, updated_at = ?
		WHERE id = ? AND worker_id = '' AND status NOT IN (?, ?)
	`, workerID, time.Now(), trackingID, types.StatusCompleted, types.StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to claim tracking record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Either the record doesn't exist, someone else holds it, or it
		// already finished
		var owner, status string
		err := s.db.QueryRowContext(ctx,
			"SELECT worker_id, status FROM tracking_records WHERE id = ?", trackingID).Scan(&owner, &status)
		if err == sql.ErrNoRows {
			return fmt.Errorf("tracking record %s: %w", trackingID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check tracking record: %w", err)
		}
		if owner != "" {
			return fmt.Errorf("tracking record %s held by %s: %w", trackingID, owner, ErrClaimConflict)
		}
		return fmt.Errorf("tracking record %s is %s: %w", trackingID, status, ErrClaimConflict)
	}
	return nil
}

// ReleaseTracking clears the worker ID so a stuck record can be re-claimed
func (s *SQLiteStorage) ReleaseTracking(ctx context.Context, trackingID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tracking_records SET worker_id = '', updated_at = ? WHERE id = ?
	`, time.Now(), trackingID)
	if err != nil {
		return fmt.Errorf("failed to release tracking record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("tracking record %s: %w", trackingID, ErrNotFound)
	}
	return nil
}

// UpdateTracking applies a partial update to a tracking record. Only the
// fields set on the update are written; evidence bundles and solutions are
// replaced whole.
func (s *SQLiteStorage) UpdateTracking(ctx context.Context, trackingID string, update *TrackingUpdate) error {
	if update == nil || update.Empty() {
		return nil
	}

	setClauses := []string{"updated_at = ?"}
	args := []interface{}{time.Now()}

	if update.Status != nil {
		if !update.Status.IsValid() {
			return fmt.Errorf("invalid status: %s", *update.Status)
		}
		setClauses = append(setClauses, "status = ?")
		args = append(args, *update.Status)
	}
	if update.CauseContext != nil {
		data, err := json.Marshal(update.CauseContext)
		if err != nil {
			return fmt.Errorf("failed to marshal cause context: %w", err)
		}
		setClauses = append(setClauses, "cause_context = ?")
		args = append(args, string(data))
	}
	if update.HistoryContext != nil {
		data, err := json.Marshal(update.HistoryContext)
		if err != nil {
			return fmt.Errorf("failed to marshal history context: %w", err)
		}
		setClauses = append(setClauses, "history_context = ?")
		args = append(args, string(data))
	}
	if update.Solution != nil {
		data, err := json.Marshal(update.Solution)
		if err != nil {
			return fmt.Errorf("failed to marshal solution: %w", err)
		}
		setClauses = append(setClauses, "solution = ?")
		args = append(args, string(data))
	}

	query := "UPDATE tracking_records SET "
	for i, clause := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += " WHERE id = ?"
	args = append(args, trackingID)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update tracking record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("tracking record %s: %w", trackingID, ErrNotFound)
	}
	return nil
}

func scanTracking(row scanner) (*types.TrackingRecord, error) {
	var rec types.TrackingRecord
	var cause, history, solution sql.NullString
	err := row.Scan(
		&rec.ID,
		&rec.IssueID,
		&rec.Status,
		&rec.WorkerID,
		&cause,
		&history,
		&solution,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if cause.Valid && cause.String != "" {
		rec.CauseContext = &types.CauseContext{}
		if err := json.Unmarshal([]byte(cause.String), rec.CauseContext); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cause context: %w", err)
		}
	}
	if history.Valid && history.String != "" {
		rec.HistoryContext = &types.HistoryContext{}
		if err := json.Unmarshal([]byte(history.String), rec.HistoryContext); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history context: %w", err)
		}
	}
	if solution.Valid && solution.String != "" {
		rec.Solution = &types.Solution{}
		if err := json.Unmarshal([]byte(solution.String), rec.Solution); err != nil {
			return nil, fmt.Errorf("failed to unmarshal solution: %w", err)
		}
	}
	return &rec, nil
}
