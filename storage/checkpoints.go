package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"pncp_loader/models"
)

// CheckpointStore tracks, per organization and data type, the date range
// already imported. Windows only ever widen: merges are done in SQL with
// LEAST/GREATEST so concurrent runs cannot shrink a window.
type CheckpointStore struct {
	store *PostgresStore
}

func NewCheckpointStore(store *PostgresStore) *CheckpointStore {
	return &CheckpointStore{store: store}
}

const checkpointColumns = `
	id, org_id, data_type, imported_from, imported_through, last_run_at,
	records_imported, status, error_message, created_at, updated_at`

func scanCheckpoint(row pgx.Row) (*models.ImportCheckpoint, error) {
	var c models.ImportCheckpoint
	err := row.Scan(
		&c.ID, &c.OrgID, &c.DataType, &c.ImportedFrom, &c.ImportedThrough, &c.LastRunAt,
		&c.RecordsImported, &c.Status, &c.ErrorMessage, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CheckpointStore) Get(ctx context.Context, orgID int64, dataType models.DataType) (*models.ImportCheckpoint, error) {
	query := `SELECT` + checkpointColumns + `
		FROM import_checkpoints WHERE org_id = $1 AND data_type = $2`

	return scanCheckpoint(s.store.pool.QueryRow(ctx, query, orgID, dataType))
}

func (s *CheckpointStore) ListByOrg(ctx context.Context, orgID int64) ([]models.ImportCheckpoint, error) {
	query := `SELECT` + checkpointColumns + `
		FROM import_checkpoints WHERE org_id = $1 ORDER BY data_type`

	rows, err := s.store.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checkpoints []models.ImportCheckpoint
	for rows.Next() {
		var c models.ImportCheckpoint
		if err := rows.Scan(
			&c.ID, &c.OrgID, &c.DataType, &c.ImportedFrom, &c.ImportedThrough, &c.LastRunAt,
			&c.RecordsImported, &c.Status, &c.ErrorMessage, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, c)
	}
	return checkpoints, rows.Err()
}

// Begin marks the checkpoint as in progress before the window is fetched.
// A row is created on first import of the (org, data type) pair.
func (s *CheckpointStore) Begin(ctx context.Context, orgID int64, dataType models.DataType) error {
	query := `
		INSERT INTO import_checkpoints (org_id, data_type, status, last_run_at, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW(), NOW())
		ON CONFLICT (org_id, data_type) DO UPDATE SET
			status = EXCLUDED.status,
			last_run_at = NOW(),
			error_message = NULL,
			updated_at = NOW()`

	_, err := s.store.pool.Exec(ctx, query, orgID, dataType, models.CheckpointInProgress)
	return err
}

// CompleteSuccess widens the imported window with the finished range.
// The records count is the latest run's count, not a running total.
func (s *CheckpointStore) CompleteSuccess(ctx context.Context, orgID int64, dataType models.DataType, from, through time.Time, records int) error {
	query := `
		UPDATE import_checkpoints SET
			imported_from = LEAST(COALESCE(imported_from, $3::date), $3::date),
			imported_through = GREATEST(COALESCE(imported_through, $4::date), $4::date),
			records_imported = $5,
			status = $6,
			error_message = NULL,
			last_run_at = NOW(),
			updated_at = NOW()
		WHERE org_id = $1 AND data_type = $2`

	_, err := s.store.pool.Exec(ctx, query, orgID, dataType, from, through, records, models.CheckpointSuccess)
	return err
}

// Fail records the error without touching the imported window, so the
// next run retries the same range.
func (s *CheckpointStore) Fail(ctx context.Context, orgID int64, dataType models.DataType, errMsg string) error {
	query := `
		UPDATE import_checkpoints SET
			status = $3,
			error_message = $4,
			last_run_at = NOW(),
			updated_at = NOW()
		WHERE org_id = $1 AND data_type = $2`

	_, err := s.store.pool.Exec(ctx, query, orgID, dataType, models.CheckpointError, errMsg)
	return err
}

// BulkMarkWindowImported stamps one imported window across many
// organizations in a single statement, for all data types. Used by the
// full-corpus loader, which fetches by date rather than by organization.
func (s *CheckpointStore) BulkMarkWindowImported(ctx context.Context, orgIDs []int64, from, through time.Time) error {
	if len(orgIDs) == 0 {
		return nil
	}

	query := `
		INSERT INTO import_checkpoints (org_id, data_type, imported_from, imported_through, status, last_run_at, created_at, updated_at)
		SELECT org_id, dt, $2::date, $3::date, $4, NOW(), NOW(), NOW()
		FROM unnest($1::bigint[]) AS org_id
		CROSS JOIN unnest($5::text[]) AS dt
		ON CONFLICT (org_id, data_type) DO UPDATE SET
			imported_from = LEAST(COALESCE(import_checkpoints.imported_from, EXCLUDED.imported_from), EXCLUDED.imported_from),
			imported_through = GREATEST(COALESCE(import_checkpoints.imported_through, EXCLUDED.imported_through), EXCLUDED.imported_through),
			status = EXCLUDED.status,
			last_run_at = NOW(),
			updated_at = NOW()`

	dataTypes := make([]string, 0, len(models.AllDataTypes))
	for _, dt := range models.AllDataTypes {
		dataTypes = append(dataTypes, string(dt))
	}

	_, err := s.store.pool.Exec(ctx, query, orgIDs, from, through, models.CheckpointSuccess, dataTypes)
	return err
}
