package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"pncp_loader/models"
)

// ExecutionStore is the ledger of pipeline runs. Every run, regardless
// of trigger, gets a row the moment it starts and a terminal status when
// it finishes.
type ExecutionStore struct {
	store *PostgresStore
}

func NewExecutionStore(store *PostgresStore) *ExecutionStore {
	return &ExecutionStore{store: store}
}

const executionColumns = `
	id, mode, trigger_type, status, started_at, finished_at, duration_ms,
	error_message, stack_trace, orgs_processed, orgs_failed,
	purchases_processed, contracts_processed, price_regs_processed,
	items_indexed, params, app_version, hostname, created_at`

func scanExecution(row pgx.Row) (*models.Execution, error) {
	var e models.Execution
	err := row.Scan(
		&e.ID, &e.Mode, &e.Trigger, &e.Status, &e.StartedAt, &e.FinishedAt, &e.DurationMs,
		&e.ErrorMessage, &e.StackTrace, &e.OrgsProcessed, &e.OrgsFailed,
		&e.Purchases, &e.Contracts, &e.PriceRegs,
		&e.ItemsIndexed, &e.ParamsJSON, &e.AppVersion, &e.Hostname, &e.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Start records a run beginning right now, already in progress.
func (s *ExecutionStore) Start(ctx context.Context, e *models.Execution) error {
	query := `
		INSERT INTO executions (mode, trigger_type, status, started_at, params, app_version, hostname, created_at)
		VALUES ($1, $2, $3, NOW(), $4, $5, $6, NOW())
		RETURNING id, started_at, created_at`

	e.Status = models.ExecutionInProgress
	return s.store.pool.QueryRow(ctx, query,
		e.Mode, e.Trigger, e.Status, e.ParamsJSON, e.AppVersion, e.Hostname,
	).Scan(&e.ID, &e.StartedAt, &e.CreatedAt)
}

// CreatePending queues a run for the poller to pick up later.
func (s *ExecutionStore) CreatePending(ctx context.Context, mode models.ExecutionMode, trigger models.ExecutionTrigger, params *models.ExecutionParams) (int64, error) {
	query := `
		INSERT INTO executions (mode, trigger_type, status, started_at, params, created_at)
		VALUES ($1, $2, $3, NOW(), $4, NOW())
		RETURNING id`

	var id int64
	err := s.store.pool.QueryRow(ctx, query, mode, trigger, models.ExecutionPending, params.ToJSON()).Scan(&id)
	return id, err
}

// NextPending returns the oldest queued execution, or nil.
func (s *ExecutionStore) NextPending(ctx context.Context) (*models.Execution, error) {
	query := `SELECT` + executionColumns + `
		FROM executions WHERE status = $1 ORDER BY created_at LIMIT 1`

	return scanExecution(s.store.pool.QueryRow(ctx, query, models.ExecutionPending))
}

// MarkInProgress claims a pending execution. Returns false when another
// process claimed it first.
func (s *ExecutionStore) MarkInProgress(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE executions SET status = $2, started_at = NOW()
		WHERE id = $1 AND status = $3`

	tag, err := s.store.pool.Exec(ctx, query, id, models.ExecutionInProgress, models.ExecutionPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// HasInProgress reports whether any run is currently executing.
func (s *ExecutionStore) HasInProgress(ctx context.Context) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM executions WHERE status = $1)`

	var exists bool
	err := s.store.pool.QueryRow(ctx, query, models.ExecutionInProgress).Scan(&exists)
	return exists, err
}

// Finalize writes the terminal status, counters, and per-organization
// breakdown of a finished run.
func (s *ExecutionStore) Finalize(ctx context.Context, e *models.Execution, orgs []models.ExecutionOrganization) error {
	now := time.Now()
	e.FinishedAt = &now
	durationMs := now.Sub(e.StartedAt).Milliseconds()
	e.DurationMs = &durationMs

	tx, err := s.store.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE executions SET
			status = $2, finished_at = $3, duration_ms = $4,
			error_message = $5, stack_trace = $6,
			orgs_processed = $7, orgs_failed = $8,
			purchases_processed = $9, contracts_processed = $10,
			price_regs_processed = $11, items_indexed = $12
		WHERE id = $1`

	_, err = tx.Exec(ctx, query,
		e.ID, e.Status, e.FinishedAt, e.DurationMs,
		e.ErrorMessage, e.StackTrace,
		e.OrgsProcessed, e.OrgsFailed,
		e.Purchases, e.Contracts, e.PriceRegs, e.ItemsIndexed,
	)
	if err != nil {
		return err
	}

	orgQuery := `
		INSERT INTO execution_organizations (
			execution_id, org_id, status, started_at, finished_at, duration_ms,
			error_message, purchases_processed, purchases_duration_ms,
			contracts_processed, contracts_duration_ms,
			price_regs_processed, price_regs_duration_ms,
			items_processed, window_start, window_end
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	for i := range orgs {
		o := &orgs[i]
		o.ExecutionID = e.ID
		_, err = tx.Exec(ctx, orgQuery,
			o.ExecutionID, o.OrgID, o.Status, o.StartedAt, o.FinishedAt, o.DurationMs,
			o.ErrorMessage, o.Purchases, o.PurchasesMs,
			o.Contracts, o.ContractsMs,
			o.PriceRegs, o.PriceRegsMs,
			o.Items, o.WindowStart, o.WindowEnd,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Last returns the most recently started run, or nil.
func (s *ExecutionStore) Last(ctx context.Context) (*models.Execution, error) {
	query := `SELECT` + executionColumns + `
		FROM executions ORDER BY started_at DESC LIMIT 1`

	return scanExecution(s.store.pool.QueryRow(ctx, query))
}
