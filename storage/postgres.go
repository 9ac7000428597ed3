package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"pncp_loader/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// =============================================================================
// Organizations
// =============================================================================

func (s *PostgresStore) UpsertOrganization(ctx context.Context, o *models.Organization) error {
	query := `
		INSERT INTO organizations (cnpj, legal_name, power_code, sphere_code, monitored, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (cnpj) DO UPDATE SET
			legal_name = COALESCE(NULLIF(EXCLUDED.legal_name, ''), organizations.legal_name),
			power_code = COALESCE(NULLIF(EXCLUDED.power_code, ''), organizations.power_code),
			sphere_code = COALESCE(NULLIF(EXCLUDED.sphere_code, ''), organizations.sphere_code),
			updated_at = NOW()
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		o.CNPJ, o.LegalName, o.PowerCode, o.SphereCode, o.Monitored,
	).Scan(&o.ID)
}

func (s *PostgresStore) GetOrganizationByCNPJ(ctx context.Context, cnpj string) (*models.Organization, error) {
	query := `
		SELECT id, cnpj, legal_name, power_code, sphere_code, monitored, created_at, updated_at
		FROM organizations WHERE cnpj = $1`

	var o models.Organization
	err := s.pool.QueryRow(ctx, query, cnpj).Scan(
		&o.ID, &o.CNPJ, &o.LegalName, &o.PowerCode, &o.SphereCode, &o.Monitored, &o.CreatedAt, &o.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStore) ListMonitoredOrganizations(ctx context.Context) ([]models.Organization, error) {
	query := `
		SELECT id, cnpj, legal_name, power_code, sphere_code, monitored, created_at, updated_at
		FROM organizations
		WHERE monitored
		ORDER BY cnpj`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []models.Organization
	for rows.Next() {
		var o models.Organization
		if err := rows.Scan(
			&o.ID, &o.CNPJ, &o.LegalName, &o.PowerCode, &o.SphereCode, &o.Monitored, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

func (s *PostgresStore) SetOrganizationMonitored(ctx context.Context, cnpj string, monitored bool) error {
	query := `UPDATE organizations SET monitored = $2, updated_at = NOW() WHERE cnpj = $1`
	_, err := s.pool.Exec(ctx, query, cnpj, monitored)
	return err
}

// =============================================================================
// Org Units
// =============================================================================

func (s *PostgresStore) UpsertOrgUnit(ctx context.Context, u *models.OrgUnit) error {
	query := `
		INSERT INTO org_units (org_id, unit_code, unit_name, city_name, state_abbr)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (org_id, unit_code) DO UPDATE SET
			unit_name = COALESCE(NULLIF(EXCLUDED.unit_name, ''), org_units.unit_name),
			city_name = COALESCE(NULLIF(EXCLUDED.city_name, ''), org_units.city_name),
			state_abbr = COALESCE(NULLIF(EXCLUDED.state_abbr, ''), org_units.state_abbr)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		u.OrgID, u.UnitCode, u.UnitName, u.CityName, u.StateAbbr,
	).Scan(&u.ID)
}

// =============================================================================
// Purchases
// =============================================================================

func (s *PostgresStore) UpsertPurchase(ctx context.Context, p *models.Purchase) error {
	query := `
		INSERT INTO purchases (
			org_id, control_number, year, sequential, modality_code, modality_name,
			subject, estimated_total, awarded_total, status_name, dispute_mode_name,
			legal_basis_name, source_link, proposal_open_at, proposal_close_at,
			published_at, global_updated_at, items_loaded
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
		ON CONFLICT (control_number) DO UPDATE SET
			modality_name = COALESCE(NULLIF(EXCLUDED.modality_name, ''), purchases.modality_name),
			subject = COALESCE(NULLIF(EXCLUDED.subject, ''), purchases.subject),
			estimated_total = COALESCE(EXCLUDED.estimated_total, purchases.estimated_total),
			awarded_total = COALESCE(EXCLUDED.awarded_total, purchases.awarded_total),
			status_name = COALESCE(NULLIF(EXCLUDED.status_name, ''), purchases.status_name),
			dispute_mode_name = COALESCE(NULLIF(EXCLUDED.dispute_mode_name, ''), purchases.dispute_mode_name),
			legal_basis_name = COALESCE(NULLIF(EXCLUDED.legal_basis_name, ''), purchases.legal_basis_name),
			source_link = COALESCE(NULLIF(EXCLUDED.source_link, ''), purchases.source_link),
			proposal_open_at = COALESCE(EXCLUDED.proposal_open_at, purchases.proposal_open_at),
			proposal_close_at = COALESCE(EXCLUDED.proposal_close_at, purchases.proposal_close_at),
			published_at = COALESCE(EXCLUDED.published_at, purchases.published_at),
			global_updated_at = COALESCE(EXCLUDED.global_updated_at, purchases.global_updated_at)
		RETURNING id, items_loaded`

	return s.pool.QueryRow(ctx, query,
		p.OrgID, p.ControlNumber, p.Year, p.Sequential, p.ModalityCode, p.ModalityName,
		p.Subject, p.EstimatedTotal, p.AwardedTotal, p.StatusName, p.DisputeModeName,
		p.LegalBasisName, p.SourceLink, p.ProposalOpenAt, p.ProposalCloseAt,
		p.PublishedAt, p.GlobalUpdatedAt, p.ItemsLoaded,
	).Scan(&p.ID, &p.ItemsLoaded)
}

func (s *PostgresStore) MarkPurchaseItemsLoaded(ctx context.Context, purchaseID int64) error {
	query := `UPDATE purchases SET items_loaded = TRUE WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, purchaseID)
	return err
}

// =============================================================================
// Purchase Items
// =============================================================================

func (s *PostgresStore) UpsertPurchaseItem(ctx context.Context, it *models.PurchaseItem) error {
	query := `
		INSERT INTO purchase_items (
			purchase_id, item_number, description, quantity, unit,
			unit_price, total_price, criterion_name, status_name, has_result
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (purchase_id, item_number) DO UPDATE SET
			description = COALESCE(NULLIF(EXCLUDED.description, ''), purchase_items.description),
			quantity = COALESCE(EXCLUDED.quantity, purchase_items.quantity),
			unit = COALESCE(NULLIF(EXCLUDED.unit, ''), purchase_items.unit),
			unit_price = COALESCE(EXCLUDED.unit_price, purchase_items.unit_price),
			total_price = COALESCE(EXCLUDED.total_price, purchase_items.total_price),
			criterion_name = COALESCE(NULLIF(EXCLUDED.criterion_name, ''), purchase_items.criterion_name),
			status_name = COALESCE(NULLIF(EXCLUDED.status_name, ''), purchase_items.status_name),
			has_result = purchase_items.has_result OR EXCLUDED.has_result
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		it.PurchaseID, it.ItemNumber, it.Description, it.Quantity, it.Unit,
		it.UnitPrice, it.TotalPrice, it.CriterionName, it.StatusName, it.HasResult,
	).Scan(&it.ID)
}

// =============================================================================
// Item Results
// =============================================================================

func (s *PostgresStore) UpsertItemResult(ctx context.Context, r *models.ItemResult) error {
	query := `
		INSERT INTO item_results (
			item_id, supplier_tax_id, supplier_name, awarded_total,
			awarded_unit_price, awarded_quantity, status_name, result_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (item_id, supplier_tax_id) DO UPDATE SET
			supplier_name = COALESCE(NULLIF(EXCLUDED.supplier_name, ''), item_results.supplier_name),
			awarded_total = COALESCE(EXCLUDED.awarded_total, item_results.awarded_total),
			awarded_unit_price = COALESCE(EXCLUDED.awarded_unit_price, item_results.awarded_unit_price),
			awarded_quantity = COALESCE(EXCLUDED.awarded_quantity, item_results.awarded_quantity),
			status_name = COALESCE(NULLIF(EXCLUDED.status_name, ''), item_results.status_name),
			result_date = COALESCE(EXCLUDED.result_date, item_results.result_date)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		r.ItemID, r.SupplierTaxID, r.SupplierName, r.AwardedTotal,
		r.AwardedUnitPrice, r.AwardedQuantity, r.StatusName, r.ResultDate,
	).Scan(&r.ID)
}

// =============================================================================
// Contracts
// =============================================================================

func (s *PostgresStore) UpsertContract(ctx context.Context, c *models.Contract) error {
	query := `
		INSERT INTO contracts (
			org_id, control_number, purchase_control_number, year, sequential,
			contract_number, subject, type_name, supplier_tax_id, supplier_name,
			initial_value, global_value, signed_at, valid_from, valid_through,
			published_at, global_updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
		ON CONFLICT (control_number) DO UPDATE SET
			subject = COALESCE(NULLIF(EXCLUDED.subject, ''), contracts.subject),
			type_name = COALESCE(NULLIF(EXCLUDED.type_name, ''), contracts.type_name),
			supplier_tax_id = COALESCE(NULLIF(EXCLUDED.supplier_tax_id, ''), contracts.supplier_tax_id),
			supplier_name = COALESCE(NULLIF(EXCLUDED.supplier_name, ''), contracts.supplier_name),
			initial_value = COALESCE(EXCLUDED.initial_value, contracts.initial_value),
			global_value = COALESCE(EXCLUDED.global_value, contracts.global_value),
			signed_at = COALESCE(EXCLUDED.signed_at, contracts.signed_at),
			valid_from = COALESCE(EXCLUDED.valid_from, contracts.valid_from),
			valid_through = COALESCE(EXCLUDED.valid_through, contracts.valid_through),
			published_at = COALESCE(EXCLUDED.published_at, contracts.published_at),
			global_updated_at = COALESCE(EXCLUDED.global_updated_at, contracts.global_updated_at)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		c.OrgID, c.ControlNumber, c.PurchaseControlNumber, c.Year, c.Sequential,
		c.ContractNumber, c.Subject, c.TypeName, c.SupplierTaxID, c.SupplierName,
		c.InitialValue, c.GlobalValue, c.SignedAt, c.ValidFrom, c.ValidThrough,
		c.PublishedAt, c.GlobalUpdatedAt,
	).Scan(&c.ID)
}

// =============================================================================
// Price Registrations
// =============================================================================

func (s *PostgresStore) UpsertPriceRegistration(ctx context.Context, a *models.PriceRegistration) error {
	query := `
		INSERT INTO price_registrations (
			org_id, control_number, purchase_control_number, registration_number,
			year, subject, cancelled, signed_at, valid_from, valid_through,
			published_at, global_updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (control_number) DO UPDATE SET
			subject = COALESCE(NULLIF(EXCLUDED.subject, ''), price_registrations.subject),
			cancelled = EXCLUDED.cancelled,
			signed_at = COALESCE(EXCLUDED.signed_at, price_registrations.signed_at),
			valid_from = COALESCE(EXCLUDED.valid_from, price_registrations.valid_from),
			valid_through = COALESCE(EXCLUDED.valid_through, price_registrations.valid_through),
			published_at = COALESCE(EXCLUDED.published_at, price_registrations.published_at),
			global_updated_at = COALESCE(EXCLUDED.global_updated_at, price_registrations.global_updated_at)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		a.OrgID, a.ControlNumber, a.PurchaseControlNumber, a.RegistrationNumber,
		a.Year, a.Subject, a.Cancelled, a.SignedAt, a.ValidFrom, a.ValidThrough,
		a.PublishedAt, a.GlobalUpdatedAt,
	).Scan(&a.ID)
}
