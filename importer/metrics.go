package importer

import (
	"sync"
	"time"

	"pncp_loader/models"
)

// OrgMetrics accumulates one organization's counters during a run. Not
// safe for concurrent use; each org is processed by a single goroutine.
type OrgMetrics struct {
	OrgID     int64
	CNPJ      string
	StartedAt time.Time

	Purchases   int
	PurchasesMs int64
	Contracts   int
	ContractsMs int64
	PriceRegs   int
	PriceRegsMs int64
	Items       int

	WindowStart *time.Time
	WindowEnd   *time.Time

	Status     string
	FinishedAt *time.Time

	Err error
}

// Failed reports whether the org finished with an error.
func (m *OrgMetrics) Failed() bool {
	return m.Err != nil
}

// Settle records the org's terminal status and freezes its clock. The
// first call wins.
func (m *OrgMetrics) Settle(status models.ExecutionStatus) {
	if m.FinishedAt != nil {
		return
	}
	now := time.Now()
	m.Status = string(status)
	m.FinishedAt = &now
}

// CoverWindow extends the processed window to include the given range.
func (m *OrgMetrics) CoverWindow(from, to time.Time) {
	if m.WindowStart == nil || from.Before(*m.WindowStart) {
		f := from
		m.WindowStart = &f
	}
	if m.WindowEnd == nil || to.After(*m.WindowEnd) {
		t := to
		m.WindowEnd = &t
	}
}

// Metrics aggregates per-organization progress across the worker pool
// and produces the execution totals when the run finishes.
type Metrics struct {
	mu        sync.Mutex
	startedAt time.Time
	orgs      map[int64]*OrgMetrics
	order     []int64

	// Overrides replace the summed totals when set. The full-corpus
	// loader counts records per window, not per org.
	overridePurchases *int
	overrideContracts *int
	overridePriceRegs *int
	overrideItems     *int
}

func NewMetrics() *Metrics {
	return &Metrics{
		startedAt: time.Now(),
		orgs:      make(map[int64]*OrgMetrics),
	}
}

// ForOrg returns the metrics bucket for an organization, creating it on
// first use. Safe to call from concurrent org workers.
func (m *Metrics) ForOrg(orgID int64, cnpj string) *OrgMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	if om, ok := m.orgs[orgID]; ok {
		return om
	}
	om := &OrgMetrics{OrgID: orgID, CNPJ: cnpj, StartedAt: time.Now()}
	m.orgs[orgID] = om
	m.order = append(m.order, orgID)
	return om
}

// SetTotals overrides the per-org sums with externally counted totals.
func (m *Metrics) SetTotals(purchases, contracts, priceRegs, items int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overridePurchases = &purchases
	m.overrideContracts = &contracts
	m.overridePriceRegs = &priceRegs
	m.overrideItems = &items
}

// Summary is the aggregated outcome of a run.
type Summary struct {
	OrgsProcessed int
	OrgsFailed    int
	Purchases     int
	Contracts     int
	PriceRegs     int
	Items         int
	FinishedAt    time.Time
	Duration      time.Duration
}

// Finalize freezes the clock and sums the per-org buckets, applying any
// total overrides.
func (m *Metrics) Finalize() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	s := Summary{
		FinishedAt: now,
		Duration:   now.Sub(m.startedAt),
	}

	for _, id := range m.order {
		om := m.orgs[id]
		s.OrgsProcessed++
		if om.Failed() {
			s.OrgsFailed++
		}
		s.Purchases += om.Purchases
		s.Contracts += om.Contracts
		s.PriceRegs += om.PriceRegs
		s.Items += om.Items
	}

	if m.overridePurchases != nil {
		s.Purchases = *m.overridePurchases
	}
	if m.overrideContracts != nil {
		s.Contracts = *m.overrideContracts
	}
	if m.overridePriceRegs != nil {
		s.PriceRegs = *m.overridePriceRegs
	}
	if m.overrideItems != nil {
		s.Items = *m.overrideItems
	}
	return s
}

// OrgRows converts the per-org buckets into ledger rows, in the order
// the organizations were first touched. Settled orgs keep their own
// finish time and status; unsettled ones fall back to the run's.
func (m *Metrics) OrgRows(finishedAt time.Time) []models.ExecutionOrganization {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make([]models.ExecutionOrganization, 0, len(m.order))
	for _, id := range m.order {
		om := m.orgs[id]

		finished := finishedAt
		if om.FinishedAt != nil {
			finished = *om.FinishedAt
		}
		status := om.Status
		if status == "" {
			status = string(models.ExecutionSuccess)
			if om.Failed() {
				status = string(models.ExecutionError)
			}
		}

		row := models.ExecutionOrganization{
			OrgID:       om.OrgID,
			Status:      status,
			StartedAt:   om.StartedAt,
			FinishedAt:  &finished,
			DurationMs:  finished.Sub(om.StartedAt).Milliseconds(),
			Purchases:   om.Purchases,
			PurchasesMs: om.PurchasesMs,
			Contracts:   om.Contracts,
			ContractsMs: om.ContractsMs,
			PriceRegs:   om.PriceRegs,
			PriceRegsMs: om.PriceRegsMs,
			Items:       om.Items,
			WindowStart: om.WindowStart,
			WindowEnd:   om.WindowEnd,
		}
		if om.Failed() {
			msg := om.Err.Error()
			row.ErrorMessage = &msg
		}
		rows = append(rows, row)
	}
	return rows
}
