package importer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"pncp_loader/models"
)

func TestForOrg_SameInstanceUnderConcurrency(t *testing.T) {
	m := NewMetrics()

	const goroutines = 32
	results := make([]*OrgMetrics, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.ForOrg(42, "00000000000191")
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if results[i] != results[0] {
			t.Fatalf("concurrent ForOrg returned different instances")
		}
	}
}

func TestFinalize_SumsOrgBuckets(t *testing.T) {
	m := NewMetrics()

	a := m.ForOrg(1, "111")
	a.Purchases = 10
	a.Contracts = 2
	a.Items = 30

	b := m.ForOrg(2, "222")
	b.Purchases = 5
	b.PriceRegs = 7
	b.Err = errors.New("contracts feed down")

	s := m.Finalize()
	if s.OrgsProcessed != 2 {
		t.Fatalf("expected 2 orgs processed, got %d", s.OrgsProcessed)
	}
	if s.OrgsFailed != 1 {
		t.Fatalf("expected 1 org failed, got %d", s.OrgsFailed)
	}
	if s.Purchases != 15 || s.Contracts != 2 || s.PriceRegs != 7 || s.Items != 30 {
		t.Fatalf("unexpected totals: %+v", s)
	}
}

func TestFinalize_OverridesReplaceSums(t *testing.T) {
	m := NewMetrics()
	om := m.ForOrg(1, "111")
	om.Purchases = 3

	m.SetTotals(1000, 200, 50, 9000)

	s := m.Finalize()
	if s.Purchases != 1000 || s.Contracts != 200 || s.PriceRegs != 50 || s.Items != 9000 {
		t.Fatalf("override totals not applied: %+v", s)
	}
	if s.OrgsProcessed != 1 {
		t.Fatalf("org counts must not be overridden, got %d", s.OrgsProcessed)
	}
}

func TestOrgRows_CarriesStatusAndWindow(t *testing.T) {
	m := NewMetrics()

	ok := m.ForOrg(1, "111")
	ok.Purchases = 4
	ok.CoverWindow(date(2025, 5, 1), date(2025, 5, 31))
	ok.CoverWindow(date(2025, 4, 1), date(2025, 4, 30))

	bad := m.ForOrg(2, "222")
	bad.Err = errors.New("boom")

	finished := time.Now()
	rows := m.OrgRows(finished)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	if rows[0].OrgID != 1 || rows[0].Status != "sucesso" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[0].WindowStart == nil || !rows[0].WindowStart.Equal(date(2025, 4, 1)) {
		t.Fatalf("window start not widened: %v", rows[0].WindowStart)
	}
	if rows[0].WindowEnd == nil || !rows[0].WindowEnd.Equal(date(2025, 5, 31)) {
		t.Fatalf("window end not widened: %v", rows[0].WindowEnd)
	}

	if rows[1].OrgID != 2 || rows[1].Status != "erro" {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
	if rows[1].ErrorMessage == nil || *rows[1].ErrorMessage != "boom" {
		t.Fatalf("error message not carried: %v", rows[1].ErrorMessage)
	}
}

func TestOrgRows_SettledOrgKeepsOwnClockAndStatus(t *testing.T) {
	m := NewMetrics()

	done := m.ForOrg(1, "111")
	done.Settle(models.ExecutionSuccess)
	settledAt := *done.FinishedAt

	stopped := m.ForOrg(2, "222")
	stopped.Settle(models.ExecutionCancelled)
	// A later settle must not flip a terminal status.
	stopped.Settle(models.ExecutionSuccess)

	runFinish := time.Now().Add(time.Hour)
	rows := m.OrgRows(runFinish)

	if rows[0].Status != "sucesso" {
		t.Fatalf("unexpected settled status %q", rows[0].Status)
	}
	if rows[0].FinishedAt == nil || !rows[0].FinishedAt.Equal(settledAt) {
		t.Fatalf("settled finish time overwritten: %v", rows[0].FinishedAt)
	}
	if rows[0].DurationMs >= time.Hour.Milliseconds() {
		t.Fatalf("duration stamped with run finish, got %dms", rows[0].DurationMs)
	}

	if rows[1].Status != "cancelado" {
		t.Fatalf("expected cancelado, got %q", rows[1].Status)
	}
}

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}
