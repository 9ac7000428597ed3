package importer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"pncp_loader/models"
	"pncp_loader/pncp"
)

// RunFullCorpus scans the entire published corpus over a date window,
// not just monitored organizations. Purchases are partitioned by
// modality code and scanned concurrently; contracts and atas each get
// their own sequential pass. Every organization discovered along the
// way is checkpointed for the window so incremental runs resume after
// the backfill.
func (o *Orchestrator) RunFullCorpus(ctx context.Context, trigger models.ExecutionTrigger, w pncp.Window, modalities []int) error {
	lookback := int(w.To.Sub(w.From).Hours() / 24)
	e := o.newExecution(models.ModeManual, trigger, &models.ExecutionParams{LookbackDays: lookback})
	return o.execute(ctx, e, func(ctx context.Context, metrics *Metrics) error {
		return o.bulkLoad(ctx, metrics, w, modalities)
	})
}

// orgSet deduplicates organizations discovered during a corpus scan.
// First writer wins; the upsert itself is idempotent so a concurrent
// duplicate write is harmless.
type orgSet struct {
	m sync.Map // cnpj -> org id
}

func (s *orgSet) getOrCreate(ctx context.Context, store Store, org *models.Organization) (int64, error) {
	if v, ok := s.m.Load(org.CNPJ); ok {
		return v.(int64), nil
	}
	if err := store.UpsertOrganization(ctx, org); err != nil {
		return 0, fmt.Errorf("upsert organization %s: %w", org.CNPJ, err)
	}
	v, _ := s.m.LoadOrStore(org.CNPJ, org.ID)
	return v.(int64), nil
}

func (s *orgSet) ids() []int64 {
	var out []int64
	s.m.Range(func(_, v any) bool {
		out = append(out, v.(int64))
		return true
	})
	return out
}

func (s *orgSet) len() int {
	n := 0
	s.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (o *Orchestrator) bulkLoad(ctx context.Context, metrics *Metrics, w pncp.Window, modalities []int) error {
	seen := new(orgSet)
	var purchases, contracts, priceRegs, items atomic.Int64

	log.Printf("Importer: full-corpus scan %s to %s over %d modalities",
		w.From.Format("2006-01-02"), w.To.Format("2006-01-02"), len(modalities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.ModalityParallelism)
	for _, modality := range modalities {
		modality := modality
		g.Go(func() error {
			return o.scanModality(gctx, w, modality, seen, &purchases, &items)
		})
	}
	err := g.Wait()

	if err == nil {
		err = o.scanContracts(ctx, w, seen, &contracts)
	}
	if err == nil {
		err = o.scanPriceRegs(ctx, w, seen, &priceRegs)
	}

	metrics.SetTotals(int(purchases.Load()), int(contracts.Load()), int(priceRegs.Load()), int(items.Load()))

	if err != nil {
		return err
	}

	if err := o.deps.Checkpoints.BulkMarkWindowImported(ctx, seen.ids(), w.From, w.To); err != nil {
		return fmt.Errorf("bulk checkpoint %d organizations: %w", seen.len(), err)
	}
	log.Printf("Importer: full-corpus scan done, %d organizations discovered", seen.len())
	return nil
}

// scanModality paginates one modality's publication feed. Page N+1 is
// only requested after page N is fully persisted.
func (o *Orchestrator) scanModality(ctx context.Context, w pncp.Window, modality int, seen *orgSet, purchases, items *atomic.Int64) error {
	for page := 1; ; page++ {
		res, err := o.deps.Fetch.PurchasesPage(ctx, w, modality, "", page)
		if err != nil {
			return fmt.Errorf("corpus purchases modality %d page %d: %w", modality, page, err)
		}
		if len(res.Records) == 0 {
			return nil
		}

		for i := range res.Records {
			rec := &res.Records[i]
			org := orgFromEntity(&rec.Org)
			orgID, err := seen.getOrCreate(ctx, o.deps.Store, org)
			if err != nil {
				return err
			}
			org.ID = orgID

			n, err := o.persistPurchase(ctx, org, rec)
			if err != nil {
				return err
			}
			purchases.Add(1)
			items.Add(int64(n))
		}

		if res.TotalPages > 0 && page >= res.TotalPages {
			return nil
		}
	}
}

func (o *Orchestrator) scanContracts(ctx context.Context, w pncp.Window, seen *orgSet, contracts *atomic.Int64) error {
	for page := 1; ; page++ {
		res, err := o.deps.Fetch.ContractsPage(ctx, w, "", page)
		if err != nil {
			return fmt.Errorf("corpus contracts page %d: %w", page, err)
		}
		if len(res.Records) == 0 {
			return nil
		}

		for i := range res.Records {
			rec := &res.Records[i]
			orgID, err := seen.getOrCreate(ctx, o.deps.Store, orgFromEntity(&rec.Org))
			if err != nil {
				return err
			}
			c := contractFromRecord(orgID, rec)
			if err := o.deps.Store.UpsertContract(ctx, c); err != nil {
				return fmt.Errorf("upsert contract %s: %w", c.ControlNumber, err)
			}
			contracts.Add(1)
		}

		if res.TotalPages > 0 && page >= res.TotalPages {
			return nil
		}
	}
}

func (o *Orchestrator) scanPriceRegs(ctx context.Context, w pncp.Window, seen *orgSet, priceRegs *atomic.Int64) error {
	for page := 1; ; page++ {
		res, err := o.deps.Fetch.PriceRegsPage(ctx, w, "", page)
		if err != nil {
			return fmt.Errorf("corpus atas page %d: %w", page, err)
		}
		if len(res.Records) == 0 {
			return nil
		}

		for i := range res.Records {
			rec := &res.Records[i]
			org := &models.Organization{CNPJ: rec.OrgCNPJ, LegalName: rec.OrgName}
			orgID, err := seen.getOrCreate(ctx, o.deps.Store, org)
			if err != nil {
				return err
			}
			a := priceRegFromRecord(orgID, rec)
			if err := o.deps.Store.UpsertPriceRegistration(ctx, a); err != nil {
				return fmt.Errorf("upsert ata %s: %w", a.ControlNumber, err)
			}
			priceRegs.Add(1)
		}

		if res.TotalPages > 0 && page >= res.TotalPages {
			return nil
		}
	}
}
