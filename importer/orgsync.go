package importer

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"
	"pncp_loader/models"
)

// SyncOrganizations refreshes organizations and their sub-units from
// the PNCP catalog. With a CNPJ filter only those organizations are
// synced; without one the whole catalog is walked and sub-units are
// refreshed for monitored organizations.
func (o *Orchestrator) SyncOrganizations(ctx context.Context, trigger models.ExecutionTrigger, filterCNPJs []string) error {
	e := o.newExecution(models.ModeOrgSync, trigger, &models.ExecutionParams{CNPJs: filterCNPJs})
	return o.execute(ctx, e, func(ctx context.Context, metrics *Metrics) error {
		return o.syncOrganizations(ctx, metrics, filterCNPJs)
	})
}

func (o *Orchestrator) syncOrganizations(ctx context.Context, metrics *Metrics, filterCNPJs []string) error {
	if len(filterCNPJs) > 0 {
		return o.syncFiltered(ctx, metrics, filterCNPJs)
	}

	if err := o.syncCatalog(ctx); err != nil {
		return err
	}

	monitored, err := o.deps.Store.ListMonitoredOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("list monitored organizations: %w", err)
	}
	return o.syncUnits(ctx, metrics, monitored)
}

func (o *Orchestrator) syncFiltered(ctx context.Context, metrics *Metrics, cnpjs []string) error {
	var orgs []models.Organization
	for _, cnpj := range cnpjs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		org, err := o.fetchOrganization(ctx, cnpj)
		if err != nil {
			return err
		}
		if org == nil {
			log.Printf("Importer: organization %s not in the PNCP catalog", cnpj)
			continue
		}
		orgs = append(orgs, *org)
	}
	return o.syncUnits(ctx, metrics, orgs)
}

// syncCatalog walks the full organization listing.
func (o *Orchestrator) syncCatalog(ctx context.Context) error {
	total := 0
	for page := 1; ; page++ {
		res, err := o.deps.Fetch.OrgsPage(ctx, page)
		if err != nil {
			return fmt.Errorf("organizations page %d: %w", page, err)
		}
		if len(res.Records) == 0 {
			break
		}
		for i := range res.Records {
			org := orgFromRecord(&res.Records[i])
			if err := o.deps.Store.UpsertOrganization(ctx, org); err != nil {
				return fmt.Errorf("upsert organization %s: %w", org.CNPJ, err)
			}
			total++
		}
		if res.TotalPages > 0 && page >= res.TotalPages {
			break
		}
	}
	log.Printf("Importer: organization catalog synced, %d records", total)
	return nil
}

func (o *Orchestrator) syncUnits(ctx context.Context, metrics *Metrics, orgs []models.Organization) error {
	g := new(errgroup.Group)
	g.SetLimit(o.opts.OrgParallelism)

	for i := range orgs {
		org := orgs[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			om := metrics.ForOrg(org.ID, org.CNPJ)

			units, err := o.deps.Fetch.OrgUnits(ctx, org.CNPJ)
			if err != nil {
				if ctx.Err() != nil {
					om.Settle(models.ExecutionCancelled)
					return ctx.Err()
				}
				log.Printf("Importer: fetch units for %s: %v", org.CNPJ, err)
				om.Err = fmt.Errorf("fetch units: %w", err)
				om.Settle(models.ExecutionError)
				return nil
			}
			for j := range units {
				u := orgUnitFromRecord(org.ID, &units[j])
				if err := o.deps.Store.UpsertOrgUnit(ctx, u); err != nil {
					log.Printf("Importer: upsert unit %s of %s: %v", u.UnitCode, org.CNPJ, err)
					om.Err = fmt.Errorf("upsert unit %s: %w", u.UnitCode, err)
					om.Settle(models.ExecutionError)
					return nil
				}
			}
			om.Settle(models.ExecutionSuccess)
			return nil
		})
	}
	return g.Wait()
}
