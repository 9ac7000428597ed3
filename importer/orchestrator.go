package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"pncp_loader/models"
	"pncp_loader/pncp"
	"pncp_loader/search"
)

// Store is the entity persistence surface the importer writes through.
// *storage.PostgresStore satisfies it; tests supply in-memory fakes.
type Store interface {
	ListMonitoredOrganizations(ctx context.Context) ([]models.Organization, error)
	GetOrganizationByCNPJ(ctx context.Context, cnpj string) (*models.Organization, error)
	UpsertOrganization(ctx context.Context, o *models.Organization) error
	UpsertOrgUnit(ctx context.Context, u *models.OrgUnit) error
	UpsertPurchase(ctx context.Context, p *models.Purchase) error
	MarkPurchaseItemsLoaded(ctx context.Context, purchaseID int64) error
	UpsertPurchaseItem(ctx context.Context, it *models.PurchaseItem) error
	UpsertItemResult(ctx context.Context, r *models.ItemResult) error
	UpsertContract(ctx context.Context, c *models.Contract) error
	UpsertPriceRegistration(ctx context.Context, a *models.PriceRegistration) error
}

// Checkpoints is the import checkpoint ledger.
type Checkpoints interface {
	Get(ctx context.Context, orgID int64, dataType models.DataType) (*models.ImportCheckpoint, error)
	ListByOrg(ctx context.Context, orgID int64) ([]models.ImportCheckpoint, error)
	Begin(ctx context.Context, orgID int64, dataType models.DataType) error
	CompleteSuccess(ctx context.Context, orgID int64, dataType models.DataType, from, through time.Time, records int) error
	Fail(ctx context.Context, orgID int64, dataType models.DataType, errMsg string) error
	BulkMarkWindowImported(ctx context.Context, orgIDs []int64, from, through time.Time) error
}

// Executions is the execution ledger.
type Executions interface {
	Start(ctx context.Context, e *models.Execution) error
	Finalize(ctx context.Context, e *models.Execution, orgs []models.ExecutionOrganization) error
	Last(ctx context.Context) (*models.Execution, error)
}

// Fetcher is the remote PNCP surface. *pncp.Client satisfies it.
type Fetcher interface {
	PurchasesPage(ctx context.Context, w pncp.Window, modality int, cnpj string, page int) (pncp.PurchasesPage, error)
	ContractsPage(ctx context.Context, w pncp.Window, cnpj string, page int) (pncp.ContractsPage, error)
	PriceRegsPage(ctx context.Context, w pncp.Window, cnpj string, page int) (pncp.PriceRegsPage, error)
	Items(ctx context.Context, cnpj string, year, sequential int) ([]pncp.ItemRecord, error)
	ItemResults(ctx context.Context, cnpj string, year, sequential, itemNumber int) ([]pncp.ResultRecord, error)
	Organization(ctx context.Context, cnpj string) (*pncp.OrgRecord, error)
	OrgUnits(ctx context.Context, cnpj string) ([]pncp.OrgUnitRecord, error)
	OrgsPage(ctx context.Context, page int) (pncp.OrgsPage, error)
}

// Indexer buffers search documents. *search.Indexer satisfies it.
type Indexer interface {
	Add(ctx context.Context, doc search.ItemDocument)
	Flush(ctx context.Context)
	Indexed() int
	Failed() int
}

// Notifier receives fire-and-forget run signals. Never returns errors:
// delivery failures are the notifier's problem.
type Notifier interface {
	RunStarted(e *models.Execution)
	RunFinished(e *models.Execution)
}

// HealthObserver tracks the last run for the health endpoints.
type HealthObserver interface {
	RecordStart(executionID int64)
	RecordEnd(status models.ExecutionStatus)
}

// Deps are the orchestrator's collaborators. Index, Notify, and Health
// are optional.
type Deps struct {
	Store       Store
	Checkpoints Checkpoints
	Executions  Executions
	Fetch       Fetcher
	Index       Indexer
	Notify      Notifier
	Health      HealthObserver
}

type Options struct {
	OrgParallelism      int
	ModalityParallelism int
	PurchaseModalities  []int
	DefaultLookbackDays int
	AppVersion          string
	Hostname            string
}

// Orchestrator drives one run: resolves targets, bounds concurrency,
// imports each data type per organization, and settles both ledgers.
type Orchestrator struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Orchestrator {
	if opts.OrgParallelism <= 0 {
		opts.OrgParallelism = 1
	}
	if opts.ModalityParallelism <= 0 {
		opts.ModalityParallelism = 1
	}
	return &Orchestrator{deps: deps, opts: opts}
}

// windowFunc computes the fetch window for one (org, data type) pair.
// A nil window means the pair is already up to date and is skipped.
type windowFunc func(ctx context.Context, orgID int64, dataType models.DataType) (*pncp.Window, error)

// RunIncremental imports each (org, data type) pair forward from its
// checkpoint, with a default lookback on first import.
func (o *Orchestrator) RunIncremental(ctx context.Context, trigger models.ExecutionTrigger, filterCNPJs []string) error {
	e := o.newExecution(models.ModeIncremental, trigger, &models.ExecutionParams{CNPJs: filterCNPJs})
	return o.execute(ctx, e, func(ctx context.Context, metrics *Metrics) error {
		return o.processOrgs(ctx, metrics, filterCNPJs, o.incrementalWindow)
	})
}

// RunDaily imports a fixed lookback window for every target org,
// regardless of checkpoints.
func (o *Orchestrator) RunDaily(ctx context.Context, trigger models.ExecutionTrigger, lookbackDays int, filterCNPJs []string) error {
	if lookbackDays <= 0 {
		lookbackDays = o.opts.DefaultLookbackDays
	}
	now := time.Now()
	w := pncp.Window{From: now.AddDate(0, 0, -lookbackDays), To: now}

	e := o.newExecution(models.ModeDaily, trigger, &models.ExecutionParams{LookbackDays: lookbackDays, CNPJs: filterCNPJs})
	return o.execute(ctx, e, func(ctx context.Context, metrics *Metrics) error {
		return o.processOrgs(ctx, metrics, filterCNPJs, func(context.Context, int64, models.DataType) (*pncp.Window, error) {
			ww := w
			return &ww, nil
		})
	})
}

// RunQueued executes a pending run that the poller already claimed.
func (o *Orchestrator) RunQueued(ctx context.Context, e *models.Execution) error {
	params, err := e.Params()
	if err != nil {
		log.Printf("Importer: execution %d has malformed params: %v", e.ID, err)
		params = nil
	}
	var lookback int
	var cnpjs []string
	if params != nil {
		lookback = params.LookbackDays
		cnpjs = params.CNPJs
	}

	switch e.Mode {
	case models.ModeIncremental:
		return o.execute(ctx, e, func(ctx context.Context, metrics *Metrics) error {
			return o.processOrgs(ctx, metrics, cnpjs, o.incrementalWindow)
		})
	case models.ModeOrgSync:
		return o.execute(ctx, e, func(ctx context.Context, metrics *Metrics) error {
			return o.syncOrganizations(ctx, metrics, cnpjs)
		})
	default:
		if lookback <= 0 {
			lookback = o.opts.DefaultLookbackDays
		}
		now := time.Now()
		w := pncp.Window{From: now.AddDate(0, 0, -lookback), To: now}
		return o.execute(ctx, e, func(ctx context.Context, metrics *Metrics) error {
			return o.processOrgs(ctx, metrics, cnpjs, func(context.Context, int64, models.DataType) (*pncp.Window, error) {
				ww := w
				return &ww, nil
			})
		})
	}
}

func (o *Orchestrator) newExecution(mode models.ExecutionMode, trigger models.ExecutionTrigger, params *models.ExecutionParams) *models.Execution {
	return &models.Execution{
		Mode:       mode,
		Trigger:    trigger,
		ParamsJSON: params.ToJSON(),
		AppVersion: o.opts.AppVersion,
		Hostname:   o.opts.Hostname,
	}
}

// execute wraps a run body with the full ledger lifecycle: start row,
// health/notify signals, panic recovery, cancellation classification,
// and finalization that always flushes whatever metrics exist.
func (o *Orchestrator) execute(ctx context.Context, e *models.Execution, job func(context.Context, *Metrics) error) error {
	if e.ID == 0 {
		if err := o.deps.Executions.Start(ctx, e); err != nil {
			return fmt.Errorf("start execution: %w", err)
		}
	}
	log.Printf("Importer: execution %d started (mode=%s trigger=%s)", e.ID, e.Mode, e.Trigger)

	if o.deps.Health != nil {
		o.deps.Health.RecordStart(e.ID)
	}
	if o.deps.Notify != nil {
		o.deps.Notify.RunStarted(e)
	}

	metrics := NewMetrics()
	runErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				stack := string(debug.Stack())
				e.StackTrace = &stack
			}
		}()
		return job(ctx, metrics)
	}()

	// Finalization must survive cancellation so partial progress is
	// never discarded.
	settleCtx := context.WithoutCancel(ctx)

	if o.deps.Index != nil {
		o.deps.Index.Flush(settleCtx)
	}

	summary := metrics.Finalize()
	e.OrgsProcessed = summary.OrgsProcessed
	e.OrgsFailed = summary.OrgsFailed
	e.Purchases = summary.Purchases
	e.Contracts = summary.Contracts
	e.PriceRegs = summary.PriceRegs
	e.ItemsIndexed = summary.Items
	if o.deps.Index != nil {
		e.ItemsIndexed = o.deps.Index.Indexed()
	}

	switch {
	case runErr != nil && errors.Is(runErr, context.Canceled):
		e.Status = models.ExecutionCancelled
		msg := runErr.Error()
		e.ErrorMessage = &msg
	case runErr != nil:
		e.Status = models.ExecutionError
		msg := runErr.Error()
		e.ErrorMessage = &msg
	case summary.OrgsFailed > 0:
		e.Status = models.ExecutionPartial
	default:
		e.Status = models.ExecutionSuccess
	}

	if err := o.deps.Executions.Finalize(settleCtx, e, metrics.OrgRows(summary.FinishedAt)); err != nil {
		log.Printf("Importer: finalize execution %d: %v", e.ID, err)
	}

	if o.deps.Health != nil {
		o.deps.Health.RecordEnd(e.Status)
	}
	if o.deps.Notify != nil {
		o.deps.Notify.RunFinished(e)
	}

	log.Printf("Importer: execution %d finished %s in %s (orgs=%d failed=%d purchases=%d contracts=%d atas=%d items=%d)",
		e.ID, e.Status, summary.Duration.Round(time.Millisecond),
		e.OrgsProcessed, e.OrgsFailed, e.Purchases, e.Contracts, e.PriceRegs, e.ItemsIndexed)

	return runErr
}

func (o *Orchestrator) processOrgs(ctx context.Context, metrics *Metrics, filterCNPJs []string, windowFor windowFunc) error {
	orgs, err := o.resolveTargets(ctx, filterCNPJs, true)
	if err != nil {
		return fmt.Errorf("resolve target organizations: %w", err)
	}
	if len(orgs) == 0 {
		log.Printf("Importer: no target organizations, nothing to do")
		return nil
	}
	log.Printf("Importer: processing %d organizations", len(orgs))

	g := new(errgroup.Group)
	g.SetLimit(o.opts.OrgParallelism)
	for i := range orgs {
		org := orgs[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.importOrg(ctx, &org, metrics, windowFor)
			return ctx.Err()
		})
	}
	return g.Wait()
}

// resolveTargets returns the explicit filter list, or every monitored
// organization. With fetchMissing, filtered CNPJs absent from the store
// are pulled from the remote catalog first.
func (o *Orchestrator) resolveTargets(ctx context.Context, filterCNPJs []string, fetchMissing bool) ([]models.Organization, error) {
	if len(filterCNPJs) == 0 {
		return o.deps.Store.ListMonitoredOrganizations(ctx)
	}

	var orgs []models.Organization
	for _, cnpj := range filterCNPJs {
		org, err := o.deps.Store.GetOrganizationByCNPJ(ctx, cnpj)
		if err != nil {
			return nil, err
		}
		if org == nil && fetchMissing {
			org, err = o.fetchOrganization(ctx, cnpj)
			if err != nil {
				return nil, err
			}
		}
		if org == nil {
			log.Printf("Importer: organization %s not found, skipping", cnpj)
			continue
		}
		orgs = append(orgs, *org)
	}
	return orgs, nil
}

// fetchOrganization pulls one org from the remote catalog and stores
// it. Returns nil when the catalog does not know the CNPJ.
func (o *Orchestrator) fetchOrganization(ctx context.Context, cnpj string) (*models.Organization, error) {
	rec, err := o.deps.Fetch.Organization(ctx, cnpj)
	if err != nil {
		return nil, fmt.Errorf("fetch organization %s: %w", cnpj, err)
	}
	if rec == nil {
		return nil, nil
	}
	org := orgFromRecord(rec)
	if err := o.deps.Store.UpsertOrganization(ctx, org); err != nil {
		return nil, fmt.Errorf("upsert organization %s: %w", cnpj, err)
	}
	return org, nil
}

func (o *Orchestrator) incrementalWindow(ctx context.Context, orgID int64, dataType models.DataType) (*pncp.Window, error) {
	cp, err := o.deps.Checkpoints.Get(ctx, orgID, dataType)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	start := now.AddDate(0, 0, -o.opts.DefaultLookbackDays)
	if next := cp.NextWindowStart(); next != nil {
		if next.After(now) {
			return nil, nil
		}
		start = *next
	}
	return &pncp.Window{From: start, To: now}, nil
}

// importOrg runs the sequential data-type chain for one organization.
// Failures are recorded per data type and on the org's metric entry;
// only cancellation stops the chain early, settling the org as
// cancelled instead of letting it pass for a success.
func (o *Orchestrator) importOrg(ctx context.Context, org *models.Organization, metrics *Metrics, windowFor windowFunc) {
	om := metrics.ForOrg(org.ID, org.CNPJ)

	for _, dataType := range models.AllDataTypes {
		if ctx.Err() != nil {
			om.Settle(models.ExecutionCancelled)
			return
		}

		w, err := windowFor(ctx, org.ID, dataType)
		if err != nil {
			o.failDataType(ctx, org, dataType, om, err)
			continue
		}
		if w == nil {
			continue
		}
		om.CoverWindow(w.From, w.To)

		if err := o.deps.Checkpoints.Begin(ctx, org.ID, dataType); err != nil {
			o.failDataType(ctx, org, dataType, om, err)
			continue
		}

		started := time.Now()
		count, err := o.importDataType(ctx, org, dataType, *w, om)
		elapsed := time.Since(started).Milliseconds()

		switch dataType {
		case models.DataPurchases:
			om.Purchases += count
			om.PurchasesMs += elapsed
		case models.DataContracts:
			om.Contracts += count
			om.ContractsMs += elapsed
		case models.DataPriceRegs:
			om.PriceRegs += count
			om.PriceRegsMs += elapsed
		}

		if err != nil {
			if ctx.Err() != nil {
				om.Settle(models.ExecutionCancelled)
				return
			}
			o.failDataType(ctx, org, dataType, om, err)
			continue
		}

		if err := o.deps.Checkpoints.CompleteSuccess(ctx, org.ID, dataType, w.From, w.To, count); err != nil {
			o.failDataType(ctx, org, dataType, om, err)
			continue
		}
		log.Printf("Importer: %s %s imported %d records", org.CNPJ, dataType, count)
	}

	if om.Failed() {
		om.Settle(models.ExecutionError)
	} else {
		om.Settle(models.ExecutionSuccess)
	}
}

func (o *Orchestrator) failDataType(ctx context.Context, org *models.Organization, dataType models.DataType, om *OrgMetrics, err error) {
	log.Printf("Importer: %s %s failed: %v", org.CNPJ, dataType, err)
	if om.Err == nil {
		om.Err = fmt.Errorf("%s: %w", dataType, err)
	}
	if ferr := o.deps.Checkpoints.Fail(context.WithoutCancel(ctx), org.ID, dataType, err.Error()); ferr != nil {
		log.Printf("Importer: record checkpoint failure for %s %s: %v", org.CNPJ, dataType, ferr)
	}
}

func (o *Orchestrator) importDataType(ctx context.Context, org *models.Organization, dataType models.DataType, w pncp.Window, om *OrgMetrics) (int, error) {
	switch dataType {
	case models.DataPurchases:
		return o.importPurchases(ctx, org, w, om)
	case models.DataContracts:
		return o.importContracts(ctx, org, w)
	case models.DataPriceRegs:
		return o.importPriceRegs(ctx, org, w)
	}
	return 0, fmt.Errorf("unknown data type %q", dataType)
}

// importPurchases scans the publication feed for each configured
// modality, a bounded number of modalities at a time. Pages within a
// modality are strictly sequential.
func (o *Orchestrator) importPurchases(ctx context.Context, org *models.Organization, w pncp.Window, om *OrgMetrics) (int, error) {
	var purchases, items atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.ModalityParallelism)

	for _, modality := range o.opts.PurchaseModalities {
		modality := modality
		g.Go(func() error {
			for page := 1; ; page++ {
				res, err := o.deps.Fetch.PurchasesPage(gctx, w, modality, org.CNPJ, page)
				if err != nil {
					return fmt.Errorf("purchases modality %d page %d: %w", modality, page, err)
				}
				if len(res.Records) == 0 {
					return nil
				}
				for i := range res.Records {
					n, err := o.persistPurchase(gctx, org, &res.Records[i])
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
		})
	}

	err := g.Wait()
	om.Items += int(items.Load())
	return int(purchases.Load()), err
}

// persistPurchase upserts the purchase and, the first time it is seen,
// its items and award results. Already-loaded purchases skip the item
// sub-fetches entirely.
func (o *Orchestrator) persistPurchase(ctx context.Context, org *models.Organization, rec *pncp.PurchaseRecord) (int, error) {
	p := purchaseFromRecord(org.ID, rec)
	if err := o.deps.Store.UpsertPurchase(ctx, p); err != nil {
		return 0, fmt.Errorf("upsert purchase %s: %w", rec.ControlNumber, err)
	}
	if p.ItemsLoaded {
		return 0, nil
	}
	return o.loadItems(ctx, org, p)
}

func (o *Orchestrator) loadItems(ctx context.Context, org *models.Organization, p *models.Purchase) (int, error) {
	records, err := o.deps.Fetch.Items(ctx, org.CNPJ, p.Year, p.Sequential)
	if err != nil {
		return 0, fmt.Errorf("fetch items for %s: %w", p.ControlNumber, err)
	}

	count := 0
	for i := range records {
		it := itemFromRecord(p.ID, &records[i])
		if err := o.deps.Store.UpsertPurchaseItem(ctx, it); err != nil {
			return count, fmt.Errorf("upsert item %d of %s: %w", it.ItemNumber, p.ControlNumber, err)
		}

		var awarded *models.ItemResult
		if it.HasResult {
			results, err := o.deps.Fetch.ItemResults(ctx, org.CNPJ, p.Year, p.Sequential, it.ItemNumber)
			if err != nil {
				return count, fmt.Errorf("fetch results for item %d of %s: %w", it.ItemNumber, p.ControlNumber, err)
			}
			for j := range results {
				r := resultFromRecord(it.ID, &results[j])
				if err := o.deps.Store.UpsertItemResult(ctx, r); err != nil {
					return count, fmt.Errorf("upsert result for item %d of %s: %w", it.ItemNumber, p.ControlNumber, err)
				}
				if awarded == nil {
					awarded = r
				}
			}
		}

		if o.deps.Index != nil {
			o.deps.Index.Add(ctx, search.NewItemDocument(org, p, it, awarded))
		}
		count++
	}

	if err := o.deps.Store.MarkPurchaseItemsLoaded(ctx, p.ID); err != nil {
		return count, fmt.Errorf("mark items loaded for %s: %w", p.ControlNumber, err)
	}
	return count, nil
}

func (o *Orchestrator) importContracts(ctx context.Context, org *models.Organization, w pncp.Window) (int, error) {
	count := 0
	for page := 1; ; page++ {
		res, err := o.deps.Fetch.ContractsPage(ctx, w, org.CNPJ, page)
		if err != nil {
			return count, fmt.Errorf("contracts page %d: %w", page, err)
		}
		if len(res.Records) == 0 {
			return count, nil
		}
		for i := range res.Records {
			c := contractFromRecord(org.ID, &res.Records[i])
			if err := o.deps.Store.UpsertContract(ctx, c); err != nil {
				return count, fmt.Errorf("upsert contract %s: %w", c.ControlNumber, err)
			}
			count++
		}
		if res.TotalPages > 0 && page >= res.TotalPages {
			return count, nil
		}
	}
}

func (o *Orchestrator) importPriceRegs(ctx context.Context, org *models.Organization, w pncp.Window) (int, error) {
	count := 0
	for page := 1; ; page++ {
		res, err := o.deps.Fetch.PriceRegsPage(ctx, w, org.CNPJ, page)
		if err != nil {
			return count, fmt.Errorf("atas page %d: %w", page, err)
		}
		if len(res.Records) == 0 {
			return count, nil
		}
		for i := range res.Records {
			a := priceRegFromRecord(org.ID, &res.Records[i])
			if err := o.deps.Store.UpsertPriceRegistration(ctx, a); err != nil {
				return count, fmt.Errorf("upsert ata %s: %w", a.ControlNumber, err)
			}
			count++
		}
		if res.TotalPages > 0 && page >= res.TotalPages {
			return count, nil
		}
	}
}

// ShowStatus writes a human-readable checkpoint report for the target
// organizations.
func (o *Orchestrator) ShowStatus(ctx context.Context, filterCNPJs []string, w io.Writer) error {
	orgs, err := o.resolveTargets(ctx, filterCNPJs, false)
	if err != nil {
		return fmt.Errorf("resolve target organizations: %w", err)
	}

	if last, err := o.deps.Executions.Last(ctx); err == nil && last != nil {
		fmt.Fprintf(w, "Last execution: #%d %s %s started %s",
			last.ID, last.Mode, last.Status, last.StartedAt.Format(time.RFC3339))
		if last.DurationMs != nil {
			fmt.Fprintf(w, " (%.1fs)", float64(*last.DurationMs)/1000)
		}
		fmt.Fprintln(w)
	}

	for i := range orgs {
		org := &orgs[i]
		fmt.Fprintf(w, "\n%s  %s\n", org.CNPJ, org.LegalName)

		checkpoints, err := o.deps.Checkpoints.ListByOrg(ctx, org.ID)
		if err != nil {
			return fmt.Errorf("list checkpoints for %s: %w", org.CNPJ, err)
		}
		if len(checkpoints) == 0 {
			fmt.Fprintf(w, "  no imports yet\n")
			continue
		}
		for _, cp := range checkpoints {
			fmt.Fprintf(w, "  %-10s %-13s %s to %s  %d records",
				cp.DataType, cp.Status, formatDate(cp.ImportedFrom), formatDate(cp.ImportedThrough), cp.RecordsImported)
			if cp.ErrorMessage != nil {
				fmt.Fprintf(w, "  last error: %s", *cp.ErrorMessage)
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}
