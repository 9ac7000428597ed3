package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pncp_loader/config"
	"pncp_loader/httputil"
	"pncp_loader/importer"
	"pncp_loader/logging"
	"pncp_loader/models"
	"pncp_loader/notify"
	"pncp_loader/pncp"
	"pncp_loader/scheduler"
	"pncp_loader/search"
	"pncp_loader/storage"
	"pncp_loader/workers"
)

const appVersion = "1.2.0"

var (
	orgSync      = flag.Bool("orgaos", false, "Sync organizations and sub-units, then exit")
	daily        = flag.Bool("diaria", false, "Run a fixed-window import once and exit")
	incremental  = flag.Bool("incremental", false, "Run an incremental import once and exit")
	showStatus   = flag.Bool("status", false, "Print checkpoint status and exit")
	enqueue      = flag.Bool("agendar", false, "Queue a manual import for the daemon and exit")
	fullCorpus   = flag.Bool("carga-completa", false, "Scan the full published corpus once and exit")
	lookbackDays = flag.Int("dias", 0, "Lookback window in days for -diaria and -carga-completa")
	cnpjList     = flag.String("cnpjs", "", "Comma-separated CNPJ filter")
	allModal     = flag.Bool("todas-modalidades", false, "Scan every modality code in -carga-completa, not only high-yield ones")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting pncp_loader...")
	log.Printf("Loaded %d modality codes (%d high-yield)", len(cfg.Modalities), len(cfg.HighYieldModalities()))

	ctx := context.Background()

	store, err := storage.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer store.Close()

	checkpoints := storage.NewCheckpointStore(store)
	executions := storage.NewExecutionStore(store)

	clients := httputil.NewClients()
	limiter := pncp.NewRateLimiter(cfg.Importer.RequestsPerSecond)
	client := pncp.NewClient(clients.PNCP, limiter, cfg.Importer.BaseURL, cfg.Importer.PageSize)

	indexer, err := search.NewIndexer(cfg.Elastic.URL, cfg.Elastic.Index, cfg.Importer.IndexBatchSize)
	if err != nil {
		log.Fatalf("Failed to create search indexer: %v", err)
	}

	hostname, _ := os.Hostname()
	health := workers.NewHealthState()

	deps := importer.Deps{
		Store:       store,
		Checkpoints: checkpoints,
		Executions:  executions,
		Fetch:       client,
		Index:       indexer,
		Health:      health,
	}
	if cfg.Notifications.BaseURL != "" {
		deps.Notify = notify.NewClient(clients.Notify, cfg.Notifications.BaseURL)
		log.Printf("Notifications enabled: %s", cfg.Notifications.BaseURL)
	}

	orchestrator := importer.New(deps, importer.Options{
		OrgParallelism:      cfg.Importer.OrgParallelism,
		ModalityParallelism: cfg.Importer.ModalityParallelism,
		PurchaseModalities:  cfg.AllModalities(),
		DefaultLookbackDays: cfg.Importer.DefaultLookbackDays,
		AppVersion:          appVersion,
		Hostname:            hostname,
	})

	cnpjs := config.ParseCNPJList(*cnpjList)

	// One-shot commands
	switch {
	case *orgSync:
		if err := orchestrator.SyncOrganizations(ctx, models.TriggerCLI, cnpjs); err != nil {
			log.Fatalf("Organization sync failed: %v", err)
		}
		log.Println("Organization sync complete!")
		return

	case *daily:
		if err := orchestrator.RunDaily(ctx, models.TriggerCLI, *lookbackDays, cnpjs); err != nil {
			log.Fatalf("Daily import failed: %v", err)
		}
		log.Println("Daily import complete!")
		return

	case *incremental:
		if err := orchestrator.RunIncremental(ctx, models.TriggerCLI, cnpjs); err != nil {
			log.Fatalf("Incremental import failed: %v", err)
		}
		log.Println("Incremental import complete!")
		return

	case *showStatus:
		if err := orchestrator.ShowStatus(ctx, cnpjs, os.Stdout); err != nil {
			log.Fatalf("Status failed: %v", err)
		}
		return

	case *enqueue:
		params := &models.ExecutionParams{LookbackDays: *lookbackDays, CNPJs: cnpjs}
		id, err := executions.CreatePending(ctx, models.ModeManual, models.TriggerCLI, params)
		if err != nil {
			log.Fatalf("Failed to queue execution: %v", err)
		}
		log.Printf("Execution %d queued, the daemon will pick it up", id)
		return

	case *fullCorpus:
		days := *lookbackDays
		if days <= 0 {
			days = cfg.Importer.DefaultLookbackDays
		}
		now := time.Now()
		w := pncp.Window{From: now.AddDate(0, 0, -days), To: now}
		modalities := cfg.HighYieldModalities()
		if *allModal {
			modalities = cfg.AllModalities()
		}
		if err := orchestrator.RunFullCorpus(ctx, models.TriggerCLI, w, modalities); err != nil {
			log.Fatalf("Full-corpus load failed: %v", err)
		}
		log.Println("Full-corpus load complete!")
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(cfg, orchestrator, executions)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	healthSrv := workers.NewHealthServer(cfg.HealthAddr, health)
	healthSrv.Start()

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Health server shutdown: %v", err)
	}
	log.Println("Goodbye!")
}
