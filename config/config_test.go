package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://loader:pw@localhost:5432/pncp")
	t.Setenv("MODALITIES_FILE", "does-not-exist.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Importer.RequestsPerSecond != 70 {
		t.Errorf("expected 70 req/s, got %d", cfg.Importer.RequestsPerSecond)
	}
	if cfg.Importer.OrgParallelism != 5 || cfg.Importer.ModalityParallelism != 4 {
		t.Errorf("unexpected parallelism %d/%d", cfg.Importer.OrgParallelism, cfg.Importer.ModalityParallelism)
	}
	if cfg.Importer.PageSize != 50 || cfg.Importer.DefaultLookbackDays != 90 {
		t.Errorf("unexpected page size %d / lookback %d", cfg.Importer.PageSize, cfg.Importer.DefaultLookbackDays)
	}
	if cfg.Importer.IndexBatchSize != 1000 {
		t.Errorf("unexpected index batch size %d", cfg.Importer.IndexBatchSize)
	}
	if cfg.Scheduler.IncrementalCron != "0 3 * * *" {
		t.Errorf("unexpected incremental cron %q", cfg.Scheduler.IncrementalCron)
	}
	if cfg.Scheduler.OrgSyncEnabled {
		t.Errorf("org sync must be off by default")
	}
	if cfg.Scheduler.PendingPoll != 10*time.Second {
		t.Errorf("unexpected pending poll %s", cfg.Scheduler.PendingPoll)
	}
	if cfg.Notifications.BaseURL != "" {
		t.Errorf("notifications must be off by default")
	}
	if len(cfg.Modalities) != 14 {
		t.Errorf("expected 14 built-in modalities, got %d", len(cfg.Modalities))
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://loader:pw@localhost:5432/pncp")
	t.Setenv("MODALITIES_FILE", "does-not-exist.yaml")
	t.Setenv("PNCP_REQUESTS_PER_SECOND", "10")
	t.Setenv("ORG_PARALLELISM", "2")
	t.Setenv("PENDING_POLL_INTERVAL", "30s")
	t.Setenv("ORG_SYNC_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Importer.RequestsPerSecond != 10 {
		t.Errorf("expected 10 req/s, got %d", cfg.Importer.RequestsPerSecond)
	}
	if cfg.Importer.OrgParallelism != 2 {
		t.Errorf("expected parallelism 2, got %d", cfg.Importer.OrgParallelism)
	}
	if cfg.Scheduler.PendingPoll != 30*time.Second {
		t.Errorf("unexpected pending poll %s", cfg.Scheduler.PendingPoll)
	}
	if !cfg.Scheduler.OrgSyncEnabled {
		t.Errorf("expected org sync enabled")
	}
}

func TestLoad_ModalitiesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modalities.yaml")
	catalog := `modalities:
  - code: 6
    name: "Pregão eletrônico"
    high_yield: true
  - code: 7
    name: "Pregão presencial"
`
	if err := os.WriteFile(path, []byte(catalog), 0644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://loader:pw@localhost:5432/pncp")
	t.Setenv("MODALITIES_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if len(cfg.Modalities) != 2 {
		t.Fatalf("expected 2 modalities, got %d", len(cfg.Modalities))
	}
	if got := cfg.HighYieldModalities(); !reflect.DeepEqual(got, []int{6}) {
		t.Errorf("unexpected high-yield codes %v", got)
	}
	if got := cfg.AllModalities(); !reflect.DeepEqual(got, []int{6, 7}) {
		t.Errorf("unexpected codes %v", got)
	}
}

func TestLoad_EmptyCatalogFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modalities.yaml")
	if err := os.WriteFile(path, []byte("modalities: []\n"), 0644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	t.Setenv("DATABASE_URL", "postgres://loader:pw@localhost:5432/pncp")
	t.Setenv("MODALITIES_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for empty catalog")
	}
}

func TestHighYieldModalities_BuiltinCatalog(t *testing.T) {
	cfg := &Config{Modalities: defaultModalities()}

	if got := cfg.HighYieldModalities(); !reflect.DeepEqual(got, []int{6, 8, 9, 12}) {
		t.Fatalf("unexpected high-yield codes %v", got)
	}
}

func TestParseCNPJList(t *testing.T) {
	if got := ParseCNPJList(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}

	got := ParseCNPJList(" 11111111000111, 22222222000122 ,,")
	want := []string{"11111111000111", "22222222000122"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
