package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database      DatabaseConfig
	Elastic       ElasticConfig
	Scheduler     SchedulerConfig
	Importer      ImporterConfig
	Notifications NotificationConfig
	HealthAddr    string
	LogPath       string
	Modalities    []Modality
}

type DatabaseConfig struct {
	URL string
}

type ElasticConfig struct {
	URL   string
	Index string
}

type SchedulerConfig struct {
	IncrementalCron string
	OrgSyncCron     string
	OrgSyncEnabled  bool
	PendingPoll     time.Duration
}

type ImporterConfig struct {
	BaseURL             string
	RequestsPerSecond   int
	OrgParallelism      int
	ModalityParallelism int
	PageSize            int
	DefaultLookbackDays int
	IndexBatchSize      int
}

type NotificationConfig struct {
	BaseURL string // empty disables notifications
}

// Modality is one PNCP procurement-method classification code,
// loaded from the YAML catalog.
type Modality struct {
	Code      int    `yaml:"code"`
	Name      string `yaml:"name"`
	HighYield bool   `yaml:"high_yield"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Elastic: ElasticConfig{
			URL:   getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Index: getEnv("ELASTICSEARCH_INDEX", "purchase-items"),
		},
		Scheduler: SchedulerConfig{
			IncrementalCron: getEnv("INCREMENTAL_CRON", "0 3 * * *"),
			OrgSyncCron:     getEnv("ORG_SYNC_CRON", "0 1 * * 0"),
			OrgSyncEnabled:  os.Getenv("ORG_SYNC_ENABLED") == "true",
			PendingPoll:     10 * time.Second,
		},
		Importer: ImporterConfig{
			BaseURL:             getEnv("PNCP_BASE_URL", "https://pncp.gov.br/api"),
			RequestsPerSecond:   getEnvInt("PNCP_REQUESTS_PER_SECOND", 70),
			OrgParallelism:      getEnvInt("ORG_PARALLELISM", 5),
			ModalityParallelism: getEnvInt("MODALITY_PARALLELISM", 4),
			PageSize:            getEnvInt("PNCP_PAGE_SIZE", 50),
			DefaultLookbackDays: getEnvInt("DEFAULT_LOOKBACK_DAYS", 90),
			IndexBatchSize:      getEnvInt("INDEX_BATCH_SIZE", 1000),
		},
		Notifications: NotificationConfig{
			BaseURL: os.Getenv("NOTIFICATIONS_BASE_URL"),
		},
		HealthAddr: getEnv("HEALTH_ADDR", ":8090"),
		LogPath:    getEnv("LOG_PATH", "loader.log"),
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if poll := os.Getenv("PENDING_POLL_INTERVAL"); poll != "" {
		d, err := time.ParseDuration(poll)
		if err == nil {
			cfg.Scheduler.PendingPoll = d
		}
	}

	if err := cfg.loadModalities(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadModalities reads the modality catalog. A missing file falls back
// to the built-in list so one-shot CLI runs work without a config dir.
func (c *Config) loadModalities() error {
	path := getEnv("MODALITIES_FILE", "config/modalities.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.Modalities = defaultModalities()
			return nil
		}
		return err
	}

	var catalog struct {
		Modalities []Modality `yaml:"modalities"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if len(catalog.Modalities) == 0 {
		return fmt.Errorf("%s: no modalities defined", path)
	}

	c.Modalities = catalog.Modalities
	return nil
}

// HighYieldModalities returns the codes that carry the bulk of the
// corpus, used by default for full-corpus scans.
func (c *Config) HighYieldModalities() []int {
	var codes []int
	for _, m := range c.Modalities {
		if m.HighYield {
			codes = append(codes, m.Code)
		}
	}
	return codes
}

func (c *Config) AllModalities() []int {
	var codes []int
	for _, m := range c.Modalities {
		codes = append(codes, m.Code)
	}
	return codes
}

func defaultModalities() []Modality {
	return []Modality{
		{Code: 1, Name: "Leilão eletrônico"},
		{Code: 2, Name: "Diálogo competitivo"},
		{Code: 3, Name: "Concurso"},
		{Code: 4, Name: "Concorrência eletrônica"},
		{Code: 5, Name: "Concorrência presencial"},
		{Code: 6, Name: "Pregão eletrônico", HighYield: true},
		{Code: 7, Name: "Pregão presencial"},
		{Code: 8, Name: "Dispensa de licitação", HighYield: true},
		{Code: 9, Name: "Inexigibilidade", HighYield: true},
		{Code: 10, Name: "Manifestação de interesse"},
		{Code: 11, Name: "Pré-qualificação"},
		{Code: 12, Name: "Credenciamento", HighYield: true},
		{Code: 13, Name: "Leilão presencial"},
		{Code: 14, Name: "Inaplicabilidade da licitação"},
	}
}

// ParseCNPJList splits a comma-separated CNPJ filter flag.
func ParseCNPJList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
