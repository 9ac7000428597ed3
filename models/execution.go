package models

import (
	"encoding/json"
	"time"
)

type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "pendente"
	ExecutionInProgress ExecutionStatus = "em_andamento"
	ExecutionSuccess    ExecutionStatus = "sucesso"
	ExecutionPartial    ExecutionStatus = "parcial"
	ExecutionError      ExecutionStatus = "erro"
	ExecutionCancelled  ExecutionStatus = "cancelado"
)

type ExecutionMode string

const (
	ModeDaily       ExecutionMode = "diaria"
	ModeIncremental ExecutionMode = "incremental"
	ModeManual      ExecutionMode = "manual"
	ModeOrgSync     ExecutionMode = "orgaos"
)

type ExecutionTrigger string

const (
	TriggerScheduler ExecutionTrigger = "scheduler"
	TriggerCLI       ExecutionTrigger = "cli"
	TriggerAPI       ExecutionTrigger = "api"
)

// Execution is one end-to-end run of the import pipeline.
type Execution struct {
	ID            int64            `json:"id" db:"id"`
	Mode          ExecutionMode    `json:"mode" db:"mode"`
	Trigger       ExecutionTrigger `json:"trigger" db:"trigger"`
	Status        ExecutionStatus  `json:"status" db:"status"`
	StartedAt     time.Time        `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time       `json:"finished_at" db:"finished_at"`
	DurationMs    *int64           `json:"duration_ms" db:"duration_ms"`
	ErrorMessage  *string          `json:"error_message" db:"error_message"`
	StackTrace    *string          `json:"stack_trace" db:"stack_trace"`
	OrgsProcessed int              `json:"orgs_processed" db:"orgs_processed"`
	OrgsFailed    int              `json:"orgs_failed" db:"orgs_failed"`
	Purchases     int              `json:"purchases_processed" db:"purchases_processed"`
	Contracts     int              `json:"contracts_processed" db:"contracts_processed"`
	PriceRegs     int              `json:"price_regs_processed" db:"price_regs_processed"`
	ItemsIndexed  int              `json:"items_indexed" db:"items_indexed"`
	ParamsJSON    []byte           `json:"params" db:"params"`
	AppVersion    string           `json:"app_version" db:"app_version"`
	Hostname      string           `json:"hostname" db:"hostname"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// Params decodes the opaque params blob, or returns nil when absent.
func (e *Execution) Params() (*ExecutionParams, error) {
	if len(e.ParamsJSON) == 0 {
		return nil, nil
	}
	var p ExecutionParams
	if err := json.Unmarshal(e.ParamsJSON, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ExecutionParams are the optional run parameters of a queued execution,
// stored opaquely on the execution row but strongly typed here.
type ExecutionParams struct {
	LookbackDays int      `json:"lookback_days,omitempty"`
	CNPJs        []string `json:"cnpjs,omitempty"`
}

func (p *ExecutionParams) ToJSON() []byte {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return data
}

// ExecutionOrganization is one organization's outcome within an execution,
// persisted in bulk when the execution finalizes.
type ExecutionOrganization struct {
	ID           int64      `json:"id" db:"id"`
	ExecutionID  int64      `json:"execution_id" db:"execution_id"`
	OrgID        int64      `json:"org_id" db:"org_id"`
	Status       string     `json:"status" db:"status"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at" db:"finished_at"`
	DurationMs   int64      `json:"duration_ms" db:"duration_ms"`
	ErrorMessage *string    `json:"error_message" db:"error_message"`
	Purchases    int        `json:"purchases_processed" db:"purchases_processed"`
	PurchasesMs  int64      `json:"purchases_duration_ms" db:"purchases_duration_ms"`
	Contracts    int        `json:"contracts_processed" db:"contracts_processed"`
	ContractsMs  int64      `json:"contracts_duration_ms" db:"contracts_duration_ms"`
	PriceRegs    int        `json:"price_regs_processed" db:"price_regs_processed"`
	PriceRegsMs  int64      `json:"price_regs_duration_ms" db:"price_regs_duration_ms"`
	Items        int        `json:"items_processed" db:"items_processed"`
	WindowStart  *time.Time `json:"window_start" db:"window_start"`
	WindowEnd    *time.Time `json:"window_end" db:"window_end"`
}
