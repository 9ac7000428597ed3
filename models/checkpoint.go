package models

import "time"

// DataType identifies one of the independently imported PNCP record kinds.
type DataType string

const (
	DataPurchases DataType = "compras"
	DataContracts DataType = "contratos"
	DataPriceRegs DataType = "atas"
)

// AllDataTypes in the order each organization is imported.
var AllDataTypes = []DataType{DataPurchases, DataContracts, DataPriceRegs}

type CheckpointStatus string

const (
	CheckpointInProgress CheckpointStatus = "em_andamento"
	CheckpointSuccess    CheckpointStatus = "sucesso"
	CheckpointError      CheckpointStatus = "erro"
)

// ImportCheckpoint marks the date range already imported for one
// (organization, data type) pair. The window only ever widens.
type ImportCheckpoint struct {
	ID              int64            `json:"id" db:"id"`
	OrgID           int64            `json:"org_id" db:"org_id"`
	DataType        DataType         `json:"data_type" db:"data_type"`
	ImportedFrom    *time.Time       `json:"imported_from" db:"imported_from"`
	ImportedThrough *time.Time       `json:"imported_through" db:"imported_through"`
	LastRunAt       *time.Time       `json:"last_run_at" db:"last_run_at"`
	RecordsImported int              `json:"records_imported" db:"records_imported"`
	Status          CheckpointStatus `json:"status" db:"status"`
	ErrorMessage    *string          `json:"error_message" db:"error_message"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

// NextWindowStart returns the day after the imported-through date, or
// nil when nothing was imported yet (caller falls back to a default
// lookback).
func (c *ImportCheckpoint) NextWindowStart() *time.Time {
	if c == nil || c.ImportedThrough == nil {
		return nil
	}
	next := c.ImportedThrough.AddDate(0, 0, 1)
	return &next
}

// WidenWindow merges a newly imported range into the checkpoint window:
// imported-from only shrinks toward earlier dates, imported-through only
// grows. Mirrors the LEAST/GREATEST merge the store performs in SQL.
func (c *ImportCheckpoint) WidenWindow(from, through time.Time) {
	if c.ImportedFrom == nil || from.Before(*c.ImportedFrom) {
		f := from
		c.ImportedFrom = &f
	}
	if c.ImportedThrough == nil || through.After(*c.ImportedThrough) {
		t := through
		c.ImportedThrough = &t
	}
}
