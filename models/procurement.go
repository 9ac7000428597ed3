package models

import "time"

// Organization is a public body publishing procurement records on PNCP,
// keyed by its CNPJ.
type Organization struct {
	ID         int64     `json:"id" db:"id"`
	CNPJ       string    `json:"cnpj" db:"cnpj"`
	LegalName  string    `json:"legal_name" db:"legal_name"`
	PowerCode  string    `json:"power_code" db:"power_code"`
	SphereCode string    `json:"sphere_code" db:"sphere_code"`
	Monitored  bool      `json:"monitored" db:"monitored"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// OrgUnit is an administrative sub-unit of an organization.
type OrgUnit struct {
	ID        int64  `json:"id" db:"id"`
	OrgID     int64  `json:"org_id" db:"org_id"`
	UnitCode  string `json:"unit_code" db:"unit_code"`
	UnitName  string `json:"unit_name" db:"unit_name"`
	CityName  string `json:"city_name" db:"city_name"`
	StateAbbr string `json:"state_abbr" db:"state_abbr"`
}

// Purchase is one published contracting process (compra).
type Purchase struct {
	ID              int64      `json:"id" db:"id"`
	OrgID           int64      `json:"org_id" db:"org_id"`
	ControlNumber   string     `json:"control_number" db:"control_number"` // PNCP natural key
	Year            int        `json:"year" db:"year"`
	Sequential      int        `json:"sequential" db:"sequential"`
	ModalityCode    int        `json:"modality_code" db:"modality_code"`
	ModalityName    string     `json:"modality_name" db:"modality_name"`
	Subject         string     `json:"subject" db:"subject"`
	EstimatedTotal  *float64   `json:"estimated_total" db:"estimated_total"`
	AwardedTotal    *float64   `json:"awarded_total" db:"awarded_total"`
	StatusName      string     `json:"status_name" db:"status_name"`
	DisputeModeName string     `json:"dispute_mode_name" db:"dispute_mode_name"`
	LegalBasisName  string     `json:"legal_basis_name" db:"legal_basis_name"`
	SourceLink      string     `json:"source_link" db:"source_link"`
	ProposalOpenAt  *time.Time `json:"proposal_open_at" db:"proposal_open_at"`
	ProposalCloseAt *time.Time `json:"proposal_close_at" db:"proposal_close_at"`
	PublishedAt     *time.Time `json:"published_at" db:"published_at"`
	GlobalUpdatedAt *time.Time `json:"global_updated_at" db:"global_updated_at"`
	ItemsLoaded     bool       `json:"items_loaded" db:"items_loaded"`
}

// PurchaseItem is one line item of a purchase.
type PurchaseItem struct {
	ID            int64    `json:"id" db:"id"`
	PurchaseID    int64    `json:"purchase_id" db:"purchase_id"`
	ItemNumber    int      `json:"item_number" db:"item_number"`
	Description   string   `json:"description" db:"description"`
	Quantity      *float64 `json:"quantity" db:"quantity"`
	Unit          string   `json:"unit" db:"unit"`
	UnitPrice     *float64 `json:"unit_price" db:"unit_price"`
	TotalPrice    *float64 `json:"total_price" db:"total_price"`
	CriterionName string   `json:"criterion_name" db:"criterion_name"`
	StatusName    string   `json:"status_name" db:"status_name"`
	HasResult     bool     `json:"has_result" db:"has_result"`
}

// ItemResult is one award result for a purchase item.
type ItemResult struct {
	ID               int64      `json:"id" db:"id"`
	ItemID           int64      `json:"item_id" db:"item_id"`
	SupplierTaxID    string     `json:"supplier_tax_id" db:"supplier_tax_id"`
	SupplierName     string     `json:"supplier_name" db:"supplier_name"`
	AwardedTotal     *float64   `json:"awarded_total" db:"awarded_total"`
	AwardedUnitPrice *float64   `json:"awarded_unit_price" db:"awarded_unit_price"`
	AwardedQuantity  *float64   `json:"awarded_quantity" db:"awarded_quantity"`
	StatusName       string     `json:"status_name" db:"status_name"`
	ResultDate       *time.Time `json:"result_date" db:"result_date"`
}

// Contract is one published contract (contrato).
type Contract struct {
	ID                    int64      `json:"id" db:"id"`
	OrgID                 int64      `json:"org_id" db:"org_id"`
	ControlNumber         string     `json:"control_number" db:"control_number"`
	PurchaseControlNumber string     `json:"purchase_control_number" db:"purchase_control_number"`
	Year                  int        `json:"year" db:"year"`
	Sequential            int        `json:"sequential" db:"sequential"`
	ContractNumber        string     `json:"contract_number" db:"contract_number"`
	Subject               string     `json:"subject" db:"subject"`
	TypeName              string     `json:"type_name" db:"type_name"`
	SupplierTaxID         string     `json:"supplier_tax_id" db:"supplier_tax_id"`
	SupplierName          string     `json:"supplier_name" db:"supplier_name"`
	InitialValue          *float64   `json:"initial_value" db:"initial_value"`
	GlobalValue           *float64   `json:"global_value" db:"global_value"`
	SignedAt              *time.Time `json:"signed_at" db:"signed_at"`
	ValidFrom             *time.Time `json:"valid_from" db:"valid_from"`
	ValidThrough          *time.Time `json:"valid_through" db:"valid_through"`
	PublishedAt           *time.Time `json:"published_at" db:"published_at"`
	GlobalUpdatedAt       *time.Time `json:"global_updated_at" db:"global_updated_at"`
}

// PriceRegistration is one price-registration record (ata de registro de preco).
type PriceRegistration struct {
	ID                    int64      `json:"id" db:"id"`
	OrgID                 int64      `json:"org_id" db:"org_id"`
	ControlNumber         string     `json:"control_number" db:"control_number"`
	PurchaseControlNumber string     `json:"purchase_control_number" db:"purchase_control_number"`
	RegistrationNumber    string     `json:"registration_number" db:"registration_number"`
	Year                  int        `json:"year" db:"year"`
	Subject               string     `json:"subject" db:"subject"`
	Cancelled             bool       `json:"cancelled" db:"cancelled"`
	SignedAt              *time.Time `json:"signed_at" db:"signed_at"`
	ValidFrom             *time.Time `json:"valid_from" db:"valid_from"`
	ValidThrough          *time.Time `json:"valid_through" db:"valid_through"`
	PublishedAt           *time.Time `json:"published_at" db:"published_at"`
	GlobalUpdatedAt       *time.Time `json:"global_updated_at" db:"global_updated_at"`
}
