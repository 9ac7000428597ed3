package pncp

import (
	"fmt"
	"strings"
	"time"
)

// APITime parses the timestamp formats PNCP mixes across endpoints:
// RFC3339, local date-times without zone, and bare dates.
type APITime struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (t *APITime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

// Ptr returns the parsed time, or nil when the field was absent.
func (t *APITime) Ptr() *time.Time {
	if t == nil || t.Time.IsZero() {
		return nil
	}
	tt := t.Time
	return &tt
}

// OrgEntity is the organization block embedded in purchase and
// contract records.
type OrgEntity struct {
	CNPJ      string `json:"cnpj"`
	LegalName string `json:"razaoSocial"`
	PowerID   string `json:"poderId"`
	SphereID  string `json:"esferaId"`
}

// OrgUnitRecord is a sub-unit as returned by the org endpoints.
type OrgUnitRecord struct {
	UnitCode  string `json:"codigoUnidade"`
	UnitName  string `json:"nomeUnidade"`
	CityName  string `json:"municipioNome"`
	StateAbbr string `json:"ufSigla"`
}

type idName struct {
	ID   *int   `json:"id"`
	Name string `json:"nome"`
}

// PurchaseRecord is one contracting process from the publication feed.
type PurchaseRecord struct {
	ControlNumber   string         `json:"numeroControlePNCP"`
	Year            int            `json:"anoCompra"`
	Sequential      int            `json:"sequencialCompra"`
	Org             OrgEntity      `json:"orgaoEntidade"`
	Unit            *OrgUnitRecord `json:"unidadeOrgao"`
	ModalityCode    int            `json:"modalidadeId"`
	ModalityName    string         `json:"modalidadeNome"`
	Subject         string         `json:"objetoCompra"`
	EstimatedTotal  *float64       `json:"valorTotalEstimado"`
	AwardedTotal    *float64       `json:"valorTotalHomologado"`
	StatusName      string         `json:"situacaoCompraNome"`
	DisputeModeName string         `json:"modoDisputaNome"`
	LegalBasis      *idName        `json:"amparoLegal"`
	SourceLink      string         `json:"linkSistemaOrigem"`
	PublishedAt     *APITime       `json:"dataInclusao"`
	ProposalOpenAt  *APITime       `json:"dataAberturaProposta"`
	ProposalCloseAt *APITime       `json:"dataEncerramentoProposta"`
	GlobalUpdatedAt *APITime       `json:"dataAtualizacaoGlobal"`
}

func (p *PurchaseRecord) LegalBasisName() string {
	if p.LegalBasis == nil {
		return ""
	}
	return p.LegalBasis.Name
}

// ItemRecord is one line item of a purchase.
type ItemRecord struct {
	ItemNumber    int      `json:"numeroItem"`
	Description   string   `json:"descricao"`
	Quantity      *float64 `json:"quantidade"`
	Unit          string   `json:"unidadeMedida"`
	UnitPrice     *float64 `json:"valorUnitarioEstimado"`
	TotalPrice    *float64 `json:"valorTotal"`
	CriterionName string   `json:"criterioJulgamentoNome"`
	StatusName    string   `json:"situacaoCompraItemNome"`
	HasResult     bool     `json:"temResultado"`
}

// ResultRecord is one award result for a purchase item.
type ResultRecord struct {
	SupplierTaxID    string   `json:"niFornecedor"`
	SupplierName     string   `json:"nomeRazaoSocialFornecedor"`
	AwardedTotal     *float64 `json:"valorTotalHomologado"`
	AwardedUnitPrice *float64 `json:"valorUnitarioHomologado"`
	AwardedQuantity  *float64 `json:"quantidadeHomologada"`
	StatusName       string   `json:"situacaoCompraItemResultadoNome"`
	ResultDate       *APITime `json:"dataResultado"`
}

// ContractRecord is one contract from the contracts feed.
type ContractRecord struct {
	ControlNumber         string    `json:"numeroControlePNCP"`
	PurchaseControlNumber string    `json:"numeroControlePncpCompra"`
	Year                  int       `json:"anoContrato"`
	Sequential            int       `json:"sequencialContrato"`
	ContractNumber        string    `json:"numeroContratoEmpenho"`
	Subject               string    `json:"objetoContrato"`
	Type                  *idName   `json:"tipoContrato"`
	Org                   OrgEntity `json:"orgaoEntidade"`
	SupplierTaxID         string    `json:"niFornecedor"`
	SupplierName          string    `json:"nomeRazaoSocialFornecedor"`
	InitialValue          *float64  `json:"valorInicial"`
	GlobalValue           *float64  `json:"valorGlobal"`
	SignedAt              *APITime  `json:"dataAssinatura"`
	ValidFrom             *APITime  `json:"dataVigenciaInicio"`
	ValidThrough          *APITime  `json:"dataVigenciaFim"`
	PublishedAt           *APITime  `json:"dataPublicacaoPncp"`
	GlobalUpdatedAt       *APITime  `json:"dataAtualizacaoGlobal"`
}

func (c *ContractRecord) TypeName() string {
	if c.Type == nil {
		return ""
	}
	return c.Type.Name
}

// PriceRegRecord is one price-registration record from the atas feed.
type PriceRegRecord struct {
	ControlNumber         string   `json:"numeroControlePNCPAta"`
	PurchaseControlNumber string   `json:"numeroControlePNCPCompra"`
	RegistrationNumber    string   `json:"numeroAtaRegistroPreco"`
	Year                  int      `json:"anoAta"`
	Subject               string   `json:"objetoContratacao"`
	Cancelled             bool     `json:"cancelado"`
	OrgCNPJ               string   `json:"cnpjOrgao"`
	OrgName               string   `json:"nomeOrgao"`
	SignedAt              *APITime `json:"dataAssinatura"`
	ValidFrom             *APITime `json:"vigenciaInicio"`
	ValidThrough          *APITime `json:"vigenciaFim"`
	PublishedAt           *APITime `json:"dataPublicacaoPncp"`
	GlobalUpdatedAt       *APITime `json:"dataAtualizacaoGlobal"`
}

// OrgRecord is one organization from the org listing endpoints.
type OrgRecord struct {
	CNPJ      string `json:"cnpj"`
	LegalName string `json:"razaoSocial"`
	PowerID   string `json:"poderId"`
	SphereID  string `json:"esferaId"`
}

type purchasesEnvelope struct {
	Data       []PurchaseRecord `json:"data"`
	TotalPages int              `json:"totalPaginas"`
}

type contractsEnvelope struct {
	Data           []ContractRecord `json:"data"`
	TotalPages     int              `json:"totalPaginas"`
	PagesRemaining int              `json:"paginasRestantes"`
}

type priceRegsEnvelope struct {
	Data       []PriceRegRecord `json:"data"`
	TotalPages int              `json:"totalPaginas"`
}

type orgsEnvelope struct {
	Data       []OrgRecord `json:"data"`
	TotalPages int         `json:"totalPaginas"`
}
