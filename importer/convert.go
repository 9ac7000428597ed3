package importer

import (
	"pncp_loader/models"
	"pncp_loader/pncp"
)

func orgFromRecord(rec *pncp.OrgRecord) *models.Organization {
	return &models.Organization{
		CNPJ:       rec.CNPJ,
		LegalName:  rec.LegalName,
		PowerCode:  rec.PowerID,
		SphereCode: rec.SphereID,
	}
}

func orgFromEntity(e *pncp.OrgEntity) *models.Organization {
	return &models.Organization{
		CNPJ:       e.CNPJ,
		LegalName:  e.LegalName,
		PowerCode:  e.PowerID,
		SphereCode: e.SphereID,
	}
}

func orgUnitFromRecord(orgID int64, rec *pncp.OrgUnitRecord) *models.OrgUnit {
	return &models.OrgUnit{
		OrgID:     orgID,
		UnitCode:  rec.UnitCode,
		UnitName:  rec.UnitName,
		CityName:  rec.CityName,
		StateAbbr: rec.StateAbbr,
	}
}

func purchaseFromRecord(orgID int64, rec *pncp.PurchaseRecord) *models.Purchase {
	return &models.Purchase{
		OrgID:           orgID,
		ControlNumber:   rec.ControlNumber,
		Year:            rec.Year,
		Sequential:      rec.Sequential,
		ModalityCode:    rec.ModalityCode,
		ModalityName:    rec.ModalityName,
		Subject:         rec.Subject,
		EstimatedTotal:  rec.EstimatedTotal,
		AwardedTotal:    rec.AwardedTotal,
		StatusName:      rec.StatusName,
		DisputeModeName: rec.DisputeModeName,
		LegalBasisName:  rec.LegalBasisName(),
		SourceLink:      rec.SourceLink,
		ProposalOpenAt:  rec.ProposalOpenAt.Ptr(),
		ProposalCloseAt: rec.ProposalCloseAt.Ptr(),
		PublishedAt:     rec.PublishedAt.Ptr(),
		GlobalUpdatedAt: rec.GlobalUpdatedAt.Ptr(),
	}
}

func itemFromRecord(purchaseID int64, rec *pncp.ItemRecord) *models.PurchaseItem {
	return &models.PurchaseItem{
		PurchaseID:    purchaseID,
		ItemNumber:    rec.ItemNumber,
		Description:   rec.Description,
		Quantity:      rec.Quantity,
		Unit:          rec.Unit,
		UnitPrice:     rec.UnitPrice,
		TotalPrice:    rec.TotalPrice,
		CriterionName: rec.CriterionName,
		StatusName:    rec.StatusName,
		HasResult:     rec.HasResult,
	}
}

func resultFromRecord(itemID int64, rec *pncp.ResultRecord) *models.ItemResult {
	return &models.ItemResult{
		ItemID:           itemID,
		SupplierTaxID:    rec.SupplierTaxID,
		SupplierName:     rec.SupplierName,
		AwardedTotal:     rec.AwardedTotal,
		AwardedUnitPrice: rec.AwardedUnitPrice,
		AwardedQuantity:  rec.AwardedQuantity,
		StatusName:       rec.StatusName,
		ResultDate:       rec.ResultDate.Ptr(),
	}
}

func contractFromRecord(orgID int64, rec *pncp.ContractRecord) *models.Contract {
	return &models.Contract{
		OrgID:                 orgID,
		ControlNumber:         rec.ControlNumber,
		PurchaseControlNumber: rec.PurchaseControlNumber,
		Year:                  rec.Year,
		Sequential:            rec.Sequential,
		ContractNumber:        rec.ContractNumber,
		Subject:               rec.Subject,
		TypeName:              rec.TypeName(),
		SupplierTaxID:         rec.SupplierTaxID,
		SupplierName:          rec.SupplierName,
		InitialValue:          rec.InitialValue,
		GlobalValue:           rec.GlobalValue,
		SignedAt:              rec.SignedAt.Ptr(),
		ValidFrom:             rec.ValidFrom.Ptr(),
		ValidThrough:          rec.ValidThrough.Ptr(),
		PublishedAt:           rec.PublishedAt.Ptr(),
		GlobalUpdatedAt:       rec.GlobalUpdatedAt.Ptr(),
	}
}

func priceRegFromRecord(orgID int64, rec *pncp.PriceRegRecord) *models.PriceRegistration {
	return &models.PriceRegistration{
		OrgID:                 orgID,
		ControlNumber:         rec.ControlNumber,
		PurchaseControlNumber: rec.PurchaseControlNumber,
		RegistrationNumber:    rec.RegistrationNumber,
		Year:                  rec.Year,
		Subject:               rec.Subject,
		Cancelled:             rec.Cancelled,
		SignedAt:              rec.SignedAt.Ptr(),
		ValidFrom:             rec.ValidFrom.Ptr(),
		ValidThrough:          rec.ValidThrough.Ptr(),
		PublishedAt:           rec.PublishedAt.Ptr(),
		GlobalUpdatedAt:       rec.GlobalUpdatedAt.Ptr(),
	}
}
