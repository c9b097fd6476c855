package billing

import (
	"math"
	"time"

	"github.com/hospital/inpatient/internal/platform/apperr"
)

// ComputeBill prices a stay from its preview. Every started day is charged
// and a stay always costs at least one day. When the gateway reports zero
// nights the admission date is used instead.
func ComputeBill(p Preview, now time.Time) (Bill, error) {
	const op = "billing.ComputeBill"
	if p.CoverageRate < 0 || p.CoverageRate > 1 {
		return Bill{}, apperr.Validation(op, "coverage rate %v is outside [0,1]", p.CoverageRate)
	}
	if p.BedPrice < 0 || p.SurgeryCost < 0 || p.LabCost < 0 {
		return Bill{}, apperr.Validation(op, "costs must not be negative")
	}

	nights := p.NightsStayed
	if nights <= 0 && !p.AdmittedAt.IsZero() && now.After(p.AdmittedAt) {
		nights = now.Sub(p.AdmittedAt).Hours() / 24
	}
	days := int(math.Ceil(nights))
	if days < 1 {
		days = 1
	}

	b := Bill{
		Days:         days,
		BedPrice:     p.BedPrice,
		BedCost:      float64(days) * p.BedPrice,
		SurgeryCost:  p.SurgeryCost,
		LabCost:      p.LabCost,
		CoverageRate: p.CoverageRate,
	}
	b.Total = b.BedCost + b.SurgeryCost + b.LabCost
	b.InsuranceCovered = math.Round(b.Total * b.CoverageRate)
	b.PatientOwed = b.Total - b.InsuranceCovered
	return b, nil
}

// Invoice builds the unpaid invoice to submit for a computed bill.
func (b Bill) Invoice(admissionID, patientID, note string) *Invoice {
	return &Invoice{
		AdmissionID:      admissionID,
		PatientID:        patientID,
		Total:            b.Total,
		InsuranceCovered: b.InsuranceCovered,
		PatientPaid:      b.PatientOwed,
		CoverageRate:     b.CoverageRate,
		Status:           Unpaid,
		BedCost:          b.BedCost,
		SurgeryCost:      b.SurgeryCost,
		LabCost:          b.LabCost,
		Note:             note,
	}
}
