package billing

import (
	"encoding/json"
	"fmt"
	"time"
)

// InvoiceStatus is the payment state of an invoice.
type InvoiceStatus int

const (
	Unpaid InvoiceStatus = iota
	Paid
	Debt
)

var statusNames = map[InvoiceStatus]string{
	Unpaid: "unpaid",
	Paid:   "paid",
	Debt:   "debt",
}

func (s InvoiceStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	for k, v := range statusNames {
		if v == s {
			return k, nil
		}
	}
	return Unpaid, fmt.Errorf("invalid invoice status: %s", s)
}

func (s InvoiceStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *InvoiceStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseInvoiceStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type Invoice struct {
	ID               string        `json:"id"`
	AdmissionID      string        `json:"admission_id"`
	PatientID        string        `json:"patient_id"`
	PatientName      string        `json:"patient_name,omitempty"`
	Total            float64       `json:"total"`
	InsuranceCovered float64       `json:"insurance_covered"`
	PatientPaid      float64       `json:"patient_paid"`
	CoverageRate     float64       `json:"coverage_rate,omitempty"`
	Status           InvoiceStatus `json:"status"`
	BedCost          float64       `json:"bed_cost,omitempty"`
	SurgeryCost      float64       `json:"surgery_cost,omitempty"`
	LabCost          float64       `json:"lab_cost,omitempty"`
	Note             string        `json:"note,omitempty"`
	CreatedAt        *time.Time    `json:"created_at,omitempty"`
	PaidAt           *time.Time    `json:"paid_at,omitempty"`
}

// Preview is the gateway's billing preview for an admission. CoverageRate is
// always a fraction in [0,1].
type Preview struct {
	AdmissionID    string    `json:"admission_id"`
	PatientID      string    `json:"patient_id"`
	PatientName    string    `json:"patient_name"`
	BedName        string    `json:"bed_name"`
	BedPrice       float64   `json:"bed_price"`
	NightsStayed   float64   `json:"nights_stayed"`
	AdmittedAt     time.Time `json:"admitted_at"`
	SurgeryCost    float64   `json:"surgery_cost"`
	LabCost        float64   `json:"lab_cost"`
	SuggestedTotal float64   `json:"suggested_total"`
	CoverageRate   float64   `json:"coverage_rate"`
}

// Bill is the locally computed charge for a stay.
type Bill struct {
	Days             int     `json:"days"`
	BedPrice         float64 `json:"bed_price"`
	BedCost          float64 `json:"bed_cost"`
	SurgeryCost      float64 `json:"surgery_cost"`
	LabCost          float64 `json:"lab_cost"`
	Total            float64 `json:"total"`
	CoverageRate     float64 `json:"coverage_rate"`
	InsuranceCovered float64 `json:"insurance_covered"`
	PatientOwed      float64 `json:"patient_owed"`
}

// InvoiceQuery filters invoice listings. Both fields empty lists everything.
type InvoiceQuery struct {
	PatientID   string
	AdmissionID string
}
