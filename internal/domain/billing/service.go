package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hospital/inpatient/internal/platform/apperr"
)

// InvoiceSource is the system of record for invoices and billing previews.
type InvoiceSource interface {
	Preview(ctx context.Context, admissionID string) (*Preview, error)
	ListInvoices(ctx context.Context, q InvoiceQuery) ([]Invoice, error)
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	CreateInvoice(ctx context.Context, inv *Invoice) error
	PayInvoice(ctx context.Context, id string) error
}

type Service struct {
	invoices InvoiceSource
	now      func() time.Time
}

func NewService(invoices InvoiceSource) *Service {
	return &Service{invoices: invoices, now: time.Now}
}

func (s *Service) GetInvoice(ctx context.Context, id string) (*Invoice, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("billing.GetInvoice", "invoice id is required")
	}
	return s.invoices.GetInvoice(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, q InvoiceQuery) ([]Invoice, error) {
	return s.invoices.ListInvoices(ctx, q)
}

// Quote fetches the preview for an admission and computes its bill.
func (s *Service) Quote(ctx context.Context, admissionID string) (*Preview, *Bill, error) {
	if strings.TrimSpace(admissionID) == "" {
		return nil, nil, apperr.Validation("billing.Quote", "admission id is required")
	}
	p, err := s.invoices.Preview(ctx, admissionID)
	if err != nil {
		return nil, nil, err
	}
	b, err := ComputeBill(*p, s.now())
	if err != nil {
		return nil, nil, err
	}
	return p, &b, nil
}

// OpenInvoice returns the newest unpaid invoice for an admission, or nil.
func (s *Service) OpenInvoice(ctx context.Context, admissionID string) (*Invoice, error) {
	list, err := s.invoices.ListInvoices(ctx, InvoiceQuery{AdmissionID: admissionID})
	if err != nil {
		return nil, err
	}
	var open *Invoice
	for i := range list {
		inv := list[i]
		if inv.AdmissionID != admissionID || inv.Status == Paid {
			continue
		}
		if open == nil || newer(inv, *open) {
			open = &inv
		}
	}
	return open, nil
}

func newer(a, b Invoice) bool {
	if a.CreatedAt == nil || b.CreatedAt == nil {
		return false
	}
	return a.CreatedAt.After(*b.CreatedAt)
}

// Issue creates an unpaid invoice for a computed bill.
func (s *Service) Issue(ctx context.Context, admissionID, patientID string, b Bill, note string) (*Invoice, error) {
	inv := b.Invoice(admissionID, patientID, note)
	if err := s.invoices.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	if inv.ID == "" {
		return nil, apperr.Internal("billing.Issue", errors.New("gateway returned an invoice without id"))
	}
	return inv, nil
}

func (s *Service) Pay(ctx context.Context, invoiceID string) error {
	if strings.TrimSpace(invoiceID) == "" {
		return apperr.Validation("billing.Pay", "invoice id is required")
	}
	return s.invoices.PayInvoice(ctx, invoiceID)
}

// TreatmentCost aggregates invoice totals for reporting.
type TreatmentCost struct {
	Invoices         int     `json:"invoices"`
	Paid             int     `json:"paid"`
	Total            float64 `json:"total"`
	InsuranceCovered float64 `json:"insurance_covered"`
	PatientPaid      float64 `json:"patient_paid"`
	BedCost          float64 `json:"bed_cost"`
	SurgeryCost      float64 `json:"surgery_cost"`
	LabCost          float64 `json:"lab_cost"`
}

func Summarize(invoices []Invoice) TreatmentCost {
	var t TreatmentCost
	for _, inv := range invoices {
		t.Invoices++
		if inv.Status == Paid {
			t.Paid++
		}
		t.Total += inv.Total
		t.InsuranceCovered += inv.InsuranceCovered
		t.PatientPaid += inv.PatientPaid
		t.BedCost += inv.BedCost
		t.SurgeryCost += inv.SurgeryCost
		t.LabCost += inv.LabCost
	}
	return t
}
