package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hospital/inpatient/internal/platform/apperr"
)

type mockInvoices struct {
	previews map[string]*Preview
	invoices map[string]*Invoice
	seq      int
	created  int
	paid     []string
	payErr   error
	noID     bool
}

func newMockInvoices() *mockInvoices {
	return &mockInvoices{previews: make(map[string]*Preview), invoices: make(map[string]*Invoice)}
}

func (m *mockInvoices) Preview(_ context.Context, admissionID string) (*Preview, error) {
	p, ok := m.previews[admissionID]
	if !ok {
		return nil, apperr.NotFound("invoices.preview", "no preview for %s", admissionID)
	}
	return p, nil
}

func (m *mockInvoices) ListInvoices(_ context.Context, q InvoiceQuery) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if q.AdmissionID != "" && inv.AdmissionID != q.AdmissionID {
			continue
		}
		if q.PatientID != "" && inv.PatientID != q.PatientID {
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}

func (m *mockInvoices) GetInvoice(_ context.Context, id string) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, apperr.NotFound("invoices.get", "invoice %s not found", id)
	}
	cp := *inv
	return &cp, nil
}

func (m *mockInvoices) CreateInvoice(_ context.Context, inv *Invoice) error {
	m.seq++
	m.created++
	if m.noID {
		return nil
	}
	inv.ID = fmt.Sprintf("hd%d", m.seq)
	now := time.Now()
	inv.CreatedAt = &now
	cp := *inv
	m.invoices[inv.ID] = &cp
	return nil
}

func (m *mockInvoices) PayInvoice(_ context.Context, id string) error {
	if m.payErr != nil {
		return m.payErr
	}
	inv, ok := m.invoices[id]
	if !ok {
		return apperr.NotFound("invoices.pay", "invoice %s not found", id)
	}
	inv.Status = Paid
	m.paid = append(m.paid, id)
	return nil
}

func newTestService() (*Service, *mockInvoices) {
	m := newMockInvoices()
	return NewService(m), m
}

func TestService_Quote(t *testing.T) {
	svc, m := newTestService()
	m.previews["a1"] = &Preview{AdmissionID: "a1", BedPrice: 500000, NightsStayed: 3, CoverageRate: 0.8}

	p, b, err := svc.Quote(context.Background(), "a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.AdmissionID != "a1" || b.Total != 1500000 {
		t.Errorf("unexpected quote %+v %+v", p, b)
	}

	if _, _, err := svc.Quote(context.Background(), ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_OpenInvoiceSkipsPaid(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	m.invoices["old"] = &Invoice{ID: "old", AdmissionID: "a1", Status: Paid}

	open, err := svc.OpenInvoice(ctx, "a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if open != nil {
		t.Fatalf("expected no open invoice, got %+v", open)
	}

	inv, err := svc.Issue(ctx, "a1", "p1", Bill{Total: 10}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	open, _ = svc.OpenInvoice(ctx, "a1")
	if open == nil || open.ID != inv.ID {
		t.Errorf("expected issued invoice to be open, got %+v", open)
	}
}

func TestService_IssueWithoutIDIsInternal(t *testing.T) {
	svc, m := newTestService()
	m.noID = true

	_, err := svc.Issue(context.Background(), "a1", "p1", Bill{Total: 10}, "")
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if m.created != 1 {
		t.Errorf("expected the create call to reach the gateway, got %d", m.created)
	}
}

func TestService_Pay(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	inv, _ := svc.Issue(ctx, "a1", "p1", Bill{Total: 10}, "")

	if err := svc.Pay(ctx, inv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.invoices[inv.ID].Status != Paid {
		t.Error("expected invoice marked paid")
	}
	if err := svc.Pay(ctx, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize([]Invoice{
		{Total: 100, InsuranceCovered: 80, PatientPaid: 20, Status: Paid, BedCost: 100},
		{Total: 50, InsuranceCovered: 0, PatientPaid: 50, Status: Debt, LabCost: 50},
	})
	if got.Invoices != 2 || got.Paid != 1 || got.Total != 150 || got.LabCost != 50 {
		t.Errorf("unexpected summary %+v", got)
	}
}
