// Package reporting builds the ward's bed-capacity and treatment-cost
// reports and serves them as JSON or spreadsheets.
package reporting

import (
	"context"
	"time"

	"github.com/hospital/inpatient/internal/domain/billing"
	"github.com/hospital/inpatient/internal/domain/ward"
)

type OccupancySource interface {
	Snapshot(ctx context.Context) (*ward.Snapshot, error)
}

type InvoiceLister interface {
	ListInvoices(ctx context.Context, q billing.InvoiceQuery) ([]billing.Invoice, error)
}

type BedCapacityReport struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Departments []ward.DepartmentStats `json:"departments"`
	Totals      ward.DepartmentStats   `json:"totals"`
	Warnings    int                    `json:"warnings"`
}

func BuildBedCapacity(snap *ward.Snapshot) BedCapacityReport {
	stats := snap.Stats
	if stats == nil {
		stats = []ward.DepartmentStats{}
	}
	return BedCapacityReport{
		GeneratedAt: snap.GeneratedAt,
		Departments: stats,
		Totals:      ward.Totals(snap.Stats),
		Warnings:    len(snap.Warnings),
	}
}

func (r BedCapacityReport) Table() Table {
	t := Table{
		Sheet:   "Bed Capacity",
		Headers: []string{"Department", "Department ID", "Total Beds", "Occupied", "Available", "Occupied %"},
		Widths:  []float64{28, 16, 12, 12, 12, 12},
	}
	for _, d := range r.Departments {
		t.Rows = append(t.Rows, []interface{}{d.DepartmentName, d.DepartmentID, d.Total, d.Occupied, d.Available, d.OccupiedPct})
	}
	t.Totals = []interface{}{"Total", "", r.Totals.Total, r.Totals.Occupied, r.Totals.Available, r.Totals.OccupiedPct}
	return t
}

type TreatmentCostReport struct {
	GeneratedAt time.Time             `json:"generated_at"`
	PatientID   string                `json:"patient_id,omitempty"`
	Summary     billing.TreatmentCost `json:"summary"`
	Invoices    []billing.Invoice     `json:"invoices"`
}

func BuildTreatmentCost(patientID string, invoices []billing.Invoice, now time.Time) TreatmentCostReport {
	if invoices == nil {
		invoices = []billing.Invoice{}
	}
	return TreatmentCostReport{
		GeneratedAt: now,
		PatientID:   patientID,
		Summary:     billing.Summarize(invoices),
		Invoices:    invoices,
	}
}

func (r TreatmentCostReport) Table() Table {
	t := Table{
		Sheet: "Treatment Cost",
		Headers: []string{"Invoice", "Admission", "Patient", "Status", "Bed", "Surgery", "Lab",
			"Total", "Insurance", "Patient Paid"},
		Widths: []float64{12, 12, 28, 10, 14, 14, 14, 14, 14, 14},
	}
	for _, inv := range r.Invoices {
		name := inv.PatientName
		if name == "" {
			name = inv.PatientID
		}
		t.Rows = append(t.Rows, []interface{}{
			inv.ID, inv.AdmissionID, name, inv.Status.String(),
			inv.BedCost, inv.SurgeryCost, inv.LabCost,
			inv.Total, inv.InsuranceCovered, inv.PatientPaid,
		})
	}
	s := r.Summary
	t.Totals = []interface{}{"Total", "", "", "", s.BedCost, s.SurgeryCost, s.LabCost, s.Total, s.InsuranceCovered, s.PatientPaid}
	return t
}
