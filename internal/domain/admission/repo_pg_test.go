package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/hospital/inpatient/internal/domain/billing"
)

var stayColumns = []string{
	"id", "admission_id", "patient_id", "department_id", "bed_id", "state", "bill",
	"invoice_id", "paid", "transfers", "diagnosis", "admitted_at", "discharged_at",
	"created_at", "updated_at", "version",
}

func TestRepoPG_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepo(mock)
	s := &Stay{AdmissionID: "a1", PatientID: "p1", DepartmentID: "k1", BedID: "g1", State: StateAdmitted, AdmittedAt: time.Now()}

	mock.ExpectExec("INSERT INTO admission_stay").
		WithArgs(pgxmock.AnyArg(), "a1", "p1", "k1", "g1", "admitted", pgxmock.AnyArg(),
			"", false, 0, "", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), s); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if s.ID == uuid.Nil || s.Version != 1 {
		t.Errorf("expected id and version assigned, got %+v", s)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepoPG_GetByAdmissionID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepo(mock)
	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows(stayColumns).AddRow(
		id, "a1", "p1", "k1", "g1", "pending_discharge", []byte(`{"days":3,"total":1500000,"coverage_rate":0.8}`),
		"hd1", false, 2, "", now, &now, now, now, 4,
	)
	mock.ExpectQuery("SELECT (.+) FROM admission_stay WHERE admission_id").WithArgs("a1").WillReturnRows(rows)

	s, err := repo.GetByAdmissionID(context.Background(), "a1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if s.ID != id || s.State != StatePendingDischarge || s.InvoiceID != "hd1" || s.Transfers != 2 || s.Version != 4 {
		t.Errorf("unexpected stay %+v", s)
	}
	if s.Bill == nil || s.Bill.Total != 1500000 || s.Bill.Days != 3 {
		t.Errorf("expected bill decoded, got %+v", s.Bill)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepoPG_GetByAdmissionID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM admission_stay").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err = NewRepo(mock).GetByAdmissionID(context.Background(), "missing")
	if !errors.Is(err, ErrStayNotFound) {
		t.Errorf("expected ErrStayNotFound, got %v", err)
	}
}

func TestRepoPG_UpdateBumpsVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	repo := NewRepo(mock)
	s := &Stay{AdmissionID: "a1", BedID: "g2", State: StateBilled, InvoiceID: "hd1", Paid: true,
		Bill: &billing.Bill{Total: 10}, Version: 3}

	mock.ExpectExec("UPDATE admission_stay SET").
		WithArgs("a1", "", "g2", "billed", pgxmock.AnyArg(), "hd1", true, 0, "", pgxmock.AnyArg(), pgxmock.AnyArg(), 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.Update(context.Background(), s); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if s.Version != 4 {
		t.Errorf("expected version 4, got %d", s.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepoPG_UpdateStaleVersion(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("UPDATE admission_stay SET").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewRepo(mock).Update(context.Background(), &Stay{AdmissionID: "a1", Version: 1})
	if !errors.Is(err, ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
}
