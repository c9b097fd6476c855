package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hospital/inpatient/internal/domain/billing"
	"github.com/hospital/inpatient/internal/platform/db"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repoPG struct {
	pool querier
}

// NewRepo returns a Postgres-backed Repository. pool is usually a
// *pgxpool.Pool.
func NewRepo(pool querier) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const stayCols = `id, admission_id, patient_id, department_id, bed_id, state, bill,
	invoice_id, paid, transfers, diagnosis, admitted_at, discharged_at,
	created_at, updated_at, version`

func encodeBill(b *billing.Bill) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	return json.Marshal(b)
}

func (r *repoPG) Create(ctx context.Context, s *Stay) error {
	s.ID = uuid.New()
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	s.Version = 1

	bill, err := encodeBill(s.Bill)
	if err != nil {
		return fmt.Errorf("encode bill: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO admission_stay (
			id, admission_id, patient_id, department_id, bed_id, state, bill,
			invoice_id, paid, transfers, diagnosis, admitted_at, discharged_at,
			created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		s.ID, s.AdmissionID, s.PatientID, s.DepartmentID, s.BedID, string(s.State), bill,
		s.InvoiceID, s.Paid, s.Transfers, s.Diagnosis, s.AdmittedAt, s.DischargedAt,
		s.CreatedAt, s.UpdatedAt, s.Version)
	if err != nil {
		return fmt.Errorf("insert stay: %w", err)
	}
	return nil
}

func (r *repoPG) GetByAdmissionID(ctx context.Context, admissionID string) (*Stay, error) {
	row := r.conn(ctx).QueryRow(ctx, `SELECT `+stayCols+` FROM admission_stay WHERE admission_id = $1`, admissionID)
	s, err := scanStay(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStayNotFound
	}
	return s, err
}

func (r *repoPG) Update(ctx context.Context, s *Stay) error {
	bill, err := encodeBill(s.Bill)
	if err != nil {
		return fmt.Errorf("encode bill: %w", err)
	}
	s.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE admission_stay SET
			department_id = $2, bed_id = $3, state = $4, bill = $5, invoice_id = $6,
			paid = $7, transfers = $8, diagnosis = $9, discharged_at = $10,
			updated_at = $11, version = version + 1
		WHERE admission_id = $1 AND version = $12`,
		s.AdmissionID, s.DepartmentID, s.BedID, string(s.State), bill, s.InvoiceID,
		s.Paid, s.Transfers, s.Diagnosis, s.DischargedAt,
		s.UpdatedAt, s.Version)
	if err != nil {
		return fmt.Errorf("update stay: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	s.Version++
	return nil
}

func (r *repoPG) ListByState(ctx context.Context, state State, limit, offset int) ([]*Stay, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM admission_stay WHERE state = $1`, string(state)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count stays: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+stayCols+` FROM admission_stay WHERE state = $1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3`,
		string(state), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list stays: %w", err)
	}
	defer rows.Close()

	var items []*Stay
	for rows.Next() {
		s, err := scanStay(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanStay(row scanner) (*Stay, error) {
	var (
		s     Stay
		state string
		bill  []byte
	)
	err := row.Scan(&s.ID, &s.AdmissionID, &s.PatientID, &s.DepartmentID, &s.BedID, &state, &bill,
		&s.InvoiceID, &s.Paid, &s.Transfers, &s.Diagnosis, &s.AdmittedAt, &s.DischargedAt,
		&s.CreatedAt, &s.UpdatedAt, &s.Version)
	if err != nil {
		return nil, err
	}
	s.State = State(state)
	if len(bill) > 0 {
		var b billing.Bill
		if err := json.Unmarshal(bill, &b); err != nil {
			return nil, fmt.Errorf("decode bill: %w", err)
		}
		s.Bill = &b
	}
	return &s, nil
}
