package admission

import (
	"time"

	"github.com/google/uuid"

	"github.com/hospital/inpatient/internal/domain/billing"
)

// State is the position of a stay in the admission workflow.
type State string

const (
	StateNoAdmission      State = "no_admission"
	StateAdmitted         State = "admitted"
	StatePendingDischarge State = "pending_discharge"
	StateBilled           State = "billed"
	StateDischarged       State = "discharged"
)

var transitions = map[State][]State{
	StateNoAdmission:      {StateAdmitted},
	StateAdmitted:         {StateAdmitted, StatePendingDischarge},
	StatePendingDischarge: {StatePendingDischarge, StateBilled, StateAdmitted},
	StateBilled:           {StateDischarged},
}

// CanTransition reports whether the workflow allows moving from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s State) Valid() bool {
	switch s {
	case StateNoAdmission, StateAdmitted, StatePendingDischarge, StateBilled, StateDischarged:
		return true
	}
	return false
}

// Stay is the persisted checkpoint of one admission's workflow. The invoice
// id is recorded as soon as the invoice exists so a retried payment never
// creates a second one.
type Stay struct {
	ID           uuid.UUID     `json:"id"`
	AdmissionID  string        `json:"admission_id"`
	PatientID    string        `json:"patient_id"`
	DepartmentID string        `json:"department_id"`
	BedID        string        `json:"bed_id"`
	State        State         `json:"state"`
	Bill         *billing.Bill `json:"bill,omitempty"`
	InvoiceID    string        `json:"invoice_id,omitempty"`
	Paid         bool          `json:"paid"`
	Transfers    int           `json:"transfers"`
	Diagnosis    string        `json:"diagnosis,omitempty"`
	AdmittedAt   time.Time     `json:"admitted_at"`
	DischargedAt *time.Time    `json:"discharged_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Version      int           `json:"version"`
}

type AdmitRequest struct {
	PatientID    string     `json:"patient_id"`
	BedID        string     `json:"bed_id"`
	DepartmentID string     `json:"department_id"`
	Reason       string     `json:"reason"`
	AdmittedAt   *time.Time `json:"admitted_at,omitempty"`
}

type TransferRequest struct {
	NewBedID string `json:"new_bed_id"`
	Reason   string `json:"reason"`
}

type DischargeRequest struct {
	DischargedAt time.Time `json:"discharged_at"`
	Diagnosis    string    `json:"diagnosis"`
	DoctorAdvice string    `json:"doctor_advice,omitempty"`
	Notes        string    `json:"notes,omitempty"`
}
