package ward

import (
	"encoding/json"
	"fmt"
	"time"
)

// Occupancy is the derived state of a bed.
type Occupancy int

const (
	Available Occupancy = iota
	Occupied
)

func (o Occupancy) String() string {
	if o == Occupied {
		return "occupied"
	}
	return "available"
}

func (o Occupancy) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Occupancy) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOccupancy(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

func ParseOccupancy(s string) (Occupancy, error) {
	switch s {
	case "available", "":
		return Available, nil
	case "occupied":
		return Occupied, nil
	}
	return Available, fmt.Errorf("invalid occupancy: %s", s)
}

// Category is the bed class, which drives its daily price.
type Category string

const (
	CategoryStandard Category = "standard"
	CategoryVIP      Category = "vip"
)

func (c Category) Valid() bool {
	return c == CategoryStandard || c == CategoryVIP
}

// Bed is a physical bed. The patient-linked fields are derived by Reconcile
// and are never read back as a source of truth.
type Bed struct {
	ID           string     `json:"id"`
	DepartmentID string     `json:"department_id"`
	Name         string     `json:"name"`
	Category     Category   `json:"category"`
	PricePerDay  float64    `json:"price_per_day"`
	Occupancy    Occupancy  `json:"occupancy"`
	PatientID    string     `json:"patient_id,omitempty"`
	PatientName  string     `json:"patient_name,omitempty"`
	AdmissionID  string     `json:"admission_id,omitempty"`
	AdmittedAt   *time.Time `json:"admitted_at,omitempty"`
}

// Admission is one hospital stay as reported by the gateway.
type Admission struct {
	ID           string     `json:"id"`
	PatientID    string     `json:"patient_id"`
	PatientName  string     `json:"patient_name,omitempty"`
	PatientCode  string     `json:"patient_code,omitempty"`
	DepartmentID string     `json:"department_id"`
	BedID        string     `json:"bed_id"`
	Reason       string     `json:"reason,omitempty"`
	AdmittedAt   time.Time  `json:"admitted_at"`
	DischargedAt *time.Time `json:"discharged_at,omitempty"`
	Diagnosis    string     `json:"diagnosis,omitempty"`
	Treatment    string     `json:"treatment,omitempty"`
}

// Active reports whether the admission has not been discharged.
func (a Admission) Active() bool {
	return a.DischargedAt == nil
}

type Department struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Category         string `json:"category,omitempty"`
	StandardBedCount int    `json:"standard_bed_count"`
}

type DepartmentStats struct {
	DepartmentID   string `json:"department_id"`
	DepartmentName string `json:"department_name,omitempty"`
	Total          int    `json:"total"`
	Occupied       int    `json:"occupied"`
	Available      int    `json:"available"`
	OccupiedPct    int    `json:"occupied_pct"`
}

// WarningKind classifies data-integrity problems found while reconciling.
type WarningKind string

const (
	WarnDuplicateBed WarningKind = "duplicate_bed_reference"
	WarnUnknownBed   WarningKind = "unknown_bed"
)

// Warning is a recoverable integrity problem. It never aborts a reconcile.
type Warning struct {
	Kind        WarningKind `json:"kind"`
	AdmissionID string      `json:"admission_id"`
	BedID       string      `json:"bed_id,omitempty"`
	Message     string      `json:"message"`
}

// Result is the output of Reconcile.
type Result struct {
	Beds     []Bed             `json:"beds"`
	Stats    []DepartmentStats `json:"stats"`
	Warnings []Warning         `json:"warnings,omitempty"`
}

// Snapshot is a cached reconcile together with the inputs it was built from.
type Snapshot struct {
	Result
	Departments []Department `json:"departments"`
	Admissions  []Admission  `json:"-"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// DepartmentSummary is a department with its live bed counts.
type DepartmentSummary struct {
	Department
	BedCount     int `json:"bed_count"`
	OccupiedBeds int `json:"occupied_beds"`
	OccupiedPct  int `json:"occupied_pct"`
}

// BedFilter narrows an annotated bed list.
type BedFilter struct {
	Query        string
	DepartmentID string
	Status       string // all, available, occupied
}

// AdmissionQuery searches active admissions.
type AdmissionQuery struct {
	PatientID    string
	DepartmentID string
	Query        string
}
