package ward

import (
	"fmt"
	"math"
	"strings"
)

// Reconcile merges beds with the active admissions. Each bed referenced by an
// active admission is marked occupied and carries that admission's patient;
// every other bed is marked available with its patient fields cleared.
//
// Beds are returned in input order and the input slice is left untouched.
// Stats hold one entry per department seen among the beds, in first-seen
// order; depts only supplies display names.
func Reconcile(beds []Bed, active []Admission, depts []Department) Result {
	res := Result{
		Beds:  make([]Bed, 0, len(beds)),
		Stats: []DepartmentStats{},
	}

	known := make(map[string]struct{}, len(beds))
	for _, b := range beds {
		known[b.ID] = struct{}{}
	}

	byBed := make(map[string]Admission, len(active))
	for _, a := range active {
		if !a.Active() {
			continue
		}
		if _, ok := known[a.BedID]; a.BedID == "" || !ok {
			res.Warnings = append(res.Warnings, Warning{
				Kind:        WarnUnknownBed,
				AdmissionID: a.ID,
				BedID:       a.BedID,
				Message:     fmt.Sprintf("admission %s references unknown bed %q", a.ID, a.BedID),
			})
			continue
		}
		if prev, dup := byBed[a.BedID]; dup {
			res.Warnings = append(res.Warnings, Warning{
				Kind:        WarnDuplicateBed,
				AdmissionID: a.ID,
				BedID:       a.BedID,
				Message:     fmt.Sprintf("bed %s is referenced by admissions %s and %s", a.BedID, prev.ID, a.ID),
			})
		}
		byBed[a.BedID] = a
	}

	names := make(map[string]string, len(depts))
	for _, d := range depts {
		names[d.ID] = d.Name
	}

	statIdx := make(map[string]int)
	for _, b := range beds {
		annotated := b
		if a, ok := byBed[b.ID]; ok {
			admittedAt := a.AdmittedAt
			annotated.Occupancy = Occupied
			annotated.PatientID = a.PatientID
			annotated.PatientName = a.PatientName
			annotated.AdmissionID = a.ID
			annotated.AdmittedAt = &admittedAt
		} else {
			annotated.Occupancy = Available
			annotated.PatientID = ""
			annotated.PatientName = ""
			annotated.AdmissionID = ""
			annotated.AdmittedAt = nil
		}
		res.Beds = append(res.Beds, annotated)

		if b.DepartmentID == "" {
			continue
		}
		i, ok := statIdx[b.DepartmentID]
		if !ok {
			i = len(res.Stats)
			statIdx[b.DepartmentID] = i
			res.Stats = append(res.Stats, DepartmentStats{
				DepartmentID:   b.DepartmentID,
				DepartmentName: names[b.DepartmentID],
			})
		}
		res.Stats[i].Total++
		if annotated.Occupancy == Occupied {
			res.Stats[i].Occupied++
		} else {
			res.Stats[i].Available++
		}
	}

	for i := range res.Stats {
		res.Stats[i].OccupiedPct = Percent(res.Stats[i].Occupied, res.Stats[i].Total)
	}
	return res
}

// Percent returns occupied/total as a whole percentage, 0 for an empty department.
func Percent(occupied, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(occupied) / float64(total) * 100))
}

// Totals sums stats across departments.
func Totals(stats []DepartmentStats) DepartmentStats {
	var t DepartmentStats
	for _, s := range stats {
		t.Total += s.Total
		t.Occupied += s.Occupied
		t.Available += s.Available
	}
	t.OccupiedPct = Percent(t.Occupied, t.Total)
	return t
}

// FilterBeds applies f to an annotated bed list. The keyword matches bed
// name, bed id and patient name, case-insensitively.
func FilterBeds(beds []Bed, f BedFilter) []Bed {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]Bed, 0, len(beds))
	for _, b := range beds {
		if f.DepartmentID != "" && b.DepartmentID != f.DepartmentID {
			continue
		}
		switch f.Status {
		case "available":
			if b.Occupancy != Available {
				continue
			}
		case "occupied":
			if b.Occupancy != Occupied {
				continue
			}
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(b.Name), q) &&
			!strings.Contains(strings.ToLower(b.ID), q) &&
			!strings.Contains(strings.ToLower(b.PatientName), q) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// ValidStatusFilter reports whether s is an accepted bed status filter.
func ValidStatusFilter(s string) bool {
	switch s {
	case "", "all", "available", "occupied":
		return true
	}
	return false
}

// Summarize attaches live bed counts to each department.
func Summarize(depts []Department, stats []DepartmentStats) []DepartmentSummary {
	byID := make(map[string]DepartmentStats, len(stats))
	for _, s := range stats {
		byID[s.DepartmentID] = s
	}
	out := make([]DepartmentSummary, 0, len(depts))
	for _, d := range depts {
		s := byID[d.ID]
		out = append(out, DepartmentSummary{
			Department:   d,
			BedCount:     s.Total,
			OccupiedBeds: s.Occupied,
			OccupiedPct:  s.OccupiedPct,
		})
	}
	return out
}
