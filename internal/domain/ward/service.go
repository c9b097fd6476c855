package ward

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hospital/inpatient/internal/platform/apperr"
	"github.com/hospital/inpatient/internal/platform/metrics"
	"github.com/hospital/inpatient/internal/platform/websocket"
)

// BedSource reads and writes beds on the system of record.
type BedSource interface {
	ListBeds(ctx context.Context) ([]Bed, error)
	GetBed(ctx context.Context, id string) (*Bed, error)
	CreateBed(ctx context.Context, b *Bed) error
	UpdateBed(ctx context.Context, b *Bed) error
	DeleteBed(ctx context.Context, id string) error
}

// AdmissionSource reads admissions on the system of record.
type AdmissionSource interface {
	ListActiveAdmissions(ctx context.Context) ([]Admission, error)
	GetAdmission(ctx context.Context, id string) (*Admission, error)
	SearchAdmissions(ctx context.Context, q AdmissionQuery) ([]Admission, error)
}

type DepartmentSource interface {
	ListDepartments(ctx context.Context) ([]Department, error)
	GetDepartment(ctx context.Context, id string) (*Department, error)
}

const (
	DefaultSnapshotTTL = 15 * time.Second

	EventOccupancyChanged = "occupancy.changed"
)

// Service keeps a reconciled view of the ward. Snapshots are cached for ttl
// and rebuilt on demand or when Invalidate is called after a mutation.
type Service struct {
	beds   BedSource
	adms   AdmissionSource
	depts  DepartmentSource
	logger zerolog.Logger

	ttl       time.Duration
	metrics   *metrics.Metrics
	publisher websocket.EventPublisher
	now       func() time.Time

	flight singleflight.Group
	mu     sync.RWMutex
	snap   *Snapshot
	gen    uint64
}

func NewService(beds BedSource, adms AdmissionSource, depts DepartmentSource, logger zerolog.Logger) *Service {
	return &Service{
		beds:   beds,
		adms:   adms,
		depts:  depts,
		logger: logger.With().Str("component", "ward").Logger(),
		ttl:    DefaultSnapshotTTL,
		now:    time.Now,
	}
}

// SetTTL sets how long a snapshot is served from cache. Zero disables caching.
func (s *Service) SetTTL(ttl time.Duration) {
	s.ttl = ttl
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetPublisher attaches the websocket hub that receives occupancy events.
func (s *Service) SetPublisher(p websocket.EventPublisher) {
	s.publisher = p
}

// Snapshot returns the cached snapshot when fresh, otherwise rebuilds it.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	if snap != nil && s.ttl > 0 && s.now().Sub(snap.GeneratedAt) < s.ttl {
		return snap, nil
	}
	return s.Refresh(ctx)
}

// Refresh fetches beds, active admissions and departments concurrently and
// reconciles them. Concurrent callers share one fetch.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	v, err, _ := s.flight.Do("snapshot", func() (interface{}, error) {
		return s.build(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (s *Service) build(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	gen := s.gen
	s.mu.RUnlock()

	var (
		beds   []Bed
		active []Admission
		depts  []Department
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		beds, err = s.beds.ListBeds(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		active, err = s.adms.ListActiveAdmissions(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		depts, err = s.depts.ListDepartments(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := Reconcile(beds, active, depts)
	for _, w := range res.Warnings {
		s.logger.Warn().
			Str("kind", string(w.Kind)).
			Str("admission_id", w.AdmissionID).
			Str("bed_id", w.BedID).
			Msg(w.Message)
		s.metrics.ObserveReconcileWarning(string(w.Kind))
	}
	for _, st := range res.Stats {
		s.metrics.SetDepartmentOccupancy(st.DepartmentID, st.OccupiedPct)
	}

	current := make([]Admission, 0, len(active))
	for _, a := range active {
		if a.Active() {
			current = append(current, a)
		}
	}
	snap := &Snapshot{
		Result:      res,
		Departments: depts,
		Admissions:  current,
		GeneratedAt: s.now(),
	}

	s.mu.Lock()
	if s.gen == gen {
		s.snap = snap
	}
	s.mu.Unlock()
	return snap, nil
}

// Invalidate drops the cached snapshot, rebuilds it and publishes the new
// department stats. A failed rebuild is logged; the next read retries it.
func (s *Service) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.gen++
	s.snap = nil
	s.mu.Unlock()
	s.flight.Forget("snapshot")

	snap, err := s.Refresh(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("occupancy refresh after invalidate failed")
		return
	}
	s.publish(ctx, snap)
}

func (s *Service) publish(ctx context.Context, snap *Snapshot) {
	if s.publisher == nil {
		return
	}
	payload := struct {
		Stats  []DepartmentStats `json:"stats"`
		Totals DepartmentStats   `json:"totals"`
	}{snap.Stats, Totals(snap.Stats)}

	ev, err := websocket.NewEvent(EventOccupancyChanged, websocket.TopicOccupancy, "", payload)
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("publish occupancy event")
	}
	for _, st := range snap.Stats {
		ev, err := websocket.NewEvent(EventOccupancyChanged, websocket.DepartmentTopic(st.DepartmentID), st.DepartmentID, st)
		if err == nil {
			err = s.publisher.Publish(ctx, ev)
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("department_id", st.DepartmentID).Msg("publish department occupancy event")
		}
	}
}

// -- Beds --

func (s *Service) ListBeds(ctx context.Context, f BedFilter) ([]Bed, error) {
	if !ValidStatusFilter(f.Status) {
		return nil, apperr.Validation("ward.ListBeds", "invalid status filter: %s", f.Status)
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return FilterBeds(snap.Beds, f), nil
}

// GetBed returns the annotated bed from the snapshot, falling back to the
// source for beds created since the snapshot was taken.
func (s *Service) GetBed(ctx context.Context, id string) (*Bed, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("ward.GetBed", "bed id is required")
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for i := range snap.Beds {
		if snap.Beds[i].ID == id {
			b := snap.Beds[i]
			return &b, nil
		}
	}
	return s.beds.GetBed(ctx, id)
}

func validateBed(op string, b *Bed) error {
	if strings.TrimSpace(b.Name) == "" {
		return apperr.Validation(op, "bed name is required")
	}
	if strings.TrimSpace(b.DepartmentID) == "" {
		return apperr.Validation(op, "department_id is required")
	}
	if b.Category == "" {
		b.Category = CategoryStandard
	}
	if !b.Category.Valid() {
		return apperr.Validation(op, "invalid bed category: %s", b.Category)
	}
	if b.PricePerDay < 0 {
		return apperr.Validation(op, "price_per_day must not be negative")
	}
	return nil
}

func (s *Service) CreateBed(ctx context.Context, b *Bed) error {
	if err := validateBed("ward.CreateBed", b); err != nil {
		return err
	}
	if err := s.beds.CreateBed(ctx, b); err != nil {
		return err
	}
	s.Invalidate(ctx)
	return nil
}

func (s *Service) UpdateBed(ctx context.Context, b *Bed) error {
	if strings.TrimSpace(b.ID) == "" {
		return apperr.Validation("ward.UpdateBed", "bed id is required")
	}
	if err := validateBed("ward.UpdateBed", b); err != nil {
		return err
	}
	// Occupancy is derived from admissions, never from the request body.
	cur, err := s.GetBed(ctx, b.ID)
	if err != nil {
		return err
	}
	b.Occupancy = cur.Occupancy
	b.PatientID, b.PatientName = cur.PatientID, cur.PatientName
	b.AdmissionID, b.AdmittedAt = cur.AdmissionID, cur.AdmittedAt
	if err := s.beds.UpdateBed(ctx, b); err != nil {
		return err
	}
	s.Invalidate(ctx)
	return nil
}

// DeleteBed refuses to remove a bed that currently holds a patient.
func (s *Service) DeleteBed(ctx context.Context, id string) error {
	b, err := s.GetBed(ctx, id)
	if err != nil {
		return err
	}
	if b.Occupancy == Occupied {
		return apperr.Conflict("ward.DeleteBed", "bed %s is occupied by %s", id, b.PatientName)
	}
	if err := s.beds.DeleteBed(ctx, id); err != nil {
		return err
	}
	s.Invalidate(ctx)
	return nil
}

// -- Departments --

func (s *Service) Departments(ctx context.Context) ([]DepartmentSummary, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Summarize(snap.Departments, snap.Stats), nil
}

func (s *Service) Department(ctx context.Context, id string) (*DepartmentSummary, error) {
	d, err := s.depts.GetDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	sum := Summarize([]Department{*d}, snap.Stats)[0]
	return &sum, nil
}

// -- Inpatients --

// Inpatients lists active admissions. An empty query is served from the
// snapshot; anything else goes to the source's search.
func (s *Service) Inpatients(ctx context.Context, q AdmissionQuery) ([]Admission, error) {
	if q == (AdmissionQuery{}) {
		snap, err := s.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return snap.Admissions, nil
	}
	found, err := s.adms.SearchAdmissions(ctx, q)
	if err != nil {
		return nil, err
	}
	out := found[:0]
	for _, a := range found {
		if a.Active() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Service) Admission(ctx context.Context, id string) (*Admission, error) {
	return s.adms.GetAdmission(ctx, id)
}
