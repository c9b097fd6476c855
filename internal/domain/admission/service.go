package admission

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hospital/inpatient/internal/domain/billing"
	"github.com/hospital/inpatient/internal/domain/ward"
	"github.com/hospital/inpatient/internal/platform/apperr"
	"github.com/hospital/inpatient/internal/platform/inflight"
	"github.com/hospital/inpatient/internal/platform/metrics"
	"github.com/hospital/inpatient/internal/platform/websocket"
)

// Gateway is the system of record for beds and admissions.
type Gateway interface {
	GetBed(ctx context.Context, id string) (*ward.Bed, error)
	GetAdmission(ctx context.Context, id string) (*ward.Admission, error)
	Admit(ctx context.Context, req AdmitRequest) (*ward.Admission, error)
	Transfer(ctx context.Context, admissionID string, req TransferRequest) error
	Discharge(ctx context.Context, admissionID string, req DischargeRequest) error
}

// Biller prices stays and settles their invoices. *billing.Service implements it.
type Biller interface {
	Quote(ctx context.Context, admissionID string) (*billing.Preview, *billing.Bill, error)
	OpenInvoice(ctx context.Context, admissionID string) (*billing.Invoice, error)
	Issue(ctx context.Context, admissionID, patientID string, b billing.Bill, note string) (*billing.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*billing.Invoice, error)
	Pay(ctx context.Context, invoiceID string) error
}

// Occupancy is told to rebuild after a step that moves a patient.
type Occupancy interface {
	Invalidate(ctx context.Context)
}

const (
	StepAdmit     = "admit"
	StepTransfer  = "transfer"
	StepInitiate  = "initiate_discharge"
	StepPay       = "pay"
	StepConfirm   = "confirm_discharge"
	StepAbort     = "abort_discharge"
	paymentNote   = "discharge payment"
	eventWorkflow = "admission."
)

type Service struct {
	repo    Repository
	gw      Gateway
	biller  Biller
	logger  zerolog.Logger
	guard   inflight.Guard
	ward    Occupancy
	metrics *metrics.Metrics
	pub     websocket.EventPublisher
	now     func() time.Time
}

func NewService(repo Repository, gw Gateway, biller Biller, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		gw:     gw,
		biller: biller,
		logger: logger.With().Str("component", "admission").Logger(),
		guard:  inflight.NewLocal(),
		now:    time.Now,
	}
}

// SetGuard replaces the in-process guard, typically with a Redis one.
func (s *Service) SetGuard(g inflight.Guard) {
	s.guard = g
}

func (s *Service) SetOccupancy(o Occupancy) {
	s.ward = o
}

func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *Service) SetPublisher(p websocket.EventPublisher) {
	s.pub = p
}

// finish records the outcome of a workflow step.
func (s *Service) finish(ctx context.Context, step string, stay *Stay, err error) {
	if err != nil {
		s.metrics.ObserveTransition(step, string(apperr.KindOf(err)))
		ev := s.logger.Warn()
		if apperr.KindOf(err) == apperr.KindInternal {
			ev = s.logger.Error()
		}
		ev.Err(err).Str("step", step).Msg("workflow step failed")
		return
	}
	s.metrics.ObserveTransition(step, "ok")
	s.logger.Info().
		Str("step", step).
		Str("admission_id", stay.AdmissionID).
		Str("state", string(stay.State)).
		Msg("workflow step completed")

	if s.pub == nil {
		return
	}
	e, perr := websocket.NewEvent(eventWorkflow+step, websocket.TopicWorkflow, stay.AdmissionID, stay)
	if perr == nil {
		perr = s.pub.Publish(ctx, e)
	}
	if perr != nil {
		s.logger.Warn().Err(perr).Str("step", step).Str("admission_id", stay.AdmissionID).Msg("publish workflow event")
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.ward != nil {
		s.ward.Invalidate(ctx)
	}
}

// load returns the checkpoint for an admission, materializing it from the
// gateway when the admission was created outside this service.
func (s *Service) load(ctx context.Context, op, admissionID string) (*Stay, error) {
	stay, err := s.repo.GetByAdmissionID(ctx, admissionID)
	if err == nil {
		return stay, nil
	}
	if !errors.Is(err, ErrStayNotFound) {
		return nil, apperr.Internal(op, err)
	}

	adm, err := s.gw.GetAdmission(ctx, admissionID)
	if err != nil {
		return nil, err
	}
	stay = &Stay{
		AdmissionID:  adm.ID,
		PatientID:    adm.PatientID,
		DepartmentID: adm.DepartmentID,
		BedID:        adm.BedID,
		State:        StateAdmitted,
		Diagnosis:    adm.Diagnosis,
		AdmittedAt:   adm.AdmittedAt,
		DischargedAt: adm.DischargedAt,
	}
	if stay.AdmissionID == "" {
		stay.AdmissionID = admissionID
	}
	if !adm.Active() {
		stay.State = StateDischarged
	}
	if err := s.repo.Create(ctx, stay); err != nil {
		return nil, apperr.Internal(op, err)
	}
	s.logger.Info().Str("admission_id", admissionID).Str("state", string(stay.State)).Msg("materialized stay from gateway")
	return stay, nil
}

func (s *Service) save(ctx context.Context, op string, stay *Stay) error {
	if err := s.repo.Update(ctx, stay); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return apperr.Conflict(op, "stay %s was modified concurrently", stay.AdmissionID)
		}
		return apperr.Internal(op, err)
	}
	return nil
}

func requireState(op string, stay *Stay, to State) error {
	if !CanTransition(stay.State, to) {
		return apperr.InvalidState(op, "admission %s is %s, cannot move to %s", stay.AdmissionID, stay.State, to)
	}
	return nil
}

// GetStay returns the workflow checkpoint for an admission.
func (s *Service) GetStay(ctx context.Context, admissionID string) (*Stay, error) {
	if strings.TrimSpace(admissionID) == "" {
		return nil, apperr.Validation("admission.GetStay", "admission id is required")
	}
	return s.load(ctx, "admission.GetStay", admissionID)
}

// Admit creates the admission on the gateway. The gateway decides whether
// the bed is free; a busy bed comes back as a conflict and nothing is
// recorded locally.
func (s *Service) Admit(ctx context.Context, req AdmitRequest) (stay *Stay, err error) {
	const op = "admission.Admit"
	defer func() { s.finish(ctx, StepAdmit, stay, err) }()

	req.PatientID = strings.TrimSpace(req.PatientID)
	req.BedID = strings.TrimSpace(req.BedID)
	if req.PatientID == "" {
		return nil, apperr.Validation(op, "patient_id is required")
	}
	if req.BedID == "" {
		return nil, apperr.Validation(op, "bed_id is required")
	}

	release, err := s.guard.Acquire(ctx, op, inflight.BedKey(req.BedID), inflight.PatientKey(req.PatientID))
	if err != nil {
		return nil, err
	}
	defer release()

	if req.DepartmentID == "" {
		bed, err := s.gw.GetBed(ctx, req.BedID)
		if err != nil {
			return nil, err
		}
		req.DepartmentID = bed.DepartmentID
	}
	if req.AdmittedAt == nil {
		now := s.now()
		req.AdmittedAt = &now
	}

	adm, err := s.gw.Admit(ctx, req)
	if err != nil {
		return nil, err
	}

	stay = &Stay{
		AdmissionID:  adm.ID,
		PatientID:    req.PatientID,
		DepartmentID: req.DepartmentID,
		BedID:        req.BedID,
		State:        StateAdmitted,
		AdmittedAt:   *req.AdmittedAt,
	}
	if !adm.AdmittedAt.IsZero() {
		stay.AdmittedAt = adm.AdmittedAt
	}
	if err := s.repo.Create(ctx, stay); err != nil {
		// The admission exists on the gateway; the stay is rebuilt on next use.
		s.logger.Error().Err(err).Str("admission_id", adm.ID).Msg("checkpoint new stay")
	}
	s.invalidate(ctx)
	return stay, nil
}

// Transfer moves the patient to another bed. A failed gateway call leaves
// the stay untouched.
func (s *Service) Transfer(ctx context.Context, admissionID string, req TransferRequest) (stay *Stay, err error) {
	const op = "admission.Transfer"
	defer func() { s.finish(ctx, StepTransfer, stay, err) }()

	req.NewBedID = strings.TrimSpace(req.NewBedID)
	switch {
	case strings.TrimSpace(admissionID) == "":
		return nil, apperr.Validation(op, "admission id is required")
	case req.NewBedID == "":
		return nil, apperr.Validation(op, "new_bed_id is required")
	case strings.TrimSpace(req.Reason) == "":
		return nil, apperr.Validation(op, "reason is required")
	}

	release, err := s.guard.Acquire(ctx, op, inflight.AdmissionKey(admissionID), inflight.BedKey(req.NewBedID))
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.load(ctx, op, admissionID)
	if err != nil {
		return nil, err
	}
	if current.State != StateAdmitted {
		return nil, apperr.InvalidState(op, "admission %s is %s, transfer needs admitted", admissionID, current.State)
	}
	if current.BedID == req.NewBedID {
		return nil, apperr.Validation(op, "patient is already in bed %s", req.NewBedID)
	}

	if err := s.gw.Transfer(ctx, admissionID, req); err != nil {
		return nil, err
	}

	current.BedID = req.NewBedID
	current.Transfers++
	if err := s.save(ctx, op, current); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return current, nil
}

// InitiateDischarge fetches the billing preview and computes the bill. It
// may be repeated to re-quote until an invoice has been issued.
func (s *Service) InitiateDischarge(ctx context.Context, admissionID string) (stay *Stay, err error) {
	const op = "admission.InitiateDischarge"
	defer func() { s.finish(ctx, StepInitiate, stay, err) }()

	if strings.TrimSpace(admissionID) == "" {
		return nil, apperr.Validation(op, "admission id is required")
	}
	release, err := s.guard.Acquire(ctx, op, inflight.AdmissionKey(admissionID))
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.load(ctx, op, admissionID)
	if err != nil {
		return nil, err
	}
	if err := requireState(op, current, StatePendingDischarge); err != nil {
		return nil, err
	}
	if current.InvoiceID != "" {
		return nil, apperr.InvalidState(op, "invoice %s already issued for admission %s", current.InvoiceID, admissionID)
	}

	_, bill, err := s.biller.Quote(ctx, admissionID)
	if err != nil {
		return nil, err
	}
	current.Bill = bill
	current.State = StatePendingDischarge
	if err := s.save(ctx, op, current); err != nil {
		return nil, err
	}
	return current, nil
}

// Pay issues the invoice for the computed bill and settles it. The invoice
// id is checkpointed before payment, and a retry reuses it. Paying an
// already billed stay returns it unchanged.
func (s *Service) Pay(ctx context.Context, admissionID string) (stay *Stay, err error) {
	const op = "admission.Pay"
	defer func() { s.finish(ctx, StepPay, stay, err) }()

	if strings.TrimSpace(admissionID) == "" {
		return nil, apperr.Validation(op, "admission id is required")
	}
	release, err := s.guard.Acquire(ctx, op, inflight.AdmissionKey(admissionID))
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.load(ctx, op, admissionID)
	if err != nil {
		return nil, err
	}
	if current.State == StateBilled {
		return current, nil
	}
	if current.State != StatePendingDischarge || current.Bill == nil {
		return nil, apperr.InvalidState(op, "admission %s is %s, payment needs pending_discharge", admissionID, current.State)
	}

	settled := false
	if current.InvoiceID == "" {
		inv, err := s.biller.OpenInvoice(ctx, admissionID)
		if err != nil {
			return nil, err
		}
		if inv == nil {
			inv, err = s.biller.Issue(ctx, admissionID, current.PatientID, *current.Bill, paymentNote)
			if err != nil {
				return nil, err
			}
		}
		current.InvoiceID = inv.ID
		if err := s.save(ctx, op, current); err != nil {
			return nil, err
		}
	} else {
		// A held invoice may already be paid if the billed checkpoint was lost.
		inv, err := s.biller.GetInvoice(ctx, current.InvoiceID)
		if err != nil {
			return nil, err
		}
		settled = inv.Status == billing.Paid
	}

	if !settled {
		if err := s.biller.Pay(ctx, current.InvoiceID); err != nil {
			return nil, err
		}
	}

	current.Paid = true
	current.State = StateBilled
	if err := s.save(ctx, op, current); err != nil {
		return nil, err
	}
	return current, nil
}

// ConfirmDischarge records the discharge on the gateway once the stay is paid.
func (s *Service) ConfirmDischarge(ctx context.Context, admissionID string, req DischargeRequest) (stay *Stay, err error) {
	const op = "admission.ConfirmDischarge"
	defer func() { s.finish(ctx, StepConfirm, stay, err) }()

	switch {
	case strings.TrimSpace(admissionID) == "":
		return nil, apperr.Validation(op, "admission id is required")
	case strings.TrimSpace(req.Diagnosis) == "":
		return nil, apperr.Validation(op, "diagnosis is required")
	case req.DischargedAt.IsZero():
		return nil, apperr.Validation(op, "discharged_at is required")
	}

	release, err := s.guard.Acquire(ctx, op, inflight.AdmissionKey(admissionID))
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.load(ctx, op, admissionID)
	if err != nil {
		return nil, err
	}
	if err := requireState(op, current, StateDischarged); err != nil {
		return nil, err
	}
	if !current.AdmittedAt.IsZero() && req.DischargedAt.Before(current.AdmittedAt) {
		return nil, apperr.Validation(op, "discharged_at %s precedes admission at %s",
			req.DischargedAt.Format(time.RFC3339), current.AdmittedAt.Format(time.RFC3339))
	}

	if err := s.gw.Discharge(ctx, admissionID, req); err != nil {
		return nil, err
	}

	dischargedAt := req.DischargedAt
	current.State = StateDischarged
	current.DischargedAt = &dischargedAt
	current.Diagnosis = req.Diagnosis
	if err := s.save(ctx, op, current); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return current, nil
}

// AbortDischarge returns a pending stay to admitted. Once an invoice exists
// the discharge can only go forward.
func (s *Service) AbortDischarge(ctx context.Context, admissionID string) (stay *Stay, err error) {
	const op = "admission.AbortDischarge"
	defer func() { s.finish(ctx, StepAbort, stay, err) }()

	if strings.TrimSpace(admissionID) == "" {
		return nil, apperr.Validation(op, "admission id is required")
	}
	release, err := s.guard.Acquire(ctx, op, inflight.AdmissionKey(admissionID))
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.load(ctx, op, admissionID)
	if err != nil {
		return nil, err
	}
	if current.State != StatePendingDischarge {
		return nil, apperr.InvalidState(op, "admission %s is %s, nothing to abort", admissionID, current.State)
	}
	if current.InvoiceID != "" {
		return nil, apperr.InvalidState(op, "invoice %s already issued for admission %s", current.InvoiceID, admissionID)
	}

	current.Bill = nil
	current.State = StateAdmitted
	if err := s.save(ctx, op, current); err != nil {
		return nil, err
	}
	return current, nil
}

// Pending lists stays waiting in a given state, for operator follow-up.
func (s *Service) Pending(ctx context.Context, state State, limit, offset int) ([]*Stay, int, error) {
	if !state.Valid() {
		return nil, 0, apperr.Validation("admission.Pending", "invalid state: %s", state)
	}
	return s.repo.ListByState(ctx, state, limit, offset)
}
