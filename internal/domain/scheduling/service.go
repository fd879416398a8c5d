package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options toggles workflow rules that differ between deployments.
type Options struct {
	// AllowPastDates lets creation and rescheduling accept a start time
	// before now, for back-office entry of historical visits.
	AllowPastDates     bool
	DefaultCancelledBy string
	// Metrics defaults to a no-op recorder.
	Metrics Recorder
}

// CreateAppointmentRequest is the booking input. Pointer fields are optional.
type CreateAppointmentRequest struct {
	DoctorID           uuid.UUID  `json:"doctor_id" validate:"required"`
	PatientID          uuid.UUID  `json:"patient_id" validate:"required"`
	SpecialtyID        uuid.UUID  `json:"specialty_id" validate:"required"`
	StartTime          time.Time  `json:"start_time" validate:"required"`
	Duration           *int       `json:"duration,omitempty"`
	Priority           *int       `json:"priority,omitempty" validate:"omitempty,min=0,max=9"`
	AppointmentType    *string    `json:"appointment_type,omitempty" validate:"omitempty,max=64"`
	ReasonCode         *string    `json:"reason_code,omitempty"`
	ServiceCategory    *string    `json:"service_category,omitempty"`
	ServiceType        *string    `json:"service_type,omitempty"`
	PatientInstruction *string    `json:"patient_instruction,omitempty"`
	Identifier         *string    `json:"identifier,omitempty"`
	SlotID             *uuid.UUID `json:"slot_id,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
	// Status is the initial status, pending when empty.
	Status    string  `json:"status,omitempty" validate:"omitempty,oneof=pending booked"`
	CreatedBy *string `json:"created_by,omitempty"`
}

type StatusUpdateRequest struct {
	Status             string  `json:"status" validate:"required"`
	Notes              *string `json:"notes,omitempty"`
	CancellationReason *string `json:"cancellation_reason,omitempty"`
	CancelledBy        *string `json:"cancelled_by,omitempty"`
	UpdatedBy          *string `json:"updated_by,omitempty"`
}

type RescheduleRequest struct {
	StartTime time.Time `json:"start_time" validate:"required"`
	// Duration keeps the current length when nil.
	Duration  *int    `json:"duration,omitempty"`
	UpdatedBy *string `json:"updated_by,omitempty"`
}

type Service struct {
	appointments AppointmentRepository
	refs         ReferenceRepository
	checker      *ConflictChecker
	engine       *Engine
	clock        Clock
	opts         Options
	metrics      Recorder
	logger       zerolog.Logger
}

func NewService(appts AppointmentRepository, refs ReferenceRepository, clock Clock, opts Options, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Service{
		appointments: appts,
		refs:         refs,
		checker:      NewConflictChecker(appts),
		engine:       NewEngine(clock, opts.DefaultCancelledBy),
		clock:        clock,
		opts:         opts,
		metrics:      metrics,
		logger:       logger.With().Str("component", "scheduling").Logger(),
	}
}

func (s *Service) Engine() *Engine { return s.engine }

func (s *Service) CheckConflict(ctx context.Context, doctorID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (*ConflictResult, error) {
	if doctorID == uuid.Nil {
		return nil, invalid("doctor_id", "is required")
	}
	return s.checker.CheckConflict(ctx, doctorID, start, end, excludeID)
}

// -- Creation --

func (s *Service) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error) {
	switch {
	case req.DoctorID == uuid.Nil:
		return nil, invalid("doctor_id", "is required")
	case req.PatientID == uuid.Nil:
		return nil, invalid("patient_id", "is required")
	case req.SpecialtyID == uuid.Nil:
		return nil, invalid("specialty_id", "is required")
	case req.StartTime.IsZero():
		return nil, invalid("start_time", "is required")
	}
	if err := s.checkNotPast(req.StartTime); err != nil {
		return nil, err
	}

	specialty, err := s.resolveReferences(ctx, req)
	if err != nil {
		return nil, err
	}

	defaults, err := ComputeCreationDefaults(CreationInput{
		StartTime:       req.StartTime,
		Duration:        req.Duration,
		Priority:        req.Priority,
		AppointmentType: req.AppointmentType,
		ServiceCategory: req.ServiceCategory,
	}, specialty)
	if err != nil {
		return nil, err
	}

	initial := StatusPending
	if req.Status != "" {
		if initial, err = ParseStatus(req.Status); err != nil {
			return nil, err
		}
		if initial != StatusPending && initial != StatusBooked {
			return nil, invalid("status", "new appointments start as %s or %s", StatusPending, StatusBooked)
		}
	}
	entry, err := s.statusEntry(ctx, initial)
	if err != nil {
		return nil, err
	}

	result, err := s.checker.CheckConflict(ctx, req.DoctorID, defaults.StartTime, defaults.EndTime, nil)
	if err != nil {
		return nil, err
	}
	if err := result.Err(req.DoctorID); err != nil {
		s.logConflict(OpCreate, req.DoctorID, defaults.StartTime, defaults.EndTime, err)
		return nil, err
	}

	a := &Appointment{
		DoctorID:           req.DoctorID,
		PatientID:          req.PatientID,
		SpecialtyID:        req.SpecialtyID,
		StatusID:           entry.ID,
		Status:             entry.Slug,
		StartTime:          defaults.StartTime,
		EndTime:            defaults.EndTime,
		Duration:           defaults.Duration,
		MinutesDuration:    defaults.MinutesDuration,
		Priority:           defaults.Priority,
		AppointmentType:    defaults.AppointmentType,
		ServiceCategory:    defaults.ServiceCategory,
		ReasonCode:         req.ReasonCode,
		ServiceType:        req.ServiceType,
		PatientInstruction: req.PatientInstruction,
		Identifier:         req.Identifier,
		SlotID:             req.SlotID,
		Notes:              req.Notes,
		CreatedBy:          req.CreatedBy,
		UpdatedBy:          req.CreatedBy,
	}
	if err := s.appointments.ReserveSlot(ctx, a); err != nil {
		if IsConflict(err) {
			s.logConflict(OpCreate, req.DoctorID, a.StartTime, a.EndTime, err)
		} else if errors.Is(err, ErrScheduleBusy) {
			s.logger.Warn().Err(err).Str("doctor_id", req.DoctorID.String()).Msg("booking aborted by concurrent writers")
		}
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Str("status", a.Status).
		Time("start_time", a.StartTime).
		Int("duration", a.Duration).
		Msg("appointment created")
	s.metrics.AppointmentCreated(a.Status)
	return a, nil
}

func (s *Service) resolveReferences(ctx context.Context, req CreateAppointmentRequest) (*Specialty, error) {
	doctor, err := s.refs.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.IsActive {
		return nil, invalid("doctor_id", "doctor %s is not active", req.DoctorID)
	}
	patient, err := s.refs.GetPatient(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if !patient.IsActive {
		return nil, invalid("patient_id", "patient %s is not active", req.PatientID)
	}
	specialty, err := s.refs.GetSpecialty(ctx, req.SpecialtyID)
	if err != nil {
		return nil, err
	}
	if !specialty.IsActive {
		return nil, invalid("specialty_id", "specialty %s is not active", req.SpecialtyID)
	}
	return specialty, nil
}

func (s *Service) checkNotPast(start time.Time) error {
	if s.opts.AllowPastDates {
		return nil
	}
	if start.Before(s.clock.Now()) {
		return invalid("start_time", "must not be in the past")
	}
	return nil
}

// statusEntry resolves a status slug to its catalog row. A missing row is a
// seeding problem, not a caller error.
func (s *Service) statusEntry(ctx context.Context, st Status) (*StatusEntry, error) {
	entry, err := s.refs.GetStatusBySlug(ctx, string(st))
	if err != nil {
		if IsNotFound(err) {
			cerr := &ConfigurationError{Message: "appointment status " + string(st) + " is missing from the catalog"}
			s.logger.Error().Err(cerr).Str("status", string(st)).Msg("status catalog incomplete")
			return nil, cerr
		}
		return nil, err
	}
	return entry, nil
}

func (s *Service) logConflict(op string, doctorID uuid.UUID, start, end time.Time, err error) {
	s.metrics.SlotConflict(op)
	evt := s.logger.Warn().
		Str("operation", op).
		Str("doctor_id", doctorID.String()).
		Time("start_time", start).
		Time("end_time", end)
	var ce *ConflictError
	if errors.As(err, &ce) && ce.AppointmentID != uuid.Nil {
		evt = evt.Str("conflicting_appointment_id", ce.AppointmentID.String())
	}
	evt.Msg("appointment slot conflict")
}

// -- Status --

// UpdateStatus validates and applies a status change. A self-transition
// still records notes and updatedBy but leaves every timestamp alone.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, req StatusUpdateRequest) (*Appointment, error) {
	target, err := ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}
	current, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from, err := s.storedStatus(current)
	if err != nil {
		return nil, err
	}

	t, err := s.engine.ValidateTransition(from, target, TransitionInput{
		Notes:              req.Notes,
		CancellationReason: req.CancellationReason,
		CancelledBy:        req.CancelledBy,
		UpdatedBy:          req.UpdatedBy,
	})
	if err != nil {
		if IsInvalidTransition(err) {
			s.metrics.TransitionRejected(string(from), string(target))
			s.logger.Warn().Err(err).Str("appointment_id", id.String()).Msg("status transition rejected")
		}
		return nil, err
	}
	if t.NoOp && t.SideEffects.Empty() {
		return current, nil
	}

	updated := *current
	if !t.NoOp {
		entry, err := s.statusEntry(ctx, t.To)
		if err != nil {
			return nil, err
		}
		updated.StatusID = entry.ID
		updated.Status = entry.Slug
	}
	t.SideEffects.Apply(&updated)

	if err := s.appointments.Update(ctx, &updated); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Bool("no_op", t.NoOp).
		Msg("appointment status updated")
	if !t.NoOp {
		s.metrics.StatusChanged(string(t.From), string(t.To))
	}
	return &updated, nil
}

// storedStatus parses the status of a loaded appointment. An unknown slug in
// the table means the catalog and the code disagree.
func (s *Service) storedStatus(a *Appointment) (Status, error) {
	st, err := ParseStatus(a.Status)
	if err != nil {
		cerr := &ConfigurationError{Message: "appointment " + a.ID.String() + " has unknown status " + a.Status}
		s.logger.Error().Err(cerr).Str("appointment_id", a.ID.String()).Msg("stored status not recognised")
		return "", cerr
	}
	return st, nil
}

// AllowedTransitions parses slug and lists the statuses an appointment in
// that status may move to.
func (s *Service) AllowedTransitions(slug string) (Status, []Status, error) {
	st, err := ParseStatus(slug)
	if err != nil {
		return "", nil, err
	}
	return st, AllowedTargets(st), nil
}

// -- Reschedule --

// Reschedule moves an appointment to a new start time, keeping its status.
// Appointments in a final status cannot be moved.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	if req.StartTime.IsZero() {
		return nil, invalid("start_time", "is required")
	}
	current, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	st, err := s.storedStatus(current)
	if err != nil {
		return nil, err
	}
	if st.IsTerminal() {
		return nil, invalid("status", "appointment in status %s cannot be rescheduled", st)
	}
	if err := s.checkNotPast(req.StartTime); err != nil {
		return nil, err
	}

	duration := current.Duration
	if req.Duration != nil {
		duration = NormalizeDuration(req.Duration)
	}
	end := req.StartTime.Add(time.Duration(duration) * time.Minute)

	result, err := s.checker.CheckConflict(ctx, current.DoctorID, req.StartTime, end, &current.ID)
	if err != nil {
		return nil, err
	}
	if err := result.Err(current.DoctorID); err != nil {
		s.logConflict(OpReschedule, current.DoctorID, req.StartTime, end, err)
		return nil, err
	}

	updated := *current
	updated.StartTime = req.StartTime
	updated.EndTime = end
	updated.Duration = duration
	updated.MinutesDuration = duration
	if req.UpdatedBy != nil {
		updated.UpdatedBy = req.UpdatedBy
	}
	if err := s.appointments.MoveSlot(ctx, &updated); err != nil {
		if IsConflict(err) {
			s.logConflict(OpReschedule, updated.DoctorID, updated.StartTime, updated.EndTime, err)
		} else if errors.Is(err, ErrScheduleBusy) {
			s.logger.Warn().Err(err).Str("appointment_id", id.String()).Msg("reschedule aborted by concurrent writers")
		}
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", id.String()).
		Time("start_time", updated.StartTime).
		Int("duration", updated.Duration).
		Msg("appointment rescheduled")
	s.metrics.AppointmentRescheduled()
	return &updated, nil
}

// -- Reads --

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	if _, err := s.refs.GetDoctor(ctx, doctorID); err != nil {
		return nil, 0, err
	}
	return s.appointments.ListByDoctor(ctx, doctorID, limit, offset)
}

func (s *Service) ListStatuses(ctx context.Context) ([]*StatusEntry, error) {
	return s.refs.ListStatuses(ctx)
}

// CheckCatalog verifies the status catalog holds every known status.
func (s *Service) CheckCatalog(ctx context.Context) error {
	entries, err := s.refs.ListStatuses(ctx)
	if err != nil {
		return err
	}
	return VerifyCatalog(entries)
}
