package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/booking/internal/platform/db"
)

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, doctor_id, patient_id, specialty_id, status_id, status,
	start_time, end_time, duration, minutes_duration, priority, appointment_type,
	reason_code, service_category, service_type, patient_instruction, identifier, slot_id, notes,
	arrived_at, consultation_started_at, consultation_ended_at,
	cancelled_at, cancellation_reason, cancelled_by,
	created_by, updated_by, version_id, created_at, updated_at`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.SpecialtyID, &a.StatusID, &a.Status,
		&a.StartTime, &a.EndTime, &a.Duration, &a.MinutesDuration, &a.Priority, &a.AppointmentType,
		&a.ReasonCode, &a.ServiceCategory, &a.ServiceType, &a.PatientInstruction, &a.Identifier, &a.SlotID, &a.Notes,
		&a.ArrivedAt, &a.ConsultationStartedAt, &a.ConsultationEndedAt,
		&a.CancelledAt, &a.CancellationReason, &a.CancelledBy,
		&a.CreatedBy, &a.UpdatedBy, &a.VersionID, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *appointmentRepoPG) FindActiveByDoctor(ctx context.Context, doctorID uuid.UUID, excludeStatuses []Status, excludeID *uuid.UUID) ([]BookedInterval, error) {
	slugs := make([]string, len(excludeStatuses))
	for i, s := range excludeStatuses {
		slugs[i] = string(s)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, start_time, end_time FROM appointment
		WHERE doctor_id = $1
			AND NOT (status = ANY($2::text[]))
			AND ($3::uuid IS NULL OR id <> $3::uuid)
		ORDER BY start_time`, doctorID, slugs, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BookedInterval
	for rows.Next() {
		var b BookedInterval
		if err := rows.Scan(&b.ID, &b.Start, &b.End); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, &NotFoundError{Resource: "appointment", ID: id.String()}
		}
		return nil, err
	}
	return a, nil
}

// create inserts a without checking the schedule; callers hold the
// serializable transaction opened by ReserveSlot.
func (r *appointmentRepoPG) create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.VersionID = 1
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, doctor_id, patient_id, specialty_id, status_id, status,
			start_time, end_time, duration, minutes_duration, priority, appointment_type,
			reason_code, service_category, service_type, patient_instruction, identifier, slot_id, notes,
			created_by, updated_by, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		RETURNING created_at, updated_at`,
		a.ID, a.DoctorID, a.PatientID, a.SpecialtyID, a.StatusID, a.Status,
		a.StartTime, a.EndTime, a.Duration, a.MinutesDuration, a.Priority, a.AppointmentType,
		a.ReasonCode, a.ServiceCategory, a.ServiceType, a.PatientInstruction, a.Identifier, a.SlotID, a.Notes,
		a.CreatedBy, a.UpdatedBy, a.VersionID,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

// ReserveSlot runs the overlap check and the insert in one serializable
// transaction. The appointment_no_overlap exclusion constraint backs it up.
// The check reads the doctor's whole agenda, so concurrent bookings of free
// slots can still abort each other; those attempts are retried.
func (r *appointmentRepoPG) ReserveSlot(ctx context.Context, a *Appointment) error {
	err := db.WithTxRetry(ctx, r.pool, db.Serializable, db.DefaultTxAttempts, func(ctx context.Context) error {
		if err := r.ensureFree(ctx, a, nil); err != nil {
			return err
		}
		return r.create(ctx, a)
	})
	return r.mapWriteErr(a, err)
}

func (r *appointmentRepoPG) MoveSlot(ctx context.Context, a *Appointment) error {
	version := a.VersionID
	err := db.WithTxRetry(ctx, r.pool, db.Serializable, db.DefaultTxAttempts, func(ctx context.Context) error {
		// An aborted attempt may have bumped the version in memory.
		a.VersionID = version
		if err := r.ensureFree(ctx, a, &a.ID); err != nil {
			return err
		}
		return r.Update(ctx, a)
	})
	if err != nil {
		a.VersionID = version
	}
	return r.mapWriteErr(a, err)
}

func (r *appointmentRepoPG) ensureFree(ctx context.Context, a *Appointment, excludeID *uuid.UUID) error {
	booked, err := r.FindActiveByDoctor(ctx, a.DoctorID, []Status{StatusCancelled}, excludeID)
	if err != nil {
		return err
	}
	if b, ok := FirstOverlap(booked, a.StartTime, a.EndTime, excludeID); ok {
		return &ConflictError{DoctorID: a.DoctorID, AppointmentID: b.ID, Start: b.Start, End: b.End}
	}
	return nil
}

// mapWriteErr turns constraint rejections into *ConflictError and exhausted
// serialization retries into ErrScheduleBusy.
func (r *appointmentRepoPG) mapWriteErr(a *Appointment, err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsWriteConflict(err):
		return &ConflictError{DoctorID: a.DoctorID}
	case errors.Is(err, db.ErrTxContended), db.IsRetryable(err):
		return fmt.Errorf("%w: %w", ErrScheduleBusy, err)
	}
	return err
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET status_id=$2, status=$3, start_time=$4, end_time=$5,
			duration=$6, minutes_duration=$7, priority=$8, appointment_type=$9,
			reason_code=$10, service_category=$11, service_type=$12, patient_instruction=$13,
			identifier=$14, slot_id=$15, notes=$16,
			arrived_at=$17, consultation_started_at=$18, consultation_ended_at=$19,
			cancelled_at=$20, cancellation_reason=$21, cancelled_by=$22, updated_by=$23,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $24
		RETURNING version_id, updated_at`,
		a.ID, a.StatusID, a.Status, a.StartTime, a.EndTime,
		a.Duration, a.MinutesDuration, a.Priority, a.AppointmentType,
		a.ReasonCode, a.ServiceCategory, a.ServiceType, a.PatientInstruction,
		a.Identifier, a.SlotID, a.Notes,
		a.ArrivedAt, a.ConsultationStartedAt, a.ConsultationEndedAt,
		a.CancelledAt, a.CancellationReason, a.CancelledBy, a.UpdatedBy,
		a.VersionID,
	).Scan(&a.VersionID, &a.UpdatedAt)
	if db.IsNotFound(err) {
		return ErrStaleAppointment
	}
	return err
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE doctor_id = $1`, doctorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointment WHERE doctor_id = $1 ORDER BY start_time LIMIT $2 OFFSET $3`, doctorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// =========== Reference Repository ===========

type referenceRepoPG struct{ pool *pgxpool.Pool }

func NewReferenceRepoPG(pool *pgxpool.Pool) ReferenceRepository {
	return &referenceRepoPG{pool: pool}
}

func (r *referenceRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func notFound(resource, id string, err error) error {
	if db.IsNotFound(err) {
		return &NotFoundError{Resource: resource, ID: id}
	}
	return fmt.Errorf("load %s %s: %w", resource, id, err)
}

func (r *referenceRepoPG) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, full_name, specialty_id, is_active FROM doctor WHERE id = $1`, id).
		Scan(&d.ID, &d.FullName, &d.SpecialtyID, &d.IsActive)
	if err != nil {
		return nil, notFound("doctor", id.String(), err)
	}
	return &d, nil
}

func (r *referenceRepoPG) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, full_name, is_active FROM patient WHERE id = $1`, id).
		Scan(&p.ID, &p.FullName, &p.IsActive)
	if err != nil {
		return nil, notFound("patient", id.String(), err)
	}
	return &p, nil
}

func (r *referenceRepoPG) GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	var s Specialty
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, name, is_active FROM specialty WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.IsActive)
	if err != nil {
		return nil, notFound("specialty", id.String(), err)
	}
	return &s, nil
}

const statusCols = `id, slug, name, is_final, sort_order`

func scanStatus(row pgx.Row) (*StatusEntry, error) {
	var s StatusEntry
	err := row.Scan(&s.ID, &s.Slug, &s.Name, &s.IsFinal, &s.SortOrder)
	return &s, err
}

func (r *referenceRepoPG) GetStatusBySlug(ctx context.Context, slug string) (*StatusEntry, error) {
	s, err := scanStatus(r.conn(ctx).QueryRow(ctx, `SELECT `+statusCols+` FROM appointment_status WHERE slug = $1`, slug))
	if err != nil {
		return nil, notFound("appointment status", slug, err)
	}
	return s, nil
}

func (r *referenceRepoPG) ListStatuses(ctx context.Context) ([]*StatusEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+statusCols+` FROM appointment_status ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*StatusEntry
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
