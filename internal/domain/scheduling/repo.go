package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	AppointmentFinder
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ReserveSlot checks the doctor's schedule and inserts a as one atomic
	// step, failing with *ConflictError on overlap and ErrScheduleBusy when
	// concurrent writers kept aborting it.
	ReserveSlot(ctx context.Context, a *Appointment) error
	// MoveSlot is ReserveSlot for an existing appointment whose times changed.
	MoveSlot(ctx context.Context, a *Appointment) error
	// Update writes a if its VersionID still matches the stored row and
	// returns ErrStaleAppointment otherwise.
	Update(ctx context.Context, a *Appointment) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
}

// ReferenceRepository reads the records appointments point at. Missing rows
// come back as *NotFoundError.
type ReferenceRepository interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error)
	GetStatusBySlug(ctx context.Context, slug string) (*StatusEntry, error)
	ListStatuses(ctx context.Context) ([]*StatusEntry, error)
}
