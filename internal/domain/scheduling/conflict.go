package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BookedInterval is the part of an appointment the conflict check needs.
type BookedInterval struct {
	ID    uuid.UUID
	Start time.Time
	End   time.Time
}

// AppointmentFinder lists a doctor's appointments, skipping the given
// statuses and, when excludeID is set, that appointment.
type AppointmentFinder interface {
	FindActiveByDoctor(ctx context.Context, doctorID uuid.UUID, excludeStatuses []Status, excludeID *uuid.UUID) ([]BookedInterval, error)
}

// Overlaps reports whether [s1,e1) and [s2,e2) share an instant. Intervals
// that only touch at an endpoint do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// FirstOverlap returns the first interval that overlaps [start,end),
// ignoring excludeID.
func FirstOverlap(booked []BookedInterval, start, end time.Time, excludeID *uuid.UUID) (BookedInterval, bool) {
	for _, b := range booked {
		if excludeID != nil && b.ID == *excludeID {
			continue
		}
		if Overlaps(b.Start, b.End, start, end) {
			return b, true
		}
	}
	return BookedInterval{}, false
}

// ConflictResult is the outcome of a conflict check. The conflicting fields
// are zero when Conflict is false.
type ConflictResult struct {
	Conflict                 bool       `json:"conflict"`
	ConflictingAppointmentID *uuid.UUID `json:"conflicting_appointment_id,omitempty"`
	ConflictingStart         *time.Time `json:"conflicting_start,omitempty"`
	ConflictingEnd           *time.Time `json:"conflicting_end,omitempty"`
}

// Err turns a positive result into a *ConflictError and returns nil otherwise.
func (r *ConflictResult) Err(doctorID uuid.UUID) error {
	if r == nil || !r.Conflict {
		return nil
	}
	ce := &ConflictError{DoctorID: doctorID}
	if r.ConflictingAppointmentID != nil {
		ce.AppointmentID = *r.ConflictingAppointmentID
	}
	if r.ConflictingStart != nil {
		ce.Start = *r.ConflictingStart
	}
	if r.ConflictingEnd != nil {
		ce.End = *r.ConflictingEnd
	}
	return ce
}

func conflictWith(b BookedInterval) *ConflictResult {
	id, start, end := b.ID, b.Start, b.End
	return &ConflictResult{
		Conflict:                 true,
		ConflictingAppointmentID: &id,
		ConflictingStart:         &start,
		ConflictingEnd:           &end,
	}
}

// ConflictChecker decides whether a doctor is free for an interval. It only
// reads; pairing the check with the write is the repository's ReserveSlot.
type ConflictChecker struct {
	finder AppointmentFinder
}

func NewConflictChecker(finder AppointmentFinder) *ConflictChecker {
	return &ConflictChecker{finder: finder}
}

// CheckConflict fails with a *ValidationError unless end is after start.
func (c *ConflictChecker) CheckConflict(ctx context.Context, doctorID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (*ConflictResult, error) {
	if !end.After(start) {
		return nil, invalid("end_time", "end time must be after start time")
	}
	booked, err := c.finder.FindActiveByDoctor(ctx, doctorID, []Status{StatusCancelled}, excludeID)
	if err != nil {
		return nil, err
	}
	if b, ok := FirstOverlap(booked, start, end, excludeID); ok {
		return conflictWith(b), nil
	}
	return &ConflictResult{}, nil
}
