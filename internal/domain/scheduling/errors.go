package scheduling

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ValidationError reports bad input: a missing field, a value out of range,
// a start time in the past or a reference to an inactive record.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports that a requested interval overlaps an existing
// appointment of the same doctor. AppointmentID is uuid.Nil when the overlap
// was detected by the database rather than by the checker.
type ConflictError struct {
	DoctorID      uuid.UUID
	AppointmentID uuid.UUID
	Start         time.Time
	End           time.Time
}

func (e *ConflictError) Error() string {
	if e.AppointmentID == uuid.Nil {
		return "doctor already has an appointment in the requested time slot"
	}
	return fmt.Sprintf("doctor already has appointment %s from %s to %s",
		e.AppointmentID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// InvalidTransitionError reports a status change the transition table forbids.
type InvalidTransitionError struct {
	From    Status
	To      Status
	Allowed []Status
}

func (e *InvalidTransitionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("cannot change status from %q to %q: %q is final", e.From, e.To, e.From)
	}
	return fmt.Sprintf("cannot change status from %q to %q (allowed: %v)", e.From, e.To, e.Allowed)
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConfigurationError reports missing reference data, such as a status slug
// absent from the catalog.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// ErrStaleAppointment is returned by Update when the row changed since it was read.
var ErrStaleAppointment = errors.New("appointment was modified concurrently, reload and retry")

// ErrScheduleBusy is returned when concurrent bookings for the same schedule
// kept aborting each other's transactions. No overlap was found, so the
// request can be sent again as is.
var ErrScheduleBusy = errors.New("schedule is being updated concurrently, retry the request")

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

func IsInvalidTransition(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}
