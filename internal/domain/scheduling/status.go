package scheduling

import (
	"fmt"
	"strings"
)

// Status is an appointment lifecycle slug. The values match the FHIR R4
// Appointment.status codes, plus in-consultation.
type Status string

const (
	StatusPending        Status = "pending"
	StatusBooked         Status = "booked"
	StatusArrived        Status = "arrived"
	StatusCheckedIn      Status = "checked-in"
	StatusInConsultation Status = "in-consultation"
	StatusFulfilled      Status = "fulfilled"
	StatusCancelled      Status = "cancelled"
	StatusNoShow         Status = "noshow"
	StatusWaitlist       Status = "waitlist"
	StatusEnteredInError Status = "entered-in-error"
)

var allStatuses = []Status{
	StatusPending, StatusBooked, StatusArrived, StatusCheckedIn, StatusInConsultation,
	StatusFulfilled, StatusCancelled, StatusNoShow, StatusWaitlist, StatusEnteredInError,
}

// Statuses returns every known status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func (s Status) Valid() bool {
	for _, st := range allStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// BlocksSchedule reports whether an appointment in status s occupies its
// doctor's time. Only cancelled appointments free the slot.
func (s Status) BlocksSchedule() bool {
	return s != StatusCancelled
}

// ParseStatus accepts a slug in any letter case.
func ParseStatus(slug string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(slug)))
	if !s.Valid() {
		return "", invalid("status", "unknown appointment status %q", slug)
	}
	return s, nil
}

// StatusEntry is a row of the appointment status catalog.
type StatusEntry struct {
	ID        int    `json:"id"`
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	IsFinal   bool   `json:"is_final"`
	SortOrder int    `json:"sort_order"`
}

var statusNames = map[Status]string{
	StatusPending:        "Pending",
	StatusBooked:         "Booked",
	StatusArrived:        "Arrived",
	StatusCheckedIn:      "Checked In",
	StatusInConsultation: "In Consultation",
	StatusFulfilled:      "Fulfilled",
	StatusCancelled:      "Cancelled",
	StatusNoShow:         "No Show",
	StatusWaitlist:       "Waitlist",
	StatusEnteredInError: "Entered in Error",
}

// DefaultCatalog returns the catalog rows seeded by the initial migration.
func DefaultCatalog() []*StatusEntry {
	out := make([]*StatusEntry, 0, len(allStatuses))
	for i, s := range allStatuses {
		out = append(out, &StatusEntry{
			ID:        i + 1,
			Slug:      string(s),
			Name:      statusNames[s],
			IsFinal:   s.IsTerminal(),
			SortOrder: i + 1,
		})
	}
	return out
}

// VerifyCatalog checks that every status the engine can produce has a
// catalog row.
func VerifyCatalog(entries []*StatusEntry) error {
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.Slug] = true
	}
	var missing []string
	for _, s := range allStatuses {
		if !present[string(s)] {
			missing = append(missing, string(s))
		}
	}
	if len(missing) > 0 {
		return &ConfigurationError{Message: fmt.Sprintf("appointment status catalog is missing %s", strings.Join(missing, ", "))}
	}
	return nil
}
