package scheduling

import "time"

// DefaultCancelledBy is recorded when a cancellation names no actor.
const DefaultCancelledBy = "admin"

var transitions = map[Status][]Status{
	StatusPending:        {StatusBooked, StatusCancelled},
	StatusBooked:         {StatusArrived, StatusCheckedIn, StatusCancelled, StatusNoShow},
	StatusCheckedIn:      {StatusArrived, StatusCancelled},
	StatusArrived:        {StatusInConsultation, StatusFulfilled, StatusCancelled},
	StatusInConsultation: {StatusFulfilled, StatusCancelled},
	StatusWaitlist:       {StatusBooked, StatusCancelled},
	StatusNoShow:         {StatusCancelled},
	StatusFulfilled:      nil,
	StatusCancelled:      nil,
	StatusEnteredInError: nil,
}

// AllowedTargets returns the statuses reachable from s in one step, not
// counting s itself.
func AllowedTargets(s Status) []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// CanTransition reports whether from may move to to. A status may always be
// re-entered.
func CanTransition(from, to Status) bool {
	if from == to {
		return from.Valid()
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionInput carries the optional fields of a status change request.
type TransitionInput struct {
	Notes              *string
	CancellationReason *string
	CancelledBy        *string
	UpdatedBy          *string
}

// SideEffects lists the fields a transition writes besides the status.
// Nil fields are left untouched.
type SideEffects struct {
	ArrivedAt             *time.Time `json:"arrived_at,omitempty"`
	ConsultationStartedAt *time.Time `json:"consultation_started_at,omitempty"`
	ConsultationEndedAt   *time.Time `json:"consultation_ended_at,omitempty"`
	CancelledAt           *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason    *string    `json:"cancellation_reason,omitempty"`
	CancelledBy           *string    `json:"cancelled_by,omitempty"`
	Notes                 *string    `json:"notes,omitempty"`
	UpdatedBy             *string    `json:"updated_by,omitempty"`
}

// Empty reports whether applying se would change nothing.
func (se SideEffects) Empty() bool {
	return se == SideEffects{}
}

// Apply copies the non-nil fields of se onto a.
func (se SideEffects) Apply(a *Appointment) {
	if se.ArrivedAt != nil {
		a.ArrivedAt = se.ArrivedAt
	}
	if se.ConsultationStartedAt != nil {
		a.ConsultationStartedAt = se.ConsultationStartedAt
	}
	if se.ConsultationEndedAt != nil {
		a.ConsultationEndedAt = se.ConsultationEndedAt
	}
	if se.CancelledAt != nil {
		a.CancelledAt = se.CancelledAt
		a.CancellationReason = se.CancellationReason
		a.CancelledBy = se.CancelledBy
	}
	if se.Notes != nil {
		a.Notes = se.Notes
	}
	if se.UpdatedBy != nil {
		a.UpdatedBy = se.UpdatedBy
	}
}

// Transition is the outcome of a validated status change.
type Transition struct {
	From        Status      `json:"from"`
	To          Status      `json:"to"`
	NoOp        bool        `json:"no_op"`
	SideEffects SideEffects `json:"side_effects"`
}

// Engine validates status changes and computes their side effects. It holds
// no state besides its clock.
type Engine struct {
	clock              Clock
	defaultCancelledBy string
}

func NewEngine(clock Clock, defaultCancelledBy string) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	if defaultCancelledBy == "" {
		defaultCancelledBy = DefaultCancelledBy
	}
	return &Engine{clock: clock, defaultCancelledBy: defaultCancelledBy}
}

// ValidateTransition checks from -> to against the transition table. On a
// self-transition it returns a no-op whose side effects carry only the
// notes and updatedBy fields.
func (e *Engine) ValidateTransition(from, to Status, in TransitionInput) (*Transition, error) {
	if !from.Valid() {
		return nil, invalid("status", "unknown current status %q", from)
	}
	if !to.Valid() {
		return nil, invalid("status", "unknown appointment status %q", to)
	}
	if !CanTransition(from, to) {
		return nil, &InvalidTransitionError{From: from, To: to, Allowed: AllowedTargets(from)}
	}

	t := &Transition{From: from, To: to, NoOp: from == to}
	t.SideEffects.Notes = in.Notes
	t.SideEffects.UpdatedBy = in.UpdatedBy
	if t.NoOp {
		return t, nil
	}

	now := e.clock.Now()
	switch to {
	case StatusArrived:
		t.SideEffects.ArrivedAt = &now
	case StatusInConsultation:
		t.SideEffects.ConsultationStartedAt = &now
	case StatusFulfilled:
		t.SideEffects.ConsultationEndedAt = &now
	case StatusCancelled:
		t.SideEffects.CancelledAt = &now
		t.SideEffects.CancellationReason = in.CancellationReason
		t.SideEffects.CancelledBy = e.cancelledBy(in)
	}
	return t, nil
}

func (e *Engine) cancelledBy(in TransitionInput) *string {
	switch {
	case in.CancelledBy != nil && *in.CancelledBy != "":
		return in.CancelledBy
	case in.UpdatedBy != nil && *in.UpdatedBy != "":
		return in.UpdatedBy
	}
	by := e.defaultCancelledBy
	return &by
}
