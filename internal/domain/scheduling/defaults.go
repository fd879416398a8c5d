package scheduling

import (
	"strings"
	"time"
)

const (
	DefaultDuration        = 30
	MinDuration            = 5
	MaxDuration            = 480
	DefaultPriority        = 5
	MinPriority            = 0
	MaxPriority            = 9
	DefaultAppointmentType = "routine"
)

// CreationInput is the part of a booking request the defaults depend on.
type CreationInput struct {
	StartTime       time.Time
	Duration        *int
	Priority        *int
	AppointmentType *string
	ServiceCategory *string
}

// CreationDefaults are the derived fields of a new appointment.
type CreationDefaults struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Duration        int       `json:"duration"`
	MinutesDuration int       `json:"minutes_duration"`
	Priority        int       `json:"priority"`
	AppointmentType string    `json:"appointment_type"`
	ServiceCategory *string   `json:"service_category,omitempty"`
}

// NormalizeDuration returns d when it lies in [MinDuration, MaxDuration]
// and DefaultDuration otherwise.
func NormalizeDuration(d *int) int {
	if d == nil || *d < MinDuration || *d > MaxDuration {
		return DefaultDuration
	}
	return *d
}

// ComputeCreationDefaults fills in duration, end time, priority,
// appointment type and service category. specialty may be nil, in which
// case the service category stays unset unless supplied.
func ComputeCreationDefaults(in CreationInput, specialty *Specialty) (*CreationDefaults, error) {
	if in.StartTime.IsZero() {
		return nil, invalid("start_time", "is required")
	}

	priority := DefaultPriority
	if in.Priority != nil {
		if *in.Priority < MinPriority || *in.Priority > MaxPriority {
			return nil, invalid("priority", "must be between %d and %d", MinPriority, MaxPriority)
		}
		priority = *in.Priority
	}

	duration := NormalizeDuration(in.Duration)
	out := &CreationDefaults{
		StartTime:       in.StartTime,
		EndTime:         in.StartTime.Add(time.Duration(duration) * time.Minute),
		Duration:        duration,
		MinutesDuration: duration,
		Priority:        priority,
		AppointmentType: DefaultAppointmentType,
	}
	if in.AppointmentType != nil && strings.TrimSpace(*in.AppointmentType) != "" {
		out.AppointmentType = strings.TrimSpace(*in.AppointmentType)
	}

	switch {
	case in.ServiceCategory != nil && strings.TrimSpace(*in.ServiceCategory) != "":
		sc := strings.TrimSpace(*in.ServiceCategory)
		out.ServiceCategory = &sc
	case specialty != nil:
		sc := specialty.Name
		out.ServiceCategory = &sc
	}
	return out, nil
}
