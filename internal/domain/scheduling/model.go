package scheduling

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/medbook/booking/internal/platform/fhir"
)

// Doctor maps to the doctor table.
type Doctor struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	FullName    string     `db:"full_name" json:"full_name"`
	SpecialtyID *uuid.UUID `db:"specialty_id" json:"specialty_id,omitempty"`
	IsActive    bool       `db:"is_active" json:"is_active"`
}

// Patient maps to the patient table.
type Patient struct {
	ID       uuid.UUID `db:"id" json:"id"`
	FullName string    `db:"full_name" json:"full_name"`
	IsActive bool      `db:"is_active" json:"is_active"`
}

// Specialty maps to the specialty table. Name doubles as the default
// service category of appointments booked under it.
type Specialty struct {
	ID       uuid.UUID `db:"id" json:"id"`
	Name     string    `db:"name" json:"name"`
	IsActive bool      `db:"is_active" json:"is_active"`
}

// Appointment maps to the appointment table. Status is the catalog slug of
// StatusID.
type Appointment struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	DoctorID              uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	PatientID             uuid.UUID  `db:"patient_id" json:"patient_id"`
	SpecialtyID           uuid.UUID  `db:"specialty_id" json:"specialty_id"`
	StatusID              int        `db:"status_id" json:"status_id"`
	Status                string     `db:"status" json:"status"`
	StartTime             time.Time  `db:"start_time" json:"start_time"`
	EndTime               time.Time  `db:"end_time" json:"end_time"`
	Duration              int        `db:"duration" json:"duration"`
	MinutesDuration       int        `db:"minutes_duration" json:"minutes_duration"`
	Priority              int        `db:"priority" json:"priority"`
	AppointmentType       string     `db:"appointment_type" json:"appointment_type"`
	ReasonCode            *string    `db:"reason_code" json:"reason_code,omitempty"`
	ServiceCategory       *string    `db:"service_category" json:"service_category,omitempty"`
	ServiceType           *string    `db:"service_type" json:"service_type,omitempty"`
	PatientInstruction    *string    `db:"patient_instruction" json:"patient_instruction,omitempty"`
	Identifier            *string    `db:"identifier" json:"identifier,omitempty"`
	SlotID                *uuid.UUID `db:"slot_id" json:"slot_id,omitempty"`
	Notes                 *string    `db:"notes" json:"notes,omitempty"`
	ArrivedAt             *time.Time `db:"arrived_at" json:"arrived_at,omitempty"`
	ConsultationStartedAt *time.Time `db:"consultation_started_at" json:"consultation_started_at,omitempty"`
	ConsultationEndedAt   *time.Time `db:"consultation_ended_at" json:"consultation_ended_at,omitempty"`
	CancelledAt           *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason    *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledBy           *string    `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CreatedBy             *string    `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy             *string    `db:"updated_by" json:"updated_by,omitempty"`
	VersionID             int        `db:"version_id" json:"version_id"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// Interval returns the [StartTime, EndTime) slot the appointment occupies.
func (a *Appointment) Interval() BookedInterval {
	return BookedInterval{ID: a.ID, Start: a.StartTime, End: a.EndTime}
}

// fhirStatus maps a catalog slug onto the FHIR R4 Appointment.status value
// set, which has no in-consultation code.
func fhirStatus(slug string) string {
	if Status(slug) == StatusInConsultation {
		return string(StatusArrived)
	}
	return slug
}

func (a *Appointment) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType":    "Appointment",
		"id":              a.ID.String(),
		"status":          fhirStatus(a.Status),
		"meta":            fhir.Meta{VersionID: strconv.Itoa(a.VersionID), LastUpdated: a.UpdatedAt},
		"start":           a.StartTime.Format(time.RFC3339),
		"end":             a.EndTime.Format(time.RFC3339),
		"minutesDuration": a.MinutesDuration,
		"priority":        a.Priority,
		"appointmentType": fhir.Text(a.AppointmentType),
		"created":         a.CreatedAt.Format(time.RFC3339),
	}
	if a.ServiceCategory != nil {
		result["serviceCategory"] = []fhir.CodeableConcept{fhir.Text(*a.ServiceCategory)}
	}
	if a.ServiceType != nil {
		result["serviceType"] = []fhir.CodeableConcept{fhir.Text(*a.ServiceType)}
	}
	if a.ReasonCode != nil {
		result["reasonCode"] = []fhir.CodeableConcept{fhir.Text(*a.ReasonCode)}
	}
	if a.Identifier != nil {
		result["identifier"] = []fhir.Identifier{{Value: *a.Identifier}}
	}
	if a.SlotID != nil {
		result["slot"] = []fhir.Reference{{Reference: fhir.FormatReference("Slot", a.SlotID.String())}}
	}
	if a.CancellationReason != nil {
		result["cancelationReason"] = fhir.Text(*a.CancellationReason)
	}
	if a.Notes != nil {
		result["comment"] = *a.Notes
	}
	if a.PatientInstruction != nil {
		result["patientInstruction"] = *a.PatientInstruction
	}

	result["participant"] = []map[string]interface{}{
		{
			"actor":  fhir.Reference{Reference: fhir.FormatReference("Patient", a.PatientID.String())},
			"status": "accepted",
		},
		{
			"actor":  fhir.Reference{Reference: fhir.FormatReference("Practitioner", a.DoctorID.String())},
			"status": "accepted",
		},
	}
	return result
}
