package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	_ AppointmentRepository = (*mockApptRepo)(nil)
	_ ReferenceRepository   = (*mockRefRepo)(nil)
)

// =========== Mock Appointment Repository ===========

type mockApptRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*Appointment
	// findErr, when set, is returned by FindActiveByDoctor.
	findErr error
	// raceConflict makes ReserveSlot behave as if another writer won.
	raceConflict bool
	// reserveErr, when set, is returned by ReserveSlot and MoveSlot.
	reserveErr error
}

func newMockApptRepo() *mockApptRepo {
	return &mockApptRepo{store: make(map[uuid.UUID]*Appointment)}
}

// seed stores a copy of a, assigning an ID when missing.
func (m *mockApptRepo) seed(a *Appointment) *Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.VersionID == 0 {
		a.VersionID = 1
	}
	cp := *a
	m.store[a.ID] = &cp
	return a
}

func (m *mockApptRepo) FindActiveByDoctor(_ context.Context, doctorID uuid.UUID, excludeStatuses []Status, excludeID *uuid.UUID) ([]BookedInterval, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(doctorID, excludeStatuses, excludeID), nil
}

func (m *mockApptRepo) findLocked(doctorID uuid.UUID, excludeStatuses []Status, excludeID *uuid.UUID) []BookedInterval {
	skip := make(map[string]bool, len(excludeStatuses))
	for _, s := range excludeStatuses {
		skip[string(s)] = true
	}
	var out []BookedInterval
	for _, a := range m.store {
		if a.DoctorID != doctorID || skip[a.Status] {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		out = append(out, a.Interval())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (m *mockApptRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return nil, &NotFoundError{Resource: "appointment", ID: id.String()}
	}
	cp := *a
	return &cp, nil
}

func (m *mockApptRepo) createLocked(a *Appointment) {
	a.ID = uuid.New()
	a.VersionID = 1
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.store[a.ID] = &cp
}

func (m *mockApptRepo) ReserveSlot(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raceConflict {
		return &ConflictError{DoctorID: a.DoctorID}
	}
	if m.reserveErr != nil {
		return m.reserveErr
	}
	booked := m.findLocked(a.DoctorID, []Status{StatusCancelled}, nil)
	if b, ok := FirstOverlap(booked, a.StartTime, a.EndTime, nil); ok {
		return &ConflictError{DoctorID: a.DoctorID, AppointmentID: b.ID, Start: b.Start, End: b.End}
	}
	m.createLocked(a)
	return nil
}

func (m *mockApptRepo) MoveSlot(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserveErr != nil {
		return m.reserveErr
	}
	booked := m.findLocked(a.DoctorID, []Status{StatusCancelled}, &a.ID)
	if b, ok := FirstOverlap(booked, a.StartTime, a.EndTime, &a.ID); ok {
		return &ConflictError{DoctorID: a.DoctorID, AppointmentID: b.ID, Start: b.Start, End: b.End}
	}
	return m.updateLocked(a)
}

func (m *mockApptRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(a)
}

func (m *mockApptRepo) updateLocked(a *Appointment) error {
	stored, ok := m.store[a.ID]
	if !ok || stored.VersionID != a.VersionID {
		return ErrStaleAppointment
	}
	a.VersionID++
	a.UpdatedAt = time.Now()
	cp := *a
	m.store[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Appointment
	for _, a := range m.store {
		if a.DoctorID == doctorID {
			cp := *a
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.Before(all[j].StartTime) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// =========== Mock Reference Repository ===========

type mockRefRepo struct {
	doctors     map[uuid.UUID]*Doctor
	patients    map[uuid.UUID]*Patient
	specialties map[uuid.UUID]*Specialty
	statuses    []*StatusEntry
}

func newMockRefRepo() *mockRefRepo {
	return &mockRefRepo{
		doctors:     make(map[uuid.UUID]*Doctor),
		patients:    make(map[uuid.UUID]*Patient),
		specialties: make(map[uuid.UUID]*Specialty),
		statuses:    DefaultCatalog(),
	}
}

func (m *mockRefRepo) withoutStatus(slug Status) *mockRefRepo {
	var kept []*StatusEntry
	for _, s := range m.statuses {
		if s.Slug != string(slug) {
			kept = append(kept, s)
		}
	}
	m.statuses = kept
	return m
}

func (m *mockRefRepo) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	if d, ok := m.doctors[id]; ok {
		return d, nil
	}
	return nil, &NotFoundError{Resource: "doctor", ID: id.String()}
}

func (m *mockRefRepo) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	if p, ok := m.patients[id]; ok {
		return p, nil
	}
	return nil, &NotFoundError{Resource: "patient", ID: id.String()}
}

func (m *mockRefRepo) GetSpecialty(_ context.Context, id uuid.UUID) (*Specialty, error) {
	if s, ok := m.specialties[id]; ok {
		return s, nil
	}
	return nil, &NotFoundError{Resource: "specialty", ID: id.String()}
}

func (m *mockRefRepo) GetStatusBySlug(_ context.Context, slug string) (*StatusEntry, error) {
	for _, s := range m.statuses {
		if s.Slug == slug {
			return s, nil
		}
	}
	return nil, &NotFoundError{Resource: "appointment status", ID: slug}
}

func (m *mockRefRepo) ListStatuses(_ context.Context) ([]*StatusEntry, error) {
	return m.statuses, nil
}

// =========== Fixtures ===========

// testNow is a Monday morning; tomorrow starts at testNow + 24h.
var testNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 11, hour, minute, 0, 0, time.UTC)
}

func ptrStr(s string) *string { return &s }
func ptrInt(i int) *int       { return &i }

type fixture struct {
	appts     *mockApptRepo
	refs      *mockRefRepo
	doctor    *Doctor
	patient   *Patient
	specialty *Specialty
}

func newFixture() *fixture {
	f := &fixture{
		appts:     newMockApptRepo(),
		refs:      newMockRefRepo(),
		doctor:    &Doctor{ID: uuid.New(), FullName: "Dr. Amara Osei", IsActive: true},
		patient:   &Patient{ID: uuid.New(), FullName: "Lena Hart", IsActive: true},
		specialty: &Specialty{ID: uuid.New(), Name: "Cardiology", IsActive: true},
	}
	f.refs.doctors[f.doctor.ID] = f.doctor
	f.refs.patients[f.patient.ID] = f.patient
	f.refs.specialties[f.specialty.ID] = f.specialty
	return f
}

// book seeds an appointment for the fixture doctor in the given status.
func (f *fixture) book(start time.Time, minutes int, status Status) *Appointment {
	return f.appts.seed(&Appointment{
		DoctorID:        f.doctor.ID,
		PatientID:       f.patient.ID,
		SpecialtyID:     f.specialty.ID,
		Status:          string(status),
		StartTime:       start,
		EndTime:         start.Add(time.Duration(minutes) * time.Minute),
		Duration:        minutes,
		MinutesDuration: minutes,
		Priority:        DefaultPriority,
		AppointmentType: DefaultAppointmentType,
	})
}

func (f *fixture) request(start time.Time) CreateAppointmentRequest {
	return CreateAppointmentRequest{
		DoctorID:    f.doctor.ID,
		PatientID:   f.patient.ID,
		SpecialtyID: f.specialty.ID,
		StartTime:   start,
	}
}

// countingRecorder tallies workflow events by name.
type countingRecorder struct {
	mu     sync.Mutex
	events map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{events: make(map[string]int)}
}

func (r *countingRecorder) add(key string) {
	r.mu.Lock()
	r.events[key]++
	r.mu.Unlock()
}

func (r *countingRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[key]
}

func (r *countingRecorder) AppointmentCreated(status string) { r.add("created:" + status) }
func (r *countingRecorder) AppointmentRescheduled()          { r.add("rescheduled") }
func (r *countingRecorder) SlotConflict(op string)           { r.add("conflict:" + op) }
func (r *countingRecorder) StatusChanged(from, to string)    { r.add("changed:" + from + ">" + to) }
func (r *countingRecorder) TransitionRejected(from, to string) {
	r.add("rejected:" + from + ">" + to)
}
