package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name           string
		s1, e1, s2, e2 time.Time
		want           bool
	}{
		{"partial overlap", at(9, 0), at(9, 30), at(9, 15), at(9, 45), true},
		{"contained", at(9, 0), at(10, 0), at(9, 15), at(9, 30), true},
		{"containing", at(9, 15), at(9, 30), at(9, 0), at(10, 0), true},
		{"identical", at(9, 0), at(9, 30), at(9, 0), at(9, 30), true},
		{"back to back after", at(9, 0), at(9, 30), at(9, 30), at(10, 0), false},
		{"back to back before", at(9, 30), at(10, 0), at(9, 0), at(9, 30), false},
		{"disjoint", at(9, 0), at(9, 30), at(11, 0), at(11, 30), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.s1, tt.e1, tt.s2, tt.e2); got != tt.want {
				t.Errorf("Overlaps = %v, want %v", got, tt.want)
			}
			if got := Overlaps(tt.s2, tt.e2, tt.s1, tt.e1); got != tt.want {
				t.Errorf("Overlaps is not symmetric: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckConflict_OverlapReportsExisting(t *testing.T) {
	f := newFixture()
	existing := f.book(at(9, 0), 30, StatusBooked)
	checker := NewConflictChecker(f.appts)

	result, err := checker.CheckConflict(context.Background(), f.doctor.ID, at(9, 15), at(9, 45), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Conflict {
		t.Fatal("expected conflict for 09:15-09:45 against 09:00-09:30")
	}
	if *result.ConflictingAppointmentID != existing.ID {
		t.Errorf("expected conflicting id %s, got %s", existing.ID, *result.ConflictingAppointmentID)
	}
	if !result.ConflictingStart.Equal(at(9, 0)) {
		t.Errorf("expected conflicting start 09:00, got %s", result.ConflictingStart)
	}
}

func TestCheckConflict_AnyOverlapIsDetected(t *testing.T) {
	f := newFixture()
	f.book(at(10, 0), 60, StatusPending)
	checker := NewConflictChecker(f.appts)

	candidates := [][2]time.Time{
		{at(9, 30), at(10, 1)},
		{at(10, 59), at(11, 30)},
		{at(10, 15), at(10, 20)},
		{at(9, 0), at(12, 0)},
	}
	for _, c := range candidates {
		result, err := checker.CheckConflict(context.Background(), f.doctor.ID, c[0], c[1], nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Conflict {
			t.Errorf("expected conflict for %s-%s", c[0].Format("15:04"), c[1].Format("15:04"))
		}
	}
}

func TestCheckConflict_AdjacentIsFree(t *testing.T) {
	f := newFixture()
	f.book(at(9, 0), 30, StatusBooked)
	f.book(at(10, 0), 30, StatusBooked)
	checker := NewConflictChecker(f.appts)

	result, err := checker.CheckConflict(context.Background(), f.doctor.ID, at(9, 30), at(10, 0), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conflict {
		t.Error("expected back-to-back interval to be free")
	}
	if result.ConflictingAppointmentID != nil {
		t.Error("expected no conflicting appointment id")
	}
}

func TestCheckConflict_CancelledNeverConflicts(t *testing.T) {
	f := newFixture()
	f.book(at(9, 0), 30, StatusCancelled)
	checker := NewConflictChecker(f.appts)

	result, err := checker.CheckConflict(context.Background(), f.doctor.ID, at(9, 0), at(9, 30), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conflict {
		t.Error("expected cancelled appointment not to block the slot")
	}
}

func TestCheckConflict_NonCancelledFinalStatusesStillBlock(t *testing.T) {
	for _, st := range []Status{StatusFulfilled, StatusNoShow, StatusEnteredInError, StatusWaitlist} {
		f := newFixture()
		f.book(at(9, 0), 30, st)
		result, err := NewConflictChecker(f.appts).CheckConflict(context.Background(), f.doctor.ID, at(9, 0), at(9, 30), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Conflict {
			t.Errorf("expected %s appointment to block the slot", st)
		}
	}
}

func TestCheckConflict_ExcludesSelf(t *testing.T) {
	f := newFixture()
	self := f.book(at(9, 0), 30, StatusBooked)
	checker := NewConflictChecker(f.appts)

	result, err := checker.CheckConflict(context.Background(), f.doctor.ID, at(9, 10), at(9, 40), &self.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conflict {
		t.Error("expected appointment not to conflict with itself")
	}
}

func TestCheckConflict_OtherDoctorIsIndependent(t *testing.T) {
	f := newFixture()
	f.book(at(9, 0), 30, StatusBooked)
	checker := NewConflictChecker(f.appts)

	result, err := checker.CheckConflict(context.Background(), uuid.New(), at(9, 0), at(9, 30), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Conflict {
		t.Error("expected another doctor's appointment not to conflict")
	}
}

func TestCheckConflict_EndMustFollowStart(t *testing.T) {
	checker := NewConflictChecker(newMockApptRepo())
	for _, end := range []time.Time{at(9, 0), at(8, 30)} {
		_, err := checker.CheckConflict(context.Background(), uuid.New(), at(9, 0), end, nil)
		if !IsValidation(err) {
			t.Errorf("expected ValidationError for end %s, got %v", end.Format("15:04"), err)
		}
	}
}

func TestCheckConflict_PropagatesRepositoryError(t *testing.T) {
	repo := newMockApptRepo()
	repo.findErr = errors.New("connection reset")
	_, err := NewConflictChecker(repo).CheckConflict(context.Background(), uuid.New(), at(9, 0), at(9, 30), nil)
	if err == nil || err.Error() != "connection reset" {
		t.Errorf("expected repository error, got %v", err)
	}
}

func TestConflictResult_Err(t *testing.T) {
	if err := (&ConflictResult{}).Err(uuid.New()); err != nil {
		t.Errorf("expected nil for a free slot, got %v", err)
	}

	id := uuid.New()
	start, end := at(9, 0), at(9, 30)
	result := &ConflictResult{Conflict: true, ConflictingAppointmentID: &id, ConflictingStart: &start, ConflictingEnd: &end}
	err := result.Err(uuid.New())

	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConflictError, got %T", err)
	}
	if ce.AppointmentID != id || !ce.Start.Equal(start) || !ce.End.Equal(end) {
		t.Errorf("conflict error lost details: %+v", ce)
	}
}

func TestFirstOverlap_SkipsExcluded(t *testing.T) {
	a := BookedInterval{ID: uuid.New(), Start: at(9, 0), End: at(9, 30)}
	b := BookedInterval{ID: uuid.New(), Start: at(9, 20), End: at(9, 50)}

	got, ok := FirstOverlap([]BookedInterval{a, b}, at(9, 10), at(9, 40), &a.ID)
	if !ok || got.ID != b.ID {
		t.Errorf("expected %s, got %s (ok=%v)", b.ID, got.ID, ok)
	}
}
