package scheduling

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/medbook/booking/internal/platform/db"
)

func TestMapWriteErr(t *testing.T) {
	r := &appointmentRepoPG{}
	a := &Appointment{DoctorID: uuid.New()}

	if err := r.mapWriteErr(a, nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	overlap := fmt.Errorf("insert: %w", &pgconn.PgError{Code: db.CodeExclusionViolation})
	var ce *ConflictError
	if err := r.mapWriteErr(a, overlap); !errors.As(err, &ce) || ce.DoctorID != a.DoctorID {
		t.Errorf("expected ConflictError for the doctor, got %v", err)
	}

	contended := fmt.Errorf("%w after 8 attempts: %w", db.ErrTxContended, &pgconn.PgError{Code: db.CodeSerializationFailure})
	err := r.mapWriteErr(a, contended)
	if !errors.Is(err, ErrScheduleBusy) {
		t.Errorf("expected ErrScheduleBusy, got %v", err)
	}
	if IsConflict(err) {
		t.Error("a serialization failure must not read as a slot conflict")
	}

	fk := &pgconn.PgError{Code: "23503"}
	if err := r.mapWriteErr(a, fk); err != fk {
		t.Errorf("expected other errors to pass through, got %v", err)
	}
}
