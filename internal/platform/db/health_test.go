package db

import (
	"context"
	"errors"
	"testing"
)

func TestRunChecks(t *testing.T) {
	checks := []Check{
		{Name: "catalog", Run: func(context.Context) error { return nil }},
		{Name: "pending-status", Run: func(context.Context) error { return errors.New("missing pending") }},
	}

	failures := RunChecks(context.Background(), checks)
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(failures))
	}
	if failures["pending-status"] != "missing pending" {
		t.Errorf("unexpected failure message: %q", failures["pending-status"])
	}
}

func TestRunChecks_None(t *testing.T) {
	if failures := RunChecks(context.Background(), nil); len(failures) != 0 {
		t.Errorf("expected no failures, got %v", failures)
	}
}
