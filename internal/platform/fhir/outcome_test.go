package fhir

import (
	"encoding/json"
	"testing"
)

func TestNewOperationOutcome(t *testing.T) {
	oo := NewOperationOutcome(IssueSeverityWarning, IssueTypeProcessing, "careful")
	if oo.ResourceType != "OperationOutcome" {
		t.Errorf("expected resourceType OperationOutcome, got %s", oo.ResourceType)
	}
	if len(oo.Issue) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(oo.Issue))
	}
	if oo.Issue[0].Severity != "warning" || oo.Issue[0].Code != "processing" || oo.Issue[0].Diagnostics != "careful" {
		t.Errorf("unexpected issue: %+v", oo.Issue[0])
	}
}

func TestNotFoundOutcome(t *testing.T) {
	oo := NotFoundOutcome("Appointment", "abc")
	if oo.Issue[0].Code != IssueTypeNotFound {
		t.Errorf("expected not-found, got %s", oo.Issue[0].Code)
	}
	if oo.Issue[0].Diagnostics != "Appointment/abc not found" {
		t.Errorf("unexpected diagnostics: %s", oo.Issue[0].Diagnostics)
	}
}

func TestValidationOutcome_Expression(t *testing.T) {
	oo := ValidationOutcome("priority", "priority must be between 0 and 9")
	if len(oo.Issue[0].Expression) != 1 || oo.Issue[0].Expression[0] != "priority" {
		t.Errorf("expected expression [priority], got %v", oo.Issue[0].Expression)
	}

	oo = ValidationOutcome("", "bad input")
	if oo.Issue[0].Expression != nil {
		t.Errorf("expected no expression, got %v", oo.Issue[0].Expression)
	}
}

func TestConflictAndBusinessRuleOutcome(t *testing.T) {
	if got := ConflictOutcome("overlap").Issue[0].Code; got != IssueTypeConflict {
		t.Errorf("expected conflict, got %s", got)
	}
	if got := BusinessRuleOutcome("nope").Issue[0].Code; got != IssueTypeBusinessRule {
		t.Errorf("expected business-rule, got %s", got)
	}
	if got := TransientOutcome("busy").Issue[0].Code; got != IssueTypeTransient {
		t.Errorf("expected transient, got %s", got)
	}
}

func TestOperationOutcome_JSON(t *testing.T) {
	data, err := json.Marshal(ErrorOutcome("boom"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["resourceType"] != "OperationOutcome" {
		t.Errorf("unexpected resourceType: %v", decoded["resourceType"])
	}
	issues := decoded["issue"].([]interface{})
	issue := issues[0].(map[string]interface{})
	if _, ok := issue["details"]; ok {
		t.Error("expected details to be omitted")
	}
}

func TestFormatReference(t *testing.T) {
	if got := FormatReference("Practitioner", "123"); got != "Practitioner/123" {
		t.Errorf("FormatReference = %q", got)
	}
	cc := Code("http://example.org", "routine", "Routine")
	if len(cc.Coding) != 1 || cc.Coding[0].Code != "routine" {
		t.Errorf("unexpected coding: %+v", cc)
	}
	if Text("x").Text != "x" {
		t.Error("expected text concept")
	}
}
