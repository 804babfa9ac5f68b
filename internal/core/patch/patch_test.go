package patch

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
)

// requiredTitleValidator flags an empty title and an invalid status.
type requiredTitleValidator struct {
	calls int
}

func (v *requiredTitleValidator) Validate(inc domain.Incident) []domain.Violation {
	v.calls++
	var out []domain.Violation
	if inc.Title == "" {
		out = append(out, domain.Violation{Field: "title", Message: "must not be empty"})
	}
	if !inc.Status.Valid() {
		out = append(out, domain.Violation{Field: "status", Message: "must be a known status"})
	}
	return out
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestPatcher() (*Patcher, *requiredTitleValidator) {
	v := &requiredTitleValidator{}
	return NewPatcher(v, WithClock(func() time.Time { return fixedNow })), v
}

func sampleIncident() domain.Incident {
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return domain.Incident{
		ID:        "1",
		Title:     "A",
		Summary:   "db down",
		Severity:  "High",
		Status:    domain.StatusOpen,
		CreatedBy: "alice",
		CreatedAt: created,
		Tags:      []string{"db"},
		Notes: []domain.Note{
			{ID: "n1", Author: "x", Note: "old", Timestamp: created},
		},
		Timeline: []domain.TimelineEvent{
			{ID: "t1", Timestamp: created, Description: "paged", Actor: "pager"},
		},
	}
}

func TestApplyScalarPatchRecordsDiff(t *testing.T) {
	p, _ := newTestPatcher()
	current := sampleIncident()

	res, err := p.Apply(current, domain.ChangeRequest{"title": "B"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if res.Incident.ID != "1" || res.Incident.Title != "B" || res.Incident.Status != domain.StatusOpen {
		t.Fatalf("unexpected incident: %+v", res.Incident)
	}
	want := domain.Diff{"title": {Old: "A", New: "B"}}
	if diff := cmp.Diff(want, res.Diff); diff != "" {
		t.Fatalf("unexpected diff (-want +got):\n%s", diff)
	}
	if res.Incident.UpdatedAt == nil || !res.Incident.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("expected updatedAt stamped, got %v", res.Incident.UpdatedAt)
	}
	if !res.Changed() {
		t.Fatal("expected Changed() to be true")
	}
	if current.Title != "A" {
		t.Fatalf("input incident must not be mutated, title=%q", current.Title)
	}
}

func TestApplySameValueProducesEmptyDiff(t *testing.T) {
	p, _ := newTestPatcher()

	res, err := p.Apply(sampleIncident(), domain.ChangeRequest{
		"title":  "A",
		"status": "OPEN",
		"tags":   []any{"db"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Diff.Empty() {
		t.Fatalf("expected empty diff, got %+v", res.Diff)
	}
	if res.Changed() {
		t.Fatal("expected no effective change")
	}
}

func TestApplyPatchesNoteByID(t *testing.T) {
	p, _ := newTestPatcher()
	current := sampleIncident()

	res, err := p.Apply(current, domain.ChangeRequest{
		"notes": []any{map[string]any{"id": "n1", "note": "new"}},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	got := res.Incident.Notes[0]
	if got.Note != "new" || got.Author != "x" {
		t.Fatalf("unexpected note: %+v", got)
	}
	if !res.Diff.Empty() {
		t.Fatalf("sub-record edits are not part of the diff, got %+v", res.Diff)
	}
	if res.SubRecordChanges != 1 || !res.Changed() {
		t.Fatalf("expected one sub-record change, got %d", res.SubRecordChanges)
	}
	if current.Notes[0].Note != "old" {
		t.Fatalf("input notes must not be mutated, got %q", current.Notes[0].Note)
	}
}

func TestApplyUnknownNoteIDFails(t *testing.T) {
	p, v := newTestPatcher()
	current := sampleIncident()

	_, err := p.Apply(current, domain.ChangeRequest{
		"title": "B",
		"notes": []any{map[string]any{"id": "n9", "note": "x"}},
	})
	if !errors.Is(err, domain.ErrSubRecordNotFound) {
		t.Fatalf("expected sub-record not found, got %v", err)
	}
	if v.calls != 0 {
		t.Fatalf("validation must not run after a merge failure, calls=%d", v.calls)
	}
	if current.Title != "A" || current.Notes[0].Note != "old" {
		t.Fatalf("input incident changed: %+v", current)
	}
}

func TestApplyUnknownFieldFails(t *testing.T) {
	p, _ := newTestPatcher()

	_, err := p.Apply(sampleIncident(), domain.ChangeRequest{"priority": "P1"})
	if !errors.Is(err, domain.ErrUnknownField) {
		t.Fatalf("expected unknown field, got %v", err)
	}
	var fe *domain.FieldError
	if !errors.As(err, &fe) || fe.Field != "priority" {
		t.Fatalf("error should name the field, got %+v", fe)
	}
}

func TestApplyBogusStatusFailsBeforeValidation(t *testing.T) {
	p, v := newTestPatcher()

	_, err := p.Apply(sampleIncident(), domain.ChangeRequest{"status": "BOGUS"})
	if !errors.Is(err, domain.ErrInvalidFieldValue) {
		t.Fatalf("expected invalid field value, got %v", err)
	}
	if v.calls != 0 {
		t.Fatalf("validator should not be reached, calls=%d", v.calls)
	}
}

func TestApplyEmptyTitleFailsValidation(t *testing.T) {
	p, _ := newTestPatcher()

	_, err := p.Apply(sampleIncident(), domain.ChangeRequest{"title": "", "status": nil})
	if !errors.Is(err, domain.ErrPatchValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *domain.ValidationError, got %T", err)
	}
	if len(ve.Violations) != 2 {
		t.Fatalf("expected every violation reported, got %+v", ve.Violations)
	}
}

func TestApplyNeverChangesID(t *testing.T) {
	p, _ := newTestPatcher()

	res, err := p.Apply(sampleIncident(), domain.ChangeRequest{"id": "2", "updatedAt": "2000-01-01T00:00:00Z", "summary": "x"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Incident.ID != "1" {
		t.Fatalf("id changed to %q", res.Incident.ID)
	}
	if _, ok := res.Diff["id"]; ok {
		t.Fatal("id must not appear in the diff")
	}
	if !res.Incident.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("updatedAt should be stamped by the engine, got %v", res.Incident.UpdatedAt)
	}
}

func TestApplyOptionalTimestampRoundTrip(t *testing.T) {
	p, _ := newTestPatcher()

	res, err := p.Apply(sampleIncident(), domain.ChangeRequest{
		"resolvedAt":     "2024-05-02T10:00:00Z",
		"resolutionNote": "restarted primary",
		"status":         "RESOLVED",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	resolved := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	if res.Incident.ResolvedAt == nil || !res.Incident.ResolvedAt.Equal(resolved) {
		t.Fatalf("unexpected resolvedAt: %v", res.Incident.ResolvedAt)
	}
	if len(res.Diff) != 3 {
		t.Fatalf("expected 3 changed fields, got %+v", res.Diff)
	}
	if res.Diff["resolvedAt"].Old != nil {
		t.Fatalf("expected nil old resolvedAt, got %v", res.Diff["resolvedAt"].Old)
	}

	cleared, err := p.Apply(res.Incident, domain.ChangeRequest{"resolvedAt": nil})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cleared.Incident.ResolvedAt != nil {
		t.Fatalf("expected resolvedAt cleared, got %v", cleared.Incident.ResolvedAt)
	}
}

func TestApplyMalformedNotesValue(t *testing.T) {
	p, _ := newTestPatcher()

	_, err := p.Apply(sampleIncident(), domain.ChangeRequest{"timeline": "nope"})
	if !errors.Is(err, domain.ErrMalformedSubPatch) {
		t.Fatalf("expected malformed sub-patch, got %v", err)
	}
}

func TestApplyUnsupportedConversion(t *testing.T) {
	p, _ := newTestPatcher()

	_, err := p.Apply(sampleIncident(), domain.ChangeRequest{"severity": 3.0})
	if !errors.Is(err, domain.ErrUnsupportedFieldConversion) {
		t.Fatalf("expected unsupported conversion, got %v", err)
	}
	var fe *domain.FieldError
	if !errors.As(err, &fe) || fe.Field != "severity" {
		t.Fatalf("error should name the field, got %+v", fe)
	}
}
