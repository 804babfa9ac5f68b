package patch

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
)

func TestParseSubPatchesRejectsMalformedEntries(t *testing.T) {
	tests := []struct {
		name string
		raw  any
	}{
		{name: "not a list", raw: map[string]any{"id": "n1"}},
		{name: "null", raw: nil},
		{name: "entry not an object", raw: []any{"n1"}},
		{name: "missing id", raw: []any{map[string]any{"note": "x"}}},
		{name: "empty id", raw: []any{map[string]any{"id": "", "note": "x"}}},
		{name: "numeric id", raw: []any{map[string]any{"id": 1.0, "note": "x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSubPatches(collectionNotes, tt.raw)
			if !errors.Is(err, domain.ErrMalformedSubPatch) {
				t.Fatalf("expected malformed sub-patch, got %v", err)
			}
		})
	}
}

func TestMergeNotesPatchesOnlyNamedFields(t *testing.T) {
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	notes := []domain.Note{
		{ID: "n1", Author: "x", Note: "old", Timestamp: ts},
		{ID: "n2", Author: "y", Note: "other", Timestamp: ts},
	}
	patches, err := parseSubPatches(collectionNotes, []any{map[string]any{"id": "n1", "note": "new"}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	changed, err := mergeNotes(notes, patches)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if changed != 1 {
		t.Fatalf("expected 1 changed field, got %d", changed)
	}

	want := []domain.Note{
		{ID: "n1", Author: "x", Note: "new", Timestamp: ts},
		{ID: "n2", Author: "y", Note: "other", Timestamp: ts},
	}
	if diff := cmp.Diff(want, notes); diff != "" {
		t.Fatalf("unexpected notes (-want +got):\n%s", diff)
	}
}

func TestMergeTimelineCoercesTimestamp(t *testing.T) {
	events := []domain.TimelineEvent{{ID: "t1", Description: "created", Actor: "ops"}}
	patches, err := parseSubPatches(collectionTimeline, []any{
		map[string]any{"id": "t1", "timestamp": "2024-05-01T08:00:00Z", "actor": "ops"},
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	changed, err := mergeTimeline(events, patches)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if changed != 1 {
		t.Fatalf("expected only the timestamp to count as changed, got %d", changed)
	}
	if !events[0].Timestamp.Equal(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp: %v", events[0].Timestamp)
	}
}

func TestMergeNotesUnknownIDFails(t *testing.T) {
	notes := []domain.Note{{ID: "n1", Author: "x", Note: "old"}}
	patches, _ := parseSubPatches(collectionNotes, []any{map[string]any{"id": "n9", "note": "x"}})

	_, err := mergeNotes(notes, patches)
	if !errors.Is(err, domain.ErrSubRecordNotFound) {
		t.Fatalf("expected sub-record not found, got %v", err)
	}
	var fe *domain.FieldError
	if !errors.As(err, &fe) || fe.SubRecordID != "n9" || fe.Collection != collectionNotes {
		t.Fatalf("error should name collection and id, got %+v", fe)
	}
}

func TestMergeNotesUnknownSubFieldFails(t *testing.T) {
	notes := []domain.Note{{ID: "n1", Author: "x", Note: "old"}}
	patches, _ := parseSubPatches(collectionNotes, []any{map[string]any{"id": "n1", "mood": "sad"}})

	_, err := mergeNotes(notes, patches)
	if !errors.Is(err, domain.ErrUnknownField) {
		t.Fatalf("expected unknown field, got %v", err)
	}
}

func TestMergeNotesNeverResizesOrReorders(t *testing.T) {
	notes := []domain.Note{{ID: "a", Note: "1"}, {ID: "b", Note: "2"}, {ID: "c", Note: "3"}}
	patches, _ := parseSubPatches(collectionNotes, []any{
		map[string]any{"id": "c", "note": "30"},
		map[string]any{"id": "a", "note": "10"},
	})

	if _, err := mergeNotes(notes, patches); err != nil {
		t.Fatalf("merge: %v", err)
	}
	ids := []string{notes[0].ID, notes[1].ID, notes[2].ID}
	if diff := cmp.Diff([]string{"a", "b", "c"}, ids); diff != "" {
		t.Fatalf("order changed (-want +got):\n%s", diff)
	}
	if notes[0].Note != "10" || notes[2].Note != "30" {
		t.Fatalf("unexpected notes: %+v", notes)
	}
}
