package patch

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
)

func TestRecordChangeSkipsEqualValues(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := domain.Diff{}

	recordChange(d, "title", "A", "A")
	recordChange(d, "createdAt", ts, ts.In(time.FixedZone("CET", 3600)))
	recordChange(d, "tags", []string{"a", "b"}, []string{"b", "a"})
	recordChange(d, "resolvedAt", nil, nil)
	recordChange(d, "tags", nil, []string{})

	if !d.Empty() {
		t.Fatalf("expected empty diff, got %+v", d)
	}
}

func TestRecordChangeClearingTagsIsAChange(t *testing.T) {
	d := domain.Diff{}
	recordChange(d, "tags", nil, []string{"db"})
	recordChange(d, "summary", []string{}, "x")

	if len(d) != 2 {
		t.Fatalf("expected both fields recorded, got %+v", d)
	}
}

func TestRecordChangeStoresOldAndNew(t *testing.T) {
	d := domain.Diff{}
	recordChange(d, "title", "A", "B")

	want := domain.Diff{"title": {Old: "A", New: "B"}}
	if diff := cmp.Diff(want, d); diff != "" {
		t.Fatalf("unexpected diff (-want +got):\n%s", diff)
	}
}

func TestRecordChangeKeepsOriginalOldValue(t *testing.T) {
	d := domain.Diff{}
	recordChange(d, "status", domain.StatusOpen, domain.StatusInProgress)
	recordChange(d, "status", domain.StatusInProgress, domain.StatusResolved)

	got := d["status"]
	if got.Old != domain.StatusOpen || got.New != domain.StatusResolved {
		t.Fatalf("expected OPEN -> RESOLVED, got %+v", got)
	}
}

func TestRecordChangeDropsNetNoop(t *testing.T) {
	d := domain.Diff{}
	recordChange(d, "title", "A", "B")
	recordChange(d, "title", "B", "A")

	if _, ok := d["title"]; ok {
		t.Fatalf("expected title dropped after reverting, got %+v", d)
	}
}
