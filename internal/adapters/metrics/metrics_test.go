package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersTrackOutcomes(t *testing.T) {
	m := New()
	m.PatchApplied("changed")
	m.PatchApplied("changed")
	m.PatchApplied("noop")
	m.AuditRecorded()
	m.OutboxDispatched("dead")

	if got := testutil.ToFloat64(m.PatchOutcomes.WithLabelValues("changed")); got != 2 {
		t.Fatalf("changed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PatchOutcomes.WithLabelValues("noop")); got != 1 {
		t.Fatalf("noop = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AuditRecords); got != 1 {
		t.Fatalf("audits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OutboxDispatches.WithLabelValues("dead")); got != 1 {
		t.Fatalf("dead = %v, want 1", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.PatchApplied("changed")
	m.AuditRecorded()
	m.OutboxDispatched("sent")
	m.ObserveRequest("/v1/incidents", "GET", "200", time.Millisecond)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.AuditRecorded()
	m.ObserveRequest("/v1/incidents/{id}", "PATCH", "200", 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		"incidents_audit_records_total 1",
		`incidents_http_request_duration_seconds_count{method="PATCH",route="/v1/incidents/{id}",status="200"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.AuditRecorded()
	if got := testutil.ToFloat64(b.AuditRecords); got != 0 {
		t.Fatalf("registries leaked between instances: %v", got)
	}
}

func TestRegistryIsPerInstance(t *testing.T) {
	a, b := New(), New()
	a.PatchApplied("changed")
	a.PatchApplied("rejected")

	n, err := testutil.GatherAndCount(a.Registry(), "incidents_patch_requests_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 outcome series, got %d", n)
	}
	if n, err := testutil.GatherAndCount(b.Registry(), "incidents_patch_requests_total"); err != nil || n != 0 {
		t.Fatalf("second instance shares state: n=%d err=%v", n, err)
	}
	if n, err := testutil.GatherAndCount(a.Registry(), "go_goroutines"); err != nil || n != 1 {
		t.Fatalf("expected go collector registered: n=%d err=%v", n, err)
	}
}
