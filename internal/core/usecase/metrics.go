package usecase

// Metrics receives service-level counters. The prometheus adapter implements
// it; services default to a no-op.
type Metrics interface {
	PatchApplied(outcome string)
	AuditRecorded()
	OutboxDispatched(outcome string)
}

const (
	PatchOutcomeChanged  = "changed"
	PatchOutcomeNoop     = "noop"
	PatchOutcomeRejected = "rejected"
	PatchOutcomeNotFound = "not_found"
	OutboxOutcomeSent    = "sent"
	OutboxOutcomeFailed  = "failed"
	OutboxOutcomeDead    = "dead"
)

type noopMetrics struct{}

func (noopMetrics) PatchApplied(string)     {}
func (noopMetrics) AuditRecorded()          {}
func (noopMetrics) OutboxDispatched(string) {}
