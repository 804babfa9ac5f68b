package domain

import "time"

// FieldChange is the net before/after pair for one field of a patch.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Diff maps a field name to its net change.
type Diff map[string]FieldChange

func (d Diff) Empty() bool {
	return len(d) == 0
}

// AuditRecord is an immutable log entry for one applied patch.
type AuditRecord struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incidentId"`
	Actor      string    `json:"actor"`
	Timestamp  time.Time `json:"timestamp"`
	Changes    Diff      `json:"changes"`
}
