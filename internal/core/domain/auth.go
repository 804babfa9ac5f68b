package domain

import "time"

// APIKey identifies a caller. Name doubles as the actor recorded in audit entries.
type APIKey struct {
	TokenHash string
	Name      string
	Active    bool
	CreatedAt time.Time
}
