package ports

import (
	"context"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
)

type IncidentStore interface {
	FindByID(ctx context.Context, id string) (domain.Incident, error)
	FindAll(ctx context.Context, filter domain.IncidentListFilter) ([]domain.Incident, error)
	// Save writes inc and, when audit is non-nil, the audit entry in the same
	// transaction.
	Save(ctx context.Context, inc domain.Incident, meta domain.MutationMetadata, audit *domain.AuditRecord) (domain.Incident, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
	DeleteByID(ctx context.Context, id string, meta domain.MutationMetadata) error
}

type AuditStore interface {
	Save(ctx context.Context, rec domain.AuditRecord) (domain.AuditRecord, error)
	FindByIncidentID(ctx context.Context, incidentID string) ([]domain.AuditRecord, error)
}

// IncidentValidator returns every rule the incident breaks; empty means valid.
type IncidentValidator interface {
	Validate(inc domain.Incident) []domain.Violation
}
