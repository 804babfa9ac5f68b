package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
	"github.com/atvirokodosprendimai/incidents/internal/core/ports"
)

type AuditService struct {
	repo    ports.AuditStore
	now     func() time.Time
	metrics Metrics
}

func NewAuditService(repo ports.AuditStore, opts ...AuditOption) *AuditService {
	s := &AuditService{repo: repo, now: time.Now, metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type AuditOption func(*AuditService)

func WithAuditClock(now func() time.Time) AuditOption {
	return func(s *AuditService) { s.now = now }
}

func WithAuditMetrics(m Metrics) AuditOption {
	return func(s *AuditService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// RecordAudit persists diff as a new audit entry for incidentID. An empty diff
// writes nothing and returns nil.
func (s *AuditService) RecordAudit(ctx context.Context, incidentID, actor string, diff domain.Diff) (*domain.AuditRecord, error) {
	rec := s.newRecord(incidentID, actor, diff)
	if rec == nil {
		return nil, nil
	}

	saved, err := s.repo.Save(ctx, *rec)
	if err != nil {
		return nil, fmt.Errorf("save audit record: %w", err)
	}
	s.recorded()
	return &saved, nil
}

// newRecord builds the entry RecordAudit would write, or nil for an empty
// diff. Callers that persist it themselves report it with recorded.
func (s *AuditService) newRecord(incidentID, actor string, diff domain.Diff) *domain.AuditRecord {
	if diff.Empty() {
		return nil
	}
	if actor == "" {
		actor = "api"
	}

	changes := make(domain.Diff, len(diff))
	for k, v := range diff {
		changes[k] = v
	}
	return &domain.AuditRecord{
		ID:         uuid.NewString(),
		IncidentID: incidentID,
		Actor:      actor,
		Timestamp:  s.now().UTC(),
		Changes:    changes,
	}
}

func (s *AuditService) recorded() {
	s.metrics.AuditRecorded()
}

func (s *AuditService) ListForIncident(ctx context.Context, incidentID string) ([]domain.AuditRecord, error) {
	if err := domain.ValidateID(incidentID); err != nil {
		return nil, err
	}
	return s.repo.FindByIncidentID(ctx, incidentID)
}
