package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
	"github.com/atvirokodosprendimai/incidents/internal/core/patch"
	"github.com/atvirokodosprendimai/incidents/internal/core/ports"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type IncidentService struct {
	store     ports.IncidentStore
	validator ports.IncidentValidator
	patcher   *patch.Patcher
	audit     *AuditService
	now       func() time.Time
	metrics   Metrics
}

type IncidentOption func(*IncidentService)

func WithIncidentClock(now func() time.Time) IncidentOption {
	return func(s *IncidentService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIncidentMetrics(m Metrics) IncidentOption {
	return func(s *IncidentService) {
		if m != nil {
			s.metrics = m
		}
	}
}

func NewIncidentService(store ports.IncidentStore, validator ports.IncidentValidator, audit *AuditService, opts ...IncidentOption) *IncidentService {
	s := &IncidentService{
		store:     store,
		validator: validator,
		audit:     audit,
		now:       time.Now,
		metrics:   noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.patcher = patch.NewPatcher(validator, patch.WithClock(s.now))
	return s
}

// PatchOutcome is what a successful patch returns. Audit is nil when no
// scalar field changed.
type PatchOutcome struct {
	Incident domain.Incident
	Changes  domain.Diff
	Audit    *domain.AuditRecord
}

// Create stores a new incident. Ids are assigned to the incident and to any
// note or timeline event that lacks one.
func (s *IncidentService) Create(ctx context.Context, inc domain.Incident, meta domain.MutationMetadata) (domain.Incident, error) {
	now := s.now().UTC()

	inc = inc.Clone()
	inc.ID = uuid.NewString()
	inc.UpdatedAt = nil
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = now
	}
	if inc.Status == "" {
		inc.Status = domain.StatusOpen
	}
	if inc.CreatedBy == "" {
		inc.CreatedBy = meta.Actor
	}
	inc.Tags = domain.DedupeTags(inc.Tags)
	for i := range inc.Notes {
		if inc.Notes[i].ID == "" {
			inc.Notes[i].ID = uuid.NewString()
		}
		if inc.Notes[i].Timestamp.IsZero() {
			inc.Notes[i].Timestamp = now
		}
	}
	for i := range inc.Timeline {
		if inc.Timeline[i].ID == "" {
			inc.Timeline[i].ID = uuid.NewString()
		}
		if inc.Timeline[i].Timestamp.IsZero() {
			inc.Timeline[i].Timestamp = now
		}
	}

	if violations := s.validator.Validate(inc); len(violations) > 0 {
		return domain.Incident{}, &domain.ValidationError{Violations: violations}
	}

	saved, err := s.store.Save(ctx, inc, meta, nil)
	if err != nil {
		return domain.Incident{}, fmt.Errorf("save incident: %w", err)
	}
	return saved, nil
}

func (s *IncidentService) Get(ctx context.Context, id string) (domain.Incident, error) {
	if err := domain.ValidateID(id); err != nil {
		return domain.Incident{}, err
	}
	return s.store.FindByID(ctx, id)
}

func (s *IncidentService) List(ctx context.Context, filter domain.IncidentListFilter) ([]domain.IncidentSummary, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Limit == 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	incidents, err := s.store.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.IncidentSummary, 0, len(incidents))
	for _, inc := range incidents {
		out = append(out, inc.Summarize())
	}
	return out, nil
}

// Patch applies req to the stored incident. Nothing is written when the
// request has no effect; otherwise the incident and the audit entry for its
// scalar diff are saved together.
func (s *IncidentService) Patch(ctx context.Context, id string, req domain.ChangeRequest, meta domain.MutationMetadata) (PatchOutcome, error) {
	if err := domain.ValidateID(id); err != nil {
		return PatchOutcome{}, err
	}

	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.metrics.PatchApplied(PatchOutcomeNotFound)
		}
		return PatchOutcome{}, err
	}

	res, err := s.patcher.Apply(current, req)
	if err != nil {
		s.metrics.PatchApplied(PatchOutcomeRejected)
		return PatchOutcome{}, err
	}
	if !res.Changed() {
		s.metrics.PatchApplied(PatchOutcomeNoop)
		return PatchOutcome{Incident: current, Changes: domain.Diff{}}, nil
	}

	rec := s.audit.newRecord(current.ID, meta.Actor, res.Diff)
	saved, err := s.store.Save(ctx, res.Incident, meta, rec)
	if err != nil {
		return PatchOutcome{}, fmt.Errorf("save incident: %w", err)
	}
	if rec != nil {
		s.audit.recorded()
	}

	s.metrics.PatchApplied(PatchOutcomeChanged)
	return PatchOutcome{Incident: saved, Changes: res.Diff, Audit: rec}, nil
}

func (s *IncidentService) Delete(ctx context.Context, id string, meta domain.MutationMetadata) error {
	if err := domain.ValidateID(id); err != nil {
		return err
	}
	exists, err := s.store.ExistsByID(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return s.store.DeleteByID(ctx, id, meta)
}
