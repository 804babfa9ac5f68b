// Package patch applies sparse change requests to incidents. It coerces
// untyped request values to field types, merges notes and timeline events by
// id, records a net before/after diff and gates the result on validation.
package patch

import (
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
	"github.com/atvirokodosprendimai/incidents/internal/core/ports"
)

// Result is a validated, not yet persisted, patch outcome.
type Result struct {
	Incident domain.Incident
	// Diff holds top-level scalar changes only; sub-record edits are counted
	// in SubRecordChanges and are not audited.
	Diff             domain.Diff
	SubRecordChanges int
}

// Changed reports whether the patch had any effect worth persisting.
func (r Result) Changed() bool {
	return !r.Diff.Empty() || r.SubRecordChanges > 0
}

type Patcher struct {
	validator ports.IncidentValidator
	now       func() time.Time
}

type Option func(*Patcher)

func WithClock(now func() time.Time) Option {
	return func(p *Patcher) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPatcher(validator ports.IncidentValidator, opts ...Option) *Patcher {
	p := &Patcher{validator: validator, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// change is either a scalarChange or a collectionChange.
type change interface {
	apply(draft *domain.Incident, diff domain.Diff) (subRecordChanges int, err error)
}

type scalarChange struct {
	name  string
	field field[domain.Incident]
	value any
}

func (c scalarChange) apply(draft *domain.Incident, diff domain.Diff) (int, error) {
	before, after, err := c.field.assign(draft, c.name, c.value)
	if err != nil {
		return 0, err
	}
	recordChange(diff, c.name, before, after)
	return 0, nil
}

type collectionChange struct {
	collection string
	patches    []subPatch
}

func (c collectionChange) apply(draft *domain.Incident, _ domain.Diff) (int, error) {
	if c.collection == collectionNotes {
		return mergeNotes(draft.Notes, c.patches)
	}
	return mergeTimeline(draft.Timeline, c.patches)
}

// Apply patches a copy of current with req. current is never modified, so a
// failed patch leaves nothing behind. Fields are applied in name order.
func (p *Patcher) Apply(current domain.Incident, req domain.ChangeRequest) (Result, error) {
	changes, err := parseChangeRequest(req)
	if err != nil {
		return Result{}, err
	}

	draft := current.Clone()
	diff := domain.Diff{}
	subRecordChanges := 0
	for _, c := range changes {
		n, err := c.apply(&draft, diff)
		if err != nil {
			return Result{}, err
		}
		subRecordChanges += n
	}

	draft.ID = current.ID
	draft.UpdatedAt = current.UpdatedAt

	if violations := p.validator.Validate(draft); len(violations) > 0 {
		return Result{}, &domain.ValidationError{Violations: violations}
	}

	now := p.now().UTC()
	draft.UpdatedAt = &now

	return Result{Incident: draft, Diff: diff, SubRecordChanges: subRecordChanges}, nil
}

func parseChangeRequest(req domain.ChangeRequest) ([]change, error) {
	changes := make([]change, 0, len(req))
	for _, name := range sortedKeys(req) {
		value := req[name]
		switch {
		case managedIncidentFields[name]:
			continue
		case name == collectionNotes || name == collectionTimeline:
			patches, err := parseSubPatches(name, value)
			if err != nil {
				return nil, err
			}
			changes = append(changes, collectionChange{collection: name, patches: patches})
		default:
			f, ok := incidentFields[name]
			if !ok {
				return nil, &domain.FieldError{Kind: domain.ErrUnknownField, Field: name}
			}
			changes = append(changes, scalarChange{name: name, field: f, value: value})
		}
	}
	return changes, nil
}

func withField(err error, name string) error {
	var fe *domain.FieldError
	if errors.As(err, &fe) && fe.Field == "" {
		fe.Field = name
	}
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
