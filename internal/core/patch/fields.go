package patch

import (
	"time"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
)

// field binds a request-facing name to a typed accessor pair on T.
type field[T any] struct {
	kind Kind
	get  func(*T) any
	set  func(*T, any)
}

type fieldTable[T any] map[string]field[T]

// Names the engine owns. They are accepted in a change request and ignored.
var managedIncidentFields = map[string]bool{
	"id":        true,
	"updatedAt": true,
}

var incidentFields = fieldTable[domain.Incident]{
	"title":          stringField(func(i *domain.Incident) *string { return &i.Title }),
	"summary":        stringField(func(i *domain.Incident) *string { return &i.Summary }),
	"severity":       stringField(func(i *domain.Incident) *string { return &i.Severity }),
	"createdBy":      stringField(func(i *domain.Incident) *string { return &i.CreatedBy }),
	"resolutionNote": stringField(func(i *domain.Incident) *string { return &i.ResolutionNote }),
	"createdAt":      timeField(func(i *domain.Incident) *time.Time { return &i.CreatedAt }),
	"resolvedAt":     optionalTimeField(func(i *domain.Incident) **time.Time { return &i.ResolvedAt }),
	"status": {
		kind: KindStatus,
		get:  func(i *domain.Incident) any { return i.Status },
		set: func(i *domain.Incident, v any) {
			s, _ := v.(domain.Status)
			i.Status = s
		},
	},
	"tags": {
		kind: KindStringSet,
		get:  func(i *domain.Incident) any { return i.Tags },
		set: func(i *domain.Incident, v any) {
			tags, _ := v.([]string)
			i.Tags = domain.DedupeTags(tags)
		},
	},
}

var noteFields = fieldTable[domain.Note]{
	"author":    stringField(func(n *domain.Note) *string { return &n.Author }),
	"note":      stringField(func(n *domain.Note) *string { return &n.Note }),
	"timestamp": timeField(func(n *domain.Note) *time.Time { return &n.Timestamp }),
}

var timelineFields = fieldTable[domain.TimelineEvent]{
	"description": stringField(func(e *domain.TimelineEvent) *string { return &e.Description }),
	"actor":       stringField(func(e *domain.TimelineEvent) *string { return &e.Actor }),
	"timestamp":   timeField(func(e *domain.TimelineEvent) *time.Time { return &e.Timestamp }),
}

func stringField[T any](ref func(*T) *string) field[T] {
	return field[T]{
		kind: KindString,
		get:  func(r *T) any { return *ref(r) },
		set: func(r *T, v any) {
			s, _ := v.(string)
			*ref(r) = s
		},
	}
}

func timeField[T any](ref func(*T) *time.Time) field[T] {
	return field[T]{
		kind: KindTime,
		get:  func(r *T) any { return *ref(r) },
		set: func(r *T, v any) {
			t, _ := v.(time.Time)
			*ref(r) = t
		},
	}
}

func optionalTimeField[T any](ref func(*T) **time.Time) field[T] {
	return field[T]{
		kind: KindOptionalTime,
		get: func(r *T) any {
			if p := *ref(r); p != nil {
				return *p
			}
			return nil
		},
		set: func(r *T, v any) {
			if t, ok := v.(time.Time); ok {
				*ref(r) = &t
				return
			}
			*ref(r) = nil
		},
	}
}

// assign coerces raw into f's type, stores it on rec and reports the
// effective value before and after.
func (f field[T]) assign(rec *T, name string, raw any) (before, after any, err error) {
	v, err := Coerce(f.kind, raw)
	if err != nil {
		return nil, nil, withField(err, name)
	}
	before = f.get(rec)
	f.set(rec, v)
	return before, f.get(rec), nil
}
