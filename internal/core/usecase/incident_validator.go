package usecase

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
)

//go:embed schemas/incident.schema.json
var incidentSchemaJSON []byte

// IncidentValidator checks incidents against the embedded JSON schema.
type IncidentValidator struct {
	schema *santhosh.Schema
}

func NewIncidentValidator() (*IncidentValidator, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource("incident.schema.json", bytes.NewReader(incidentSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add incident schema: %w", err)
	}
	sch, err := compiler.Compile("incident.schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile incident schema: %w", err)
	}
	return &IncidentValidator{schema: sch}, nil
}

// Validate returns every violation, sorted by field path.
func (v *IncidentValidator) Validate(inc domain.Incident) []domain.Violation {
	err := v.schema.Validate(validationDocument(inc))
	if err == nil {
		return nil
	}

	var ve *santhosh.ValidationError
	if !errors.As(err, &ve) {
		return []domain.Violation{{Field: "incident", Message: err.Error()}}
	}

	violations := collectViolations(ve)
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Field < violations[j].Field
	})
	return violations
}

func collectViolations(ve *santhosh.ValidationError) []domain.Violation {
	var out []domain.Violation
	for _, cause := range ve.Causes {
		out = append(out, collectViolations(cause)...)
	}
	if len(ve.Causes) == 0 {
		out = append(out, domain.Violation{
			Field:   pointerToPath(ve.InstanceLocation),
			Message: ve.Message,
		})
	}
	return out
}

// pointerToPath turns "/notes/0/author" into "notes.0.author".
func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return "incident"
	}
	segments := strings.Split(ptr, "/")
	for i, seg := range segments {
		seg = strings.ReplaceAll(seg, "~1", "/")
		segments[i] = strings.ReplaceAll(seg, "~0", "~")
	}
	return strings.Join(segments, ".")
}

// validationDocument renders inc as plain JSON values. Every key is present
// and zero timestamps become null, so a missing value fails on its own path.
func validationDocument(inc domain.Incident) map[string]any {
	tags := make([]any, 0, len(inc.Tags))
	for _, t := range inc.Tags {
		tags = append(tags, t)
	}

	notes := make([]any, 0, len(inc.Notes))
	for _, n := range inc.Notes {
		notes = append(notes, map[string]any{
			"id":        n.ID,
			"author":    n.Author,
			"note":      n.Note,
			"timestamp": timeValue(n.Timestamp),
		})
	}

	timeline := make([]any, 0, len(inc.Timeline))
	for _, e := range inc.Timeline {
		timeline = append(timeline, map[string]any{
			"id":          e.ID,
			"timestamp":   timeValue(e.Timestamp),
			"description": e.Description,
			"actor":       e.Actor,
		})
	}

	return map[string]any{
		"id":             inc.ID,
		"title":          inc.Title,
		"summary":        inc.Summary,
		"severity":       inc.Severity,
		"status":         string(inc.Status),
		"createdBy":      inc.CreatedBy,
		"createdAt":      timeValue(inc.CreatedAt),
		"updatedAt":      optionalTimeValue(inc.UpdatedAt),
		"resolutionNote": inc.ResolutionNote,
		"resolvedAt":     optionalTimeValue(inc.ResolvedAt),
		"tags":           tags,
		"notes":          notes,
		"timeline":       timeline,
	}
}

func timeValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func optionalTimeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeValue(*t)
}
