package domain

import (
	"time"
)

type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusClosed     Status = "CLOSED"
)

var statuses = []Status{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

// Statuses returns every member of the status enumeration in declaration order.
func Statuses() []Status {
	out := make([]Status, len(statuses))
	copy(out, statuses)
	return out
}

// ParseStatus resolves name to a status by exact match.
func ParseStatus(name string) (Status, bool) {
	for _, s := range statuses {
		if string(s) == name {
			return s, true
		}
	}
	return "", false
}

func (s Status) Valid() bool {
	_, ok := ParseStatus(string(s))
	return ok
}

type Incident struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Summary        string          `json:"summary"`
	Severity       string          `json:"severity"`
	Status         Status          `json:"status"`
	CreatedBy      string          `json:"createdBy"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      *time.Time      `json:"updatedAt,omitempty"`
	ResolutionNote string          `json:"resolutionNote,omitempty"`
	ResolvedAt     *time.Time      `json:"resolvedAt,omitempty"`
	Tags           []string        `json:"tags"`
	Timeline       []TimelineEvent `json:"timeline"`
	Notes          []Note          `json:"notes"`
}

type Note struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Note      string    `json:"note"`
	Timestamp time.Time `json:"timestamp"`
}

type TimelineEvent struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Actor       string    `json:"actor"`
}

// Clone returns a deep copy; mutating the copy never touches the receiver.
func (i Incident) Clone() Incident {
	out := i
	out.UpdatedAt = cloneTime(i.UpdatedAt)
	out.ResolvedAt = cloneTime(i.ResolvedAt)
	if i.Tags != nil {
		out.Tags = append([]string(nil), i.Tags...)
	}
	if i.Timeline != nil {
		out.Timeline = append([]TimelineEvent(nil), i.Timeline...)
	}
	if i.Notes != nil {
		out.Notes = append([]Note(nil), i.Notes...)
	}
	return out
}

func (i Incident) Summarize() IncidentSummary {
	return IncidentSummary{
		ID:             i.ID,
		Title:          i.Title,
		Summary:        i.Summary,
		Severity:       i.Severity,
		Status:         i.Status,
		CreatedBy:      i.CreatedBy,
		CreatedAt:      i.CreatedAt,
		ResolutionNote: i.ResolutionNote,
		ResolvedAt:     cloneTime(i.ResolvedAt),
		Tags:           append([]string(nil), i.Tags...),
	}
}

// IncidentSummary is the list projection of an incident, without notes and timeline.
type IncidentSummary struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Summary        string     `json:"summary"`
	Severity       string     `json:"severity"`
	Status         Status     `json:"status"`
	CreatedBy      string     `json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	ResolutionNote string     `json:"resolutionNote,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
	Tags           []string   `json:"tags"`
}

// DedupeTags drops repeated tags, keeping the first occurrence of each.
func DedupeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ChangeRequest is a decoded partial update: field name to new value. The
// notes and timeline entries hold lists of {"id": ..., field: value} maps.
type ChangeRequest map[string]any
