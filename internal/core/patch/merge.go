package patch

import (
	"fmt"
	"slices"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
)

const (
	collectionNotes    = "notes"
	collectionTimeline = "timeline"
)

// subPatch targets one sub-record by id; fields excludes the id key.
type subPatch struct {
	id     string
	fields map[string]any
}

func parseSubPatches(collection string, raw any) ([]subPatch, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, malformed(collection, fmt.Errorf("expected a list of objects, got %T", raw))
	}

	out := make([]subPatch, 0, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, malformed(collection, fmt.Errorf("entry %d: expected an object, got %T", i, entry))
		}
		id, ok := m["id"].(string)
		if !ok || id == "" {
			return nil, malformed(collection, fmt.Errorf("entry %d: missing id", i))
		}
		fields := make(map[string]any, len(m)-1)
		for k, v := range m {
			if k != "id" {
				fields[k] = v
			}
		}
		out = append(out, subPatch{id: id, fields: fields})
	}
	return out, nil
}

// mergeCollection applies each sub-patch to the item sharing its id, in place.
// Items are never added, removed or reordered. It returns how many sub-record
// fields effectively changed.
func mergeCollection[T any](collection string, items []T, patches []subPatch, idOf func(*T) string, fields fieldTable[T]) (int, error) {
	changed := 0
	for _, p := range patches {
		idx := slices.IndexFunc(items, func(item T) bool { return idOf(&item) == p.id })
		if idx < 0 {
			return changed, &domain.FieldError{
				Kind:        domain.ErrSubRecordNotFound,
				Collection:  collection,
				SubRecordID: p.id,
			}
		}

		for _, name := range sortedKeys(p.fields) {
			f, ok := fields[name]
			if !ok {
				return changed, &domain.FieldError{Kind: domain.ErrUnknownField, Field: collection + "." + name}
			}
			before, after, err := f.assign(&items[idx], collection+"."+name, p.fields[name])
			if err != nil {
				return changed, err
			}
			if !equalValues(before, after) {
				changed++
			}
		}
	}
	return changed, nil
}

func mergeNotes(notes []domain.Note, patches []subPatch) (int, error) {
	return mergeCollection(collectionNotes, notes, patches, func(n *domain.Note) string { return n.ID }, noteFields)
}

func mergeTimeline(events []domain.TimelineEvent, patches []subPatch) (int, error) {
	return mergeCollection(collectionTimeline, events, patches, func(e *domain.TimelineEvent) string { return e.ID }, timelineFields)
}

func malformed(collection string, err error) error {
	return &domain.FieldError{Kind: domain.ErrMalformedSubPatch, Collection: collection, Err: err}
}
