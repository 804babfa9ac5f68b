package patch

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
)

// Tags are a set: order and nil-versus-empty carry no meaning.
var equalOpts = cmp.Options{
	cmpopts.EquateEmpty(),
	cmpopts.SortSlices(func(a, b string) bool { return a < b }),
}

func equalValues(a, b any) bool {
	if emptyValue(a) && emptyValue(b) {
		return true
	}
	return cmp.Equal(a, b, equalOpts)
}

// emptyValue reports an absent value: untyped nil or a tag set with no members.
func emptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case []string:
		return len(x) == 0
	}
	return false
}

// recordChange adds field to d when oldV and newV differ. A field recorded
// twice keeps its first old value, and is dropped if the net change is nil.
func recordChange(d domain.Diff, field string, oldV, newV any) {
	if prev, ok := d[field]; ok {
		oldV = prev.Old
	}
	if equalValues(oldV, newV) {
		delete(d, field)
		return
	}
	d[field] = domain.FieldChange{Old: oldV, New: newV}
}
