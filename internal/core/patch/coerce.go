package patch

import (
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/incidents/internal/core/domain"
)

// Kind is the static type a patchable field expects.
type Kind int

const (
	KindString Kind = iota
	KindStatus
	KindTime
	KindOptionalTime
	KindStringSet
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindStatus:
		return "status"
	case KindTime, KindOptionalTime:
		return "timestamp"
	case KindStringSet:
		return "string list"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Coerce converts raw, as decoded from JSON, into the Go value kind expects.
// A nil raw value is returned unchanged; the field setter decides what nil means.
// Errors are *domain.FieldError with an empty Field, to be filled by the caller.
func Coerce(kind Kind, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	switch kind {
	case KindString:
		if v, ok := raw.(string); ok {
			return v, nil
		}
	case KindStatus:
		switch v := raw.(type) {
		case domain.Status:
			return v, nil
		case string:
			s, ok := domain.ParseStatus(v)
			if !ok {
				return nil, invalidValue(fmt.Errorf("%q is not one of %s", v, statusNames()))
			}
			return s, nil
		}
	case KindTime, KindOptionalTime:
		switch v := raw.(type) {
		case time.Time:
			return v, nil
		case *time.Time:
			if v == nil {
				return nil, nil
			}
			return *v, nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, invalidValue(fmt.Errorf("%q is not an ISO-8601 instant", v))
			}
			return t, nil
		}
	case KindStringSet:
		switch v := raw.(type) {
		case []string:
			return v, nil
		case []any:
			out := make([]string, 0, len(v))
			for _, e := range v {
				s, ok := e.(string)
				if !ok {
					return nil, unsupported(raw, kind)
				}
				out = append(out, s)
			}
			return out, nil
		}
	}

	return nil, unsupported(raw, kind)
}

func invalidValue(err error) error {
	return &domain.FieldError{Kind: domain.ErrInvalidFieldValue, Err: err}
}

func unsupported(raw any, kind Kind) error {
	return &domain.FieldError{
		Kind:   domain.ErrUnsupportedFieldConversion,
		Source: fmt.Sprintf("%T", raw),
		Target: kind.String(),
	}
}

func statusNames() string {
	all := domain.Statuses()
	names := make([]string, 0, len(all))
	for _, s := range all {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}
