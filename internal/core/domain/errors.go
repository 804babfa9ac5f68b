package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidFilter = errors.New("invalid filter")

	ErrUnknownField               = errors.New("unknown field")
	ErrMalformedSubPatch          = errors.New("malformed sub-patch")
	ErrSubRecordNotFound          = errors.New("sub-record not found")
	ErrInvalidFieldValue          = errors.New("invalid field value")
	ErrUnsupportedFieldConversion = errors.New("unsupported field conversion")
	ErrPatchValidationFailed      = errors.New("patch validation failed")
)

// FieldError reports a change request that cannot be applied. Kind is one of
// the ErrUnknownField ... ErrUnsupportedFieldConversion sentinels, so callers
// match with errors.Is.
type FieldError struct {
	Kind        error
	Field       string
	Collection  string
	SubRecordID string
	Source      string
	Target      string
	Err         error
}

func (e *FieldError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	switch {
	case errors.Is(e.Kind, ErrSubRecordNotFound):
		fmt.Fprintf(&b, ": %s id %q", e.Collection, e.SubRecordID)
	case errors.Is(e.Kind, ErrMalformedSubPatch):
		fmt.Fprintf(&b, ": %s", e.Collection)
	case errors.Is(e.Kind, ErrUnsupportedFieldConversion):
		fmt.Fprintf(&b, ": %s: cannot convert %s to %s", e.Field, e.Source, e.Target)
	default:
		if e.Field != "" {
			fmt.Fprintf(&b, ": %s", e.Field)
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *FieldError) Is(target error) bool {
	return target == e.Kind
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Violation is a single failed validation rule.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return v.Field + ": " + v.Message
}

// ValidationError carries every violation found, not just the first.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.String())
	}
	return fmt.Sprintf("%s: %s", ErrPatchValidationFailed, strings.Join(msgs, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrPatchValidationFailed
}
