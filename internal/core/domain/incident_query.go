package domain

import "regexp"

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

func ValidateID(id string) error {
	if id == "" || !idPattern.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}

type IncidentListFilter struct {
	Status Status
	Tag    string
	After  string
	Limit  int
}

func (f IncidentListFilter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return ErrInvalidFilter
	}
	if f.After != "" {
		if err := ValidateID(f.After); err != nil {
			return ErrInvalidFilter
		}
	}
	if f.Limit < 0 {
		return ErrInvalidFilter
	}
	return nil
}
