package patient

import (
	"strings"
)

// Violation names a single field that failed a constraint.
type Violation struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError collects every constraint violation found while building
// a record or decoding a patch. Violations are reported in field order.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Rule
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether the error contains a violation for field.
func (e *ValidationError) Has(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(field, rule string) {
	e.Violations = append(e.Violations, Violation{Field: field, Rule: rule})
}

func (e *ValidationError) merge(other *ValidationError) {
	if other == nil {
		return
	}
	e.Violations = append(e.Violations, other.Violations...)
}

// err returns nil when nothing was recorded so callers can return it directly.
func (e *ValidationError) err() error {
	if e == nil || len(e.Violations) == 0 {
		return nil
	}
	return e
}

const (
	ruleRequired = "field required"
	ruleNotNull  = "must not be null"
	ruleNotEmpty = "must not be empty"
	ruleAge      = "must be greater than 0 and less than 120"
	ruleGender   = "must be one of male, female, others"
	ruleHeight   = "must be greater than 0 and less than 3"
	ruleWeight   = "must be greater than 0"
)

type fieldRule struct {
	field string
	check func(f *Fields) string
}

// fieldRules is the single declaration of the stored-field constraints. Both
// full records and patches are checked against it; the slice order is the
// order violations are reported in.
var fieldRules = []fieldRule{
	{field: "name", check: func(f *Fields) string {
		if strings.TrimSpace(f.Name) == "" {
			return ruleNotEmpty
		}
		return ""
	}},
	{field: "city"},
	{field: "age", check: func(f *Fields) string {
		if f.Age <= 0 || f.Age >= 120 {
			return ruleAge
		}
		return ""
	}},
	{field: "gender", check: func(f *Fields) string {
		if !f.Gender.Valid() {
			return ruleGender
		}
		return ""
	}},
	{field: "height", check: func(f *Fields) string {
		if !(f.Height > 0 && f.Height < 3) {
			return ruleHeight
		}
		return ""
	}},
	{field: "weight", check: func(f *Fields) string {
		if !(f.Weight > 0) {
			return ruleWeight
		}
		return ""
	}},
}

// storedFieldNames lists the stored attributes in declaration order.
func storedFieldNames() []string {
	names := make([]string, len(fieldRules))
	for i, r := range fieldRules {
		names[i] = r.field
	}
	return names
}

// checkFields runs fieldRules against f. When only is non-nil, fields absent
// from it are skipped.
func checkFields(f *Fields, only map[string]bool) *ValidationError {
	ve := &ValidationError{}
	for _, r := range fieldRules {
		if only != nil && !only[r.field] {
			continue
		}
		if r.check == nil {
			continue
		}
		if msg := r.check(f); msg != "" {
			ve.add(r.field, msg)
		}
	}
	return ve
}
