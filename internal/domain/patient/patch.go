package patient

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
)

// Patch is a sparse set of updates to a record's stored fields. A nil field
// was not present in the request and is left untouched when applied; there
// is no way to clear a field.
type Patch struct {
	Name   *string  `json:"name,omitempty"`
	City   *string  `json:"city,omitempty"`
	Age    *int     `json:"age,omitempty"`
	Gender *Gender  `json:"gender,omitempty"`
	Height *float64 `json:"height,omitempty"`
	Weight *float64 `json:"weight,omitempty"`
}

func (p Patch) IsEmpty() bool {
	return len(p.present()) == 0
}

// Touched lists the names of the fields the patch sets, in declaration order.
func (p Patch) Touched() []string {
	set := p.present()
	out := make([]string, 0, len(set))
	for _, name := range storedFieldNames() {
		if set[name] {
			out = append(out, name)
		}
	}
	return out
}

func (p Patch) present() map[string]bool {
	set := make(map[string]bool, 6)
	if p.Name != nil {
		set["name"] = true
	}
	if p.City != nil {
		set["city"] = true
	}
	if p.Age != nil {
		set["age"] = true
	}
	if p.Gender != nil {
		set["gender"] = true
	}
	if p.Height != nil {
		set["height"] = true
	}
	if p.Weight != nil {
		set["weight"] = true
	}
	return set
}

// overlay copies every present patch field onto f.
func (p Patch) overlay(f *Fields) {
	if p.Name != nil {
		f.Name = *p.Name
	}
	if p.City != nil {
		f.City = *p.City
	}
	if p.Age != nil {
		f.Age = *p.Age
	}
	if p.Gender != nil {
		f.Gender = *p.Gender
	}
	if p.Height != nil {
		f.Height = *p.Height
	}
	if p.Weight != nil {
		f.Weight = *p.Weight
	}
}

// Validate checks the present fields against the same per-field rules a full
// record is held to.
func (p Patch) Validate() error {
	var f Fields
	p.overlay(&f)
	return checkFields(&f, p.present()).err()
}

// Draft is a create request: an id plus a full set of stored fields, each of
// which may still be missing.
type Draft struct {
	ID string
	Patch
}

// NewDraft builds a draft with every field present.
func NewDraft(id string, f Fields) Draft {
	return Draft{ID: id, Patch: Patch{
		Name:   &f.Name,
		City:   &f.City,
		Age:    &f.Age,
		Gender: &f.Gender,
		Height: &f.Height,
		Weight: &f.Weight,
	}}
}

// Build checks that every field is present and runs full record validation.
func (d Draft) Build() (*Patient, error) {
	ve := &ValidationError{}
	set := d.Patch.present()
	for _, name := range storedFieldNames() {
		if !set[name] {
			ve.add(name, ruleRequired)
		}
	}
	if err := ve.err(); err != nil {
		return nil, err
	}
	var f Fields
	d.Patch.overlay(&f)
	return New(d.ID, f)
}

// DecodePatch parses a JSON object into a Patch. Keys outside the stored
// field set (including id, bmi and verdict) are dropped and returned as
// ignored. Present fields are type checked and validated.
func DecodePatch(body []byte) (Patch, []string, error) {
	raw, err := decodeObject(body)
	if err != nil {
		return Patch{}, nil, err
	}
	ve := &ValidationError{}
	p := decodeFields(raw, ve)
	if err := ve.err(); err != nil {
		return Patch{}, nil, err
	}
	if err := p.Validate(); err != nil {
		return Patch{}, nil, err
	}
	return p, unknownKeys(raw, nil), nil
}

// DecodeDraft parses a create request body. Only types are checked here;
// Build does the record validation.
func DecodeDraft(body []byte) (Draft, []string, error) {
	raw, err := decodeObject(body)
	if err != nil {
		return Draft{}, nil, err
	}
	ve := &ValidationError{}
	var d Draft
	if v, ok := raw["id"]; ok {
		decodeString(v, "id", ve, &d.ID)
	} else {
		ve.add("id", ruleRequired)
	}
	d.Patch = decodeFields(raw, ve)
	if err := ve.err(); err != nil {
		return Draft{}, nil, err
	}
	return d, unknownKeys(raw, map[string]bool{"id": true}), nil
}

func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, &ValidationError{Violations: []Violation{{Field: "body", Rule: "must be a JSON object"}}}
	}
	return raw, nil
}

func decodeFields(raw map[string]json.RawMessage, ve *ValidationError) Patch {
	var p Patch
	if v, ok := raw["name"]; ok {
		var s string
		if decodeString(v, "name", ve, &s) {
			p.Name = &s
		}
	}
	if v, ok := raw["city"]; ok {
		var s string
		if decodeString(v, "city", ve, &s) {
			p.City = &s
		}
	}
	if v, ok := raw["age"]; ok {
		var n float64
		if decodeNumber(v, "age", ve, &n) {
			if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
				ve.add("age", "must be an integer")
			} else {
				age := int(n)
				p.Age = &age
			}
		}
	}
	if v, ok := raw["gender"]; ok {
		var s string
		if decodeString(v, "gender", ve, &s) {
			g := Gender(s)
			p.Gender = &g
		}
	}
	if v, ok := raw["height"]; ok {
		var n float64
		if decodeNumber(v, "height", ve, &n) {
			p.Height = &n
		}
	}
	if v, ok := raw["weight"]; ok {
		var n float64
		if decodeNumber(v, "weight", ve, &n) {
			p.Weight = &n
		}
	}
	return p
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func decodeString(v json.RawMessage, field string, ve *ValidationError, dst *string) bool {
	if isNull(v) {
		ve.add(field, ruleNotNull)
		return false
	}
	if err := json.Unmarshal(v, dst); err != nil {
		ve.add(field, "must be a string")
		return false
	}
	return true
}

func decodeNumber(v json.RawMessage, field string, ve *ValidationError, dst *float64) bool {
	if isNull(v) {
		ve.add(field, ruleNotNull)
		return false
	}
	if err := json.Unmarshal(v, dst); err != nil {
		ve.add(field, "must be a number")
		return false
	}
	return true
}

func unknownKeys(raw map[string]json.RawMessage, allowed map[string]bool) []string {
	known := make(map[string]bool, len(fieldRules))
	for _, name := range storedFieldNames() {
		known[name] = true
	}
	var out []string
	for k := range raw {
		if !known[k] && !allowed[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
