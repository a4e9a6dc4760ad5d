package patient

import (
	"strconv"
	"strings"
)

// Gender is the closed set of accepted gender values.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOthers Gender = "others"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOthers:
		return true
	}
	return false
}

const (
	VerdictUnderweight = "Underweight"
	VerdictNormal      = "Normal"
	VerdictObese       = "Obese"
)

// Fields are the stored attributes of a patient. The id is not part of them;
// it is the key the fields are stored under.
type Fields struct {
	Name   string  `json:"name"`
	City   string  `json:"city"`
	Age    int     `json:"age"`
	Gender Gender  `json:"gender"`
	Height float64 `json:"height"`
	Weight float64 `json:"weight"`
}

// Derived holds the attributes computed from height and weight. They are
// never persisted and never read from input.
type Derived struct {
	BMI     float64 `json:"bmi"`
	Verdict string  `json:"verdict"`
}

// Patient is a record as returned to callers: identity, stored fields and
// freshly computed derived fields.
type Patient struct {
	ID string `json:"id"`
	Fields
	Derived
}

// New validates f as a complete record and attaches derived fields.
func New(id string, f Fields) (*Patient, error) {
	ve := &ValidationError{}
	if strings.TrimSpace(id) == "" {
		ve.add("id", ruleNotEmpty)
	}
	ve.merge(checkFields(&f, nil))
	if err := ve.err(); err != nil {
		return nil, err
	}
	return &Patient{ID: id, Fields: f, Derived: Derive(f)}, nil
}

// fromStored builds a read view without validating. Records already in the
// collection passed validation when they were written.
func fromStored(id string, f Fields) *Patient {
	return &Patient{ID: id, Fields: f, Derived: Derive(f)}
}

func Derive(f Fields) Derived {
	bmi := BMI(f.Height, f.Weight)
	return Derived{BMI: bmi, Verdict: VerdictFor(bmi)}
}

// BMI returns weight/height² rounded to two decimals, or 0 for a
// non-positive height.
func BMI(height, weight float64) float64 {
	if height <= 0 {
		return 0
	}
	return round2(weight / (height * height))
}

// VerdictFor maps a BMI to its category. The 25-30 band is reported as
// Normal; there is no Overweight category.
func VerdictFor(bmi float64) string {
	switch {
	case bmi < 18.5:
		return VerdictUnderweight
	case bmi < 30:
		return VerdictNormal
	default:
		return VerdictObese
	}
}

// round2 rounds the exact binary value of v to two decimals, ties to even.
func round2(v float64) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return r
}
