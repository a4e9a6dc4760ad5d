package patient

import (
	"fmt"
	"sort"
)

type SortField string

const (
	SortByHeight SortField = "height"
	SortByWeight SortField = "weight"
	SortByBMI    SortField = "bmi"
)

type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

func ParseSortField(s string) (SortField, error) {
	switch f := SortField(s); f {
	case SortByHeight, SortByWeight, SortByBMI:
		return f, nil
	}
	return "", fmt.Errorf("%w: sort_by %q, select from [height weight bmi]", ErrInvalidArgument, s)
}

// ParseSortOrder accepts asc or desc; an empty value means asc.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(s); o {
	case "":
		return Ascending, nil
	case Ascending, Descending:
		return o, nil
	}
	return "", fmt.Errorf("%w: order %q, select between asc and desc", ErrInvalidArgument, s)
}

// Get returns the record stored under id with its derived fields.
func Get(c *Collection, id string) (*Patient, error) {
	f, ok := c.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return fromStored(id, f), nil
}

// List returns every record in collection order.
func List(c *Collection) []*Patient {
	out := make([]*Patient, 0, c.Len())
	c.Each(func(id string, f Fields) {
		out = append(out, fromStored(id, f))
	})
	return out
}

// Sort orders the collection by field. Records with equal keys keep their
// collection order in both directions.
func Sort(c *Collection, field SortField, order SortOrder) []*Patient {
	out := List(c)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := sortKey(out[i], field), sortKey(out[j], field)
		if order == Descending {
			return a > b
		}
		return a < b
	})
	return out
}

// sortKey reads the key for field. A record missing the field has a zero
// value there, which sorts as 0.
func sortKey(p *Patient, field SortField) float64 {
	switch field {
	case SortByHeight:
		return p.Height
	case SortByWeight:
		return p.Weight
	case SortByBMI:
		return p.BMI
	}
	return 0
}
