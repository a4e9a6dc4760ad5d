package patient

import "fmt"

// ApplyPatch merges p into the record stored under id and re-validates the
// merged record as a whole, re-deriving bmi and verdict. The collection is
// only updated when the merged record is valid. The id cannot be changed by a
// patch.
func ApplyPatch(c *Collection, id string, p Patch) (*Patient, error) {
	current, ok := c.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}

	merged := current
	p.overlay(&merged)

	rec, err := New(id, merged)
	if err != nil {
		return nil, err
	}
	c.Put(id, rec.Fields)
	return rec, nil
}
