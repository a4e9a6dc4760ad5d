package patient

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Collection is the full set of persisted records keyed by id. It keeps
// insertion order: new ids append, replacing an id keeps its position. That
// order is what stable sorting and listing preserve.
type Collection struct {
	ids   []string
	items map[string]Fields
}

func NewCollection() *Collection {
	return &Collection{items: make(map[string]Fields)}
}

func (c *Collection) Len() int { return len(c.ids) }

// IDs returns the ids in collection order.
func (c *Collection) IDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

func (c *Collection) Has(id string) bool {
	_, ok := c.items[id]
	return ok
}

func (c *Collection) Lookup(id string) (Fields, bool) {
	f, ok := c.items[id]
	return f, ok
}

// Put stores f under id, appending id if it is new.
func (c *Collection) Put(id string, f Fields) {
	if c.items == nil {
		c.items = make(map[string]Fields)
	}
	if _, ok := c.items[id]; !ok {
		c.ids = append(c.ids, id)
	}
	c.items[id] = f
}

// Remove deletes id and reports whether it was present.
func (c *Collection) Remove(id string) bool {
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	for i, v := range c.ids {
		if v == id {
			c.ids = append(c.ids[:i], c.ids[i+1:]...)
			break
		}
	}
	return true
}

// Each calls fn for every record in collection order.
func (c *Collection) Each(fn func(id string, f Fields)) {
	for _, id := range c.ids {
		fn(id, c.items[id])
	}
}

func (c *Collection) Clone() *Collection {
	out := &Collection{
		ids:   make([]string, len(c.ids)),
		items: make(map[string]Fields, len(c.items)),
	}
	copy(out.ids, c.ids)
	for k, v := range c.items {
		out.items[k] = v
	}
	return out
}

// MarshalJSON writes the collection as an object keyed by id, in collection
// order. Derived fields are not written.
func (c *Collection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range c.ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.items[id])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object keyed by id, keeping the key order of the
// document. Unknown attributes inside a record (such as a stored bmi or
// verdict) are ignored.
func (c *Collection) UnmarshalJSON(data []byte) error {
	c.ids = nil
	c.items = make(map[string]Fields)
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("collection: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("collection: expected string key, got %v", tok)
		}
		var f Fields
		if err := dec.Decode(&f); err != nil {
			return fmt.Errorf("collection: record %q: %w", id, err)
		}
		c.Put(id, f)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
