package patient

import (
	"context"
	"sync"
)

// MemoryGateway keeps the collection in process. Load and Save copy, so
// callers never share state with the store.
type MemoryGateway struct {
	mu   sync.Mutex
	data *Collection
}

func NewMemoryGateway(seed *Collection) *MemoryGateway {
	if seed == nil {
		seed = NewCollection()
	}
	return &MemoryGateway{data: seed.Clone()}
}

func (g *MemoryGateway) Load(_ context.Context) (*Collection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.data.Clone(), nil
}

func (g *MemoryGateway) Save(_ context.Context, c *Collection) error {
	next := c.Clone()
	g.mu.Lock()
	g.data = next
	g.mu.Unlock()
	return nil
}

func (g *MemoryGateway) Ping(_ context.Context) error { return nil }
func (g *MemoryGateway) Close() error                 { return nil }
