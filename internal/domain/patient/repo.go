package patient

import "context"

// Gateway owns the persisted form of the collection. Load returns the whole
// collection and Save replaces it; a Save is never partially visible to a
// later Load.
type Gateway interface {
	Load(ctx context.Context) (*Collection, error)
	Save(ctx context.Context, c *Collection) error
	Ping(ctx context.Context) error
	Close() error
}
