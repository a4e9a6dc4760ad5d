package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	levelRecordPrefix = "patient/"
	levelOrderKey     = "meta/order"
)

// LevelDBGateway keeps each record under patient/<id> and the collection
// order under meta/order. Save applies all puts and deletes in one batch.
type LevelDBGateway struct {
	db *leveldb.DB
}

func NewLevelDBGateway(db *leveldb.DB) *LevelDBGateway {
	return &LevelDBGateway{db: db}
}

func (g *LevelDBGateway) Load(_ context.Context) (*Collection, error) {
	snap, err := g.db.GetSnapshot()
	if err != nil {
		return nil, fmt.Errorf("leveldb snapshot: %w", err)
	}
	defer snap.Release()

	c := NewCollection()
	raw, err := snap.Get([]byte(levelOrderKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read order: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	for _, id := range ids {
		data, err := snap.Get([]byte(levelRecordPrefix+id), nil)
		if err != nil {
			return nil, fmt.Errorf("read patient %s: %w", id, err)
		}
		var f Fields
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode patient %s: %w", id, err)
		}
		c.Put(id, f)
	}
	return c, nil
}

func (g *LevelDBGateway) Save(_ context.Context, c *Collection) error {
	batch := new(leveldb.Batch)

	iter := g.db.NewIterator(util.BytesPrefix([]byte(levelRecordPrefix)), nil)
	for iter.Next() {
		id := string(iter.Key()[len(levelRecordPrefix):])
		if !c.Has(id) {
			batch.Delete([]byte(levelRecordPrefix + id))
		}
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("scan patients: %w", err)
	}

	ids := c.IDs()
	for _, id := range ids {
		f, _ := c.Lookup(id)
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("encode patient %s: %w", id, err)
		}
		batch.Put([]byte(levelRecordPrefix+id), data)
	}
	order, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	batch.Put([]byte(levelOrderKey), order)

	if err := g.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	return nil
}

func (g *LevelDBGateway) Ping(_ context.Context) error {
	_, err := g.db.Has([]byte(levelOrderKey), nil)
	return err
}

func (g *LevelDBGateway) Close() error {
	return g.db.Close()
}
