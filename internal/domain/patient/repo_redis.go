package patient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisGateway stores records in the hash <prefix>:records (id -> fields
// JSON) and the collection order in the list <prefix>:order. Both keys are
// read and rewritten inside MULTI/EXEC.
type RedisGateway struct {
	client *redis.Client
	prefix string
}

func NewRedisGateway(client *redis.Client, prefix string) *RedisGateway {
	if prefix == "" {
		prefix = "pms"
	}
	return &RedisGateway{client: client, prefix: prefix}
}

func (g *RedisGateway) recordsKey() string { return g.prefix + ":records" }
func (g *RedisGateway) orderKey() string   { return g.prefix + ":order" }

func (g *RedisGateway) Load(ctx context.Context) (*Collection, error) {
	var orderCmd *redis.StringSliceCmd
	var recordsCmd *redis.MapStringStringCmd
	_, err := g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		orderCmd = pipe.LRange(ctx, g.orderKey(), 0, -1)
		recordsCmd = pipe.HGetAll(ctx, g.recordsKey())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis load: %w", err)
	}

	records := recordsCmd.Val()
	c := NewCollection()
	for _, id := range orderCmd.Val() {
		data, ok := records[id]
		if !ok {
			return nil, fmt.Errorf("patient %s listed in order but missing from %s", id, g.recordsKey())
		}
		var f Fields
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			return nil, fmt.Errorf("decode patient %s: %w", id, err)
		}
		c.Put(id, f)
	}
	return c, nil
}

func (g *RedisGateway) Save(ctx context.Context, c *Collection) error {
	ids := c.IDs()
	order := make([]interface{}, 0, len(ids))
	fields := make([]interface{}, 0, 2*len(ids))
	for _, id := range ids {
		f, _ := c.Lookup(id)
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("encode patient %s: %w", id, err)
		}
		order = append(order, id)
		fields = append(fields, id, string(data))
	}

	_, err := g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, g.recordsKey(), g.orderKey())
		if len(ids) > 0 {
			pipe.RPush(ctx, g.orderKey(), order...)
			pipe.HSet(ctx, g.recordsKey(), fields...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

func (g *RedisGateway) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

func (g *RedisGateway) Close() error {
	return g.client.Close()
}
