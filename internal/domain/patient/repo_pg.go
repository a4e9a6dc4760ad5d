package patient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGGateway persists the collection in the patients table, one row per
// record, with position preserving collection order. Save rewrites the table
// inside one transaction.
type PGGateway struct {
	pool *pgxpool.Pool
}

func NewPGGateway(pool *pgxpool.Pool) *PGGateway {
	return &PGGateway{pool: pool}
}

func (g *PGGateway) Load(ctx context.Context) (*Collection, error) {
	rows, err := g.pool.Query(ctx, `SELECT id, data FROM patients ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	c := NewCollection()
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		var f Fields
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode patient %s: %w", id, err)
		}
		c.Put(id, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return c, nil
}

func (g *PGGateway) Save(ctx context.Context, c *Collection) error {
	return pgx.BeginFunc(ctx, g.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM patients`); err != nil {
			return fmt.Errorf("clear patients: %w", err)
		}
		if c.Len() == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		var encodeErr error
		pos := 0
		c.Each(func(id string, f Fields) {
			data, err := json.Marshal(f)
			if err != nil && encodeErr == nil {
				encodeErr = fmt.Errorf("encode patient %s: %w", id, err)
			}
			batch.Queue(`INSERT INTO patients (id, position, data) VALUES ($1, $2, $3)`, id, pos, string(data))
			pos++
		})
		if encodeErr != nil {
			return encodeErr
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert patients: %w", err)
		}
		return nil
	})
}

func (g *PGGateway) Ping(ctx context.Context) error {
	return g.pool.Ping(ctx)
}

func (g *PGGateway) Close() error {
	g.pool.Close()
	return nil
}
