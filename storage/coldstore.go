package storage

import (
	"github.com/marsleezm/spec-calvin/configs"
	"context"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ColdStore is the bounded-memory overflow tier named by the spec's
// COLD_CUTOFF/Unfetch contract: once a committed row's key is at or above
// configs.ColdCutoff, Storage persists it here instead of keeping it
// resident in the B-tree.
type ColdStore struct {
	ctx  context.Context
	pool *pgxpool.Pool
}

// NewColdStore connects to the cold tier. Failing to connect is not fatal:
// the scheduler degrades to keeping every row resident, which is correct,
// just not memory-bounded.
func NewColdStore() *ColdStore {
	c := &ColdStore{ctx: context.Background()}
	config, err := pgxpool.ParseConfig(configs.ColdStoreDSN)
	if err != nil {
		configs.Warn(false, "cold tier config invalid: "+err.Error())
		return c
	}
	pool, err := pgxpool.ConnectConfig(c.ctx, config)
	if err != nil {
		configs.Warn(false, "cold tier unreachable, rows will stay resident: "+err.Error())
		return c
	}
	c.pool = pool
	_, err = pool.Exec(c.ctx, `CREATE TABLE IF NOT EXISTS cold_rows (
		table_name text NOT NULL,
		row_key bigint NOT NULL,
		payload jsonb NOT NULL,
		PRIMARY KEY (table_name, row_key)
	)`)
	if err != nil {
		configs.Warn(false, "cold tier schema init failed: "+err.Error())
	}
	return c
}

func (c *ColdStore) Put(table string, key uint64, value *RowData) error {
	if c.pool == nil {
		return nil
	}
	payload, err := json.Marshal(value.Value)
	if err != nil {
		return err
	}
	_, err = c.pool.Exec(c.ctx,
		`INSERT INTO cold_rows (table_name, row_key, payload) VALUES ($1, $2, $3)
		 ON CONFLICT (table_name, row_key) DO UPDATE SET payload = EXCLUDED.payload`,
		table, key, payload)
	return err
}

func (c *ColdStore) Get(table string, key uint64) (*RowData, bool) {
	if c.pool == nil {
		return nil, false
	}
	row := c.pool.QueryRow(c.ctx, `SELECT payload FROM cold_rows WHERE table_name = $1 AND row_key = $2`, table, key)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		return nil, false
	}
	var values []interface{}
	if err := json.Unmarshal(payload, &values); err != nil {
		return nil, false
	}
	return &RowData{Length: uint(len(values)), Value: values}, true
}
