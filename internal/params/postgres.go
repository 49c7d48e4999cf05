package params

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const schema = `CREATE TABLE IF NOT EXISTS system_params (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres keeps parameters in the system_params table. The *sql.DB is
// expected to use the pgx stdlib driver.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the backing table when it is missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM system_params WHERE key=$1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	if err := validate(key, value); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO system_params (key, value, updated_at) VALUES ($1,$2,now())
        ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()`, key, value)
	return err
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM system_params WHERE key=$1`, key)
	return err
}

func (p *Postgres) List(ctx context.Context) ([]Param, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key, value, updated_at FROM system_params ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Param{}
	for rows.Next() {
		var pr Param
		var at time.Time
		if err := rows.Scan(&pr.Key, &pr.Value, &at); err != nil {
			return nil, err
		}
		pr.UpdatedAt = at.UTC()
		out = append(out, pr)
	}
	return out, rows.Err()
}
