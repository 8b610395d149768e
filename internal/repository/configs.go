package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// SystemConfig reads a system_configs value. found is false when the key is absent or null.
func (r *Repository) SystemConfig(ctx context.Context, key string) (string, bool, error) {
	var v sql.NullString
	err := r.q.QueryRowContext(ctx, `SELECT config_value FROM system_configs WHERE config_key = $1 LIMIT 1`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read system config %s: %w", key, err)
	}
	return v.String, v.Valid, nil
}

// SetSystemConfig upserts a system_configs value. The table is a master table and carries no audit columns.
func (r *Repository) SetSystemConfig(ctx context.Context, key, value string) error {
	n, err := r.Update(ctx, "system_configs", Row{"config_key": key}, Row{"config_value": value})
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return r.Insert(ctx, "system_configs", Row{"config_key": key, "config_value": value})
}
