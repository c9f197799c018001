package push

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRegistry keeps device tokens in user_devices and permission state
// in push_permissions.
type PostgresRegistry struct {
	db *sql.DB
}

func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// Register upserts a device token; a token moving to another account is
// reassigned.
func (r *PostgresRegistry) Register(ctx context.Context, userID, token, userAgent string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_devices (user_id, device_token, user_agent, last_used)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (device_token)
		DO UPDATE SET user_id = EXCLUDED.user_id, user_agent = EXCLUDED.user_agent, last_used = NOW()`,
		userID, token, userAgent)
	return err
}

func (r *PostgresRegistry) Revoke(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_devices WHERE user_id = $1`, userID)
	return err
}

func (r *PostgresRegistry) SetPermission(ctx context.Context, userID string, p Permission) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO push_permissions (user_id, state, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()`,
		userID, string(p))
	return err
}

func (r *PostgresRegistry) Permission(ctx context.Context, userID string) (Permission, error) {
	var state string
	err := r.db.QueryRowContext(ctx, `SELECT state FROM push_permissions WHERE user_id = $1`, userID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return Default, nil
	}
	if err != nil {
		return Default, err
	}
	switch Permission(state) {
	case Granted, Denied:
		return Permission(state), nil
	}
	return Default, nil
}

func (r *PostgresRegistry) Tokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_token FROM user_devices WHERE user_id = $1 ORDER BY last_used DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
