package repository

import (
	"context"
	"fmt"
	"time"

	"ride-pool-backend/internal/models"
)

// DeviceTokenRepository handles database operations for push tokens
type DeviceTokenRepository struct {
	db DB
}

// NewDeviceTokenRepository creates a new device token repository
func NewDeviceTokenRepository(db DB) *DeviceTokenRepository {
	return &DeviceTokenRepository{db: db}
}

// Register binds token to userID, taking it over from any previous owner
func (r *DeviceTokenRepository) Register(ctx context.Context, userID, token string) error {
	query := `
		INSERT INTO device_tokens (token, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id
	`
	if _, err := r.db.Exec(ctx, query, token, userID, time.Now()); err != nil {
		return fmt.Errorf("failed to register device token: %w", err)
	}
	return nil
}

// ListByUsers returns every token registered to any of userIDs
func (r *DeviceTokenRepository) ListByUsers(ctx context.Context, userIDs []string) ([]models.DeviceToken, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT token, user_id, created_at
		FROM device_tokens
		WHERE user_id = ANY($1)
	`
	rows, err := r.db.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []models.DeviceToken
	for rows.Next() {
		var t models.DeviceToken
		if err := rows.Scan(&t.Token, &t.UserID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device tokens: %w", err)
	}
	return tokens, nil
}

// Delete removes a token
func (r *DeviceTokenRepository) Delete(ctx context.Context, token string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM device_tokens WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to delete device token: %w", err)
	}
	return nil
}
