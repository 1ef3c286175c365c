package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/patchwatch/patchwatch/internal/models"
)

type sqliteChannelRepo struct {
	db *sql.DB
}

func (r *sqliteChannelRepo) Create(ctx context.Context, ch *models.NotificationChannel) error {
	query := `
		INSERT INTO notification_channels (id, name, kind, config_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		ch.ID, ch.Name, string(ch.Kind), string(ch.Config), ch.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (r *sqliteChannelRepo) GetByID(ctx context.Context, id string) (*models.NotificationChannel, error) {
	query := `SELECT id, name, kind, config_json, created_at FROM notification_channels WHERE id = ?`
	ch := &models.NotificationChannel{}
	var configJSON string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&ch.ID, &ch.Name, &ch.Kind, &configJSON, &ch.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	ch.Config = []byte(configJSON)
	return ch, nil
}

func (r *sqliteChannelRepo) List(ctx context.Context) ([]*models.NotificationChannel, error) {
	query := `SELECT id, name, kind, config_json, created_at FROM notification_channels ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.NotificationChannel
	for rows.Next() {
		ch := &models.NotificationChannel{}
		var configJSON string
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Kind, &configJSON, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		ch.Config = []byte(configJSON)
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (r *sqliteChannelRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM notification_channels WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete channel: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}
