package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertSyncConfig inserts or updates the sync configuration for a
// platform/document pair and returns the stored row.
func (s *Store) UpsertSyncConfig(ctx context.Context, cfg *SyncConfig) (*SyncConfig, error) {
	if cfg == nil {
		return nil, errors.New("sync config is nil")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sync_configs (platform, document_id, direction, enabled, notion_parent_id, category, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(platform, document_id) DO UPDATE SET
             direction = excluded.direction,
             enabled = excluded.enabled,
             notion_parent_id = excluded.notion_parent_id,
             category = excluded.category,
             updated_at = excluded.updated_at`,
		cfg.Platform,
		cfg.DocumentID,
		cfg.Direction,
		cfg.Enabled,
		nullableString(cfg.NotionParentID),
		nullableString(cfg.Category),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert sync config: %w", err)
	}
	return s.ConfigFor(ctx, cfg.Platform, cfg.DocumentID)
}

// ConfigFor returns the sync configuration for a document, or nil when the
// document has never been configured.
func (s *Store) ConfigFor(ctx context.Context, platform Platform, documentID string) (*SyncConfig, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+syncConfigColumns+` FROM sync_configs WHERE platform = ? AND document_id = ?`,
		platform,
		documentID,
	)
	cfg, err := scanSyncConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sync config: %w", err)
	}
	return cfg, nil
}

// ListEnabledConfigs returns all configurations with automatic sync enabled.
func (s *Store) ListEnabledConfigs(ctx context.Context) ([]*SyncConfig, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+syncConfigColumns+` FROM sync_configs WHERE enabled = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sync configs: %w", err)
	}
	defer rows.Close()

	var configs []*SyncConfig
	for rows.Next() {
		cfg, err := scanSyncConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// SetLastSynced records the moment a document's sync completed. The timestamp
// feeds the conflict heuristic on later change events.
func (s *Store) SetLastSynced(ctx context.Context, platform Platform, documentID string, at time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE sync_configs SET last_synced_at = ?, updated_at = ?
         WHERE platform = ? AND document_id = ?`,
		at.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		platform,
		documentID,
	)
	if err != nil {
		return fmt.Errorf("set last synced: %w", err)
	}
	return nil
}

const syncConfigColumns = `id, platform, document_id, direction, enabled,
    notion_parent_id, category, last_synced_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncConfig(row rowScanner) (*SyncConfig, error) {
	var (
		cfg        SyncConfig
		parentID   sql.NullString
		category   sql.NullString
		lastSynced sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(
		&cfg.ID,
		&cfg.Platform,
		&cfg.DocumentID,
		&cfg.Direction,
		&cfg.Enabled,
		&parentID,
		&category,
		&lastSynced,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	cfg.NotionParentID = parentID.String
	cfg.Category = category.String
	if lastSynced.Valid {
		if t, err := parseTimeString(lastSynced.String); err == nil {
			cfg.LastSyncedAt = &t
		}
	}
	if t, err := parseTimeString(createdAt); err == nil {
		cfg.CreatedAt = t
	}
	if t, err := parseTimeString(updatedAt); err == nil {
		cfg.UpdatedAt = t
	}
	return &cfg, nil
}
