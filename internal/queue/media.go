package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MediaByHash looks up a relocated asset by content hash. A nil result means
// the asset has never been relocated.
func (s *Store) MediaByHash(ctx context.Context, contentHash string) (*MediaMapping, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, content_hash, origin_url, relocated_url, byte_size, mime_type, reference_count, created_at
         FROM media_mappings WHERE content_hash = ?`,
		contentHash,
	)
	mapping, err := scanMediaMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load media mapping: %w", err)
	}
	return mapping, nil
}

// RecordMedia stores a relocated asset keyed by content hash. When the hash
// already exists the stored row wins and its reference count is bumped, so a
// losing racer observes the winner's relocated URL.
func (s *Store) RecordMedia(ctx context.Context, mapping *MediaMapping) (*MediaMapping, error) {
	if mapping == nil {
		return nil, errors.New("media mapping is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO media_mappings (content_hash, origin_url, relocated_url, byte_size, mime_type, reference_count, created_at)
         VALUES (?, ?, ?, ?, ?, 1, ?)
         ON CONFLICT(content_hash) DO UPDATE SET
             reference_count = reference_count + 1`,
		mapping.ContentHash,
		mapping.OriginURL,
		mapping.RelocatedURL,
		mapping.ByteSize,
		nullableString(mapping.MimeType),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("record media mapping: %w", err)
	}
	return s.MediaByHash(ctx, mapping.ContentHash)
}

// TouchMedia bumps the reference count of an existing mapping. Used when a
// cached asset is reused without a fresh upload.
func (s *Store) TouchMedia(ctx context.Context, contentHash string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE media_mappings SET reference_count = reference_count + 1 WHERE content_hash = ?`,
		contentHash,
	)
	if err != nil {
		return fmt.Errorf("touch media mapping: %w", err)
	}
	return nil
}

// MediaStats reports the number of relocated assets and their total stored
// bytes.
func (s *Store) MediaStats(ctx context.Context) (count int64, bytes int64, err error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*), COALESCE(SUM(byte_size), 0) FROM media_mappings`,
	)
	if err := row.Scan(&count, &bytes); err != nil {
		return 0, 0, fmt.Errorf("media stats: %w", err)
	}
	return count, bytes, nil
}

func scanMediaMapping(row rowScanner) (*MediaMapping, error) {
	var (
		mapping   MediaMapping
		mimeType  sql.NullString
		createdAt string
	)
	if err := row.Scan(
		&mapping.ID,
		&mapping.ContentHash,
		&mapping.OriginURL,
		&mapping.RelocatedURL,
		&mapping.ByteSize,
		&mimeType,
		&mapping.ReferenceCount,
		&createdAt,
	); err != nil {
		return nil, err
	}
	mapping.MimeType = mimeType.String
	if t, err := parseTimeString(createdAt); err == nil {
		mapping.CreatedAt = t
	}
	return &mapping, nil
}
