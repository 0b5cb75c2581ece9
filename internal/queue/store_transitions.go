package queue

import (
	"context"
	"fmt"
	"time"
)

// ClaimPending atomically transitions up to limit pending, due tasks to
// processing and returns them in FIFO order. Each claim is a compare-and-swap
// on the row's status, so two concurrent claimants never both take the same
// task: the guarded UPDATE affects zero rows for the loser.
func (s *Store) ClaimPending(ctx context.Context, limit int, now time.Time) ([]*Task, error) {
	if limit <= 0 {
		return nil, nil
	}
	nowStr := now.UTC().Format(time.RFC3339Nano)

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id FROM sync_tasks
         WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
         ORDER BY created_at, id
         LIMIT ?`,
		StatusPending,
		nowStr,
		limit*2,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending tasks: %w", err)
	}
	var candidates []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	claimed := make([]*Task, 0, limit)
	for _, id := range candidates {
		if len(claimed) >= limit {
			break
		}
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE sync_tasks
             SET status = ?, attempt_count = attempt_count + 1,
                 last_attempt_at = ?, error_message = NULL, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusProcessing,
			nowStr,
			nowStr,
			id,
			StatusPending,
		)
		if err != nil {
			return claimed, fmt.Errorf("claim task %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return claimed, fmt.Errorf("claim rows affected: %w", err)
		}
		if affected == 0 {
			continue
		}
		task, err := s.GetByID(ctx, id)
		if err != nil {
			return claimed, err
		}
		if task != nil {
			claimed = append(claimed, task)
		}
	}
	return claimed, nil
}

// MarkSuccess completes a processing task, persisting the target id and any
// partial-failure note.
func (s *Store) MarkSuccess(ctx context.Context, id int64, targetID, title, partialNote string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE sync_tasks
         SET status = ?, target_id = ?, document_title = COALESCE(NULLIF(?, ''), document_title),
             error_message = ?, next_attempt_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusSuccess,
		nullableString(targetID),
		title,
		nullableString(partialNote),
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark success: %w", err)
	}
	return nil
}

// MarkRetry returns a processing task to pending with a backoff delay.
func (s *Store) MarkRetry(ctx context.Context, id int64, message string, backoff time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE sync_tasks
         SET status = ?, error_message = ?, next_attempt_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending,
		nullableString(message),
		now.Add(backoff).Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark retry: %w", err)
	}
	return nil
}

// MarkFailed terminally fails a processing task.
func (s *Store) MarkFailed(ctx context.Context, id int64, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE sync_tasks
         SET status = ?, error_message = ?, next_attempt_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusFailed,
		nullableString(message),
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ResetForRetry moves a terminally failed task back to pending with its
// attempt budget restored. Only failed tasks are eligible; the returned flag
// reports whether a row was actually reset.
func (s *Store) ResetForRetry(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sync_tasks
         SET status = ?, attempt_count = 0, error_message = NULL,
             next_attempt_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending,
		now,
		id,
		StatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("reset for retry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset rows affected: %w", err)
	}
	return affected > 0, nil
}

// RetryFailed moves failed tasks back to pending for reprocessing. With no
// ids, all failed tasks are reset.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE sync_tasks
            SET status = ?, attempt_count = 0, error_message = NULL,
                next_attempt_at = NULL, updated_at = ?
            WHERE status = ?`,
			StatusPending,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed tasks: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, now)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE sync_tasks
        SET status = ?, attempt_count = 0, error_message = NULL,
            next_attempt_at = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected tasks: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckProcessing returns tasks abandoned in processing back to pending.
// Called at daemon startup so hard shutdowns surface as retryable failures.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sync_tasks
         SET status = ?, error_message = 'Interrupted by shutdown', next_attempt_at = NULL, updated_at = ?
         WHERE status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck tasks: %w", err)
	}
	return res.RowsAffected()
}
