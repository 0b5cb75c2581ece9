package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"docbridge/internal/config"
)

// Store manages task persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the task database and verifies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "docbridge.db")
	// The pragmas below are per-connection; passing them in the DSN makes
	// every connection in the database/sql pool apply them, not just the one
	// the Exec loop happens to run on.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// NewTask inserts a pending sync task and assigns its human-readable number.
func (s *Store) NewTask(ctx context.Context, task *Task) (*Task, error) {
	if task == nil {
		return nil, errors.New("task is nil")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	if task.Status == "" {
		task.Status = StatusPending
	}
	if task.ContentType == "" {
		task.ContentType = ContentDocument
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sync_tasks (
            source_platform, target_platform, source_id, target_id, content_type,
            document_title, status, attempt_count, max_attempts, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.SourcePlatform,
		task.TargetPlatform,
		task.SourceID,
		nullableString(task.TargetID),
		task.ContentType,
		nullableString(task.DocumentTitle),
		task.Status,
		task.AttemptCount,
		task.MaxAttempts,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	number := fmt.Sprintf("SYNC-%s-%04d", now.Format("20060102"), id)
	if _, err := s.db.ExecContext(ctx, `UPDATE sync_tasks SET task_number = ? WHERE id = ?`, number, id); err != nil {
		return nil, fmt.Errorf("assign task number: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a task by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM sync_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// FindBySource returns the newest task matching a source platform and document id.
func (s *Store) FindBySource(ctx context.Context, platform Platform, sourceID string) (*Task, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM sync_tasks WHERE source_platform = ? AND source_id = ? ORDER BY created_at DESC LIMIT 1`,
		platform,
		sourceID,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by source: %w", err)
	}
	return task, nil
}

// Update persists changes to an existing task.
func (s *Store) Update(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	task.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE sync_tasks
         SET source_platform = ?, target_platform = ?, source_id = ?, target_id = ?,
             content_type = ?, document_title = ?, status = ?, attempt_count = ?,
             max_attempts = ?, error_message = ?, last_attempt_at = ?, next_attempt_at = ?,
             updated_at = ?
         WHERE id = ?`,
		task.SourcePlatform,
		task.TargetPlatform,
		task.SourceID,
		nullableString(task.TargetID),
		task.ContentType,
		nullableString(task.DocumentTitle),
		task.Status,
		task.AttemptCount,
		task.MaxAttempts,
		nullableString(task.ErrorMessage),
		nullableTime(task.LastAttemptAt),
		nullableTime(task.NextAttemptAt),
		task.UpdatedAt.Format(time.RFC3339Nano),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// List returns tasks filtered by status set (or all tasks when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + taskColumns + ` FROM sync_tasks`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM sync_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates task state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusProcessing:
			health.Processing += count
		case StatusSuccess:
			health.Success += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// Remove deletes a task by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearSuccess removes only successful tasks.
func (s *Store) ClearSuccess(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_tasks WHERE status = ?`, StatusSuccess)
	if err != nil {
		return 0, fmt.Errorf("clear success: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all tasks.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_tasks`)
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	return res.RowsAffected()
}

const taskColumns = "id, task_number, source_platform, target_platform, source_id, target_id, content_type, document_title, status, attempt_count, max_attempts, error_message, last_attempt_at, next_attempt_at, created_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id            int64
		taskNumber    sql.NullString
		sourcePlat    string
		targetPlat    string
		sourceID      string
		targetID      sql.NullString
		contentType   string
		documentTitle sql.NullString
		statusStr     string
		attemptCount  int
		maxAttempts   int
		errorMessage  sql.NullString
		lastAttemptAt sql.NullString
		nextAttemptAt sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&taskNumber,
		&sourcePlat,
		&targetPlat,
		&sourceID,
		&targetID,
		&contentType,
		&documentTitle,
		&statusStr,
		&attemptCount,
		&maxAttempts,
		&errorMessage,
		&lastAttemptAt,
		&nextAttemptAt,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:             id,
		TaskNumber:     taskNumber.String,
		SourcePlatform: Platform(sourcePlat),
		TargetPlatform: Platform(targetPlat),
		SourceID:       sourceID,
		TargetID:       targetID.String,
		ContentType:    ContentType(contentType),
		DocumentTitle:  documentTitle.String,
		Status:         Status(statusStr),
		AttemptCount:   attemptCount,
		MaxAttempts:    maxAttempts,
		ErrorMessage:   errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	if lastAttemptAt.Valid {
		if t, err := parseTimeString(lastAttemptAt.String); err == nil {
			task.LastAttemptAt = &t
		}
	}
	if nextAttemptAt.Valid {
		if t, err := parseTimeString(nextAttemptAt.String); err == nil {
			task.NextAttemptAt = &t
		}
	}
	return task, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
