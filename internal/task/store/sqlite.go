package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "github.com/coderclaw/coderclaw/internal/common/errors"
	"github.com/coderclaw/coderclaw/internal/task/models"
	v1 "github.com/coderclaw/coderclaw/pkg/api/v1"
)

// SQLiteStore provides SQLite-based task storage operations.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed task store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, apperrors.StorageUnavailable("failed to open database", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.StorageUnavailable("failed to initialize schema", err)
	}

	return s, nil
}

// initSchema creates the database tables if they don't exist.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		description TEXT DEFAULT '',
		agent_role TEXT DEFAULT '',
		session_id TEXT DEFAULT '',
		parent_id TEXT DEFAULT '',
		output TEXT,
		error TEXT,
		progress INTEGER,
		metadata TEXT,
		created_at DATETIME NOT NULL,
		started_at DATETIME,
		completed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS task_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		old_status TEXT,
		new_status TEXT,
		data TEXT,
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_session ON tasks(session_id);
	CREATE INDEX IF NOT EXISTS idx_task_events_task ON task_events(task_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save stores the task record, replacing any previous record with the same id.
func (s *SQLiteStore) Save(ctx context.Context, task *models.Task) error {
	metadata, err := marshalJSON(task.Metadata)
	if err != nil {
		return apperrors.StorageUnavailable("failed to encode task metadata", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, status, description, agent_role, session_id, parent_id,
			output, error, progress, metadata, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			description = excluded.description,
			agent_role = excluded.agent_role,
			session_id = excluded.session_id,
			parent_id = excluded.parent_id,
			output = excluded.output,
			error = excluded.error,
			progress = excluded.progress,
			metadata = excluded.metadata,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		task.ID, string(task.Status), task.Description, task.AgentRole, task.SessionID,
		task.ParentID, task.Output, task.Error, task.Progress, metadata,
		task.CreatedAt, task.StartedAt, task.CompletedAt)
	if err != nil {
		return apperrors.StorageUnavailable("failed to save task", err)
	}
	return nil
}

// Load retrieves a task by id, or nil if the id is unknown.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, description, agent_role, session_id, parent_id,
			output, error, progress, metadata, created_at, started_at, completed_at
		FROM tasks WHERE id = ?`, id)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.StorageUnavailable("failed to load task", err)
	}
	return task, nil
}

// List returns every task matching the filter.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*models.Task, error) {
	query := `
		SELECT id, status, description, agent_role, session_id, parent_id,
			output, error, progress, metadata, created_at, started_at, completed_at
		FROM tasks WHERE 1=1`
	var args []interface{}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.StorageUnavailable("failed to list tasks", err)
	}
	defer rows.Close()

	var result []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, apperrors.StorageUnavailable("failed to scan task", err)
		}
		result = append(result, task)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StorageUnavailable("failed to list tasks", err)
	}
	return result, nil
}

// Delete removes the task record and its event journal in one transaction.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.StorageUnavailable("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_events WHERE task_id = ?`, id); err != nil {
		return apperrors.StorageUnavailable("failed to delete task events", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return apperrors.StorageUnavailable("failed to delete task", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.StorageUnavailable("failed to commit delete", err)
	}
	return nil
}

// SaveEvent appends an event to the task's journal.
func (s *SQLiteStore) SaveEvent(ctx context.Context, event *models.TaskEvent) error {
	data, err := marshalJSON(event.Data)
	if err != nil {
		return apperrors.StorageUnavailable("failed to encode event data", err)
	}

	var oldStatus, newStatus *string
	if event.OldStatus != nil {
		v := string(*event.OldStatus)
		oldStatus = &v
	}
	if event.NewStatus != nil {
		v := string(*event.NewStatus)
		newStatus = &v
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_events (task_id, kind, timestamp, old_status, new_status, data)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.TaskID, string(event.Kind), event.Timestamp, oldStatus, newStatus, data)
	if err != nil {
		return apperrors.StorageUnavailable("failed to save event", err)
	}
	return nil
}

// GetEvents returns the task's journal in insertion order.
func (s *SQLiteStore) GetEvents(ctx context.Context, taskID string) ([]*models.TaskEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, kind, timestamp, old_status, new_status, data
		FROM task_events WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, apperrors.StorageUnavailable("failed to get events", err)
	}
	defer rows.Close()

	var result []*models.TaskEvent
	for rows.Next() {
		var (
			event     models.TaskEvent
			kind      string
			oldStatus sql.NullString
			newStatus sql.NullString
			data      sql.NullString
			timestamp time.Time
		)
		if err := rows.Scan(&event.TaskID, &kind, &timestamp, &oldStatus, &newStatus, &data); err != nil {
			return nil, apperrors.StorageUnavailable("failed to scan event", err)
		}
		event.Kind = v1.TaskEventKind(kind)
		event.Timestamp = timestamp
		if oldStatus.Valid {
			st := v1.TaskStatus(oldStatus.String)
			event.OldStatus = &st
		}
		if newStatus.Valid {
			st := v1.TaskStatus(newStatus.String)
			event.NewStatus = &st
		}
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &event.Data); err != nil {
				return nil, apperrors.StorageUnavailable("failed to decode event data", err)
			}
		}
		result = append(result, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StorageUnavailable("failed to get events", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		task     models.Task
		status   string
		metadata sql.NullString
	)
	err := row.Scan(&task.ID, &status, &task.Description, &task.AgentRole,
		&task.SessionID, &task.ParentID, &task.Output, &task.Error, &task.Progress,
		&metadata, &task.CreatedAt, &task.StartedAt, &task.CompletedAt)
	if err != nil {
		return nil, err
	}
	task.Status = v1.TaskStatus(status)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &task.Metadata); err != nil {
			return nil, err
		}
	}
	return &task, nil
}

func marshalJSON(m map[string]interface{}) (*string, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}
