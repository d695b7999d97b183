// Package store persists projects, columns and tasks in SQLite for the
// development backend.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/waldo1234567/task-management/domain"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
// Use ":memory:" for throwaway instances.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	// SQLite benefits from a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS projects (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS columns (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	position   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	column_id   TEXT REFERENCES columns(id) ON DELETE SET NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'TODO',
	assignee_id TEXT NOT NULL DEFAULT '',
	due_date    TIMESTAMP,
	priority    INTEGER NOT NULL DEFAULT 3,
	position    INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
CREATE INDEX IF NOT EXISTS idx_tasks_column ON tasks(column_id, position);
`)
	return err
}

// defaultColumns seeds every new project with the standard lanes.
var defaultColumns = []string{"To Do", "In Progress", "Done", "Blocked"}

// CreateProject creates a project and its default columns.
func (s *Store) CreateProject(ctx context.Context, name, description string) (domain.Project, error) {
	p := domain.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO projects (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.CreatedAt,
	); err != nil {
		return domain.Project{}, err
	}
	for i, name := range defaultColumns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO columns (id, project_id, name, position) VALUES (?, ?, ?, ?)`,
			uuid.NewString(), p.ID, name, i,
		); err != nil {
			return domain.Project{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// Projects lists all projects, newest first.
func (s *Store) Projects(ctx context.Context) ([]domain.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ColumnsByProject lists a project's columns in render order.
func (s *Store) ColumnsByProject(ctx context.Context, projectID string) ([]domain.Column, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, position FROM columns WHERE project_id = ? ORDER BY position, id`,
		projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Column
	for rows.Next() {
		var c domain.Column
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.PositionIndex); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const taskColumns = `id, project_id, COALESCE(column_id, ''), title, description, status, assignee_id, due_date, priority, position, created_at, updated_at`

func scanTask(sc interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var due sql.NullTime
	var pos int
	err := sc.Scan(&t.ID, &t.ProjectID, &t.ColumnID, &t.Title, &t.Description,
		&t.Status, &t.AssigneeID, &due, &t.Priority, &pos, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	if due.Valid {
		d := due.Time
		t.DueDate = &d
	}
	return t, nil
}

// Task fetches one task.
func (s *Store) Task(ctx context.Context, id string) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	return t, err
}

// Tasks lists every task.
func (s *Store) Tasks(ctx context.Context) ([]domain.Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC`)
}

// TasksByProject lists a project's tasks in column/position order.
func (s *Store) TasksByProject(ctx context.Context, projectID string) ([]domain.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE project_id = ? ORDER BY column_id, position`, projectID)
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateTask inserts a task, appending it to its column when one is set.
func (s *Store) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	t.ID = uuid.NewString()
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Status == "" {
		t.Status = domain.StatusTodo
	}
	if t.Priority == 0 {
		t.Priority = 3
	}
	pos := 0
	if t.ColumnID != "" {
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM tasks WHERE column_id = ?`, t.ColumnID).Scan(&pos); err != nil {
			return domain.Task{}, err
		}
	}
	var due any
	if t.DueDate != nil {
		due = *t.DueDate
	}
	var colID any
	if t.ColumnID != "" {
		colID = t.ColumnID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, project_id, column_id, title, description, status, assignee_id, due_date, priority, position, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, colID, t.Title, t.Description, t.Status, t.AssigneeID, due, t.Priority, pos, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdate carries partial fields for UpdateTask. Nil pointers leave the
// field unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *domain.Status
	AssigneeID  *string
	DueDate     *time.Time
	Priority    *int
}

// UpdateTask applies a partial update and returns the updated task.
func (s *Store) UpdateTask(ctx context.Context, id string, upd TaskUpdate) (domain.Task, error) {
	t, err := s.Task(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.AssigneeID != nil {
		t.AssigneeID = *upd.AssigneeID
	}
	if upd.DueDate != nil {
		t.DueDate = upd.DueDate
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	t.UpdatedAt = time.Now().UTC()
	var due any
	if t.DueDate != nil {
		due = *t.DueDate
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, status = ?, assignee_id = ?, due_date = ?, priority = ?, updated_at = ?
		 WHERE id = ?`,
		t.Title, t.Description, t.Status, t.AssigneeID, due, t.Priority, t.UpdatedAt, t.ID)
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// MoveTask relocates a task to a column and position within one transaction.
// A negative position appends to the target column.
func (s *Store) MoveTask(ctx context.Context, id, toColumnID string, newPosition int) (domain.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, err
	}
	if toColumnID == "" {
		toColumnID = t.ColumnID
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE column_id = ? AND id != ?`, toColumnID, id).Scan(&count); err != nil {
		return domain.Task{}, err
	}
	if newPosition < 0 || newPosition > count {
		newPosition = count
	}

	// Close the gap in the source column, then open one in the target.
	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET position = position - 1 WHERE column_id = ? AND position > (SELECT position FROM tasks WHERE id = ?)`,
		t.ColumnID, id); err != nil {
		return domain.Task{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET position = position + 1 WHERE column_id = ? AND position >= ? AND id != ?`,
		toColumnID, newPosition, id); err != nil {
		return domain.Task{}, err
	}
	t.ColumnID = toColumnID
	t.UpdatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET column_id = ?, position = ?, updated_at = ? WHERE id = ?`,
		toColumnID, newPosition, t.UpdatedAt, id); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Board assembles the ordered column/task grouping for a project.
func (s *Store) Board(ctx context.Context, projectID string) (*domain.Board, error) {
	cols, err := s.ColumnsByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, ErrNotFound
	}
	tasks, err := s.TasksByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	byColumn := make(map[string][]domain.Task, len(cols))
	for _, t := range tasks {
		byColumn[t.ColumnID] = append(byColumn[t.ColumnID], t)
	}
	b := &domain.Board{ProjectID: projectID, Columns: make([]domain.BoardColumn, 0, len(cols))}
	for _, c := range cols {
		b.Columns = append(b.Columns, domain.BoardColumn{Column: c, Tasks: byColumn[c.ID]})
	}
	return b, nil
}
