package domain

import (
	"strings"
	"time"
)

// Status is the workflow state of a task. Canonical values are uppercase.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "INPROGRESS"
	StatusDone       Status = "DONE"
	StatusBlocked    Status = "BLOCKED"
)

// Statuses lists the canonical statuses in board order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone, StatusBlocked}

// NormalizeStatus maps case-insensitive input to the canonical uppercase form.
// Unknown values are uppercased as-is so the backend can reject them.
func NormalizeStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "todo":
		return StatusTodo
	case "inprogress":
		return StatusInProgress
	case "done":
		return StatusDone
	case "blocked":
		return StatusBlocked
	}
	return Status(strings.ToUpper(strings.TrimSpace(s)))
}

// Valid reports whether the status is one of the canonical values.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone, StatusBlocked:
		return true
	}
	return false
}

// Task represents a single board item.
type Task struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"projectId"`
	ColumnID    string     `json:"columnId,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	AssigneeID  string     `json:"assigneeId,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    int        `json:"priority"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Column is a named, ordered lane on a project board.
type Column struct {
	ID            string `json:"id"`
	ProjectID     string `json:"projectId"`
	Name          string `json:"name"`
	PositionIndex int    `json:"positionIndex"`
}

// BoardColumn pairs a column with its tasks in render order.
type BoardColumn struct {
	Column Column `json:"column"`
	Tasks  []Task `json:"tasks"`
}

// Board is the full column/task grouping for one project.
type Board struct {
	ProjectID string        `json:"projectId"`
	Columns   []BoardColumn `json:"columns"`
}

// Clone returns a deep copy. Used to hand out snapshots that callers may not
// mutate through, and to capture rollback points before optimistic updates.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	out := &Board{ProjectID: b.ProjectID, Columns: make([]BoardColumn, len(b.Columns))}
	for i, col := range b.Columns {
		out.Columns[i] = BoardColumn{Column: col.Column, Tasks: append([]Task(nil), col.Tasks...)}
	}
	return out
}

// FindTask returns the column index and task index of a task, or (-1, -1).
func (b *Board) FindTask(taskID string) (int, int) {
	for ci := range b.Columns {
		for ti := range b.Columns[ci].Tasks {
			if b.Columns[ci].Tasks[ti].ID == taskID {
				return ci, ti
			}
		}
	}
	return -1, -1
}

// Project groups tasks and a board. Read-mostly on the client.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Member is one collaborator currently present in a project view.
type Member struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

// Point is a single coordinate of a stroke.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one freehand drawing gesture. Ephemeral: relayed to connected
// peers, never persisted.
type Stroke struct {
	Color     string  `json:"color"`
	Thickness float64 `json:"thickness"`
	Points    []Point `json:"points"`
}
