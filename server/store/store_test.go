package store

import (
	"context"
	"testing"

	"github.com/waldo1234567/task-management/domain"
)

func newTestStore(t *testing.T) (*Store, domain.Project) {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	p, err := s.CreateProject(context.Background(), "Test", "test project")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return s, p
}

func TestCreateProjectSeedsDefaultColumns(t *testing.T) {
	s, p := newTestStore(t)
	cols, err := s.ColumnsByProject(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("columns: %v", err)
	}
	if len(cols) != 4 {
		t.Fatalf("expected 4 default columns, got %d", len(cols))
	}
	for i, c := range cols {
		if c.PositionIndex != i {
			t.Fatalf("column %s has position %d, want %d", c.Name, c.PositionIndex, i)
		}
	}
}

func TestCreateTaskAppendsToColumn(t *testing.T) {
	s, p := newTestStore(t)
	ctx := context.Background()
	cols, _ := s.ColumnsByProject(ctx, p.ID)

	t1, err := s.CreateTask(ctx, domain.Task{ProjectID: p.ID, ColumnID: cols[0].ID, Title: "first"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if t1.Priority != 3 {
		t.Fatalf("expected default priority 3, got %d", t1.Priority)
	}
	if t1.Status != domain.StatusTodo {
		t.Fatalf("expected default status TODO, got %s", t1.Status)
	}
	if _, err := s.CreateTask(ctx, domain.Task{ProjectID: p.ID, ColumnID: cols[0].ID, Title: "second"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	b, err := s.Board(ctx, p.ID)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if got := len(b.Columns[0].Tasks); got != 2 {
		t.Fatalf("expected 2 tasks in first column, got %d", got)
	}
	if b.Columns[0].Tasks[0].Title != "first" || b.Columns[0].Tasks[1].Title != "second" {
		t.Fatal("tasks not in append order")
	}
}

func TestMoveTaskAcrossColumns(t *testing.T) {
	s, p := newTestStore(t)
	ctx := context.Background()
	cols, _ := s.ColumnsByProject(ctx, p.ID)

	t1, _ := s.CreateTask(ctx, domain.Task{ProjectID: p.ID, ColumnID: cols[0].ID, Title: "a"})
	t2, _ := s.CreateTask(ctx, domain.Task{ProjectID: p.ID, ColumnID: cols[0].ID, Title: "b"})
	t3, _ := s.CreateTask(ctx, domain.Task{ProjectID: p.ID, ColumnID: cols[1].ID, Title: "c"})

	// Append semantics when position is negative.
	moved, err := s.MoveTask(ctx, t1.ID, cols[1].ID, -1)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.ColumnID != cols[1].ID {
		t.Fatalf("expected column %s, got %s", cols[1].ID, moved.ColumnID)
	}

	b, _ := s.Board(ctx, p.ID)
	if got := b.Columns[1].Tasks; len(got) != 2 || got[0].ID != t3.ID || got[1].ID != t1.ID {
		t.Fatalf("unexpected target column order: %+v", ids(got))
	}
	if got := b.Columns[0].Tasks; len(got) != 1 || got[0].ID != t2.ID {
		t.Fatalf("unexpected source column: %+v", ids(got))
	}

	// Insert at the head shifts existing tasks down.
	if _, err := s.MoveTask(ctx, t2.ID, cols[1].ID, 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	b, _ = s.Board(ctx, p.ID)
	if got := ids(b.Columns[1].Tasks); len(got) != 3 || got[0] != t2.ID {
		t.Fatalf("expected %s first, got %+v", t2.ID, got)
	}
}

func TestMoveTaskUnknownID(t *testing.T) {
	s, p := newTestStore(t)
	cols, _ := s.ColumnsByProject(context.Background(), p.ID)
	if _, err := s.MoveTask(context.Background(), "missing", cols[0].ID, -1); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateTaskPartial(t *testing.T) {
	s, p := newTestStore(t)
	ctx := context.Background()
	created, _ := s.CreateTask(ctx, domain.Task{ProjectID: p.ID, Title: "a", Description: "keep me"})

	title := "renamed"
	status := domain.StatusBlocked
	upd, err := s.UpdateTask(ctx, created.ID, TaskUpdate{Title: &title, Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.Title != "renamed" || upd.Status != domain.StatusBlocked {
		t.Fatalf("update not applied: %+v", upd)
	}
	if upd.Description != "keep me" {
		t.Fatalf("untouched field changed: %q", upd.Description)
	}
}

func TestDeleteTask(t *testing.T) {
	s, p := newTestStore(t)
	ctx := context.Background()
	created, _ := s.CreateTask(ctx, domain.Task{ProjectID: p.ID, Title: "a"})

	if err := s.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteTask(ctx, created.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestBoardUnknownProject(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Board(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func ids(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
