// Package board holds the client's cached view of a project's columns and
// ordered tasks, applies optimistic local mutations, and reconciles against
// server-confirmed truth.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/waldo1234567/task-management/client/rest"
	"github.com/waldo1234567/task-management/domain"
)

// ErrProjectSwitched reports that a response arrived after the active project
// changed and was discarded rather than applied.
var ErrProjectSwitched = errors.New("board: active project switched")

// backend is the slice of the REST client the engine needs.
type backend interface {
	Board(ctx context.Context, projectID string) (*domain.Board, error)
	TasksByProject(ctx context.Context, projectID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, req rest.CreateTaskRequest) (domain.Task, error)
	UpdateTask(ctx context.Context, taskID string, req rest.UpdateTaskRequest) (domain.Task, error)
	MoveTask(ctx context.Context, taskID string, req rest.MoveTaskRequest) (domain.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
}

// Engine reconciles the cached board against server acknowledgements and
// push-delivered remote events. The server-authoritative column grouping is
// used when available; otherwise tasks are grouped by status.
type Engine struct {
	rest backend
	log  *log.Logger

	mu        sync.Mutex
	projectID string
	cached    *domain.Board
	stale     bool

	// onStale observes cache invalidation so a renderer can refresh.
	onStale func()
}

// NewEngine creates an Engine bound to a REST backend.
func NewEngine(client backend, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Engine{rest: client, log: logger}
}

// OnStale registers the invalidation observer. Called whenever the cache is
// marked stale; must not block.
func (e *Engine) OnStale(fn func()) {
	e.mu.Lock()
	e.onStale = fn
	e.mu.Unlock()
}

// SetProject switches the active project, dropping the previous cache.
// Responses still in flight for the previous project are discarded when they
// settle.
func (e *Engine) SetProject(projectID string) {
	e.mu.Lock()
	if e.projectID != projectID {
		e.projectID = projectID
		e.cached = nil
		e.stale = false
	}
	e.mu.Unlock()
}

// Invalidate marks the cached board stale. Triggered by task push events and
// by settlement of local mutations.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.stale = true
	fn := e.onStale
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Snapshot returns a copy of the cached board, and whether one is cached.
func (e *Engine) Snapshot() (*domain.Board, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cached == nil {
		return nil, false
	}
	return e.cached.Clone(), true
}

// LoadBoard returns the current board, fetching from the backend when the
// cache is empty or stale. Fetch errors surface to the caller; the cache is
// left untouched so a renderer can show an error state without crashing.
func (e *Engine) LoadBoard(ctx context.Context) (*domain.Board, error) {
	e.mu.Lock()
	pid := e.projectID
	if e.cached != nil && !e.stale {
		b := e.cached.Clone()
		e.mu.Unlock()
		return b, nil
	}
	e.mu.Unlock()
	if pid == "" {
		return nil, errors.New("board: no active project")
	}

	b, err := e.fetch(ctx, pid)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.projectID != pid {
		// Stale response from before a project switch.
		return nil, ErrProjectSwitched
	}
	e.cached = b
	e.stale = false
	return b.Clone(), nil
}

// fetch prefers the server-authoritative board grouping and falls back to
// grouping the project's tasks by status when none is available.
func (e *Engine) fetch(ctx context.Context, projectID string) (*domain.Board, error) {
	b, err := e.rest.Board(ctx, projectID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, rest.ErrNoBoard) {
		return nil, fmt.Errorf("fetch board: %w", err)
	}
	tasks, err := e.rest.TasksByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}
	return GroupByStatus(projectID, tasks), nil
}

// GroupByStatus builds a board from a task list using the fixed status lanes.
// Used when no board-group structure is available for the project.
func GroupByStatus(projectID string, tasks []domain.Task) *domain.Board {
	b := &domain.Board{ProjectID: projectID}
	for i, s := range domain.Statuses {
		col := domain.BoardColumn{Column: domain.Column{
			ID:            string(s),
			ProjectID:     projectID,
			Name:          string(s),
			PositionIndex: i,
		}}
		for _, t := range tasks {
			if domain.NormalizeStatus(string(t.Status)) == s {
				col.Tasks = append(col.Tasks, t)
			}
		}
		b.Columns = append(b.Columns, col)
	}
	return b
}

// MoveTask moves a task with optimistic-then-confirm semantics: the cached
// board mutates before the request is issued, a failed request restores the
// exact pre-mutation snapshot, and either outcome marks the cache stale so
// the next load reconciles against the authoritative source. Failures are
// reported to the caller exactly once and never retried automatically.
func (e *Engine) MoveTask(ctx context.Context, taskID, toColumnID string, newPosition *int) error {
	e.mu.Lock()
	pid := e.projectID
	snapshot := e.cached.Clone()
	if e.cached != nil {
		applyMove(e.cached, taskID, toColumnID, newPosition)
	}
	e.mu.Unlock()

	_, err := e.rest.MoveTask(ctx, taskID, rest.MoveTaskRequest{
		ToColumnID:  toColumnID,
		NewPosition: newPosition,
	})

	e.mu.Lock()
	switched := e.projectID != pid
	if !switched {
		if err != nil {
			e.cached = snapshot
		}
		e.stale = true
	}
	fn := e.onStale
	e.mu.Unlock()
	if !switched && fn != nil {
		fn()
	}
	if err != nil {
		return fmt.Errorf("move task %s: %w", taskID, err)
	}
	return nil
}

// applyMove mutates b in place, relocating the task to the end of the target
// column or to the given position. Applying the same move twice yields the
// same board. Unknown tasks or columns leave the board unchanged.
func applyMove(b *domain.Board, taskID, toColumnID string, newPosition *int) {
	ci, ti := b.FindTask(taskID)
	if ci < 0 {
		return
	}
	target := -1
	for i := range b.Columns {
		if b.Columns[i].Column.ID == toColumnID {
			target = i
			break
		}
	}
	if target < 0 {
		return
	}

	task := b.Columns[ci].Tasks[ti]
	b.Columns[ci].Tasks = append(b.Columns[ci].Tasks[:ti], b.Columns[ci].Tasks[ti+1:]...)
	task.ColumnID = toColumnID

	tasks := b.Columns[target].Tasks
	pos := len(tasks)
	if newPosition != nil && *newPosition >= 0 && *newPosition < len(tasks) {
		pos = *newPosition
	}
	tasks = append(tasks, domain.Task{})
	copy(tasks[pos+1:], tasks[pos:])
	tasks[pos] = task
	b.Columns[target].Tasks = tasks
}

// CreateTask creates a task and invalidates the cache on settlement.
func (e *Engine) CreateTask(ctx context.Context, req rest.CreateTaskRequest) (domain.Task, error) {
	t, err := e.rest.CreateTask(ctx, req)
	e.settle(req.ProjectID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// UpdateTask applies a partial update and invalidates the cache on
// settlement.
func (e *Engine) UpdateTask(ctx context.Context, taskID string, req rest.UpdateTaskRequest) (domain.Task, error) {
	t, err := e.rest.UpdateTask(ctx, taskID, req)
	e.settle("")
	if err != nil {
		return domain.Task{}, fmt.Errorf("update task %s: %w", taskID, err)
	}
	return t, nil
}

// DeleteTask deletes a task and invalidates the cache on settlement.
func (e *Engine) DeleteTask(ctx context.Context, taskID string) error {
	err := e.rest.DeleteTask(ctx, taskID)
	e.settle("")
	if err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	return nil
}

// settle invalidates after a local mutation settles. A non-empty projectID
// restricts invalidation to responses for the still-active project.
func (e *Engine) settle(projectID string) {
	e.mu.Lock()
	if projectID != "" && e.projectID != projectID {
		e.mu.Unlock()
		return
	}
	e.stale = true
	fn := e.onStale
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}
