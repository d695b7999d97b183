// Package rest consumes the task-management REST backend. All requests carry
// a bearer credential when one can be obtained; an empty credential omits the
// header entirely (anonymous mode).
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/waldo1234567/task-management/domain"
)

// CredentialProvider returns a fresh bearer token for the next request.
// Tokens are never cached by this package since they may expire between calls.
type CredentialProvider func(ctx context.Context) (string, error)

// ErrNoBoard is returned when the backend has no board grouping for a
// project. Callers fall back to status-based grouping.
var ErrNoBoard = errors.New("no board grouping for project")

// StatusError reports a non-2xx backend response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

// Client wraps http.Client with helpers for the backend's JSON endpoints.
type Client struct {
	BaseURL string
	Creds   CredentialProvider
	HTTP    *http.Client
}

// New creates a Client against the given base URL.
func New(baseURL string, creds CredentialProvider) *Client {
	return &Client{
		BaseURL: baseURL,
		Creds:   creds,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		b := new(bytes.Buffer)
		if err := json.NewEncoder(b).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		buf = b
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Creds != nil {
		token, err := c.Creds(ctx)
		if err != nil {
			return fmt.Errorf("fetch credential: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(msg)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Projects lists all projects visible to the caller.
func (c *Client) Projects(ctx context.Context) ([]domain.Project, error) {
	var out []domain.Project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateProjectRequest is the body of POST /projects.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (domain.Project, error) {
	var out domain.Project
	err := c.do(ctx, http.MethodPost, "/projects", req, &out)
	return out, err
}

// Tasks lists every task visible to the caller.
func (c *Client) Tasks(ctx context.Context) ([]domain.Task, error) {
	var out []domain.Task
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TasksByProject lists the tasks of one project.
func (c *Client) TasksByProject(ctx context.Context, projectID string) ([]domain.Task, error) {
	var out []domain.Task
	path := "/tasks-by-project/" + url.PathEscape(projectID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTaskRequest is the body of POST /tasks. Status is normalized before
// transmission.
type CreateTaskRequest struct {
	ProjectID   string     `json:"projectId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	AssigneeID  string     `json:"assigneeId,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    int        `json:"priority,omitempty"`
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, req CreateTaskRequest) (domain.Task, error) {
	if req.Status != "" {
		req.Status = string(domain.NormalizeStatus(req.Status))
	}
	var out domain.Task
	err := c.do(ctx, http.MethodPost, "/tasks", req, &out)
	return out, err
}

// UpdateTaskRequest carries partial task fields for PUT /tasks/{id}.
// Nil pointers leave the corresponding field unchanged.
type UpdateTaskRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	AssigneeID  *string    `json:"assigneeId,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    *int       `json:"priority,omitempty"`
}

// UpdateTask applies a partial update to a task.
func (c *Client) UpdateTask(ctx context.Context, taskID string, req UpdateTaskRequest) (domain.Task, error) {
	if req.Status != nil {
		s := string(domain.NormalizeStatus(*req.Status))
		req.Status = &s
	}
	var out domain.Task
	err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(taskID), req, &out)
	return out, err
}

// MoveTaskRequest is the body of POST /tasks/{id}/move. A nil NewPosition
// leaves position computation to the backend (append semantics).
type MoveTaskRequest struct {
	ToColumnID  string `json:"toColumnId,omitempty"`
	NewPosition *int   `json:"newPosition,omitempty"`
}

// MoveTask moves a task to another column and/or position.
func (c *Client) MoveTask(ctx context.Context, taskID string, req MoveTaskRequest) (domain.Task, error) {
	var out domain.Task
	err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/move", req, &out)
	return out, err
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(taskID), nil, nil)
}

// Board fetches the authoritative column/task grouping for a project.
// Returns ErrNoBoard when the backend has no grouping for the project.
func (c *Client) Board(ctx context.Context, projectID string) (*domain.Board, error) {
	var out domain.Board
	path := "/projects/" + url.PathEscape(projectID) + "/board"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, ErrNoBoard
		}
		return nil, err
	}
	return &out, nil
}

// Presence fetches the initial member snapshot for a project.
func (c *Client) Presence(ctx context.Context, projectID string) ([]domain.Member, error) {
	var out []domain.Member
	path := "/projects/" + url.PathEscape(projectID) + "/presence"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
