package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/waldo1234567/task-management/domain"
	"github.com/waldo1234567/task-management/server/hub"
	"github.com/waldo1234567/task-management/server/store"
)

// Authenticator extracts the calling member from an Authorization header.
type Authenticator interface {
	MemberFromAuthHeader(string) (domain.Member, error)
}

// Register wires up all routes on the provided Echo instance.
func Register(e *echo.Echo, st *store.Store, h *hub.Hub, auth Authenticator, logger *log.Logger) {
	s := &server{store: st, hub: h, auth: auth, log: logger}

	e.GET("/projects", s.getProjects)
	e.POST("/projects", s.postProject)
	e.GET("/tasks", s.getTasks)
	e.GET("/tasks-by-project/:id", s.getTasksByProject)
	e.POST("/tasks", s.postTask)
	e.PUT("/tasks/:id", s.putTask)
	e.POST("/tasks/:id/move", s.moveTask)
	e.DELETE("/tasks/:id", s.deleteTask)
	e.GET("/projects/:id/board", s.getBoard)
	e.GET("/projects/:id/presence", s.getPresence)
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	s.registerStream(e)
}

type server struct {
	store *store.Store
	hub   *hub.Hub
	auth  Authenticator
	log   *log.Logger
}

func (s *server) member(c echo.Context) (domain.Member, error) {
	return s.auth.MemberFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
}

func (s *server) getProjects(c echo.Context) error {
	if _, err := s.member(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	projects, err := s.store.Projects(c.Request().Context())
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	return c.JSON(http.StatusOK, projects)
}

func (s *server) postProject(c echo.Context) error {
	if _, err := s.member(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	p, err := s.store.CreateProject(c.Request().Context(), req.Name, req.Description)
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *server) getTasks(c echo.Context) error {
	if _, err := s.member(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	tasks, err := s.store.Tasks(c.Request().Context())
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return c.JSON(http.StatusOK, tasks)
}

func (s *server) getTasksByProject(c echo.Context) error {
	if _, err := s.member(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	tasks, err := s.store.TasksByProject(c.Request().Context(), c.Param("id"))
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return c.JSON(http.StatusOK, tasks)
}

type taskRequest struct {
	ProjectID   string     `json:"projectId"`
	ColumnID    string     `json:"columnId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	AssigneeID  string     `json:"assigneeId"`
	DueDate     *time.Time `json:"dueDate"`
	Priority    int        `json:"priority"`
}

func (s *server) postTask(c echo.Context) error {
	if _, err := s.member(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var req taskRequest
	if err := c.Bind(&req); err != nil || req.ProjectID == "" || req.Title == "" {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	status := domain.NormalizeStatus(req.Status)
	if req.Status != "" && !status.Valid() {
		return c.String(http.StatusBadRequest, "invalid status")
	}
	ctx := c.Request().Context()
	t, err := s.store.CreateTask(ctx, domain.Task{
		ProjectID:   req.ProjectID,
		ColumnID:    req.ColumnID,
		Title:       req.Title,
		Description: req.Description,
		Status:      status,
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
		Priority:    req.Priority,
	})
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	s.publishTaskEvent(ctx, domain.EventTaskCreated, t)
	s.publishActivity(ctx, t.ProjectID)
	return c.JSON(http.StatusCreated, t)
}

func (s *server) putTask(c echo.Context) error {
	if _, err := s.member(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var req struct {
		Title       *string    `json:"title"`
		Description *string    `json:"description"`
		Status      *string    `json:"status"`
		AssigneeID  *string    `json:"assigneeId"`
		DueDate     *time.Time `json:"dueDate"`
		Priority    *int       `json:"priority"`
	}
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	upd := store.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
		Priority:    req.Priority,
	}
	if req.Status != nil {
		status := domain.NormalizeStatus(*req.Status)
		if !status.Valid() {
			return c.String(http.StatusBadRequest, "invalid status")
		}
		upd.Status = &status
	}
	ctx := c.Request().Context()
	t, err := s.store.UpdateTask(ctx, c.Param("id"), upd)
	if errors.Is(err, store.ErrNotFound) {
		return c.NoContent(http.StatusNotFound)
	}
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	s.publishTaskEvent(ctx, domain.EventTaskUpdated, t)
	return c.JSON(http.StatusOK, t)
}

func (s *server) moveTask(c echo.Context) error {
	if _, err := s.member(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var req struct {
		ToColumnID  string `json:"toColumnId"`
		NewPosition *int   `json:"newPosition"`
	}
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	pos := -1
	if req.NewPosition != nil {
		pos = *req.NewPosition
	}
	ctx := c.Request().Context()
	t, err := s.store.MoveTask(ctx, c.Param("id"), req.ToColumnID, pos)
	if errors.Is(err, store.ErrNotFound) {
		return c.NoContent(http.StatusNotFound)
	}
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	s.publishTaskEvent(ctx, domain.EventTaskMoved, t)
	return c.JSON(http.StatusOK, t)
}

func (s *server) deleteTask(c echo.Context) error {
	if _, err := s.member(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	ctx := c.Request().Context()
	t, err := s.store.Task(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.NoContent(http.StatusNotFound)
	}
	if err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if err := s.store.DeleteTask(ctx, t.ID); err != nil {
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
	s.publishTaskEvent(ctx, domain.EventTaskDeleted, t)
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (s *server) getBoard(c echo.Context) error {
	var err error
	metrics := newBoardRequestMetrics(c.Request().Context(), s.log)
	defer func() {
		metrics.Log(c.Response().Status, err)
	}()

	authStart := time.Now()
	_, authErr := s.member(c)
	metrics.ObserveAuth(time.Since(authStart))
	if authErr != nil {
		metrics.SetErrorStage("auth")
		err = c.String(http.StatusUnauthorized, authErr.Error())
		return err
	}

	fetchStart := time.Now()
	board, fetchErr := s.store.Board(c.Request().Context(), c.Param("id"))
	metrics.ObserveFetch(time.Since(fetchStart))
	if errors.Is(fetchErr, store.ErrNotFound) {
		metrics.SetErrorStage("not_found")
		err = c.NoContent(http.StatusNotFound)
		return err
	}
	if fetchErr != nil {
		metrics.SetErrorStage("storage")
		c.Logger().Error(fetchErr)
		err = c.String(http.StatusInternalServerError, fetchErr.Error())
		return err
	}
	metrics.SetColumnsReturned(len(board.Columns))
	err = c.JSON(http.StatusOK, board)
	if err != nil {
		metrics.SetErrorStage("encode_response")
	}
	return err
}

func (s *server) getPresence(c echo.Context) error {
	if _, err := s.member(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	return c.JSON(http.StatusOK, s.hub.Members(c.Param("id")))
}

func (s *server) publishTaskEvent(ctx context.Context, eventType string, t domain.Task) {
	body, err := json.Marshal(domain.TaskEvent{Type: eventType, ProjectID: t.ProjectID, Task: t})
	if err != nil {
		s.log.WithError(err).Error("marshal task event")
		return
	}
	if err := s.hub.Publish(ctx, domain.EventTopic(t.ProjectID), body); err != nil {
		s.log.WithError(err).WithField("type", eventType).Error("publish task event")
	}
}

func (s *server) publishActivity(ctx context.Context, projectID string) {
	body := []byte(`{"type":"` + domain.EventActivityCreated + `"}`)
	if err := s.hub.Publish(ctx, domain.EventTopic(projectID), body); err != nil {
		s.log.WithError(err).Error("publish activity event")
	}
}
