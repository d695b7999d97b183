// Package client assembles the sync client for one open project view: the
// push-channel connection, topic routing, presence, the board cache and the
// stroke relay, against the REST backend.
package client

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/waldo1234567/task-management/client/board"
	"github.com/waldo1234567/task-management/client/connection"
	"github.com/waldo1234567/task-management/client/presence"
	"github.com/waldo1234567/task-management/client/rest"
	"github.com/waldo1234567/task-management/client/stroke"
	"github.com/waldo1234567/task-management/client/subscription"
	"github.com/waldo1234567/task-management/domain"
)

// Config parameterizes a project view.
type Config struct {
	// ServerURL is the backend base URL, serving both the REST API and the
	// push channel.
	ServerURL string
	// Credentials supplies a fresh bearer token per request and per
	// connection attempt. Nil means anonymous mode.
	Credentials rest.CredentialProvider

	Logger          *log.Logger
	Backoff         time.Duration
	HeartbeatPeriod time.Duration
	MaxClosures     int

	// OnState observes connection state transitions, e.g. for a live
	// indicator. Must not block.
	OnState func(connection.State)

	// Transport overrides the push transport factory. Tests inject fakes
	// here; production leaves it nil for the stream transport.
	Transport connection.Factory
}

// View is one open project view. All mutation goes through the defined
// operations; snapshots handed out are copies.
type View struct {
	projectID string
	log       *log.Logger

	rest     *rest.Client
	conn     *connection.Manager
	presence *presence.Tracker
	board    *board.Engine
	stroke   *stroke.Relay
}

// OpenView connects to a project and starts dispatching push events. The
// returned view must be released with Close.
func OpenView(projectID string, cfg Config) (*View, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	v := &View{
		projectID: projectID,
		log:       logger,
		rest:      rest.New(cfg.ServerURL, cfg.Credentials),
		presence:  presence.New(),
	}
	v.board = board.NewEngine(v.rest, logger)
	v.board.SetProject(projectID)
	v.stroke = stroke.New(projectID, func(topic string, body []byte) bool {
		return v.conn.Publish(topic, body)
	}, logger)

	router := subscription.New(subscription.Handlers{
		TaskEvent: func(ev domain.TaskEvent) {
			if ev.ProjectID != "" && ev.ProjectID != projectID {
				return
			}
			v.board.Invalidate()
		},
		Presence: func(ev domain.PresenceEvent) {
			v.presence.Replace(ev.Members)
		},
		Stroke: v.stroke.Receive,
	}, logger)

	transport := cfg.Transport
	if transport == nil {
		transport = connection.StreamFactory(cfg.ServerURL, projectID, logger)
	}
	creds := connection.CredentialProvider(func(ctx context.Context) (string, error) {
		if cfg.Credentials == nil {
			return "", nil
		}
		return cfg.Credentials(ctx)
	})

	conn, err := connection.Open(connection.Config{
		ProjectID:       projectID,
		Credentials:     creds,
		Transport:       transport,
		Logger:          logger,
		Backoff:         cfg.Backoff,
		HeartbeatPeriod: cfg.HeartbeatPeriod,
		MaxClosures:     cfg.MaxClosures,
		OnState: func(s connection.State) {
			if s == connection.StateConnected {
				go v.seedPresence()
			}
			if cfg.OnState != nil {
				cfg.OnState(s)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	v.conn = conn

	go func() {
		for fr := range conn.Frames() {
			router.Dispatch(fr.Body)
		}
	}()

	return v, nil
}

// seedPresence installs the REST member snapshot while the push channel
// warms up. A later presence broadcast replaces it wholesale.
func (v *View) seedPresence() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	members, err := v.rest.Presence(ctx, v.projectID)
	if err != nil {
		v.log.WithError(err).Warn("failed to seed presence")
		return
	}
	v.presence.Replace(members)
}

// Close releases the push channel.
func (v *View) Close() {
	v.conn.Close()
}

// State returns the current connection state.
func (v *View) State() connection.State { return v.conn.State() }

// Members returns the current presence snapshot.
func (v *View) Members() []domain.Member { return v.presence.Members() }

// Board returns the project board, fetching when the cache is empty or
// stale.
func (v *View) Board(ctx context.Context) (*domain.Board, error) {
	return v.board.LoadBoard(ctx)
}

// OnBoardStale registers an observer fired whenever the board cache is
// invalidated, so a renderer can schedule a refresh.
func (v *View) OnBoardStale(fn func()) { v.board.OnStale(fn) }

// MoveTask optimistically moves a task; see board.Engine.MoveTask.
func (v *View) MoveTask(ctx context.Context, taskID, toColumnID string, newPosition *int) error {
	return v.board.MoveTask(ctx, taskID, toColumnID, newPosition)
}

// CreateTask creates a task in this project.
func (v *View) CreateTask(ctx context.Context, req rest.CreateTaskRequest) (domain.Task, error) {
	req.ProjectID = v.projectID
	return v.board.CreateTask(ctx, req)
}

// UpdateTask applies a partial task update.
func (v *View) UpdateTask(ctx context.Context, taskID string, req rest.UpdateTaskRequest) (domain.Task, error) {
	return v.board.UpdateTask(ctx, taskID, req)
}

// DeleteTask deletes a task.
func (v *View) DeleteTask(ctx context.Context, taskID string) error {
	return v.board.DeleteTask(ctx, taskID)
}

// SendStroke publishes a locally drawn stroke, best effort.
func (v *View) SendStroke(s domain.Stroke) bool { return v.stroke.Send(s) }

// OnStroke registers the remote stroke handler.
func (v *View) OnStroke(fn func(domain.Stroke)) { v.stroke.OnStroke(fn) }

// REST exposes the underlying REST client for project-level operations that
// are not scoped to this view.
func (v *View) REST() *rest.Client { return v.rest }
