// Package subscription dispatches inbound push messages by their type
// discriminator to the components that consume them.
package subscription

import (
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/waldo1234567/task-management/domain"
)

// Handlers receives the effects of recognized message types. Nil fields make
// the corresponding type a no-op.
type Handlers struct {
	// TaskEvent fires for task.created, task.updated, task.moved and
	// task.deleted; consumers treat it as a board-staleness signal.
	TaskEvent func(domain.TaskEvent)
	// Presence fires for presence.update with the complete member set.
	Presence func(domain.PresenceEvent)
	// Stroke fires for whiteboard.stroke.
	Stroke func(domain.StrokeEvent)
	// Activity fires for activity.created. Reserved observation point.
	Activity func()
}

// Router decodes push frames and routes them. Malformed payloads are dropped
// with a diagnostic and never stop the dispatch loop; unrecognized types are
// ignored for forward compatibility.
type Router struct {
	handlers Handlers
	log      *log.Logger
}

// New creates a Router.
func New(handlers Handlers, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Router{handlers: handlers, log: logger}
}

// Dispatch routes one raw message body.
func (r *Router) Dispatch(body []byte) {
	var env domain.Envelope
	if err := sonic.ConfigStd.Unmarshal(body, &env); err != nil {
		r.log.WithError(err).Warn("dropping malformed push message")
		return
	}
	switch env.Type {
	case domain.EventTaskCreated, domain.EventTaskUpdated, domain.EventTaskMoved, domain.EventTaskDeleted:
		if r.handlers.TaskEvent == nil {
			return
		}
		var ev domain.TaskEvent
		if err := sonic.ConfigStd.Unmarshal(body, &ev); err != nil {
			r.log.WithError(err).WithField("type", env.Type).Warn("dropping malformed task event")
			return
		}
		r.handlers.TaskEvent(ev)
	case domain.EventPresence:
		if r.handlers.Presence == nil {
			return
		}
		var ev domain.PresenceEvent
		if err := sonic.ConfigStd.Unmarshal(body, &ev); err != nil {
			r.log.WithError(err).Warn("dropping malformed presence event")
			return
		}
		r.handlers.Presence(ev)
	case domain.EventStroke:
		if r.handlers.Stroke == nil {
			return
		}
		var ev domain.StrokeEvent
		if err := sonic.ConfigStd.Unmarshal(body, &ev); err != nil {
			r.log.WithError(err).Warn("dropping malformed stroke event")
			return
		}
		r.handlers.Stroke(ev)
	case domain.EventActivityCreated:
		if r.handlers.Activity != nil {
			r.handlers.Activity()
		}
	default:
		r.log.WithField("type", env.Type).Debug("ignoring unrecognized push message")
	}
}
