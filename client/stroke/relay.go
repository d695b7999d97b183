// Package stroke relays whiteboard strokes between the local view and
// connected peers. Strokes are ephemeral: best-effort delivery, no history,
// no deduplication.
package stroke

import (
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/waldo1234567/task-management/domain"
)

// Publisher sends a payload to a topic, reporting false when not connected.
type Publisher func(topic string, body []byte) bool

// Relay forwards local strokes outward and remote strokes to a registered
// handler.
type Relay struct {
	projectID string
	publish   Publisher
	log       *log.Logger

	mu      sync.Mutex
	handler func(domain.Stroke)
}

// New creates a Relay publishing to the project's event topic.
func New(projectID string, publish Publisher, logger *log.Logger) *Relay {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Relay{projectID: projectID, publish: publish, log: logger}
}

// OnStroke registers the handler for remote strokes. The previous handler,
// if any, is replaced.
func (r *Relay) OnStroke(fn func(domain.Stroke)) {
	r.mu.Lock()
	r.handler = fn
	r.mu.Unlock()
}

// Send publishes a locally drawn stroke. Best effort: returns false when the
// stroke was dropped because the channel is not connected or the payload
// could not be built. Dropped strokes are never retried.
func (r *Relay) Send(s domain.Stroke) bool {
	if len(s.Points) == 0 {
		return false
	}
	body, err := json.Marshal(domain.StrokeEvent{
		Type:      domain.EventStroke,
		ProjectID: r.projectID,
		Color:     s.Color,
		Thickness: s.Thickness,
		Points:    s.Points,
	})
	if err != nil {
		r.log.WithError(err).Warn("dropping unserializable stroke")
		return false
	}
	return r.publish(domain.EventTopic(r.projectID), body)
}

// Receive forwards one remote stroke event to the handler. Strokes without
// points are dropped silently.
func (r *Relay) Receive(ev domain.StrokeEvent) {
	if len(ev.Points) == 0 {
		return
	}
	r.mu.Lock()
	fn := r.handler
	r.mu.Unlock()
	if fn != nil {
		fn(ev.Stroke())
	}
}
