// Package hub fans push-channel frames out to connected stream sessions and
// tracks per-project presence. All publishes travel through Redis so every
// server instance sees them.
package hub

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/waldo1234567/task-management/domain"
)

const (
	// topicPattern matches both project event and presence channels.
	topicPattern = "project.*"

	defaultHeartbeatPeriod = 10 * time.Second
	sessionBuffer          = 32
)

// Session is one connected push-channel client.
type Session struct {
	ID        string
	ProjectID string
	Member    domain.Member

	topics map[string]struct{}
	frames chan []byte

	mu       sync.Mutex
	lastBeat time.Time
	closed   bool
}

// Frames delivers encoded frames for the session until it is removed.
func (s *Session) Frames() <-chan []byte { return s.frames }

func (s *Session) send(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.frames <- b:
	default:
		// Slow consumer: drop rather than block the fan-out loop.
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
}

// Hub owns the live session set and the Redis bridge.
type Hub struct {
	rc              *redis.Client
	log             *log.Logger
	heartbeatPeriod time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates a Hub over the given Redis client.
func New(rc *redis.Client, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Hub{
		rc:              rc,
		log:             logger,
		heartbeatPeriod: defaultHeartbeatPeriod,
		sessions:        make(map[string]*Session),
	}
}

// Add registers a session subscribed to the given topics and broadcasts the
// resulting presence set.
func (h *Hub) Add(ctx context.Context, id, projectID string, member domain.Member, topics []string) *Session {
	s := &Session{
		ID:        id,
		ProjectID: projectID,
		Member:    member,
		topics:    make(map[string]struct{}, len(topics)),
		frames:    make(chan []byte, sessionBuffer),
		lastBeat:  time.Now(),
	}
	for _, t := range topics {
		s.topics[t] = struct{}{}
	}
	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()
	h.publishPresence(ctx, projectID)
	return s
}

// Remove unregisters a session and broadcasts the shrunken presence set.
func (h *Hub) Remove(ctx context.Context, id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	s.close()
	h.publishPresence(ctx, s.ProjectID)
}

// Get returns a registered session.
func (h *Hub) Get(id string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Heartbeat records an inbound liveness signal from a session.
func (h *Hub) Heartbeat(id string) bool {
	h.mu.Lock()
	s, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	s.lastBeat = time.Now()
	s.mu.Unlock()
	return true
}

// Publish sends a payload to a topic through Redis so every instance's
// sessions receive it, in publish order per channel.
func (h *Hub) Publish(ctx context.Context, topic string, body []byte) error {
	frame, err := json.Marshal(domain.Frame{Topic: topic, Body: body})
	if err != nil {
		return err
	}
	return h.rc.Publish(ctx, topic, frame).Err()
}

// publishPresence broadcasts the complete member set for a project. The set
// replaces whatever subscribers held before; there is no diffing.
func (h *Hub) publishPresence(ctx context.Context, projectID string) {
	members := h.members(projectID)
	body, err := json.Marshal(domain.PresenceEvent{
		Type:      domain.EventPresence,
		ProjectID: projectID,
		Members:   members,
	})
	if err != nil {
		h.log.WithError(err).Error("marshal presence event")
		return
	}
	if err := h.Publish(ctx, domain.PresenceTopic(projectID), body); err != nil {
		h.log.WithError(err).WithField("project", projectID).Error("publish presence")
	}
}

// members returns the de-duplicated member set for a project, stable order.
func (h *Hub) members(projectID string) []domain.Member {
	h.mu.Lock()
	seen := make(map[string]domain.Member)
	for _, s := range h.sessions {
		if s.ProjectID == projectID && s.Member.UserID != "" {
			seen[s.Member.UserID] = s.Member
		}
	}
	h.mu.Unlock()
	members := make([]domain.Member, 0, len(seen))
	for _, m := range seen {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members
}

// Members returns the current presence snapshot for a project.
func (h *Hub) Members(projectID string) []domain.Member {
	return h.members(projectID)
}

// Run drives the Redis subscribe loop and the session reaper until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	go h.reap(ctx)
	for {
		sub := h.rc.PSubscribe(ctx, topicPattern)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				h.deliver(msg.Channel, []byte(msg.Payload))
			}
		}
		sub.Close()
		if ctx.Err() != nil {
			return
		}
		h.log.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

// deliver fans one frame out to every session subscribed to its topic.
func (h *Hub) deliver(topic string, frame []byte) {
	h.mu.Lock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if _, ok := s.topics[topic]; ok {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()
	for _, s := range targets {
		s.send(frame)
	}
}

// reap sends heartbeat frames to every session and expires the ones that
// stopped beating back.
func (h *Hub) reap(ctx context.Context) {
	beat, err := json.Marshal(domain.Frame{
		Body: json.RawMessage(`{"type":"` + domain.EventHeartbeat + `"}`),
	})
	if err != nil {
		h.log.WithError(err).Error("marshal heartbeat frame")
		return
	}
	ticker := time.NewTicker(h.heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			window := 2 * h.heartbeatPeriod
			h.mu.Lock()
			var expired []string
			for id, s := range h.sessions {
				s.mu.Lock()
				dead := time.Since(s.lastBeat) > window
				s.mu.Unlock()
				if dead {
					expired = append(expired, id)
					continue
				}
				s.send(beat)
			}
			h.mu.Unlock()
			for _, id := range expired {
				h.log.WithField("session", id).Info("expiring silent stream session")
				h.Remove(ctx, id)
			}
		}
	}
}
