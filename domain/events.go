package domain

import "encoding/json"

// Push-channel message types. Every message carries a "type" discriminator;
// consumers ignore types they do not recognize.
const (
	EventTaskCreated     = "task.created"
	EventTaskUpdated     = "task.updated"
	EventTaskMoved       = "task.moved"
	EventTaskDeleted     = "task.deleted"
	EventActivityCreated = "activity.created"
	EventStroke          = "whiteboard.stroke"
	EventPresence        = "presence.update"

	// Control frames used by the stream transport, not dispatched to handlers.
	EventStreamOpen = "stream.open"
	EventHeartbeat  = "heartbeat"
)

// EventTopic is the broadcast topic carrying task, activity and stroke
// events for a project.
func EventTopic(projectID string) string {
	return "project." + projectID
}

// PresenceTopic is the broadcast topic carrying presence updates for a
// project.
func PresenceTopic(projectID string) string {
	return "project." + projectID + ".presence"
}

// Frame wraps one push-channel message with the topic it travels on.
type Frame struct {
	Topic string          `json:"topic"`
	Body  json.RawMessage `json:"body"`
}

// Envelope is the minimal view of a push message used for dispatch.
type Envelope struct {
	Type string `json:"type"`
}

// TaskEvent is the payload of task.created/updated/moved/deleted messages.
type TaskEvent struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId"`
	Task      Task   `json:"task"`
}

// PresenceEvent replaces the tracked member set wholesale.
type PresenceEvent struct {
	Type      string   `json:"type"`
	ProjectID string   `json:"projectId,omitempty"`
	Members   []Member `json:"members"`
}

// StrokeEvent carries one whiteboard stroke.
type StrokeEvent struct {
	Type      string  `json:"type"`
	ProjectID string  `json:"projectId,omitempty"`
	Color     string  `json:"color"`
	Thickness float64 `json:"thickness"`
	Points    []Point `json:"points"`
}

// Stroke converts the event payload into the domain representation.
func (e StrokeEvent) Stroke() Stroke {
	return Stroke{Color: e.Color, Thickness: e.Thickness, Points: e.Points}
}

// MarshalEvent encodes any event payload for publishing.
func MarshalEvent(v any) ([]byte, error) {
	return json.Marshal(v)
}
