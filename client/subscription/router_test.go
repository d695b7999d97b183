package subscription

import (
	"testing"

	"github.com/waldo1234567/task-management/domain"
)

func TestDispatchRoutesByType(t *testing.T) {
	var taskEvents []domain.TaskEvent
	var presenceEvents []domain.PresenceEvent
	var strokes []domain.StrokeEvent
	activities := 0

	r := New(Handlers{
		TaskEvent: func(ev domain.TaskEvent) { taskEvents = append(taskEvents, ev) },
		Presence:  func(ev domain.PresenceEvent) { presenceEvents = append(presenceEvents, ev) },
		Stroke:    func(ev domain.StrokeEvent) { strokes = append(strokes, ev) },
		Activity:  func() { activities++ },
	}, nil)

	r.Dispatch([]byte(`{"type":"task.moved","projectId":"p1","task":{"id":"T1"}}`))
	r.Dispatch([]byte(`{"type":"task.created","projectId":"p1","task":{"id":"T2"}}`))
	r.Dispatch([]byte(`{"type":"presence.update","members":[{"userId":"u1"}]}`))
	r.Dispatch([]byte(`{"type":"whiteboard.stroke","color":"#000","thickness":2,"points":[{"x":0,"y":0},{"x":5,"y":5}]}`))
	r.Dispatch([]byte(`{"type":"activity.created"}`))

	if len(taskEvents) != 2 {
		t.Fatalf("expected 2 task events, got %d", len(taskEvents))
	}
	// Events dispatched in the order they arrived on the topic.
	if taskEvents[0].Task.ID != "T1" || taskEvents[1].Task.ID != "T2" {
		t.Fatalf("task events out of order: %s, %s", taskEvents[0].Task.ID, taskEvents[1].Task.ID)
	}
	if len(presenceEvents) != 1 || len(presenceEvents[0].Members) != 1 {
		t.Fatalf("unexpected presence events: %+v", presenceEvents)
	}
	if len(strokes) != 1 || len(strokes[0].Points) != 2 {
		t.Fatalf("unexpected strokes: %+v", strokes)
	}
	if activities != 1 {
		t.Fatalf("expected 1 activity observation, got %d", activities)
	}
}

func TestDispatchIgnoresUnknownTypes(t *testing.T) {
	called := false
	r := New(Handlers{
		TaskEvent: func(domain.TaskEvent) { called = true },
	}, nil)

	r.Dispatch([]byte(`{"type":"board.reindexed","whatever":true}`))
	if called {
		t.Fatal("unknown type must be ignored")
	}
}

func TestDispatchDropsMalformedPayloads(t *testing.T) {
	calls := 0
	r := New(Handlers{
		TaskEvent: func(domain.TaskEvent) { calls++ },
	}, nil)

	r.Dispatch([]byte(`{not json`))
	r.Dispatch([]byte(`{"type":"task.moved","task":"not-an-object"}`))
	// Dispatch must survive garbage and keep processing later messages.
	r.Dispatch([]byte(`{"type":"task.moved","projectId":"p1","task":{"id":"T1"}}`))
	if calls != 1 {
		t.Fatalf("expected exactly the well-formed event, got %d calls", calls)
	}
}
