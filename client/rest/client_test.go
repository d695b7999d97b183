package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/waldo1234567/task-management/domain"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   []byte
}

func newRecordingServer(t *testing.T, status int, response string) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			body:   body,
		})
		mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func staticCreds(token string) CredentialProvider {
	return func(context.Context) (string, error) { return token, nil }
}

func TestClientSendsBearerCredential(t *testing.T) {
	srv, recorded := newRecordingServer(t, http.StatusOK, `[]`)
	c := New(srv.URL, staticCreds("tok-1"))

	if _, err := c.Projects(context.Background()); err != nil {
		t.Fatalf("projects: %v", err)
	}

	reqs := recorded()
	if len(reqs) != 1 || reqs[0].auth != "Bearer tok-1" {
		t.Fatalf("unexpected requests: %+v", reqs)
	}
}

func TestClientOmitsHeaderForEmptyCredential(t *testing.T) {
	srv, recorded := newRecordingServer(t, http.StatusOK, `[]`)
	c := New(srv.URL, staticCreds(""))

	if _, err := c.Tasks(context.Background()); err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if reqs := recorded(); reqs[0].auth != "" {
		t.Fatalf("expected anonymous request, got %q", reqs[0].auth)
	}
}

func TestClientCredentialFailureShortCircuits(t *testing.T) {
	srv, recorded := newRecordingServer(t, http.StatusOK, `[]`)
	c := New(srv.URL, func(context.Context) (string, error) {
		return "", errors.New("refresh failed")
	})

	if _, err := c.Projects(context.Background()); err == nil {
		t.Fatal("expected credential error")
	}
	if reqs := recorded(); len(reqs) != 0 {
		t.Fatalf("request should not be sent without credentials, got %+v", reqs)
	}
}

func TestCreateTaskNormalizesStatus(t *testing.T) {
	srv, recorded := newRecordingServer(t, http.StatusCreated, `{"id":"t1","status":"INPROGRESS"}`)
	c := New(srv.URL, nil)

	task, err := c.CreateTask(context.Background(), CreateTaskRequest{
		ProjectID: "p1",
		Title:     "x",
		Status:    "inProgress",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.Status != domain.StatusInProgress {
		t.Fatalf("unexpected status: %s", task.Status)
	}

	var sent CreateTaskRequest
	if err := json.Unmarshal(recorded()[0].body, &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if sent.Status != "INPROGRESS" {
		t.Fatalf("status not normalized on the wire: %q", sent.Status)
	}
}

func TestMoveTaskOmitsNilPosition(t *testing.T) {
	srv, recorded := newRecordingServer(t, http.StatusOK, `{"id":"t1"}`)
	c := New(srv.URL, nil)

	if _, err := c.MoveTask(context.Background(), "t1", MoveTaskRequest{ToColumnID: "c2"}); err != nil {
		t.Fatalf("move task: %v", err)
	}

	reqs := recorded()
	if reqs[0].path != "/tasks/t1/move" {
		t.Fatalf("unexpected path: %s", reqs[0].path)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(reqs[0].body, &raw); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if _, ok := raw["newPosition"]; ok {
		t.Fatal("nil position must be omitted so the backend appends")
	}
}

func TestBoardNotFoundMapsToErrNoBoard(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusNotFound, "")
	c := New(srv.URL, nil)

	if _, err := c.Board(context.Background(), "p1"); !errors.Is(err, ErrNoBoard) {
		t.Fatalf("expected ErrNoBoard, got %v", err)
	}
}

func TestStatusErrorCarriesBody(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusInternalServerError, "boom")
	c := New(srv.URL, nil)

	_, err := c.Presence(context.Background(), "p1")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusInternalServerError || se.Body != "boom" {
		t.Fatalf("unexpected status error: %+v", se)
	}
}
