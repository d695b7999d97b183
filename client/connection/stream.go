package connection

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/waldo1234567/task-management/domain"
)

// streamHandshakeTimeout bounds how long Connect waits for the server's
// stream.open frame after the HTTP response arrives.
const streamHandshakeTimeout = 10 * time.Second

// StreamTransport speaks the server's SSE-session push channel: a streaming
// GET delivers frames, session-scoped POSTs carry publishes and outbound
// heartbeats. The primary variant negotiates credentials via the handshake
// query; the downgrade variant sends them as an Authorization header.
type StreamTransport struct {
	base        string
	projectID   string
	headerCreds bool
	httpc       *http.Client
	log         *log.Logger

	cancel  context.CancelFunc
	session string
	frames  chan Frame
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// NewStreamTransport builds a transport against base (no trailing slash).
func NewStreamTransport(base, projectID string, headerCreds bool, logger *log.Logger) *StreamTransport {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &StreamTransport{
		base:        strings.TrimRight(base, "/"),
		projectID:   projectID,
		headerCreds: headerCreds,
		httpc:       &http.Client{},
		log:         logger,
		frames:      make(chan Frame, 32),
		done:        make(chan struct{}),
	}
}

// StreamFactory returns a Factory producing stream transports for a project.
func StreamFactory(base, projectID string, logger *log.Logger) Factory {
	return func(headerCreds bool) Transport {
		return NewStreamTransport(base, projectID, headerCreds, logger)
	}
}

type streamOpen struct {
	Type    string `json:"type"`
	Session string `json:"session"`
}

// Connect opens the streaming request and waits for the stream.open frame.
func (t *StreamTransport) Connect(ctx context.Context, token string, topics []string) error {
	q := url.Values{}
	q.Set("projectId", t.projectID)
	q.Set("topics", strings.Join(topics, ","))
	if !t.headerCreds && token != "" {
		q.Set("token", token)
	}

	// The request context outlives Connect: it is the session lifetime,
	// released by Close.
	streamCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.base+"/streams?"+q.Encode(), nil)
	if err != nil {
		cancel()
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if t.headerCreds && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.httpc.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		cancel()
		return fmt.Errorf("open stream: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	opened := make(chan string, 1)
	go t.readLoop(resp.Body, opened)

	handshake := time.NewTimer(streamHandshakeTimeout)
	defer handshake.Stop()
	select {
	case session, ok := <-opened:
		if !ok || session == "" {
			t.Close()
			return errors.New("stream closed before handshake")
		}
		t.session = session
		return nil
	case <-t.done:
		return errors.New("stream closed before handshake")
	case <-handshake.C:
		t.Close()
		return errors.New("stream handshake timed out")
	case <-ctx.Done():
		t.Close()
		return ctx.Err()
	}
}

// readLoop parses SSE data lines into frames. The first frame must be the
// stream.open handshake carrying the session identifier.
func (t *StreamTransport) readLoop(body io.ReadCloser, opened chan<- string) {
	defer body.Close()
	defer close(t.done)
	defer close(t.frames)
	defer close(opened)

	sawOpen := false
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var data []byte
	for scanner.Scan() {
		line := scanner.Bytes()
		if rest, ok := bytes.CutPrefix(line, []byte("data: ")); ok {
			data = append(data, rest...)
			continue
		}
		if len(line) != 0 || len(data) == 0 {
			continue
		}
		var fr Frame
		if err := json.Unmarshal(data, &fr); err != nil {
			t.log.WithError(err).Warn("dropping unparseable stream frame")
			data = nil
			continue
		}
		data = nil
		if !sawOpen {
			var open streamOpen
			if err := json.Unmarshal(fr.Body, &open); err != nil || open.Type != domain.EventStreamOpen {
				t.setErr(errors.New("unexpected first frame"))
				return
			}
			sawOpen = true
			opened <- open.Session
			continue
		}
		t.frames <- fr
	}
	if err := scanner.Err(); err != nil {
		t.setErr(err)
	}
}

func (t *StreamTransport) setErr(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
}

// Frames implements Transport.
func (t *StreamTransport) Frames() <-chan Frame { return t.frames }

// Done implements Transport.
func (t *StreamTransport) Done() <-chan struct{} { return t.done }

// Err implements Transport.
func (t *StreamTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Publish sends a payload to an application topic via the session.
func (t *StreamTransport) Publish(ctx context.Context, topic string, body []byte) error {
	if t.session == "" {
		return errors.New("not connected")
	}
	payload, err := json.Marshal(Frame{Topic: topic, Body: body})
	if err != nil {
		return err
	}
	return t.post(ctx, "/streams/"+url.PathEscape(t.session)+"/publish", payload)
}

// Heartbeat sends one outbound liveness signal via the session.
func (t *StreamTransport) Heartbeat(ctx context.Context) error {
	if t.session == "" {
		return errors.New("not connected")
	}
	return t.post(ctx, "/streams/"+url.PathEscape(t.session)+"/heartbeat", nil)
}

func (t *StreamTransport) post(ctx context.Context, path string, body []byte) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("stream post %s: status %d", path, resp.StatusCode)
	}
	return nil
}

// Close releases the streaming request. Safe to call multiple times and on a
// transport that never connected.
func (t *StreamTransport) Close() error {
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}
