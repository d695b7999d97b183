package connection

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/waldo1234567/task-management/domain"
)

// State is the observable connection state of a project view.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

const (
	defaultBackoff         = 5 * time.Second
	defaultHeartbeatPeriod = 10 * time.Second
	defaultMaxClosures     = 5
	publishTimeout         = 5 * time.Second
)

var errMissingConfig = errors.New("connection: project, credentials and transport factory are required")

// Config parameterizes a Manager. Zero durations and counts take defaults.
type Config struct {
	ProjectID   string
	Credentials CredentialProvider
	Transport   Factory

	Logger          *log.Logger
	Backoff         time.Duration
	HeartbeatPeriod time.Duration
	MaxClosures     int

	// OnState observes every state transition. Called from the manager
	// goroutine; must not block.
	OnState func(State)
}

// Manager drives the connection state machine for one open project view. It
// exclusively owns the underlying transport; other components only call
// Publish and read state.
type Manager struct {
	cfg    Config
	topics []string
	log    *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	frames chan Frame

	mu        sync.Mutex
	state     State
	transport Transport
}

// Open starts the connection loop for a project view. The returned handle
// must be released with Close.
func Open(cfg Config) (*Manager, error) {
	if cfg.ProjectID == "" || cfg.Credentials == nil || cfg.Transport == nil {
		return nil, errMissingConfig
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.HeartbeatPeriod <= 0 {
		cfg.HeartbeatPeriod = defaultHeartbeatPeriod
	}
	if cfg.MaxClosures <= 0 {
		cfg.MaxClosures = defaultMaxClosures
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg: cfg,
		topics: []string{
			domain.EventTopic(cfg.ProjectID),
			domain.PresenceTopic(cfg.ProjectID),
		},
		log:    cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		frames: make(chan Frame, 64),
		state:  StateDisconnected,
	}
	go m.run()
	return m, nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Frames delivers inbound application frames across reconnects. Closed when
// the manager shuts down.
func (m *Manager) Frames() <-chan Frame { return m.frames }

// Publish sends a payload to a topic. Fire and forget: returns false when not
// currently connected or when the send fails; nothing is queued.
func (m *Manager) Publish(topic string, body []byte) bool {
	m.mu.Lock()
	t, st := m.transport, m.state
	m.mu.Unlock()
	if st != StateConnected || t == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := t.Publish(ctx, topic, body); err != nil {
		m.log.WithError(err).WithField("topic", topic).Debug("publish failed")
		return false
	}
	return true
}

// Close tears the connection down and releases the transport. Safe on every
// state, including failed and never-connected managers.
func (m *Manager) Close() {
	m.cancel()
	<-m.done
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()
	if changed && m.cfg.OnState != nil {
		m.cfg.OnState(s)
	}
}

func (m *Manager) setTransport(t Transport) {
	m.mu.Lock()
	m.transport = t
	m.mu.Unlock()
}

// run is the connection loop. Transitions:
// disconnected → connecting → connected, connected → connecting on unexpected
// closure, connecting → failed once the closure counter reaches the limit
// without an intervening connected. Two early closures (before any handshake
// ever completed) downgrade to the header-credential transport exactly once.
func (m *Manager) run() {
	defer close(m.done)
	defer close(m.frames)
	defer m.setTransport(nil)

	closures := 0
	earlyClosures := 0
	everConnected := false
	triedFallback := false
	headerCreds := false

	for {
		m.setState(StateConnecting)

		token, err := m.cfg.Credentials(m.ctx)
		if err != nil {
			if m.ctx.Err() == nil {
				// Caller-recoverable: does not consume the retry budget.
				m.log.WithError(err).Warn("credential fetch failed, aborting connect")
			}
			m.setState(StateDisconnected)
			return
		}

		t := m.cfg.Transport(headerCreds)
		if err := t.Connect(m.ctx, token, m.topics); err != nil {
			_ = t.Close()
			if m.ctx.Err() != nil {
				m.setState(StateDisconnected)
				return
			}
			m.log.WithError(err).WithField("fallback", headerCreds).Warn("connect attempt failed")
			closures++
			if !everConnected {
				earlyClosures++
				if !triedFallback && earlyClosures >= 2 {
					// Single-shot downgrade; later closures never retrigger it.
					triedFallback = true
					headerCreds = true
					m.log.Warn("repeated early closures, retrying once with header credentials")
					continue
				}
			}
			if closures >= m.cfg.MaxClosures {
				m.log.Error("connection retries exhausted")
				m.setState(StateFailed)
				return
			}
			if !m.sleep() {
				m.setState(StateDisconnected)
				return
			}
			continue
		}

		m.setTransport(t)
		m.setState(StateConnected)
		everConnected = true
		closures = 0

		m.serve(t)

		m.setTransport(nil)
		_ = t.Close()
		if m.ctx.Err() != nil {
			m.setState(StateDisconnected)
			return
		}
		if err := t.Err(); err != nil {
			m.log.WithError(err).Warn("push channel closed unexpectedly")
		} else {
			m.log.Warn("push channel closed unexpectedly")
		}
		closures++
		if closures >= m.cfg.MaxClosures {
			m.log.Error("connection retries exhausted")
			m.setState(StateFailed)
			return
		}
		m.setState(StateConnecting)
		if !m.sleep() {
			m.setState(StateDisconnected)
			return
		}
	}
}

// serve pumps frames and heartbeats on an established transport until the
// channel closes, a heartbeat window elapses, or the manager is closed.
func (m *Manager) serve(t Transport) {
	ticker := time.NewTicker(m.cfg.HeartbeatPeriod)
	defer ticker.Stop()
	window := 2 * m.cfg.HeartbeatPeriod
	lastInbound := time.Now()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-t.Done():
			return
		case fr, ok := <-t.Frames():
			if !ok {
				return
			}
			lastInbound = time.Now()
			if isHeartbeatFrame(fr) {
				continue
			}
			select {
			case m.frames <- fr:
			case <-m.ctx.Done():
				return
			}
		case <-ticker.C:
			if time.Since(lastInbound) > window {
				m.log.Warn("heartbeat window elapsed, treating connection as dead")
				return
			}
			if err := t.Heartbeat(m.ctx); err != nil && m.ctx.Err() == nil {
				m.log.WithError(err).Warn("outbound heartbeat failed")
				return
			}
		}
	}
}

// sleep waits one backoff period; false when the manager closed meanwhile.
func (m *Manager) sleep() bool {
	select {
	case <-m.ctx.Done():
		return false
	case <-time.After(m.cfg.Backoff):
		return true
	}
}

func isHeartbeatFrame(fr Frame) bool {
	var env domain.Envelope
	if err := json.Unmarshal(fr.Body, &env); err != nil {
		return false
	}
	return env.Type == domain.EventHeartbeat
}
