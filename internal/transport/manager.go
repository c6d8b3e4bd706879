// ABOUTME: Persistent websocket connection manager with reconnect backoff
// ABOUTME: One logical connection per client session; handlers fan out inbound envelopes

package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/fold-client/internal/protocol"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// EventKind selects which inbound envelopes a handler receives.
type EventKind string

const (
	EventMessage      EventKind = "message"
	EventNotification EventKind = "notification"
	EventError        EventKind = "error"
)

// Handler receives inbound envelopes of a registered kind.
type Handler func(*protocol.Inbound)

// StateHandler receives connection state transitions.
type StateHandler func(State)

// Wire is one established connection. It exists so tests can substitute a
// fake for the websocket.
type Wire interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer establishes a Wire to the given URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Wire, error)
}

// Options configures a Manager.
type Options struct {
	// URL is the websocket base, e.g. ws://localhost:8001. The client id is
	// appended as /ws/{client_id}.
	URL string

	// BackoffBase and BackoffCap tune the reconnect delay
	// min(base * 2^attempt, cap).
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Dialer defaults to the gorilla websocket dialer.
	Dialer Dialer

	Logger *slog.Logger
}

// Manager maintains exactly one logical persistent connection per client
// session. Reconnection is unconditional and indefinite: there is no retry
// cap and no user-visible give-up state.
type Manager struct {
	url         string
	backoffBase time.Duration
	backoffCap  time.Duration
	dialer      Dialer
	logger      *slog.Logger

	mu       sync.Mutex
	state    State
	wire     Wire
	clientID string
	started  bool
	cancel   context.CancelFunc

	writeMu sync.Mutex

	handlerMu     sync.RWMutex
	handlers      map[EventKind][]Handler
	stateHandlers []StateHandler
}

// NewManager creates a connection manager. It does not dial until Connect.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocketDialer{}
	}
	base := opts.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	cap := opts.BackoffCap
	if cap < base {
		cap = 30 * time.Second
	}
	return &Manager{
		url:         opts.URL,
		backoffBase: base,
		backoffCap:  cap,
		dialer:      dialer,
		logger:      logger.With("component", "transport"),
		handlers:    make(map[EventKind][]Handler),
	}
}

// On registers a handler for inbound envelopes of the given kind. Multiple
// handlers per kind are allowed; all are invoked in registration order.
func (m *Manager) On(kind EventKind, h Handler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.handlers[kind] = append(m.handlers[kind], h)
}

// OnStateChange registers a handler for connection state transitions.
func (m *Manager) OnStateChange(h StateHandler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.stateHandlers = append(m.stateHandlers, h)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts the connection loop for the given client id. Idempotent:
// a no-op if the manager is already connecting or connected.
func (m *Manager) Connect(ctx context.Context, clientID string) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.clientID = clientID
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(runCtx)
}

// Close tears the connection down and stops reconnecting.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel := m.cancel
	wire := m.wire
	m.started = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wire != nil {
		_ = wire.Close()
	}
}

// Send hands an envelope to the transport. Returns false immediately when
// the channel is not connected; the payload is not queued and there is no
// implicit connect. A true return means the envelope reached the wire, not
// that it was delivered end to end.
func (m *Manager) Send(out *protocol.Outbound) bool {
	m.mu.Lock()
	wire := m.wire
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || wire == nil {
		return false
	}

	data, err := out.Encode()
	if err != nil {
		m.logger.Error("encoding outbound envelope", "error", err)
		return false
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := wire.WriteMessage(data); err != nil {
		m.logger.Warn("write failed", "error", err)
		return false
	}
	return true
}

// run is the connection loop: dial, pump reads, back off, repeat until the
// context is cancelled. The attempt counter resets to zero after every
// successful connect.
func (m *Manager) run(ctx context.Context) {
	attempt := 0

	for {
		m.setState(StateConnecting)

		wire, err := m.dialer.Dial(ctx, m.url+"/ws/"+m.clientID)
		if err != nil {
			m.logger.Warn("dial failed", "url", m.url, "error", err)
			m.setState(StateDisconnected)
		} else {
			m.setWire(wire)
			m.setState(StateConnected)
			attempt = 0

			m.readLoop(ctx, wire)

			m.setWire(nil)
			_ = wire.Close()
			m.setState(StateDisconnected)
		}

		if ctx.Err() != nil {
			return
		}

		m.setState(StateReconnecting)
		attempt++
		delay := backoffDelay(m.backoffBase, m.backoffCap, attempt)
		m.logger.Info("reconnecting", "attempt", attempt, "delay", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// readLoop pumps inbound frames until the wire errors or the context ends.
// A malformed envelope is logged and dropped; it never affects other state.
func (m *Manager) readLoop(ctx context.Context, wire Wire) {
	for {
		data, err := wire.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Warn("connection closed", "error", err)
			}
			return
		}

		in, err := protocol.Parse(data)
		if err != nil {
			m.logger.Warn("dropping malformed envelope", "error", err)
			continue
		}

		m.dispatch(in)
	}
}

func (m *Manager) dispatch(in *protocol.Inbound) {
	m.handlerMu.RLock()
	handlers := m.handlers[EventKind(in.Type)]
	m.handlerMu.RUnlock()

	for _, h := range handlers {
		h(in)
	}
}

func (m *Manager) setWire(w Wire) {
	m.mu.Lock()
	m.wire = w
	m.mu.Unlock()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	m.handlerMu.RLock()
	handlers := make([]StateHandler, len(m.stateHandlers))
	copy(handlers, m.stateHandlers)
	m.handlerMu.RUnlock()

	for _, h := range handlers {
		h(s)
	}
}

// backoffDelay computes min(base * 2^attempt, cap). The first reconnect uses
// attempt 1, so base=1s cap=30s yields 2s, 4s, 8s, 16s, 30s, 30s, ...
func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
