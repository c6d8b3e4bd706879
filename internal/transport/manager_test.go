// ABOUTME: Tests for the connection manager lifecycle and reconnect backoff
// ABOUTME: Uses fake dialer and wire; no network involved

package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fold-client/internal/protocol"
)

// fakeWire is a scriptable connection: reads are fed through a channel,
// writes are recorded.
type fakeWire struct {
	mu      sync.Mutex
	reads   chan []byte
	written [][]byte
	closed  bool
}

func newFakeWire() *fakeWire {
	return &fakeWire{reads: make(chan []byte, 16)}
}

func (w *fakeWire) ReadMessage() ([]byte, error) {
	data, ok := <-w.reads
	if !ok {
		return nil, io.EOF
	}
	return data, nil
}

func (w *fakeWire) WriteMessage(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("wire closed")
	}
	w.written = append(w.written, data)
	return nil
}

func (w *fakeWire) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.reads)
	}
	return nil
}

// fakeDialer hands out wires in sequence, failing when scripted to.
type fakeDialer struct {
	mu     sync.Mutex
	wires  []*fakeWire
	fails  int // number of leading dial attempts that fail
	dials  int
	urls   []string
	dialed chan struct{}
}

func newFakeDialer(fails int, wires ...*fakeWire) *fakeDialer {
	return &fakeDialer{fails: fails, wires: wires, dialed: make(chan struct{}, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Wire, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.urls = append(d.urls, url)
	select {
	case d.dialed <- struct{}{}:
	default:
	}
	if d.dials <= d.fails {
		return nil, errors.New("connection refused")
	}
	idx := d.dials - d.fails - 1
	if idx >= len(d.wires) {
		return nil, errors.New("no more wires")
	}
	return d.wires[idx], nil
}

func awaitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.State() == want
	}, 2*time.Second, 5*time.Millisecond, "expected state %s", want)
}

func TestManager_ConnectAndDispatch(t *testing.T) {
	wire := newFakeWire()
	dialer := newFakeDialer(0, wire)

	m := NewManager(Options{
		URL:         "ws://example.test",
		BackoffBase: time.Millisecond,
		BackoffCap:  10 * time.Millisecond,
		Dialer:      dialer,
	})

	received := make(chan *protocol.Inbound, 1)
	m.On(EventMessage, func(in *protocol.Inbound) {
		received <- in
	})

	m.Connect(context.Background(), "client-1")
	defer m.Close()

	awaitState(t, m, StateConnected)

	wire.reads <- []byte(`{"type":"message","content":"hello"}`)

	select {
	case in := <-received:
		assert.Equal(t, "hello", in.Content)
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}

	// The client id lands in the dial URL.
	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	require.NotEmpty(t, dialer.urls)
	assert.Equal(t, "ws://example.test/ws/client-1", dialer.urls[0])
}

func TestManager_ConnectIsIdempotent(t *testing.T) {
	wire := newFakeWire()
	dialer := newFakeDialer(0, wire)

	m := NewManager(Options{
		URL:         "ws://example.test",
		BackoffBase: time.Millisecond,
		BackoffCap:  10 * time.Millisecond,
		Dialer:      dialer,
	})

	m.Connect(context.Background(), "client-1")
	m.Connect(context.Background(), "client-1")
	defer m.Close()

	awaitState(t, m, StateConnected)

	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	assert.Equal(t, 1, dialer.dials)
}

func TestManager_ReconnectsAfterDrop(t *testing.T) {
	wire1 := newFakeWire()
	wire2 := newFakeWire()
	dialer := newFakeDialer(0, wire1, wire2)

	m := NewManager(Options{
		URL:         "ws://example.test",
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
		Dialer:      dialer,
	})

	var mu sync.Mutex
	var states []State
	m.OnStateChange(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	m.Connect(context.Background(), "client-1")
	defer m.Close()

	awaitState(t, m, StateConnected)
	wire1.Close() // drop the connection
	awaitState(t, m, StateConnected)

	dialer.mu.Lock()
	assert.Equal(t, 2, dialer.dials)
	dialer.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, StateReconnecting)
}

func TestManager_RetriesFailedDials(t *testing.T) {
	wire := newFakeWire()
	dialer := newFakeDialer(3, wire)

	m := NewManager(Options{
		URL:         "ws://example.test",
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
		Dialer:      dialer,
	})

	m.Connect(context.Background(), "client-1")
	defer m.Close()

	// Three refusals, then success.
	awaitState(t, m, StateConnected)

	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	assert.Equal(t, 4, dialer.dials)
}

func TestManager_SendFailsWhenDisconnected(t *testing.T) {
	m := NewManager(Options{
		URL:    "ws://example.test",
		Dialer: newFakeDialer(0),
	})

	ok := m.Send(&protocol.Outbound{UserID: "harper", Message: "hello"})
	assert.False(t, ok)
}

func TestManager_SendWritesToWire(t *testing.T) {
	wire := newFakeWire()
	dialer := newFakeDialer(0, wire)

	m := NewManager(Options{
		URL:         "ws://example.test",
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
		Dialer:      dialer,
	})

	m.Connect(context.Background(), "client-1")
	defer m.Close()

	awaitState(t, m, StateConnected)

	ok := m.Send(&protocol.Outbound{UserID: "harper", Message: "hello"})
	require.True(t, ok)

	wire.mu.Lock()
	defer wire.mu.Unlock()
	require.Len(t, wire.written, 1)
	assert.Contains(t, string(wire.written[0]), `"message":"hello"`)
}

func TestManager_MalformedEnvelopeDropped(t *testing.T) {
	wire := newFakeWire()
	dialer := newFakeDialer(0, wire)

	m := NewManager(Options{
		URL:         "ws://example.test",
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
		Dialer:      dialer,
	})

	received := make(chan *protocol.Inbound, 2)
	m.On(EventMessage, func(in *protocol.Inbound) {
		received <- in
	})

	m.Connect(context.Background(), "client-1")
	defer m.Close()

	awaitState(t, m, StateConnected)

	wire.reads <- []byte(`{garbage`)
	wire.reads <- []byte(`{"type":"message","content":"after"}`)

	select {
	case in := <-received:
		// The malformed frame was skipped, not fatal.
		assert.Equal(t, "after", in.Content)
	case <-time.After(time.Second):
		t.Fatal("valid envelope after malformed one was not dispatched")
	}
}

func TestManager_CloseStopsReconnecting(t *testing.T) {
	dialer := newFakeDialer(1000)

	m := NewManager(Options{
		URL:         "ws://example.test",
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
		Dialer:      dialer,
	})

	m.Connect(context.Background(), "client-1")
	<-dialer.dialed
	m.Close()

	time.Sleep(20 * time.Millisecond)
	dialer.mu.Lock()
	dialsAtClose := dialer.dials
	dialer.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	assert.Equal(t, dialsAtClose, dialer.dials)
}

func TestBackoffDelay_Sequence(t *testing.T) {
	base := time.Second
	cap := 30 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{6, 30 * time.Second},
		{20, 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, backoffDelay(base, cap, tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoffDelay_CapBelowDouble(t *testing.T) {
	assert.Equal(t, 3*time.Second, backoffDelay(2*time.Second, 3*time.Second, 1))
}
