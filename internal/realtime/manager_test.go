package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daynest/realtime/internal/domain"
)

type fakeTokens struct {
	mu        sync.Mutex
	token     string
	userID    int64
	messaging bool
}

func (f *fakeTokens) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeTokens) UserID() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

func (f *fakeTokens) Can(c domain.Capability) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return c == domain.CapabilityMessaging && f.messaging
}

func (f *fakeTokens) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
}

type fakeConn struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	frames [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	if messageType == websocket.TextMessage {
		c.mu.Lock()
		c.frames = append(c.frames, append([]byte(nil), data...))
		c.mu.Unlock()
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) push(t *testing.T, ev domain.ServerEvent) {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	c.in <- data
}

func (c *fakeConn) sent() []domain.ClientEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]domain.ClientEvent, 0, len(c.frames))
	for _, frame := range c.frames {
		var ev domain.ClientEvent
		if json.Unmarshal(frame, &ev) == nil {
			events = append(events, ev)
		}
	}
	return events
}

type fakeDialer struct {
	mu      sync.Mutex
	conns   []*fakeConn
	dials   int
	failing bool
}

func (d *fakeDialer) dial(string, http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failing {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) latest() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) openConns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	open := 0
	for _, conn := range d.conns {
		if !conn.isClosed() {
			open++
		}
	}
	return open
}

func testConfig() Config {
	return Config{
		URL:         "ws://daynest.test/realtime",
		MaxAttempts: 5,
		BackoffBase: time.Millisecond,
	}
}

func newTestManager(t *testing.T) (*Manager, *fakeDialer, *fakeTokens) {
	t.Helper()
	dialer := &fakeDialer{}
	tokens := &fakeTokens{token: "tok", userID: 42, messaging: true}
	m := New(testConfig(), tokens, zap.NewNop(), WithDialer(dialer.dial))
	t.Cleanup(m.Disconnect)
	return m, dialer, tokens
}

func waitForStatus(t *testing.T, m *Manager, want Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.Status() == want
	}, 2*time.Second, 2*time.Millisecond, "status never reached %s", want)
}

func TestConnectWithoutTokenCreatesNoTransport(t *testing.T) {
	m, dialer, tokens := newTestManager(t)
	tokens.clear()

	m.Connect()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StatusUninitialized, m.Status())
	assert.Equal(t, 0, dialer.dialCount())
}

func TestConnectWithoutMessagingEntitlement(t *testing.T) {
	m, dialer, tokens := newTestManager(t)
	tokens.mu.Lock()
	tokens.messaging = false
	tokens.mu.Unlock()

	m.Connect()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StatusUninitialized, m.Status())
	assert.Equal(t, 0, dialer.dialCount())
}

func TestConnectJoinsOwnRoom(t *testing.T) {
	m, dialer, _ := newTestManager(t)

	m.Connect()
	waitForStatus(t, m, StatusConnected)

	conn := dialer.latest()
	require.NotNil(t, conn)
	require.Eventually(t, func() bool {
		return len(conn.sent()) > 0
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, domain.ClientEvent{Type: domain.EventJoinRoom, UserID: 42}, conn.sent()[0])
}

func TestDisconnectLeavesRoomAndIsIdempotent(t *testing.T) {
	m, dialer, _ := newTestManager(t)

	m.Connect()
	waitForStatus(t, m, StatusConnected)

	m.Disconnect()
	m.Disconnect()

	assert.Equal(t, StatusClosed, m.Status())
	conn := dialer.latest()
	require.NotNil(t, conn)
	assert.True(t, conn.isClosed())

	events := conn.sent()
	require.NotEmpty(t, events)
	assert.Equal(t, domain.ClientEvent{Type: domain.EventLeaveRoom, UserID: 42}, events[len(events)-1])

	// Torn down is terminal: a later Connect must not dial again.
	dials := dialer.dialCount()
	m.Connect()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, dials, dialer.dialCount())
}

func TestRetryBudgetExhaustion(t *testing.T) {
	m, dialer, _ := newTestManager(t)
	dialer.failing = true

	m.Connect()
	waitForStatus(t, m, StatusFailed)
	assert.Equal(t, 5, dialer.dialCount())

	// A manual Connect resets the budget and tries again.
	m.Connect()
	waitForStatus(t, m, StatusFailed)
	assert.Equal(t, 10, dialer.dialCount())
}

func TestReconnectAfterTransportDrop(t *testing.T) {
	m, dialer, _ := newTestManager(t)

	m.Connect()
	waitForStatus(t, m, StatusConnected)
	first := dialer.latest()

	// Server restart: the transport dies underneath us.
	first.Close()

	require.Eventually(t, func() bool {
		return dialer.dialCount() >= 2 && m.Status() == StatusConnected
	}, 2*time.Second, 2*time.Millisecond)

	second := dialer.latest()
	require.NotSame(t, first, second)
	require.Eventually(t, func() bool {
		return len(second.sent()) > 0
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, domain.EventJoinRoom, second.sent()[0].Type)
}

func TestReconnectStopsWhenSessionGone(t *testing.T) {
	m, dialer, tokens := newTestManager(t)

	m.Connect()
	waitForStatus(t, m, StatusConnected)

	tokens.clear()
	dialer.latest().Close()

	waitForStatus(t, m, StatusUninitialized)
}

func TestEventDispatchAndDisposer(t *testing.T) {
	m, dialer, _ := newTestManager(t)

	var mu sync.Mutex
	var kept, disposed int
	offKept := m.On(domain.EventNewMessage, func(domain.ServerEvent) {
		mu.Lock()
		kept++
		mu.Unlock()
	})
	defer offKept()
	offDisposed := m.On(domain.EventNewMessage, func(domain.ServerEvent) {
		mu.Lock()
		disposed++
		mu.Unlock()
	})
	offDisposed()

	m.Connect()
	waitForStatus(t, m, StatusConnected)
	dialer.latest().push(t, domain.ServerEvent{Type: domain.EventNewMessage, ReceiverID: 42})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return kept == 1
	}, time.Second, 2*time.Millisecond)
	mu.Lock()
	assert.Equal(t, 0, disposed)
	mu.Unlock()
}

func TestStatusSubscription(t *testing.T) {
	m, _, _ := newTestManager(t)

	var mu sync.Mutex
	var seen []Status
	off := m.OnStatus(func(s Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	defer off()

	m.Connect()
	waitForStatus(t, m, StatusConnected)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, StatusConnecting)
	assert.Contains(t, seen, StatusConnected)
}

func TestServiceForceNewNeverLeavesTwoConnections(t *testing.T) {
	dialer := &fakeDialer{}
	tokens := &fakeTokens{token: "tok", userID: 42, messaging: true}
	svc := NewService(testConfig(), tokens, zap.NewNop(), WithServiceDialer(dialer.dial))
	defer svc.Shutdown()

	first := svc.Initialize(false)
	assert.Same(t, first, svc.Initialize(false))
	first.Connect()
	waitForStatus(t, first, StatusConnected)

	second := svc.Initialize(true)
	third := svc.Initialize(true)

	assert.Equal(t, StatusClosed, first.Status())
	assert.Equal(t, StatusClosed, second.Status())
	second.Connect()
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, dialer.openConns(), 1)

	third.Connect()
	waitForStatus(t, third, StatusConnected)
	assert.LessOrEqual(t, dialer.openConns(), 1)
	assert.Same(t, third, svc.Current())
}
