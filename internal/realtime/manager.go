package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/daynest/realtime/internal/domain"
)

// Status is the connection lifecycle state.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusConnecting    Status = "connecting"
	StatusConnected     Status = "connected"
	StatusDisconnected  Status = "disconnected"
	StatusFailed        Status = "failed" // retry budget exhausted; a manual Connect resets it
	StatusClosed        Status = "closed" // torn down, terminal for this instance
)

// TokenSource supplies the credential and identity at connect time. The
// session store implements it. The token is read once per attempt and never
// refreshed mid-connection; a re-login goes through Service.Initialize with
// forceNew instead.
type TokenSource interface {
	Token() string
	UserID() int64
	Can(c domain.Capability) bool
}

type Config struct {
	URL          string
	DialTimeout  time.Duration
	MaxAttempts  int
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BackoffBase  time.Duration
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	return c
}

// Manager owns exactly one realtime connection. Lifecycle mutation happens
// only here; everything else reads status or subscribes to events. Transport
// failures never surface as errors, only as status changes.
type Manager struct {
	cfg    Config
	dial   Dialer
	tokens TokenSource
	logger *zap.Logger

	mu       sync.Mutex
	status   Status
	conn     Conn
	userID   int64 // room joined with, fixed per connection
	attempts int
	gen      int // bumped on teardown so stale goroutines stand down
	running  bool

	// writeMu serializes socket writes; WriteMessage is not safe for
	// concurrent use.
	writeMu sync.Mutex

	handlers   map[string]map[int]func(domain.ServerEvent)
	statusSubs map[int]func(Status)
	nextID     int
}

type Option func(*Manager)

func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dial = d }
}

func New(cfg Config, tokens TokenSource, logger *zap.Logger, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:        cfg,
		dial:       DefaultDialer(cfg.DialTimeout),
		tokens:     tokens,
		logger:     logger,
		status:     StatusUninitialized,
		handlers:   make(map[string]map[int]func(domain.ServerEvent)),
		statusSubs: make(map[int]func(Status)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connect starts the connection unless it is already running or torn down.
// Without a token, or without the messaging entitlement, nothing happens and
// no transport object is created. A manual call resets the retry budget.
func (m *Manager) Connect() {
	m.mu.Lock()
	switch m.status {
	case StatusConnecting, StatusConnected:
		m.mu.Unlock()
		return
	case StatusClosed:
		m.mu.Unlock()
		m.logger.Warn("connect called on torn-down realtime manager")
		return
	}
	m.mu.Unlock()

	if m.tokens.Token() == "" {
		m.logger.Info("realtime connect skipped: no session token")
		return
	}
	if !m.tokens.Can(domain.CapabilityMessaging) {
		m.logger.Info("realtime connect skipped: messaging not entitled")
		return
	}

	m.mu.Lock()
	if m.status == StatusConnecting || m.status == StatusConnected || m.status == StatusClosed {
		m.mu.Unlock()
		return
	}
	m.attempts = 0
	if m.running {
		// A reconnect loop is already live; the fresh budget is enough.
		m.mu.Unlock()
		return
	}
	m.running = true
	gen := m.gen
	subs := m.transitionLocked(StatusConnecting)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(StatusConnecting)
	}
	go m.run(gen)
}

// Disconnect leaves the room and closes the transport. Idempotent. The
// manager is terminal afterwards; a new session needs a new instance.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.status == StatusClosed {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	userID := m.userID
	m.conn = nil
	m.gen++
	subs := m.transitionLocked(StatusClosed)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(StatusClosed)
	}

	if conn != nil {
		data, err := json.Marshal(domain.ClientEvent{Type: domain.EventLeaveRoom, UserID: userID})
		if err == nil {
			m.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
			// Best effort; the server also detects the close.
			conn.WriteMessage(websocket.TextMessage, data)
			m.writeMu.Unlock()
		}
		conn.Close()
	}
}

// On registers a handler for a server event type and returns its disposer.
// Callers must invoke the disposer on teardown; a leaked registration means
// duplicate delivery after a remount.
func (m *Manager) On(event string, fn func(domain.ServerEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers[event] == nil {
		m.handlers[event] = make(map[int]func(domain.ServerEvent))
	}
	id := m.nextID
	m.nextID++
	m.handlers[event][id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers[event], id)
	}
}

// OnStatus registers for lifecycle transitions and returns a disposer.
func (m *Manager) OnStatus(fn func(Status)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.statusSubs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.statusSubs, id)
	}
}

// Emit sends a fire-and-forget room event. Failures degrade to a log line;
// the read loop notices a dead transport on its own.
func (m *Manager) Emit(event string, userID int64) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		m.logger.Debug("emit dropped, not connected", zap.String("event", event))
		return
	}

	data, err := json.Marshal(domain.ClientEvent{Type: event, UserID: userID})
	if err != nil {
		m.logger.Warn("failed to encode client event", zap.String("event", event), zap.Error(err))
		return
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.logger.Warn("realtime write failed", zap.String("event", event), zap.Error(err))
	}
}

// transitionLocked records the new status and snapshots subscribers. The
// caller must invoke them after releasing the lock.
func (m *Manager) transitionLocked(to Status) []func(Status) {
	if m.status == to {
		return nil
	}
	m.status = to
	m.logger.Debug("realtime status change", zap.String("status", string(to)))
	subs := make([]func(Status), 0, len(m.statusSubs))
	for _, fn := range m.statusSubs {
		subs = append(subs, fn)
	}
	return subs
}

func (m *Manager) transitionIf(gen int, to Status) {
	m.mu.Lock()
	if m.gen != gen || m.status == StatusClosed {
		m.mu.Unlock()
		return
	}
	subs := m.transitionLocked(to)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(to)
	}
}

// run is the connect/reconnect loop. It exits when the budget is exhausted,
// the session disappears, or the manager is torn down (gen mismatch).
func (m *Manager) run(gen int) {
	defer func() {
		m.mu.Lock()
		if m.gen == gen {
			m.running = false
		}
		m.mu.Unlock()
	}()

	for {
		m.mu.Lock()
		if m.gen != gen || m.status == StatusClosed {
			m.mu.Unlock()
			return
		}
		attempt := m.attempts
		m.mu.Unlock()

		if attempt >= m.cfg.MaxAttempts {
			m.logger.Warn("realtime connection failed, giving up",
				zap.Int("attempts", attempt))
			m.transitionIf(gen, StatusFailed)
			return
		}
		if attempt > 0 {
			time.Sleep(backoff(m.cfg.BackoffBase, attempt))
		}

		// The token is read fresh per attempt but a running connection
		// never re-reads it.
		token := m.tokens.Token()
		if token == "" {
			m.logger.Info("realtime reconnect aborted: session is gone")
			m.transitionIf(gen, StatusUninitialized)
			return
		}
		userID := m.tokens.UserID()

		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)
		conn, err := m.dial(m.cfg.URL, header)
		if err != nil {
			m.logger.Warn("realtime dial failed",
				zap.Int("attempt", attempt+1), zap.Error(err))
			m.mu.Lock()
			if m.gen != gen || m.status == StatusClosed {
				m.mu.Unlock()
				return
			}
			m.attempts++
			m.mu.Unlock()
			continue
		}

		m.mu.Lock()
		if m.gen != gen || m.status == StatusClosed {
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.conn = conn
		m.userID = userID
		m.attempts = 0
		subs := m.transitionLocked(StatusConnected)
		m.mu.Unlock()
		for _, fn := range subs {
			fn(StatusConnected)
		}

		m.logger.Info("realtime connected", zap.Int64("user_id", userID))
		m.Emit(domain.EventJoinRoom, userID)

		m.readLoop(conn)

		// The read loop only returns when the transport died or the
		// manager was torn down.
		m.mu.Lock()
		if m.gen != gen || m.status == StatusClosed {
			m.mu.Unlock()
			return
		}
		m.conn = nil
		subs = m.transitionLocked(StatusDisconnected)
		m.mu.Unlock()
		for _, fn := range subs {
			fn(StatusDisconnected)
		}
		// No leave_room here: the server detects the drop. Breathe once,
		// then re-enter the dial loop with a full budget.
		time.Sleep(m.cfg.BackoffBase)
	}
}

// readLoop pumps server events until the transport dies. It also runs the
// keep-alive pinger; a pong resets the read deadline.
func (m *Manager) readLoop(conn Conn) {
	conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.cfg.ReadTimeout))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		ticker := time.NewTicker(m.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopPing:
				return
			case <-ticker.C:
				m.writeMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				m.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Warn("realtime transport dropped", zap.Error(err))
			}
			return
		}

		var ev domain.ServerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			m.logger.Warn("ignoring malformed realtime event", zap.Error(err))
			continue
		}
		m.dispatch(ev)
	}
}

func (m *Manager) dispatch(ev domain.ServerEvent) {
	m.mu.Lock()
	registered := m.handlers[ev.Type]
	fns := make([]func(domain.ServerEvent), 0, len(registered))
	for _, fn := range registered {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// backoff doubles from base per attempt, capped at 30s.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}
