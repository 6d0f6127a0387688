package realtime

import (
	"sync"

	"go.uber.org/zap"
)

// Service owns the single live Manager for the process. Credentials are
// never swapped on a live instance; a re-login replaces the instance
// wholesale so no stale token or room membership leaks into the new session.
type Service struct {
	cfg    Config
	dial   Dialer
	tokens TokenSource
	logger *zap.Logger

	mu      sync.Mutex
	current *Manager
}

type ServiceOption func(*Service)

func WithServiceDialer(d Dialer) ServiceOption {
	return func(s *Service) { s.dial = d }
}

func NewService(cfg Config, tokens TokenSource, logger *zap.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		cfg:    cfg.withDefaults(),
		tokens: tokens,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dial == nil {
		s.dial = DefaultDialer(s.cfg.DialTimeout)
	}
	return s
}

// Initialize returns the live manager, creating one on first use. With
// forceNew any existing instance is destroyed first; the replacement is not
// connected until the caller asks it to, so at most one connection is ever
// open.
func (s *Service) Initialize(forceNew bool) *Manager {
	s.mu.Lock()
	old := s.current
	if old != nil && !forceNew {
		s.mu.Unlock()
		return old
	}
	next := New(s.cfg, s.tokens, s.logger, WithDialer(s.dial))
	s.current = next
	s.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}
	return next
}

// Current returns the live manager, or nil before the first Initialize.
func (s *Service) Current() *Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Shutdown tears down the live manager, if any.
func (s *Service) Shutdown() {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current != nil {
		current.Disconnect()
	}
}
