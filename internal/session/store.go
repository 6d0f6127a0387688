package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/daynest/realtime/internal/domain"
	"github.com/daynest/realtime/pkg/auth"
)

// Store is the single source of truth for who is logged in. It owns the
// session; every other component only reads copies or individual fields.
type Store struct {
	baseURL string
	client  *http.Client
	persist Persister
	logger  *zap.Logger

	mu      sync.RWMutex
	current *domain.Session

	// onTeardown fires whenever the session dies (logout, 401, missing
	// token). The caller wires return-to-login navigation and realtime
	// teardown here; it must be idempotent.
	onTeardown func()
}

type Option func(*Store)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

func WithTeardownHook(fn func()) Option {
	return func(s *Store) { s.onTeardown = fn }
}

func NewStore(baseURL string, persist Persister, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		persist: persist,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type loginResponse struct {
	Token        string              `json:"token"`
	User         domain.User         `json:"user"`
	Subscription domain.Entitlements `json:"subscription"`
}

// Login authenticates against the platform and stores the resulting session
// in memory and in the persistent slot. Bad credentials surface as ErrAuth
// with the server's message; nothing is retried.
func (s *Store) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", domain.ErrAuth, serverMessage(resp.Body))
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return nil, fmt.Errorf("login response: %w", err)
	}

	sess := &domain.Session{
		User:         lr.User,
		Token:        lr.Token,
		Entitlements: lr.Subscription,
		CreatedAt:    time.Now(),
	}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	if err := s.persist.Save(sess); err != nil {
		// A persist fault never fails the login; the session just won't
		// survive a restart.
		s.logger.Warn("failed to persist session", zap.Error(err))
	}

	s.logger.Info("logged in",
		zap.Int64("user_id", sess.User.ID),
		zap.String("role", string(sess.User.Role)))
	return sess, nil
}

// Logout clears in-memory and persisted state unconditionally, then fires
// the teardown hook. The session is gone before any collaborator reacts, so
// a reconnect can never pick up the stale token.
func (s *Store) Logout() {
	s.mu.Lock()
	had := s.current != nil
	s.current = nil
	s.mu.Unlock()

	if err := s.persist.Clear(); err != nil {
		s.logger.Warn("failed to clear persisted session", zap.Error(err))
	}
	if had {
		s.logger.Info("logged out")
	}
	if s.onTeardown != nil {
		s.onTeardown()
	}
}

// Restore loads the persisted snapshot, if any. It never touches the
// network; an expired or garbled token is treated as no session at all and
// the slot is cleared.
func (s *Store) Restore() *domain.Session {
	sess, err := s.persist.Load()
	if err != nil {
		s.logger.Warn("failed to load persisted session", zap.Error(err))
		return nil
	}
	if sess == nil || sess.Token == "" {
		return nil
	}

	claims, err := auth.ParseClaims(sess.Token)
	if err != nil || claims.Expired(time.Now()) {
		s.logger.Info("discarding stale persisted session")
		if err := s.persist.Clear(); err != nil {
			s.logger.Warn("failed to clear persisted session", zap.Error(err))
		}
		return nil
	}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()

	s.logger.Info("session restored", zap.Int64("user_id", sess.User.ID))
	cp := *sess
	return &cp
}

// Current returns a copy of the active session, or nil.
func (s *Store) Current() *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// Token returns the bearer token, or "" when unauthenticated.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// UserID returns the authenticated user id, or 0.
func (s *Store) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return 0
	}
	return s.current.User.ID
}

// Can consults the cached entitlement snapshot.
func (s *Store) Can(c domain.Capability) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return false
	}
	return s.current.Entitlements.Can(c)
}

// Do performs an authenticated request and decodes a 2xx JSON body into out
// (out may be nil). A missing token fails before any network I/O; a 401
// kills the session. Both return the matching sentinel after tearing down.
func (s *Store) Do(ctx context.Context, method, path string, body, out any) error {
	token := s.Token()
	if token == "" {
		s.Logout()
		return domain.ErrNoToken
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		s.logger.Warn("token rejected, tearing down session", zap.String("path", path))
		s.Logout()
		return domain.ErrSessionExpired
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &domain.RequestError{Status: resp.StatusCode, Message: serverMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// UnreadCount performs the authoritative unread-count pull.
func (s *Store) UnreadCount(ctx context.Context) (int, error) {
	var body struct {
		Count int `json:"count"`
	}
	if err := s.Do(ctx, http.MethodGet, "/chat/unread-count", nil, &body); err != nil {
		return 0, err
	}
	return body.Count, nil
}

// serverMessage extracts the error message from a non-2xx body. The API
// returns either {"error": ...} or {"message": ...}; plain text bodies pass
// through as-is.
func serverMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(data))
}
