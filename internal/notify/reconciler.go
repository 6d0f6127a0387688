package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/daynest/realtime/internal/domain"
)

// CountSource is the authoritative unread-count pull. The session store
// implements it.
type CountSource interface {
	UnreadCount(ctx context.Context) (int, error)
}

// Subscriber is the slice of the connection manager the reconciler needs.
type Subscriber interface {
	On(event string, fn func(domain.ServerEvent)) func()
}

// Reconciler folds push events and authoritative pulls into one consistent
// notification state. The push transport is best effort, so count-changing
// events never touch the counter directly: they schedule a refetch, and the
// pull result replaces local state wholesale. Only unread_count_update
// carries a server-computed value and is applied as-is.
type Reconciler struct {
	source   CountSource
	events   Subscriber
	userID   func() int64
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	state  domain.NotificationState
	subs   map[int]func(domain.NotificationState)
	nextID int

	// refetch has capacity one so a burst of events collapses into a
	// single trailing pull.
	refetch   chan struct{}
	disposers []func()
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(source CountSource, events Subscriber, userID func() int64, interval time.Duration, logger *zap.Logger) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		source:   source,
		events:   events,
		userID:   userID,
		interval: interval,
		logger:   logger,
		state:    domain.NewNotificationState(),
		subs:     make(map[int]func(domain.NotificationState)),
		refetch:  make(chan struct{}, 1),
	}
}

// Start subscribes to push events and runs the poll loop until Stop or
// context cancellation. The first authoritative pull happens immediately.
func (r *Reconciler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	r.disposers = []func(){
		r.events.On(domain.EventNewMessage, r.handleNewMessage),
		r.events.On(domain.EventMessagesRead, r.handleMessagesRead),
		r.events.On(domain.EventUnreadCountUpdate, r.handleCountUpdate),
		r.events.On(domain.EventUserOnline, r.presenceHandler(true)),
		r.events.On(domain.EventUserOffline, r.presenceHandler(false)),
	}

	go r.loop(ctx)
}

// Stop halts polling and releases every event subscription, so a later
// Start never sees duplicate delivery.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	for _, dispose := range r.disposers {
		dispose()
	}
	r.disposers = nil
	if r.done != nil {
		<-r.done
	}
}

// Snapshot returns a copy of the reconciled state.
func (r *Reconciler) Snapshot() domain.NotificationState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// OnChange registers a state subscriber and returns its disposer.
func (r *Reconciler) OnChange(fn func(domain.NotificationState)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// Reset clears counts and presence; used on logout.
func (r *Reconciler) Reset() {
	r.mutate(func(s *domain.NotificationState) {
		*s = domain.NewNotificationState()
	})
}

func (r *Reconciler) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.pull(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Correctness backstop against pushes missed while
			// disconnected. The pull always wins.
			r.pull(ctx)
		case <-r.refetch:
			r.pull(ctx)
		}
	}
}

// pull replaces the local count with the server's. A failed pull keeps the
// previous value; stale beats unavailable.
func (r *Reconciler) pull(ctx context.Context) {
	count, err := r.source.UnreadCount(ctx)
	if err != nil {
		r.logger.Warn("unread-count pull failed", zap.Error(err))
		return
	}
	if count < 0 {
		count = 0
	}
	r.mutate(func(s *domain.NotificationState) {
		s.UnreadCount = count
	})
}

func (r *Reconciler) requestRefetch() {
	select {
	case r.refetch <- struct{}{}:
	default:
	}
}

func (r *Reconciler) handleNewMessage(ev domain.ServerEvent) {
	if ev.ReceiverID != r.userID() {
		return
	}
	if ev.SenderID != 0 {
		r.mutate(func(s *domain.NotificationState) {
			s.LastMessageAt[ev.SenderID] = time.Now()
		})
	}
	r.requestRefetch()
}

func (r *Reconciler) handleMessagesRead(ev domain.ServerEvent) {
	if ev.ReceiverID != r.userID() {
		return
	}
	// Other senders' unread messages may remain; never assume zero.
	r.requestRefetch()
}

func (r *Reconciler) handleCountUpdate(ev domain.ServerEvent) {
	if ev.UserID != r.userID() {
		return
	}
	count := ev.Count
	if count < 0 {
		count = 0
	}
	r.mutate(func(s *domain.NotificationState) {
		s.UnreadCount = count
	})
}

// presenceHandler records counterparty presence. Last write wins; no
// refetch is needed.
func (r *Reconciler) presenceHandler(online bool) func(domain.ServerEvent) {
	return func(ev domain.ServerEvent) {
		if ev.UserID == 0 || ev.UserID == r.userID() {
			return
		}
		r.mutate(func(s *domain.NotificationState) {
			s.Online[ev.UserID] = online
		})
	}
}

// mutate applies a change under the lock and notifies subscribers with a
// snapshot afterwards.
func (r *Reconciler) mutate(apply func(*domain.NotificationState)) {
	r.mu.Lock()
	apply(&r.state)
	snap := r.state.Clone()
	subs := make([]func(domain.NotificationState), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
