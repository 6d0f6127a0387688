package domain

import "time"

// NotificationState is the reconciled unread/presence view. UnreadCount is
// never negative; the count only ever comes from the server (a pull response
// or an authoritative push), never from local arithmetic.
type NotificationState struct {
	UnreadCount   int
	Online        map[int64]bool
	LastMessageAt map[int64]time.Time
}

func NewNotificationState() NotificationState {
	return NotificationState{
		Online:        make(map[int64]bool),
		LastMessageAt: make(map[int64]time.Time),
	}
}

// Clone returns an independent copy safe to hand to subscribers.
func (s NotificationState) Clone() NotificationState {
	cp := NotificationState{
		UnreadCount:   s.UnreadCount,
		Online:        make(map[int64]bool, len(s.Online)),
		LastMessageAt: make(map[int64]time.Time, len(s.LastMessageAt)),
	}
	for id, online := range s.Online {
		cp.Online[id] = online
	}
	for id, at := range s.LastMessageAt {
		cp.LastMessageAt[id] = at
	}
	return cp
}
