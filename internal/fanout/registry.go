// Package fanout implements the Realtime Fanout (F): a per-user WebSocket
// session registry that delivers task-updates events to every browser tab
// a user currently has open, grounded on the pack's gorilla/websocket hub
// pattern but keyed by user identity instead of broadcast subscriptions,
// since every message here already belongs to exactly one user.
package fanout

import (
	"sync"

	"github.com/gocodealone/taskrecur/internal/applog"
	"github.com/gocodealone/taskrecur/internal/ids"
)

// Registry tracks every open session, grouped by the user it belongs to.
// Registration and lookup are O(1); delivery to one user fans out to every
// session that user has open (e.g. two browser tabs).
type Registry struct {
	logger applog.Logger

	mu       sync.RWMutex
	sessions map[ids.ID]map[*Session]struct{}
}

func NewRegistry(logger applog.Logger) *Registry {
	return &Registry{
		logger:   logger,
		sessions: make(map[ids.ID]map[*Session]struct{}),
	}
}

func (r *Registry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[s.userID]
	if !ok {
		set = make(map[*Session]struct{})
		r.sessions[s.userID] = set
	}
	set[s] = struct{}{}
}

func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[s.userID]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.sessions, s.userID)
	}
}

// Deliver sends body to every open session belonging to userID. A session
// whose outbound buffer is full is closed rather than blocked on, so one
// slow client can never back-pressure delivery to the rest.
func (r *Registry) Deliver(userID ids.ID, body []byte) {
	r.mu.RLock()
	set := r.sessions[userID]
	targets := make([]*Session, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.outbound <- body:
		default:
			r.logger.Warn("session outbound buffer full, closing", "user_id", userID)
			s.Close()
		}
	}
}

// SessionCount returns the number of open sessions for userID, for tests
// and health reporting.
func (r *Registry) SessionCount(userID ids.ID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID])
}
