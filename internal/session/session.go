// Package session implements the process-local sticky-session store: a
// thread-safe map from thread_id to the agent a conversation is currently
// stuck to, with lazy TTL expiration.
package session

import (
	"log/slog"
	"sync"
	"time"
)

// Session tracks which agent a conversation thread is currently routed to.
type Session struct {
	ThreadID     string
	AgentID      string
	AgentHandle  string
	CreatedAt    time.Time
	LastActivity time.Time
}

// expired reports whether the session is past timeout, measured strictly:
// a session is expired iff now > last_activity + timeout.
func (s *Session) expired(now time.Time, timeout time.Duration) bool {
	return now.After(s.LastActivity.Add(timeout))
}

// Store is a thread-safe, in-memory, process-local session map. Horizontal
// scaling requires replacing this with a distributed backend — out of
// scope here, as sessions are explicitly process-local.
type Store struct {
	mu      sync.Mutex
	entries map[string]*Session
	log     *slog.Logger
}

// New creates an empty Store.
func New(log *slog.Logger) *Store {
	return &Store{entries: make(map[string]*Session), log: log}
}

// Get returns the session for threadID, or nil if none exists or it has
// expired under the given timeout. An expired session is deleted inline.
func (s *Store) Get(threadID string, timeout time.Duration) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.entries[threadID]
	if !ok {
		return nil
	}
	if sess.expired(time.Now(), timeout) {
		s.log.Debug("session expired", "thread_id", threadID, "agent_id", sess.AgentID)
		delete(s.entries, threadID)
		return nil
	}
	return sess
}

// Set creates or replaces the session for threadID.
func (s *Store) Set(threadID, agentID, agentHandle string) *Session {
	now := time.Now()
	sess := &Session{
		ThreadID:     threadID,
		AgentID:      agentID,
		AgentHandle:  agentHandle,
		CreatedAt:    now,
		LastActivity: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[threadID]; ok {
		s.log.Debug("replacing session", "thread_id", threadID, "old_agent", existing.AgentID, "new_agent", agentID)
	} else {
		s.log.Debug("creating session", "thread_id", threadID, "agent_id", agentID)
	}
	s.entries[threadID] = sess
	return sess
}

// Touch bumps last_activity for threadID. It returns false if the session
// is missing or already expired (in which case it is deleted).
func (s *Store) Touch(threadID string, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.entries[threadID]
	if !ok {
		return false
	}
	if sess.expired(time.Now(), timeout) {
		delete(s.entries, threadID)
		return false
	}
	sess.LastActivity = time.Now()
	return true
}

// Delete removes the session for threadID. It returns false if no session
// existed.
func (s *Store) Delete(threadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[threadID]; ok {
		delete(s.entries, threadID)
		return true
	}
	return false
}

// CleanupExpired removes every expired session and returns the count
// removed. Expiration is otherwise lazy (checked on Get/Touch); this is an
// optional batch sweep for long-idle processes.
func (s *Store) CleanupExpired(timeout time.Duration) int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for id, sess := range s.entries {
		if sess.expired(now, timeout) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(s.entries, id)
	}
	if len(expired) > 0 {
		s.log.Info("cleaned up expired sessions", "count", len(expired))
	}
	return len(expired)
}

// Count returns the number of active (not necessarily unexpired) sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
