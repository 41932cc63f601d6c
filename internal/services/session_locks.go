package services

import "sync"

// sessionLocks serializes answer processing per session. The adaptive state
// machine assumes one answer at a time; without this, two concurrent
// submissions for the same session could both read the pre-answer streaks
// and clobber each other's transition.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[uint]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[uint]*sessionLock)}
}

// Lock acquires the lock for a session id and returns its unlock function.
// Entries are reference counted and removed when the last holder releases,
// so the map does not grow with the number of historical sessions.
func (s *sessionLocks) Lock(sessionID uint) func() {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.mu.Unlock()
	}
}
