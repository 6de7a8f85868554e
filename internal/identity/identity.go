// Package identity models the credential provider as an opaque capability:
// something that yields a stable user id or reports that nobody is signed in.
package identity

import (
	"sync"
)

type (
	// ChangeFunc is called with the new identity; ok is false on sign-out.
	ChangeFunc func(userID string, ok bool)

	Provider interface {
		Current() (userID string, ok bool)
		// OnChange registers fn and returns a function that unregisters it.
		OnChange(fn ChangeFunc) (cancel func())
	}
)

// Session is a Provider whose identity is set explicitly on sign-in and
// cleared on sign-out. Listeners run synchronously in registration order.
type Session struct {
	mu        sync.Mutex
	userID    string
	listeners map[int]ChangeFunc
	order     []int
	next      int
}

var _ Provider = (*Session)(nil)

func NewSession() *Session {
	return &Session{listeners: make(map[int]ChangeFunc)}
}

func (s *Session) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.userID != ""
}

func (s *Session) OnChange(fn ChangeFunc) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.listeners[id] = fn
	s.order = append(s.order, id)
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// SignIn switches the session to userID. Signing in as the current user
// does not notify listeners.
func (s *Session) SignIn(userID string) {
	s.set(userID)
}

// SignOut clears the identity.
func (s *Session) SignOut() {
	s.set("")
}

func (s *Session) set(userID string) {
	s.mu.Lock()
	if s.userID == userID {
		s.mu.Unlock()
		return
	}
	s.userID = userID
	fns := make([]ChangeFunc, 0, len(s.listeners))
	for _, id := range s.order {
		if fn, ok := s.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(userID, userID != "")
	}
}
