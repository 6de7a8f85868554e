package view

import (
	"context"
	"errors"
	"sync"
	"time"

	"tally/internal/cache"
	"tally/internal/identity"
	"tally/internal/log"
	"tally/internal/records"
)

// ErrUnknownSession is returned for a session id that was never opened or
// has been closed.
var ErrUnknownSession = errors.New("unknown session")

// ErrSessionClosed is returned when a signed-out session id is reused.
var ErrSessionClosed = errors.New("session closed")

const maxRevoked = 10000

type session struct {
	ident   *identity.Session
	coord   *Coordinator
	expires time.Time // zero never expires
}

// Sessions owns one coordinator per signed-in session. A session is keyed by
// the id carried in its token, so two browser tabs of one user get separate
// view state over the same record feed.
type Sessions struct {
	ctx    context.Context
	store  records.Store
	opts   Options
	now    func() time.Time
	logger *log.Logger

	mu      sync.Mutex
	open    map[string]*session
	revoked *cache.LRUCache[struct{}]
}

// NewSessions binds every coordinator it creates to ctx.
func NewSessions(ctx context.Context, store records.Store, opts Options) *Sessions {
	logger := opts.Logger
	if logger == nil {
		logger = log.FromContext(ctx)
	}
	opts.Logger = logger
	if opts.RevokeFor <= 0 {
		opts.RevokeFor = 24 * time.Hour
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	revoked := cache.NewLRUCache[struct{}](maxRevoked, opts.RevokeFor).WithClock(now)
	return &Sessions{
		ctx:     ctx,
		store:   store,
		opts:    opts,
		now:     now,
		logger:  logger.WithComponent(log.ComponentView),
		open:    make(map[string]*session),
		revoked: revoked,
	}
}

var _ cache.Cleaner = (*Sessions)(nil)

// Revoked exposes the signed-out id set so a cache.Manager can sweep it.
func (s *Sessions) Revoked() cache.Cleaner {
	return s.revoked
}

// Open returns the coordinator of sessionID, creating and signing it in as
// userID on first use. The session ends at expires, normally the expiry of
// the token that carried sessionID; a zero time keeps it open until SignOut.
func (s *Sessions) Open(sessionID, userID string, expires time.Time) (*Coordinator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.revoked.Contains(sessionID) {
		return nil, ErrSessionClosed
	}
	if !expires.IsZero() && !s.now().Before(expires) {
		return nil, ErrSessionClosed
	}

	if sess, ok := s.open[sessionID]; ok {
		if cur, _ := sess.ident.Current(); cur != userID {
			sess.ident.SignIn(userID)
		}
		if expires.After(sess.expires) {
			sess.expires = expires
		}
		return sess.coord, nil
	}

	ident := identity.NewSession()
	coord := New(s.store, ident, s.opts)
	if err := coord.Start(s.ctx); err != nil {
		return nil, err
	}
	ident.SignIn(userID)
	if snap := coord.Snapshot(); snap.StreamError != "" {
		coord.Stop()
		return nil, records.WrapStoreError("subscribe", errors.New(snap.StreamError))
	}
	s.open[sessionID] = &session{ident: ident, coord: coord, expires: expires}
	s.logger.InfoContext(s.ctx, "Session opened",
		log.FieldSessionID, sessionID,
		log.FieldUserID, userID)
	return coord, nil
}

// Get returns the coordinator of an open session.
func (s *Sessions) Get(sessionID string) (*Coordinator, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.open[sessionID]
	if !ok {
		return nil, false
	}
	return sess.coord, true
}

// SignOut clears the identity of sessionID and releases its coordinator.
// The id cannot be opened again until it ages out of the revoked set.
func (s *Sessions) SignOut(sessionID string) error {
	s.mu.Lock()
	sess, ok := s.open[sessionID]
	if ok {
		s.revoked.Set(sessionID, struct{}{})
		delete(s.open, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	sess.ident.SignOut()
	sess.coord.Stop()
	s.logger.InfoContext(s.ctx, "Session closed", log.FieldSessionID, sessionID)
	return nil
}

// CleanExpired closes every session past its expiry and reports how many
// were closed. It lets a cache.Manager sweep sessions whose tokens lapsed.
func (s *Sessions) CleanExpired() int {
	now := s.now()
	var expired []*session
	s.mu.Lock()
	for id, sess := range s.open {
		if sess.expires.IsZero() || now.Before(sess.expires) {
			continue
		}
		expired = append(expired, sess)
		delete(s.open, id)
		s.logger.InfoContext(s.ctx, "Session expired", log.FieldSessionID, id)
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.ident.SignOut()
		sess.coord.Stop()
	}
	return len(expired)
}

// Len reports the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}

// CloseAll signs out every session.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	open := s.open
	s.open = make(map[string]*session)
	s.mu.Unlock()
	for _, sess := range open {
		sess.ident.SignOut()
		sess.coord.Stop()
	}
}
