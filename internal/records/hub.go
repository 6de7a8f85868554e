package records

import (
	"sort"
	"sync"

	"tally/internal/core"
)

// Hub fans snapshots out to the subscribers of each user. Every subscriber
// has its own delivery goroutine and a one-slot mailbox: a slow subscriber
// skips intermediate snapshots and always ends on the latest one.
//
// Publishers must call Publish for one user in snapshot order. Delivered
// slices are shared and must not be modified.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Feed]struct{}
	closed bool
}

// Feed is one subscription registered on a Hub.
type Feed struct {
	hub     *Hub
	userID  string
	fn      SnapshotFunc
	mu      sync.Mutex
	mailbox chan []core.ExpenseRecord
	done    chan struct{}
	once    sync.Once
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Feed]struct{})}
}

// Add registers fn for userID. The returned subscription receives nothing
// until the first Deliver or Publish.
func (h *Hub) Add(userID string, fn SnapshotFunc) (*Feed, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	s := &Feed{
		hub:     h,
		userID:  userID,
		fn:      fn,
		mailbox: make(chan []core.ExpenseRecord, 1),
		done:    make(chan struct{}),
	}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Feed]struct{})
	}
	h.subs[userID][s] = struct{}{}
	go s.run()
	return s, nil
}

// Publish hands records to every subscriber of userID.
func (h *Hub) Publish(userID string, records []core.ExpenseRecord) {
	h.mu.Lock()
	targets := make([]*Feed, 0, len(h.subs[userID]))
	for s := range h.subs[userID] {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.offer(records)
	}
}

// Subscribers reports how many live subscriptions userID has.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// Users lists users with at least one live subscription.
func (h *Hub) Users() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.subs))
	for u := range h.subs {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Close cancels every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Feed
	for _, set := range h.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.Unlock()

	for _, s := range all {
		s.Cancel()
	}
}

func (h *Hub) remove(s *Feed) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[s.userID]
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.userID)
	}
}

// Deliver queues records for this subscriber only, used for the initial
// snapshot of a new subscription.
func (s *Feed) Deliver(records []core.ExpenseRecord) {
	s.offer(records)
}

func (s *Feed) Cancel() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
}

func (s *Feed) offer(records []core.ExpenseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
	}
	// Replace an undelivered snapshot with the newer one.
	select {
	case <-s.mailbox:
	default:
	}
	s.mailbox <- records
}

func (s *Feed) run() {
	for {
		select {
		case <-s.done:
			return
		case records := <-s.mailbox:
			select {
			case <-s.done:
				return
			default:
			}
			s.fn(records)
		}
	}
}
