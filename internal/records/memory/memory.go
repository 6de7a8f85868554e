package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/records"
)

// Store keeps every user's records in process. It is the default backend
// for local runs and the fake used by coordinator tests.
type Store struct {
	mu    sync.Mutex
	items map[string][]core.ExpenseRecord // user -> newest first
	hub   *records.Hub
	now   func() time.Time
	fail  error
}

// Ensure interface conformance
var (
	_ records.Store     = (*Store)(nil)
	_ records.Refresher = (*Store)(nil)
)

func New() *Store {
	return &Store{
		items: make(map[string][]core.ExpenseRecord),
		hub:   records.NewHub(),
		now:   time.Now,
	}
}

// WithClock replaces the timestamp source used for new records.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// Seed inserts records as if they had been added earlier. Records without an
// id get one.
func (s *Store) Seed(userID string, recs ...core.ExpenseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		s.items[userID] = append(s.items[userID], r)
	}
	sortNewestFirst(s.items[userID])
	s.hub.Publish(userID, s.snapshotLocked(userID))
}

// FailWith makes every following call return err until reset with nil.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *Store) Subscribe(_ context.Context, userID string, fn records.SnapshotFunc) (records.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, records.WrapStoreError("subscribe", s.fail)
	}
	feed, err := s.hub.Add(userID, fn)
	if err != nil {
		return nil, records.WrapStoreError("subscribe", err)
	}
	feed.Deliver(s.snapshotLocked(userID))
	return feed, nil
}

// Add stores the record with a fresh id and the current time.
func (s *Store) Add(_ context.Context, userID string, rec core.NewRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", records.WrapStoreError("add", s.fail)
	}
	r := core.ExpenseRecord{
		ID:        uuid.NewString(),
		Name:      rec.Name,
		UnitPrice: rec.UnitPrice,
		Quantity:  rec.Quantity,
		Category:  rec.Category,
		CreatedAt: s.now().UTC(),
	}
	// Newest first; equal timestamps keep insertion order with the newer on top.
	s.items[userID] = append([]core.ExpenseRecord{r}, s.items[userID]...)
	sortNewestFirst(s.items[userID])
	s.hub.Publish(userID, s.snapshotLocked(userID))
	return r.ID, nil
}

func (s *Store) Remove(_ context.Context, userID, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return records.WrapStoreError("remove", s.fail)
	}
	list := s.items[userID]
	for i, r := range list {
		if r.ID == recordID {
			s.items[userID] = append(list[:i:i], list[i+1:]...)
			s.hub.Publish(userID, s.snapshotLocked(userID))
			return nil
		}
	}
	return nil
}

// Refresh re-publishes the current snapshot of userID.
func (s *Store) Refresh(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hub.Publish(userID, s.snapshotLocked(userID))
	return nil
}

// Records returns a copy of the stored records of userID, newest first.
func (s *Store) Records(userID string) []core.ExpenseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(userID)
}

// Subscribers reports live subscriptions for userID.
func (s *Store) Subscribers(userID string) int {
	return s.hub.Subscribers(userID)
}

// Close cancels all subscriptions.
func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

func (s *Store) snapshotLocked(userID string) []core.ExpenseRecord {
	return append([]core.ExpenseRecord(nil), s.items[userID]...)
}

func sortNewestFirst(list []core.ExpenseRecord) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
