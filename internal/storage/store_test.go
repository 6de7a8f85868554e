package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/records"
)

func newTestStore(t *testing.T, opts ...Option) (*SQLiteStore, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tally.db")
	s, err := NewSQLiteStore(dbPath, opts...)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, dbPath
}

func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
}

func newRecord(name, price string, qty int, category string) core.NewRecord {
	return core.NewRecord{Name: name, UnitPrice: decimal.RequireFromString(price), Quantity: qty, Category: category}
}

type snapshots struct {
	mu   sync.Mutex
	list [][]core.ExpenseRecord
}

func (s *snapshots) fn(recs []core.ExpenseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = append(s.list, recs)
}

func (s *snapshots) waitLen(t *testing.T, n int) []core.ExpenseRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if len(s.list) > 0 && len(s.list[len(s.list)-1]) == n {
			last := s.list[len(s.list)-1]
			s.mu.Unlock()
			return last
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no snapshot with %d records", n)
	return nil
}

func TestSQLiteStoreAddRemove(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, WithClock(stepClock(time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC))))

	var snaps snapshots
	sub, err := s.Subscribe(ctx, "u1", snaps.fn)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Cancel()
	snaps.waitLen(t, 0)

	first, err := s.Add(ctx, "u1", newRecord("Bread", "2.50", 2, "Food"))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := s.Add(ctx, "u1", newRecord("Diesel", "1.799", 30, "Fuel")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	recs := snaps.waitLen(t, 2)
	if recs[0].Name != "Diesel" || recs[1].ID != first {
		t.Fatalf("snapshot not newest first: %+v", recs)
	}
	if !recs[0].UnitPrice.Equal(decimal.RequireFromString("1.799")) || recs[0].Quantity != 30 {
		t.Fatalf("price or quantity lost: %+v", recs[0])
	}
	if recs[0].CreatedAt.Location() != time.UTC || !recs[0].HasTimestamp() {
		t.Fatalf("timestamp = %v", recs[0].CreatedAt)
	}

	if err := s.Remove(ctx, "u1", "missing"); err != nil {
		t.Fatalf("Remove() unknown id error = %v", err)
	}
	if err := s.Remove(ctx, "u2", first); err != nil {
		t.Fatalf("Remove() foreign id error = %v", err)
	}
	if err := s.Remove(ctx, "u1", first); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	recs = snaps.waitLen(t, 1)
	if recs[0].Name != "Diesel" {
		t.Fatalf("wrong record left: %+v", recs)
	}
}

func TestSQLiteStoreSameTimestampOrder(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, WithClock(func() time.Time { return fixed }))

	for _, name := range []string{"A", "B", "C"} {
		if _, err := s.Add(ctx, "u1", newRecord(name, "1", 1, "Food")); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	recs, err := s.ListRecords(ctx, "u1")
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(recs) != 3 || recs[0].Name != "C" || recs[2].Name != "A" {
		t.Fatalf("order = %v, %v, %v", recs[0].Name, recs[1].Name, recs[2].Name)
	}
}

func TestSQLiteStorePersists(t *testing.T) {
	ctx := context.Background()
	s, dbPath := newTestStore(t)
	if _, err := s.Add(ctx, "u1", newRecord("Bread", "2.50", 1, "Food")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := s.Add(ctx, "u2", newRecord("Taxi", "18", 1, "Travel")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	s.Close()

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	users, err := reopened.Users(ctx)
	if err != nil {
		t.Fatalf("Users() error = %v", err)
	}
	if len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
		t.Fatalf("users = %v", users)
	}
	recs, _ := reopened.ListRecords(ctx, "u1")
	if len(recs) != 1 || recs[0].Name != "Bread" {
		t.Fatalf("records = %+v", recs)
	}
}

func TestSQLiteStoreKeepsUnparsedTimestamp(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, user_id, name, unit_price, quantity, category, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"legacy", "u1", "Old", "3", 1, "Food", "sometime last spring")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	recs, err := s.ListRecords(ctx, "u1")
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(recs) != 1 || recs[0].HasTimestamp() || recs[0].RawCreatedAt != "sometime last spring" {
		t.Fatalf("record = %+v", recs)
	}
}

func TestSQLiteStoreValidation(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Add(context.Background(), "u1", core.NewRecord{Name: "x", UnitPrice: decimal.NewFromInt(1), Quantity: 0, Category: "Food"})
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSQLiteStoreRefresh(t *testing.T) {
	ctx := context.Background()
	s, dbPath := newTestStore(t)

	var snaps snapshots
	sub, err := s.Subscribe(ctx, "u1", snaps.fn)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Cancel()
	snaps.waitLen(t, 0)

	// Another process writes to the same database.
	other, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("open second store: %v", err)
	}
	defer other.Close()
	if _, err := other.Add(ctx, "u1", newRecord("Tea", "2", 1, "Food")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := s.Refresh(ctx, "u1"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	snaps.waitLen(t, 1)
}

func TestSQLiteStoreClosed(t *testing.T) {
	s, _ := newTestStore(t)
	s.Close()
	_, err := s.Add(context.Background(), "u1", newRecord("x", "1", 1, "Food"))
	if !errors.Is(err, records.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	var se *records.StoreError
	if !errors.As(err, &se) || se.Op != "add" {
		t.Fatalf("expected add StoreError, got %v", err)
	}
}
