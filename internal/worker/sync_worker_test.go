package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/sheets/memory"
	"tally/internal/storage"
)

func newTestStorage(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	s, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "worker.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addRecord(t *testing.T, s *storage.SQLiteStore, userID, name string) string {
	t.Helper()
	id, err := s.Add(context.Background(), userID, core.NewRecord{
		Name:      name,
		UnitPrice: decimal.RequireFromString("4.20"),
		Quantity:  1,
		Category:  "Food",
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return id
}

func TestHandleChangeMessage(t *testing.T) {
	store := newTestStorage(t)
	mirror := memory.New(time.UTC)
	w := NewSyncWorker(store, mirror, nil)

	id := addRecord(t, store, "u1", "Lunch")
	msg := amqp.NewRecordChangedMessage("u1", id, amqp.OpAdded, "web-1")
	if err := w.HandleChangeMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleChangeMessage() error = %v", err)
	}

	rows, ok := mirror.Tab("u1")
	if !ok || len(rows) != 2 {
		t.Fatalf("tab rows = %v", rows)
	}
	if rows[1][1] != "Lunch" || rows[1][5] != "4.20" {
		t.Fatalf("row = %v", rows[1])
	}

	if err := store.Remove(context.Background(), "u1", id); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	msg = amqp.NewRecordChangedMessage("u1", id, amqp.OpRemoved, "web-1")
	if err := w.HandleChangeMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleChangeMessage() error = %v", err)
	}
	if rows, _ := mirror.Tab("u1"); len(rows) != 1 {
		t.Fatalf("expected header only after removal, got %v", rows)
	}
}

func TestHandleChangeMessageMirrorError(t *testing.T) {
	store := newTestStorage(t)
	mirror := memory.New(time.UTC)
	mirror.FailWith(errors.New("quota exceeded"))
	w := NewSyncWorker(store, mirror, nil)

	msg := amqp.NewRecordChangedMessage("u1", "r1", amqp.OpAdded, "web-1")
	if err := w.HandleChangeMessage(context.Background(), msg); err == nil {
		t.Fatal("expected mirror error")
	}
}

func TestSyncAll(t *testing.T) {
	store := newTestStorage(t)
	mirror := memory.New(time.UTC)
	w := NewSyncWorker(store, mirror, nil)

	addRecord(t, store, "u1", "Tea")
	addRecord(t, store, "u2", "Coffee")
	addRecord(t, store, "u2", "Cake")

	if err := w.SyncAll(context.Background()); err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if mirror.Calls() != 2 {
		t.Fatalf("calls = %d, want 2", mirror.Calls())
	}
	if rows, _ := mirror.Tab("u2"); len(rows) != 3 {
		t.Fatalf("u2 rows = %v", rows)
	}

	mirror.FailWith(errors.New("offline"))
	if err := w.SyncAll(context.Background()); err == nil {
		t.Fatal("expected error when every user fails")
	}
}

func TestRunPeriodicStopsOnCancel(t *testing.T) {
	store := newTestStorage(t)
	mirror := memory.New(time.UTC)
	w := NewSyncWorker(store, mirror, nil)
	addRecord(t, store, "u1", "Tea")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.RunPeriodic(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for mirror.Calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPeriodic did not return after cancel")
	}
	if mirror.Calls() == 0 {
		t.Fatal("periodic sync never ran")
	}
}
