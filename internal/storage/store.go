// Package storage is the SQLite record store.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/records"
)

// timeLayout is fixed width so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const selectRecords = `SELECT id, name, unit_price, quantity, category, created_at
FROM records WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`

// SQLiteStore persists records and feeds snapshots to local subscribers.
// Writes and the snapshot that follows them are serialized by mu, so every
// subscriber sees snapshots in commit order.
type SQLiteStore struct {
	db     *sql.DB
	hub    *records.Hub
	now    func() time.Time
	logger *log.Logger

	mu     sync.Mutex
	closed bool
}

// Ensure interface conformance
var (
	_ records.Store     = (*SQLiteStore)(nil)
	_ records.Refresher = (*SQLiteStore)(nil)
)

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock replaces the timestamp source for new records.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *SQLiteStore) { s.logger = logger }
}

func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		hub:    records.NewHub(),
		now:    time.Now,
		logger: log.FromContext(context.Background()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentStorage)
	return s, nil
}

// Subscribe delivers the current records of userID, then one snapshot per
// committed change.
func (s *SQLiteStore) Subscribe(ctx context.Context, userID string, fn records.SnapshotFunc) (records.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, records.WrapStoreError("subscribe", records.ErrClosed)
	}

	recs, err := s.load(ctx, userID)
	if err != nil {
		return nil, records.WrapStoreError("subscribe", err)
	}
	feed, err := s.hub.Add(userID, fn)
	if err != nil {
		return nil, records.WrapStoreError("subscribe", err)
	}
	feed.Deliver(recs)
	return feed, nil
}

// Add inserts the record with a fresh id and the current UTC time.
func (s *SQLiteStore) Add(ctx context.Context, userID string, rec core.NewRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", records.WrapStoreError("add", records.ErrClosed)
	}

	id := uuid.NewString()
	createdAt := s.now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, user_id, name, unit_price, quantity, category, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, userID, rec.Name, rec.UnitPrice.String(), rec.Quantity, rec.Category, createdAt)
	if err != nil {
		return "", records.WrapStoreError("add", fmt.Errorf("insert record: %w", err))
	}

	s.logger.InfoContext(ctx, "Record saved to SQLite",
		log.FieldUserID, userID,
		log.FieldRecordID, id,
		log.FieldCategory, rec.Category)

	s.publishLocked(ctx, userID)
	return id, nil
}

// Remove deletes the record of userID with recordID. Unknown ids are a no-op.
func (s *SQLiteStore) Remove(ctx context.Context, userID, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return records.WrapStoreError("remove", records.ErrClosed)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ? AND user_id = ?`, recordID, userID)
	if err != nil {
		return records.WrapStoreError("remove", fmt.Errorf("delete record: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return records.WrapStoreError("remove", fmt.Errorf("rows affected: %w", err))
	}
	if n == 0 {
		s.logger.DebugContext(ctx, "Delete of unknown record ignored",
			log.FieldUserID, userID,
			log.FieldRecordID, recordID)
		return nil
	}

	s.logger.InfoContext(ctx, "Record deleted from SQLite",
		log.FieldUserID, userID,
		log.FieldRecordID, recordID)

	s.publishLocked(ctx, userID)
	return nil
}

// Refresh re-reads userID's records and delivers them to local subscribers.
// It is a no-op when nobody in this process follows userID.
func (s *SQLiteStore) Refresh(ctx context.Context, userID string) error {
	if s.hub.Subscribers(userID) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return records.ErrClosed
	}
	recs, err := s.load(ctx, userID)
	if err != nil {
		return records.WrapStoreError("refresh", err)
	}
	s.hub.Publish(userID, recs)
	return nil
}

// ListRecords returns userID's records, newest first.
func (s *SQLiteStore) ListRecords(ctx context.Context, userID string) ([]core.ExpenseRecord, error) {
	return s.load(ctx, userID)
}

// Users lists every user with at least one record.
func (s *SQLiteStore) Users(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM records ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Subscribers reports live local subscriptions for userID.
func (s *SQLiteStore) Subscribers(userID string) int {
	return s.hub.Subscribers(userID)
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.hub.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// publishLocked sends the committed state of userID to its subscribers. A
// failed reload is logged; subscribers keep their last snapshot.
func (s *SQLiteStore) publishLocked(ctx context.Context, userID string) {
	if s.hub.Subscribers(userID) == 0 {
		return
	}
	recs, err := s.load(ctx, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Reload after write failed",
			log.FieldUserID, userID,
			log.FieldError, err)
		return
	}
	s.hub.Publish(userID, recs)
}

func (s *SQLiteStore) load(ctx context.Context, userID string) ([]core.ExpenseRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectRecords, userID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	recs := []core.ExpenseRecord{}
	for rows.Next() {
		var (
			r         core.ExpenseRecord
			price     string
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.Name, &price, &r.Quantity, &r.Category, &createdAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.UnitPrice, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("record %s: bad unit price %q: %w", r.ID, price, err)
		}
		r.CreatedAt, r.RawCreatedAt = parseTimestamp(createdAt)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return recs, nil
}

// parseTimestamp reads a stored ISO-8601 time. Unreadable values come back
// as the zero time plus the raw text.
func parseTimestamp(s string) (time.Time, string) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, ""
		}
	}
	return time.Time{}, s
}
