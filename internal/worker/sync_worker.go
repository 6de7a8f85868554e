package worker

import (
	"context"
	"fmt"
	"time"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/sheets"
)

// RecordLister reads committed records straight from storage.
type RecordLister interface {
	ListRecords(ctx context.Context, userID string) ([]core.ExpenseRecord, error)
	Users(ctx context.Context) ([]string, error)
}

// SyncWorker keeps each user's spreadsheet tab in step with SQLite.
type SyncWorker struct {
	storage RecordLister
	mirror  sheets.RecordMirror
	logger  *log.Logger
}

func NewSyncWorker(storage RecordLister, mirror sheets.RecordMirror, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &SyncWorker{
		storage: storage,
		mirror:  mirror,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// HandleChangeMessage re-mirrors the user named by a record change event.
func (w *SyncWorker) HandleChangeMessage(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing record change",
		log.FieldUserID, msg.UserID,
		log.FieldRecordID, msg.RecordID,
		log.FieldOperation, string(msg.Op),
		log.FieldOrigin, msg.Origin)

	if err := w.SyncUser(ctx, msg.UserID); err != nil {
		return fmt.Errorf("sync user %s: %w", msg.UserID, err)
	}
	return nil
}

// SyncUser writes every record of userID to its tab.
func (w *SyncWorker) SyncUser(ctx context.Context, userID string) error {
	recs, err := w.storage.ListRecords(ctx, userID)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	if err := w.mirror.MirrorRecords(ctx, userID, recs); err != nil {
		return fmt.Errorf("mirror records: %w", err)
	}
	return nil
}

// SyncAll mirrors every user found in storage. A failing user is logged and
// skipped; the error reports how many failed.
func (w *SyncWorker) SyncAll(ctx context.Context) error {
	users, err := w.storage.Users(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	successCount := 0
	errorCount := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.SyncUser(ctx, userID); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync user",
				log.FieldUserID, userID,
				log.FieldError, err)
			errorCount++
			continue
		}
		successCount++
	}

	w.logger.InfoContext(ctx, "Full sync completed",
		"total", len(users),
		"synced", successCount,
		"errors", errorCount)

	if errorCount > 0 {
		return fmt.Errorf("%d of %d users failed to sync", errorCount, len(users))
	}
	return nil
}

// RunPeriodic calls SyncAll every interval until ctx is done. Missed AMQP
// events are picked up here.
func (w *SyncWorker) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.SyncAll(ctx); err != nil && ctx.Err() == nil {
				w.logger.WarnContext(ctx, "Periodic sync incomplete", log.FieldError, err)
			}
		}
	}
}
