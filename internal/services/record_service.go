// Package services ties the record store to the change bus.
package services

import (
	"context"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/records"
)

// Publisher sends record change events to other processes.
type Publisher interface {
	Publish(ctx context.Context, msg *amqp.RecordChangedMessage) error
}

// RecordService is a records.Store that announces every committed change on
// the bus. Publishing is best effort: the write already succeeded, so a
// failed publish is logged and not returned.
type RecordService struct {
	store     records.Store
	publisher Publisher
	origin    string
	logger    *log.Logger
}

var _ records.Store = (*RecordService)(nil)

// NewRecordService wraps store. publisher may be nil when no bus is
// configured.
func NewRecordService(store records.Store, publisher Publisher, origin string, logger *log.Logger) *RecordService {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &RecordService{
		store:     store,
		publisher: publisher,
		origin:    origin,
		logger:    logger.WithComponent(log.ComponentRecords),
	}
}

func (s *RecordService) Subscribe(ctx context.Context, userID string, fn records.SnapshotFunc) (records.Subscription, error) {
	return s.store.Subscribe(ctx, userID, fn)
}

// Add stores the record, then publishes an added event.
func (s *RecordService) Add(ctx context.Context, userID string, rec core.NewRecord) (string, error) {
	id, err := s.store.Add(ctx, userID, rec)
	if err != nil {
		return "", err
	}
	s.publish(ctx, userID, id, amqp.OpAdded)
	return id, nil
}

// Remove deletes the record, then publishes a removed event.
func (s *RecordService) Remove(ctx context.Context, userID, recordID string) error {
	if err := s.store.Remove(ctx, userID, recordID); err != nil {
		return err
	}
	s.publish(ctx, userID, recordID, amqp.OpRemoved)
	return nil
}

func (s *RecordService) publish(ctx context.Context, userID, recordID string, op amqp.Op) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP client not available, skipping change event")
		return
	}
	msg := amqp.NewRecordChangedMessage(userID, recordID, op, s.origin)
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish change event",
			log.FieldUserID, userID,
			log.FieldRecordID, recordID,
			log.FieldOperation, string(op),
			log.FieldError, err)
	}
}
