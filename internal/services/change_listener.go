package services

import (
	"context"
	"fmt"

	"tally/internal/amqp"
	"tally/internal/log"
	"tally/internal/records"
)

// ChangeListener keeps local subscribers in step with writes made by other
// processes. Events this process published itself are skipped, since the
// local store already delivered them.
type ChangeListener struct {
	refresher records.Refresher
	origin    string
	logger    *log.Logger
}

func NewChangeListener(refresher records.Refresher, origin string, logger *log.Logger) *ChangeListener {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &ChangeListener{
		refresher: refresher,
		origin:    origin,
		logger:    logger.WithComponent(log.ComponentRecords),
	}
}

// Handle is an amqp.Handler.
func (l *ChangeListener) Handle(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	if msg.Origin == l.origin {
		return nil
	}
	if err := l.refresher.Refresh(ctx, msg.UserID); err != nil {
		return fmt.Errorf("refresh %s: %w", msg.UserID, err)
	}
	l.logger.DebugContext(ctx, "Refreshed subscribers after remote change",
		log.FieldUserID, msg.UserID,
		log.FieldOrigin, msg.Origin)
	return nil
}
