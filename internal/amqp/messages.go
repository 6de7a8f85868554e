package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Op names the kind of record change.
type Op string

const (
	OpAdded   Op = "added"
	OpRemoved Op = "removed"
)

// RecordChangedMessage announces that a user's record set changed. It carries
// no record data; consumers re-read the store.
type RecordChangedMessage struct {
	UserID    string    `json:"user_id"`
	RecordID  string    `json:"record_id"`
	Op        Op        `json:"op"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecordChangedMessage stamps a change event with the current time.
// origin identifies the publishing process.
func NewRecordChangedMessage(userID, recordID string, op Op, origin string) *RecordChangedMessage {
	return &RecordChangedMessage{
		UserID:    userID,
		RecordID:  recordID,
		Op:        op,
		Origin:    origin,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordChangedMessageFromJSON decodes and checks a change event.
func RecordChangedMessageFromJSON(data []byte) (*RecordChangedMessage, error) {
	var msg RecordChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, errors.New("message without user_id")
	}
	switch msg.Op {
	case OpAdded, OpRemoved:
	default:
		return nil, fmt.Errorf("unknown op %q", msg.Op)
	}
	return &msg, nil
}
