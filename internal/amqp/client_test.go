package amqp

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped at 30s
		{10, 30 * time.Second}, // capped at 30s
		{64, 30 * time.Second}, // no shift overflow
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			result := exponentialBackoff(tt.attempt)
			if result != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, result, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5672: connect: connection refused"), true},
		{"closed channel", errors.New("message channel closed"), true},
		{"EOF error", errors.New("unexpected EOF"), true},
		{"broken pipe error", errors.New("write: broken pipe"), true},
		{"amqp closed", fmt.Errorf("publish: %w", amqp091.ErrClosed), true},
		{"other error", errors.New("some other error"), false},
		{"validation error", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isConnectionError(tt.err)
			if result != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, result, tt.expected)
			}
		})
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := newBreaker("test")
	fail := errors.New("broker down")
	for i := 0; i < 5; i++ {
		if _, err := cb.Execute(func() (any, error) { return nil, fail }); !errors.Is(err, fail) {
			t.Fatalf("attempt %d: err = %v", i, err)
		}
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
	called := false
	_, err := cb.Execute(func() (any, error) { called = true; return nil, nil })
	if !errors.Is(err, gobreaker.ErrOpenState) || called {
		t.Fatalf("open breaker let the call through: %v", err)
	}
}

func TestRecordChangedMessageJSON(t *testing.T) {
	msg := NewRecordChangedMessage("u1", "r1", OpAdded, "instance-a")
	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	for _, key := range []string{`"user_id":"u1"`, `"record_id":"r1"`, `"op":"added"`, `"origin":"instance-a"`} {
		if !strings.Contains(string(body), key) {
			t.Errorf("body %s missing %s", body, key)
		}
	}

	got, err := RecordChangedMessageFromJSON(body)
	if err != nil {
		t.Fatalf("FromJSON() error = %v", err)
	}
	if got.UserID != "u1" || got.Op != OpAdded || !got.Timestamp.Equal(msg.Timestamp) {
		t.Fatalf("decoded = %+v", got)
	}
}

func TestRecordChangedMessageRejects(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"record_id":"r1","op":"added"}`,
		`{"user_id":"u1","op":"renamed"}`,
	} {
		if _, err := RecordChangedMessageFromJSON([]byte(body)); err == nil {
			t.Errorf("expected error for %s", body)
		}
	}
}

func TestQueues(t *testing.T) {
	if q := EphemeralQueue(); q.Name != "" || !q.Exclusive || !q.AutoDelete || q.Durable {
		t.Errorf("EphemeralQueue() = %+v", q)
	}
	if q := DurableQueue("tally.mirror"); q.Name != "tally.mirror" || !q.Durable || q.Exclusive {
		t.Errorf("DurableQueue() = %+v", q)
	}
}
