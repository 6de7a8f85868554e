// Package records defines the record store port the view coordinator
// subscribes to, and the pieces shared by its adapters.
package records

import (
	"context"
	"errors"
	"fmt"

	"tally/internal/core"
)

// Ports for record store adapters.
type (
	// SnapshotFunc receives the complete record set of a user, newest first.
	// Calls for one subscription never overlap.
	SnapshotFunc func(records []core.ExpenseRecord)

	// Subscription is a live snapshot feed. Cancel is idempotent.
	Subscription interface {
		Cancel()
	}

	Subscriber interface {
		Subscribe(ctx context.Context, userID string, fn SnapshotFunc) (Subscription, error)
	}

	Writer interface {
		// Add stores the record and returns its store-assigned id.
		Add(ctx context.Context, userID string, rec core.NewRecord) (id string, err error)
	}

	Remover interface {
		// Remove deletes a record. Removing an unknown id is not an error.
		Remove(ctx context.Context, userID, recordID string) error
	}

	// Store is the full adapter contract.
	Store interface {
		Subscriber
		Writer
		Remover
	}

	// Refresher re-delivers the current snapshot to every local subscriber of
	// a user, e.g. after another process changed the records.
	Refresher interface {
		Refresh(ctx context.Context, userID string) error
	}
)

// ErrClosed is returned by a store that has been shut down.
var ErrClosed = errors.New("record store closed")

// StoreError wraps a failure of an add, remove or subscribe call.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("record store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// WrapStoreError tags err with op unless it already is a StoreError.
func WrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
