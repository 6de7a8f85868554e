// Package memory is an in-process RecordMirror for local runs and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"tally/internal/core"
	"tally/internal/sheets"
)

// Mirror keeps the rendered rows of every mirrored tab.
type Mirror struct {
	mu    sync.Mutex
	loc   *time.Location
	tabs  map[string][][]any
	calls int
	fail  error
}

var _ sheets.RecordMirror = (*Mirror)(nil)

func New(loc *time.Location) *Mirror {
	return &Mirror{loc: loc, tabs: make(map[string][][]any)}
}

func (m *Mirror) MirrorRecords(_ context.Context, userID string, records []core.ExpenseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		return m.fail
	}
	m.tabs[sheets.TabName(userID)] = sheets.Rows(records, m.loc)
	return nil
}

// FailWith makes following mirror calls return err until reset with nil.
func (m *Mirror) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Tab returns the rows last written to the tab of userID.
func (m *Mirror) Tab(userID string) ([][]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.tabs[sheets.TabName(userID)]
	return rows, ok
}

// Calls reports how many mirror calls were made.
func (m *Mirror) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
