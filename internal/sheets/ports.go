// Package sheets mirrors each user's record set into a spreadsheet tab.
package sheets

import (
	"context"
	"strings"
	"time"

	"tally/internal/core"
)

// Ports for outbound adapters.
type (
	// RecordMirror replaces the mirrored copy of a user's records.
	RecordMirror interface {
		MirrorRecords(ctx context.Context, userID string, records []core.ExpenseRecord) error
	}
)

const (
	tabPrefix = "Tally "
	maxTitle  = 100
	dateCells = "2006-01-02 15:04"
)

// Header is the first row of every mirrored tab.
var Header = []any{"Date", "Name", "Category", "Unit Price", "Quantity", "Total"}

// TabName is the tab title for userID. Characters a sheet title cannot hold
// become underscores.
func TabName(userID string) string {
	var b strings.Builder
	b.WriteString(tabPrefix)
	for _, r := range userID {
		switch r {
		case '[', ']', '*', '?', '/', '\\', ':', '\'':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	title := []rune(b.String())
	if len(title) > maxTitle {
		title = title[:maxTitle]
	}
	return string(title)
}

// Rows renders records as sheet rows below Header, in the given order.
// Records without a parsed timestamp show their raw text.
func Rows(records []core.ExpenseRecord, loc *time.Location) [][]any {
	if loc == nil {
		loc = time.Local
	}
	rows := make([][]any, 0, len(records)+1)
	rows = append(rows, Header)
	for _, r := range records {
		date := r.RawCreatedAt
		if r.HasTimestamp() {
			date = r.CreatedAt.In(loc).Format(dateCells)
		}
		rows = append(rows, []any{
			date,
			r.Name,
			r.Category,
			r.UnitPrice.String(),
			r.Quantity,
			core.FormatAmount(r.Value()),
		})
	}
	return rows
}
