package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// BucketSummary is a bucket as shown under the active category filter.
// Records keeps full membership; Visible and Total follow the filter.
type BucketSummary struct {
	Label   string
	Records []ExpenseRecord
	Visible []ExpenseRecord
	Total   decimal.Decimal
}

// Total sums the value of every record. It is the only accumulation routine
// used for header, bucket and filtered totals.
func Total(records []ExpenseRecord) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(r.Value())
	}
	return sum
}

// HeaderTotal sums the records inside the mode's window. The category filter
// never applies here.
func HeaderTotal(records []ExpenseRecord, mode GroupingMode, now time.Time, loc *time.Location) decimal.Decimal {
	window := make([]ExpenseRecord, 0, len(records))
	for _, r := range records {
		if InHeaderWindow(r, mode, now, loc) {
			window = append(window, r)
		}
	}
	return Total(window)
}

// FilterRecords returns the records of in that match f, in order.
func FilterRecords(in []ExpenseRecord, f CategoryFilter) []ExpenseRecord {
	if f.IsAll() {
		return in
	}
	out := make([]ExpenseRecord, 0, len(in))
	for _, r := range in {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// Summarize applies the filter to every bucket of view and totals what stays
// visible. Bucket membership and order are untouched.
func Summarize(view GroupedView, f CategoryFilter) []BucketSummary {
	out := make([]BucketSummary, len(view))
	for i, b := range view {
		visible := FilterRecords(b.Records, f)
		out[i] = BucketSummary{
			Label:   b.Label,
			Records: b.Records,
			Visible: visible,
			Total:   Total(visible),
		}
	}
	return out
}
