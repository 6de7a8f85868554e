package core

import (
	"time"
)

const (
	TodayLabel          = "Today"
	PreviousMonthsLabel = "Previous Months"
	OverallLabel        = "Overall"
	// UnknownDateLabel is used in day mode for a record that carries neither
	// a parsed nor a raw timestamp.
	UnknownDateLabel = "Unknown Date"

	dayLabelLayout   = "Jan 2, 2006"
	monthLabelLayout = "January 2006"
)

type (
	// Bucket is one named group of records, newest first.
	Bucket struct {
		Label   string
		Records []ExpenseRecord
	}

	// GroupedView is the ordered list of buckets produced by Partition.
	GroupedView []Bucket
)

// Lookup returns the bucket with the given label.
func (v GroupedView) Lookup(label string) (Bucket, bool) {
	for _, b := range v {
		if b.Label == label {
			return b, true
		}
	}
	return Bucket{}, false
}

// Labels returns bucket labels in view order.
func (v GroupedView) Labels() []string {
	out := make([]string, len(v))
	for i, b := range v {
		out[i] = b.Label
	}
	return out
}

// BucketLabel computes the group a record belongs to for the given mode,
// relative to now in loc.
func BucketLabel(r ExpenseRecord, mode GroupingMode, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	switch mode {
	case Overall:
		return OverallLabel
	case Month:
		if !r.HasTimestamp() {
			return PreviousMonthsLabel
		}
		t := r.CreatedAt.In(loc)
		if !t.Before(startOfMonth(now, loc)) {
			return t.Format(monthLabelLayout)
		}
		return PreviousMonthsLabel
	default:
		if !r.HasTimestamp() {
			if r.RawCreatedAt != "" {
				return r.RawCreatedAt
			}
			return UnknownDateLabel
		}
		if sameDay(r.CreatedAt, now, loc) {
			return TodayLabel
		}
		return r.CreatedAt.In(loc).Format(dayLabelLayout)
	}
}

// Partition splits records into buckets for mode. Input order is kept inside
// every bucket and buckets appear in first-seen order, except that a Today
// bucket always leads.
func Partition(records []ExpenseRecord, mode GroupingMode, now time.Time, loc *time.Location) GroupedView {
	view := GroupedView{}
	index := make(map[string]int)
	for _, r := range records {
		label := BucketLabel(r, mode, now, loc)
		i, ok := index[label]
		if !ok {
			i = len(view)
			index[label] = i
			view = append(view, Bucket{Label: label})
		}
		view[i].Records = append(view[i].Records, r)
	}
	if i, ok := index[TodayLabel]; ok && i > 0 && mode == Day {
		today := view[i]
		copy(view[1:i+1], view[:i])
		view[0] = today
	}
	return view
}

// InHeaderWindow is the membership predicate of the header total: today's
// records for Day, the current calendar month's for Month, all for Overall.
func InHeaderWindow(r ExpenseRecord, mode GroupingMode, now time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	switch mode {
	case Overall:
		return true
	case Month:
		if !r.HasTimestamp() {
			return false
		}
		t, n := r.CreatedAt.In(loc), now.In(loc)
		return t.Year() == n.Year() && t.Month() == n.Month()
	default:
		return r.HasTimestamp() && sameDay(r.CreatedAt, now, loc)
	}
}

// HeaderCaption describes the header total for mode.
func HeaderCaption(mode GroupingMode, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	switch mode {
	case Month:
		return "Total Expenses for " + now.In(loc).Month().String()
	case Overall:
		return "Overall Expenses"
	default:
		return "Today's Total Expenses"
	}
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func startOfMonth(now time.Time, loc *time.Location) time.Time {
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, loc)
}
