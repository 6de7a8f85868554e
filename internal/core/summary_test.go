package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTotal(t *testing.T) {
	got := Total(sampleRecords())
	// 3.10 + 40 + 29 + 50 + 2.97
	if want := decimal.RequireFromString("125.07"); !got.Equal(want) {
		t.Fatalf("Total = %s, want %s", got, want)
	}
	if !Total(nil).IsZero() {
		t.Fatal("Total of nothing should be zero")
	}
}

func TestTotalKeepsPrecision(t *testing.T) {
	records := []ExpenseRecord{
		rec("a", "0.005", 1, "Food", refNow),
		rec("b", "0.005", 1, "Food", refNow),
	}
	if got := FormatAmount(Total(records)); got != "0.01" {
		t.Fatalf("got %s, accumulation must not round", got)
	}
}

func TestPartitionCompleteness(t *testing.T) {
	records := sampleRecords()
	want := Total(records)
	for _, mode := range []GroupingMode{Day, Month, Overall} {
		sum := decimal.Zero
		for _, b := range Summarize(Partition(records, mode, refNow, time.UTC), AllCategories) {
			sum = sum.Add(b.Total)
		}
		if !sum.Equal(want) {
			t.Fatalf("%s: bucket totals sum to %s, want %s", mode, sum, want)
		}
	}
}

func TestHeaderTotal(t *testing.T) {
	records := sampleRecords()
	cases := []struct {
		mode GroupingMode
		want string
	}{
		{Day, "43.1"},
		{Month, "72.1"},
		{Overall, "125.07"},
	}
	for _, tc := range cases {
		got := HeaderTotal(records, tc.mode, refNow, time.UTC)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("%s: header total = %s, want %s", tc.mode, got, tc.want)
		}
	}
}

func TestHeaderTotalMonthExcludesFutureMonths(t *testing.T) {
	records := []ExpenseRecord{rec("a", "10", 1, "Food", time.Date(2025, time.April, 2, 0, 0, 0, 0, time.UTC))}
	if got := HeaderTotal(records, Month, refNow, time.UTC); !got.IsZero() {
		t.Fatalf("got %s, want 0", got)
	}
}

func TestScenarioTodayRecord(t *testing.T) {
	records := []ExpenseRecord{rec("a", "100", 2, "Food", refNow)}
	if got := FormatAmount(HeaderTotal(records, Day, refNow, time.UTC)); got != "200.00" {
		t.Fatalf("header total = %s", got)
	}
	view := Partition(records, Day, refNow, time.UTC)
	today, ok := view.Lookup(TodayLabel)
	if !ok || len(today.Records) != 1 || today.Records[0].ID != "a" {
		t.Fatalf("unexpected Today bucket: %+v", view)
	}
}

func TestScenarioLastMonthRecord(t *testing.T) {
	firstOfLastMonth := time.Date(2025, time.February, 1, 12, 0, 0, 0, time.UTC)
	records := []ExpenseRecord{rec("a", "50", 1, "Travel", firstOfLastMonth)}
	view := Partition(records, Month, refNow, time.UTC)
	if len(view) != 1 || view[0].Label != PreviousMonthsLabel {
		t.Fatalf("labels = %v", view.Labels())
	}
	if got := FormatAmount(HeaderTotal(records, Month, refNow, time.UTC)); got != "0.00" {
		t.Fatalf("header total = %s", got)
	}
}

func TestSummarizeFilter(t *testing.T) {
	view := Partition(sampleRecords(), Day, refNow, time.UTC)
	summary := Summarize(view, NewCategoryFilter("food"))
	if len(summary) != len(view) {
		t.Fatalf("filter changed bucket count: %d vs %d", len(summary), len(view))
	}
	today := summary[0]
	if len(today.Records) != 2 || len(today.Visible) != 1 || today.Visible[0].ID != "5" {
		t.Fatalf("unexpected today summary: %+v", today)
	}
	if !today.Total.Equal(decimal.RequireFromString("3.1")) {
		t.Fatalf("today food total = %s", today.Total)
	}
	// Feb bucket has no food: stays present with nothing visible.
	if len(summary[2].Visible) != 0 || !summary[2].Total.IsZero() {
		t.Fatalf("unexpected feb summary: %+v", summary[2])
	}
}
