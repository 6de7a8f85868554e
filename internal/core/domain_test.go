package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRecordDraftValidate(t *testing.T) {
	good := RecordDraft{Name: "  coffee ", Price: "2,50", Category: "fOOD", Quantity: "3"}
	rec, err := good.Validate()
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if rec.Name != "Coffee" || rec.Category != "Food" || rec.Quantity != 3 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.UnitPrice.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("unexpected price: %s", rec.UnitPrice)
	}

	cases := []struct {
		name  string
		draft RecordDraft
		field string
		err   error
	}{
		{"empty name", RecordDraft{Name: " ", Price: "1", Category: "c"}, "name", ErrEmptyName},
		{"empty price", RecordDraft{Name: "a", Price: "", Category: "c"}, "price", ErrEmptyPrice},
		{"non numeric price", RecordDraft{Name: "a", Price: "abc", Category: "c"}, "price", ErrInvalidPrice},
		{"negative price", RecordDraft{Name: "a", Price: "-1", Category: "c"}, "price", ErrInvalidPrice},
		{"empty category", RecordDraft{Name: "a", Price: "1", Category: "  "}, "category", ErrEmptyCategory},
		{"zero quantity", RecordDraft{Name: "a", Price: "1", Category: "c", Quantity: "0"}, "quantity", ErrInvalidQuantity},
		{"fractional quantity", RecordDraft{Name: "a", Price: "1", Category: "c", Quantity: "1.5"}, "quantity", ErrInvalidQuantity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.draft.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("field = %q, want %q", ve.Field, tc.field)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestRecordDraftNameLengthCountsCharacters(t *testing.T) {
	accented := RecordDraft{Name: strings.Repeat("é", 200), Price: "1", Category: "c"}
	if _, err := accented.Validate(); err != nil {
		t.Fatalf("200 characters rejected: %v", err)
	}

	long := RecordDraft{Name: strings.Repeat("é", 201), Price: "1", Category: "c"}
	_, err := long.Validate()
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "name" {
		t.Fatalf("expected name ValidationError, got %v", err)
	}
}

func TestRecordDraftDefaultsQuantity(t *testing.T) {
	rec, err := RecordDraft{Name: "a", Price: "0", Category: "c"}.Validate()
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if rec.Quantity != 1 {
		t.Fatalf("quantity = %d, want 1", rec.Quantity)
	}
}

func TestParseGroupingMode(t *testing.T) {
	for _, in := range []string{"day", "MONTH", " overall "} {
		if _, err := ParseGroupingMode(in); err != nil {
			t.Fatalf("%q: unexpected error %v", in, err)
		}
	}
	if _, err := ParseGroupingMode("week"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestCategoryFilter(t *testing.T) {
	if NewCategoryFilter("") != AllCategories || NewCategoryFilter("all categories") != AllCategories {
		t.Fatal("blank and sentinel input must select all categories")
	}
	f := NewCategoryFilter("food")
	if f != "Food" {
		t.Fatalf("filter = %q, want Food", f)
	}
	if !f.Matches(ExpenseRecord{Category: "FOOD"}) {
		t.Fatal("filter should match ignoring case")
	}
	if f.Matches(ExpenseRecord{Category: "Fuel"}) {
		t.Fatal("filter should not match other categories")
	}
}

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]string{
		"":           "",
		"   ":        "",
		"food":       "Food",
		"  fOOD  ":   "Food",
		"eating out": "Eating out",
		"élan":       "Élan",
		"x":          "X",
	}
	for in, want := range cases {
		if got := NormalizeLabel(in); got != want {
			t.Fatalf("NormalizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
