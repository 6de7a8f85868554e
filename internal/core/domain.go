package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Day     GroupingMode = "day"
	Month   GroupingMode = "month"
	Overall GroupingMode = "overall"
)

// AllCategories is the filter sentinel that leaves every record visible.
const AllCategories CategoryFilter = "All Categories"

type (
	GroupingMode string

	CategoryFilter string

	ExpenseRecord struct {
		ID        string
		Name      string
		UnitPrice decimal.Decimal
		Quantity  int
		Category  string
		CreatedAt time.Time
		// RawCreatedAt holds the stored timestamp text when it could not be parsed.
		RawCreatedAt string
	}

	// RecordDraft is the raw, unvalidated input of the add-expense form.
	RecordDraft struct {
		Name     string
		Price    string
		Category string
		Quantity string
	}

	// NewRecord is a validated draft ready for the store. The store assigns
	// ID and CreatedAt.
	NewRecord struct {
		Name      string
		UnitPrice decimal.Decimal
		Quantity  int
		Category  string
	}
)

var (
	ErrEmptyName       = errors.New("empty name")
	ErrEmptyPrice      = errors.New("empty price")
	ErrEmptyCategory   = errors.New("empty category")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidMode     = errors.New("invalid grouping mode")
	ErrCategoryTaken   = errors.New("category clashes with an existing one")
)

// ValidationError reports a draft field rejected before reaching the store.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ParseGroupingMode accepts the wire names case-insensitively.
func ParseGroupingMode(s string) (GroupingMode, error) {
	m := GroupingMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

func (m GroupingMode) IsValid() bool {
	switch m {
	case Day, Month, Overall:
		return true
	default:
		return false
	}
}

func (m GroupingMode) String() string {
	return string(m)
}

// NewCategoryFilter normalizes a user supplied filter. Blank input and the
// sentinel (in any casing) select all categories.
func NewCategoryFilter(s string) CategoryFilter {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, string(AllCategories)) {
		return AllCategories
	}
	return CategoryFilter(NormalizeLabel(s))
}

// Matches reports whether r stays visible under the filter.
func (f CategoryFilter) Matches(r ExpenseRecord) bool {
	if f == AllCategories || f == "" {
		return true
	}
	return strings.EqualFold(string(f), NormalizeLabel(r.Category))
}

func (f CategoryFilter) IsAll() bool {
	return f == AllCategories || f == ""
}

// Value is the monetary contribution of the record. Totals never multiply
// price by quantity anywhere else.
func (r ExpenseRecord) Value() decimal.Decimal {
	return r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// HasTimestamp reports whether CreatedAt was parsed from the store.
func (r ExpenseRecord) HasTimestamp() bool {
	return !r.CreatedAt.IsZero()
}

// Validate turns the draft into a NewRecord. Name and category are
// normalized the same way the registry normalizes labels.
func (d RecordDraft) Validate() (NewRecord, error) {
	name := NormalizeLabel(d.Name)
	if name == "" {
		return NewRecord{}, &ValidationError{Field: "name", Err: ErrEmptyName}
	}
	if utf8.RuneCountInString(name) > 200 {
		return NewRecord{}, &ValidationError{Field: "name", Err: errors.New("name too long (max 200 characters)")}
	}
	if strings.TrimSpace(d.Price) == "" {
		return NewRecord{}, &ValidationError{Field: "price", Err: ErrEmptyPrice}
	}
	price, err := ParsePrice(d.Price)
	if err != nil {
		return NewRecord{}, &ValidationError{Field: "price", Err: err}
	}
	category := NormalizeLabel(d.Category)
	if category == "" {
		return NewRecord{}, &ValidationError{Field: "category", Err: ErrEmptyCategory}
	}
	qty, err := ParseQuantity(d.Quantity)
	if err != nil {
		return NewRecord{}, &ValidationError{Field: "quantity", Err: err}
	}
	return NewRecord{
		Name:      name,
		UnitPrice: price,
		Quantity:  qty,
		Category:  category,
	}, nil
}

// Validate checks a NewRecord built outside of a draft, e.g. by a store test.
func (n NewRecord) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return &ValidationError{Field: "name", Err: ErrEmptyName}
	}
	if n.UnitPrice.IsNegative() {
		return &ValidationError{Field: "price", Err: ErrInvalidPrice}
	}
	if n.Quantity < 1 {
		return &ValidationError{Field: "quantity", Err: ErrInvalidQuantity}
	}
	if strings.TrimSpace(n.Category) == "" {
		return &ValidationError{Field: "category", Err: ErrEmptyCategory}
	}
	return nil
}
