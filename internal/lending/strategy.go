package lending

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"circulation/internal/models"
)

// FineStrategy is the loan terms of one material category: how long a copy may be kept and what
// each day past the due date costs. It is an immutable value and safe for concurrent use.
type FineStrategy struct {
	borrowPeriodDays int
	ratePerDay       decimal.Decimal
}

// NewFineStrategy validates and builds a strategy.
func NewFineStrategy(borrowPeriodDays int, ratePerDay decimal.Decimal) (FineStrategy, error) {
	if borrowPeriodDays <= 0 {
		return FineStrategy{}, fmt.Errorf("%w: borrow period %d days", ErrInvalidStrategy, borrowPeriodDays)
	}
	if ratePerDay.IsNegative() {
		return FineStrategy{}, fmt.Errorf("%w: rate %s per day", ErrInvalidStrategy, ratePerDay)
	}
	return FineStrategy{borrowPeriodDays: borrowPeriodDays, ratePerDay: ratePerDay}, nil
}

// MustFineStrategy is NewFineStrategy for compile-time constants.
func MustFineStrategy(borrowPeriodDays int, ratePerDay int64) FineStrategy {
	s, err := NewFineStrategy(borrowPeriodDays, decimal.NewFromInt(ratePerDay))
	if err != nil {
		panic(err)
	}
	return s
}

func (s FineStrategy) BorrowPeriodDays() int { return s.borrowPeriodDays }

func (s FineStrategy) RatePerDay() decimal.Decimal { return s.ratePerDay }

// CalculateFine returns overdueDays * rate, or zero when overdueDays <= 0.
func (s FineStrategy) CalculateFine(overdueDays int) decimal.Decimal {
	if overdueDays <= 0 {
		return decimal.Zero
	}
	return s.ratePerDay.Mul(decimal.NewFromInt(int64(overdueDays)))
}

// DueDate is the borrow date plus the borrow period, in calendar days.
func (s FineStrategy) DueDate(borrowDate time.Time) time.Time {
	return borrowDate.AddDate(0, 0, s.borrowPeriodDays)
}

// Policy maps each material category to its loan terms.
type Policy map[models.ItemCategory]FineStrategy

// DefaultPolicy is used when configuration does not override a category.
func DefaultPolicy() Policy {
	return Policy{
		models.ItemCategoryBook:    MustFineStrategy(28, 10),
		models.ItemCategoryCD:      MustFineStrategy(7, 20),
		models.ItemCategoryJournal: MustFineStrategy(14, 5),
	}
}

// StrategyFor looks up the terms of a category.
func (p Policy) StrategyFor(category models.ItemCategory) (FineStrategy, error) {
	s, ok := p[category]
	if !ok {
		return FineStrategy{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return s, nil
}

// DaysBetween counts whole calendar days (UTC) from `from` to `to`; negative when to is earlier.
func DaysBetween(from, to time.Time) int {
	fromMidnight := from.UTC().Truncate(24 * time.Hour)
	toMidnight := to.UTC().Truncate(24 * time.Hour)
	return int(toMidnight.Sub(fromMidnight).Hours() / 24)
}
