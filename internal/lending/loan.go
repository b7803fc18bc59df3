package lending

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"circulation/internal/models"
)

// Loan is one borrowing transaction. It moves from BORROWED to RETURNED exactly once and is
// never deleted.
type Loan struct {
	id         uuid.UUID
	userID     uuid.UUID
	itemID     uuid.UUID
	strategy   FineStrategy
	borrowDate time.Time
	dueDate    time.Time

	mu          sync.Mutex
	status      models.LoanStatus
	returnDate  *time.Time
	fineAccrued decimal.Decimal
	finePaid    decimal.Decimal
	fineApplied bool
}

// NewLoan opens a loan on borrowDate. The strategy is copied, so later policy changes do not
// touch it.
func NewLoan(userID, itemID uuid.UUID, strategy FineStrategy, borrowDate time.Time) *Loan {
	return &Loan{
		id:          uuid.New(),
		userID:      userID,
		itemID:      itemID,
		strategy:    strategy,
		borrowDate:  borrowDate,
		dueDate:     strategy.DueDate(borrowDate),
		status:      models.LoanStatusBorrowed,
		fineAccrued: decimal.Zero,
		finePaid:    decimal.Zero,
	}
}

// RestoreLoan rebuilds a loan from its persisted record.
func RestoreLoan(rec models.LoanRecord) (*Loan, error) {
	strategy, err := NewFineStrategy(rec.StrategyBorrowPeriodDays, rec.StrategyRatePerDay)
	if err != nil {
		return nil, fmt.Errorf("loan %s: %w", rec.ID, err)
	}
	if rec.Status != models.LoanStatusBorrowed && rec.Status != models.LoanStatusReturned {
		return nil, fmt.Errorf("loan %s: unknown status %q", rec.ID, rec.Status)
	}
	if rec.FinePaid.GreaterThan(rec.FineAccrued) {
		return nil, fmt.Errorf("loan %s: paid %s exceeds accrued %s", rec.ID, rec.FinePaid, rec.FineAccrued)
	}
	return &Loan{
		id:          rec.ID,
		userID:      rec.UserID,
		itemID:      rec.ItemID,
		strategy:    strategy,
		borrowDate:  rec.BorrowDate,
		dueDate:     rec.DueDate,
		status:      rec.Status,
		returnDate:  rec.ReturnDate,
		fineAccrued: rec.FineAccrued,
		finePaid:    rec.FinePaid,
		fineApplied: rec.FineApplied,
	}, nil
}

func (l *Loan) ID() uuid.UUID { return l.id }
func (l *Loan) UserID() uuid.UUID { return l.userID }
func (l *Loan) ItemID() uuid.UUID { return l.itemID }
func (l *Loan) DueDate() time.Time { return l.dueDate }
func (l *Loan) Strategy() FineStrategy { return l.strategy }

func (l *Loan) Status() models.LoanStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// IsOpen reports whether the copy is still out.
func (l *Loan) IsOpen() bool {
	return l.Status() == models.LoanStatusBorrowed
}

// IsOverdue reports whether the loan is open and asOf falls on a day after the due date.
func (l *Loan) IsOverdue(asOf time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status == models.LoanStatusBorrowed && DaysBetween(l.dueDate, asOf) > 0
}

// CalculateFine is the fine owed as of asOf. Until the fine has been charged it also refreshes
// the loan's accrued amount; it never debits anyone.
func (l *Loan) CalculateFine(asOf time.Time) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fineLocked(asOf)
}

func (l *Loan) fineLocked(asOf time.Time) decimal.Decimal {
	if l.status == models.LoanStatusReturned {
		return decimal.Zero
	}
	fine := l.strategy.CalculateFine(DaysBetween(l.dueDate, asOf))
	if !l.fineApplied {
		l.fineAccrued = fine
	}
	return fine
}

// ApplyFineToUser charges the fine owed as of asOf to the user, at most once over the life of
// the loan. It returns the amount charged by this call.
func (l *Loan) ApplyFineToUser(asOf time.Time, account FineDebiter) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyLocked(asOf, account)
}

func (l *Loan) applyLocked(asOf time.Time, account FineDebiter) (decimal.Decimal, error) {
	if l.fineApplied {
		return decimal.Zero, nil
	}
	fine := l.fineLocked(asOf)
	if !fine.IsPositive() {
		return decimal.Zero, nil
	}
	if err := account.AddFine(fine); err != nil {
		return decimal.Zero, fmt.Errorf("loan %s: %w", l.id, err)
	}
	l.fineAccrued = fine
	l.fineApplied = true
	return fine, nil
}

// MarkReturned closes the loan on returnDate: the outstanding fine is charged, the status moves
// to RETURNED and the copy goes back on the shelf.
func (l *Loan) MarkReturned(returnDate time.Time, account FineDebiter, copies *Availability) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status == models.LoanStatusReturned {
		return decimal.Zero, fmt.Errorf("loan %s: %w", l.id, ErrLoanAlreadyReturned)
	}

	charged, err := l.applyLocked(returnDate, account)
	if err != nil {
		return decimal.Zero, err
	}

	l.status = models.LoanStatusReturned
	rd := returnDate
	l.returnDate = &rd

	if !copies.TryReturn() {
		return charged, fmt.Errorf("%w: loan %s could not release a copy of item %s", ErrInconsistentState, l.id, l.itemID)
	}
	return charged, nil
}

// RecordPayment books a payment against this loan's charged fine. It returns the part of amount
// that exceeded the unpaid fine.
func (l *Loan) RecordPayment(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: payment %s", ErrNegativeAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	unpaid := l.unpaidLocked()
	if !unpaid.IsPositive() {
		return amount, nil
	}
	take := decimal.Min(unpaid, amount)
	l.finePaid = l.finePaid.Add(take)
	return amount.Sub(take), nil
}

// UnpaidFine is the charged fine not yet covered by payments. Accrued but uncharged fines do not
// count.
func (l *Loan) UnpaidFine() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unpaidLocked()
}

func (l *Loan) unpaidLocked() decimal.Decimal {
	if !l.fineApplied {
		return decimal.Zero
	}
	return l.fineAccrued.Sub(l.finePaid)
}

// Record snapshots the loan into its persisted shape.
func (l *Loan) Record() models.LoanRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := models.LoanRecord{
		ID:                       l.id,
		UserID:                   l.userID,
		ItemID:                   l.itemID,
		StrategyBorrowPeriodDays: l.strategy.BorrowPeriodDays(),
		StrategyRatePerDay:       l.strategy.RatePerDay(),
		BorrowDate:               l.borrowDate,
		DueDate:                  l.dueDate,
		Status:                   l.status,
		FineAccrued:              l.fineAccrued,
		FinePaid:                 l.finePaid,
		FineApplied:              l.fineApplied,
	}
	if l.returnDate != nil {
		rd := *l.returnDate
		rec.ReturnDate = &rd
	}
	return rec
}
