package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"circulation/internal/lending"
	"circulation/internal/models"
)

// ─── Queries ──────────────────────────────────────────────────────────────────
//
// These never charge or move anything; at most they refresh the accrued fine of loans not yet
// charged. Each works on a snapshot of the loan registry.

// GetOverdueItems lists the open loans that are past due on asOf.
func (s *circulationService) GetOverdueItems(asOf time.Time) []models.LoanRecord {
	return recordsAsOf(s.loans.Filter(func(l *lending.Loan) bool { return l.IsOverdue(asOf) }), asOf)
}

func (s *circulationService) GetOpenLoans() []models.LoanRecord {
	return recordsAsOf(s.loans.Filter((*lending.Loan).IsOpen), s.today())
}

// CalculateTotalFines sums the fine each of the user's open loans has run up by asOf, whether or
// not it has been charged to the balance yet.
func (s *circulationService) CalculateTotalFines(userID uuid.UUID, asOf time.Time) (decimal.Decimal, error) {
	if _, err := s.member(userID); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, l := range s.loans.Filter(func(l *lending.Loan) bool { return l.UserID() == userID }) {
		total = total.Add(l.CalculateFine(asOf))
	}
	return total, nil
}

// GetBorrowRecordsForUser returns every loan the user ever took out, in borrow order.
func (s *circulationService) GetBorrowRecordsForUser(userID uuid.UUID) ([]models.LoanRecord, error) {
	if _, err := s.member(userID); err != nil {
		return nil, err
	}
	return recordsAsOf(s.loans.Filter(func(l *lending.Loan) bool { return l.UserID() == userID }), s.today()), nil
}

func (s *circulationService) ListWaitlist(itemID uuid.UUID) ([]models.WaitlistEntry, error) {
	if _, err := s.catalogEntry(itemID); err != nil {
		return nil, err
	}
	return s.waitlist.Entries(itemID), nil
}

// recordsAsOf brings each loan's accrued fine up to asOf before taking its record.
func recordsAsOf(loans []*lending.Loan, asOf time.Time) []models.LoanRecord {
	for _, l := range loans {
		l.CalculateFine(asOf)
	}
	return records(loans)
}

func records(loans []*lending.Loan) []models.LoanRecord {
	out := make([]models.LoanRecord, 0, len(loans))
	for _, l := range loans {
		out = append(out, l.Record())
	}
	return out
}
