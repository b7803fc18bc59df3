package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"circulation/internal/lending"
	"circulation/internal/models"
)

// ─── Borrowing ────────────────────────────────────────────────────────────────

// Borrow lends one copy of the item to the user. When every copy is out the user is put on the
// item's waitlist instead and the result carries OutcomeQueued; that is not an error.
//
// The overdue sweep runs first so that the eligibility checks see today's fines.
func (s *circulationService) Borrow(ctx context.Context, userID, itemID uuid.UUID) (*BorrowResult, error) {
	m, err := s.member(userID)
	if err != nil {
		return nil, err
	}
	entry, err := s.catalogEntry(itemID)
	if err != nil {
		return nil, err
	}
	today := s.today()

	var errs []error
	report, err := s.sweep(ctx, today)
	if err != nil {
		log.Printf("[WARN] Borrow: overdue sweep had %d failures: %v", report.Failed, err)
	}
	if report.Charged > 0 {
		errs = append(errs, s.persist(ctx, usersCollection, loansCollection))
	}

	strategy, err := s.policy.StrategyFor(entry.item.Type)
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", itemID, err)
	}

	res, err := s.claim(ctx, m, entry, strategy, today)
	if err != nil {
		return nil, errors.Join(append([]error{err}, errs...)...)
	}
	if res.Outcome == OutcomeQueued {
		errs = append(errs, s.persist(ctx, waitlistCollection))
		return res, errors.Join(errs...)
	}
	errs = append(errs, s.persist(ctx, loansCollection, itemsCollection))
	return res, errors.Join(errs...)
}

// claim checks that the user may borrow and then either opens a loan on a free copy or queues
// the user. It runs under the user's borrow lock; persisting is left to the caller.
func (s *circulationService) claim(ctx context.Context, m *member, entry *catalogEntry, strategy lending.FineStrategy, today time.Time) (*BorrowResult, error) {
	m.borrowMu.Lock()
	defer m.borrowMu.Unlock()

	userID, itemID := m.user.ID, entry.item.ID
	if m.account.Balance().IsPositive() {
		log.Printf("[WARN] Borrow: user %s has outstanding fines of %s", userID, m.account.Balance())
		return nil, ErrOutstandingFines
	}
	if len(s.loans.Filter(func(l *lending.Loan) bool { return l.UserID() == userID && l.IsOverdue(today) })) > 0 {
		log.Printf("[WARN] Borrow: user %s has overdue loans", userID)
		return nil, ErrOverdueLoans
	}
	if s.openLoan(userID, itemID) != nil {
		return nil, ErrAlreadyBorrowed
	}

	if !entry.copies.TryBorrow() {
		waiting, added := s.waitlist.EnqueueOnce(itemID, m.user.Email, today)
		if added {
			log.Printf("[INFO] Borrow: item %s unavailable, %s queued at position %d", itemID, m.user.Email, waiting.Position)
		}
		s.metrics.borrowed(ctx, OutcomeQueued)
		return &BorrowResult{Outcome: OutcomeQueued, WaitlistEntry: &waiting}, nil
	}

	loan := lending.NewLoan(userID, itemID, strategy, today)
	s.loans.Add(loan)
	rec := loan.Record()
	log.Printf("[INFO] Borrow: user %s borrowed item %s (loan=%s, due=%s)", userID, itemID, rec.ID, rec.DueDate.Format(time.DateOnly))
	s.metrics.borrowed(ctx, OutcomeBorrowed)
	return &BorrowResult{Outcome: OutcomeBorrowed, Loan: &rec}, nil
}

// ─── Returning ────────────────────────────────────────────────────────────────

// ReturnItem closes the user's open loan for the item, charges any fine still owed and hands the
// copy to the waitlist.
func (s *circulationService) ReturnItem(ctx context.Context, userID, itemID uuid.UUID) (*ReturnResult, error) {
	m, err := s.member(userID)
	if err != nil {
		return nil, err
	}
	entry, err := s.catalogEntry(itemID)
	if err != nil {
		return nil, err
	}

	loan := s.openLoan(userID, itemID)
	if loan == nil {
		return nil, ErrLoanNotFound
	}

	charged, err := loan.MarkReturned(s.today(), m.account, entry.copies)
	switch {
	case errors.Is(err, lending.ErrLoanAlreadyReturned):
		// lost a race with a concurrent return of the same loan
		return nil, ErrLoanNotFound
	case errors.Is(err, lending.ErrInconsistentState):
		log.Printf("[ERROR] ReturnItem: %v", err)
		return nil, errors.Join(err, s.persist(ctx, loansCollection, usersCollection))
	case err != nil:
		return nil, err
	}

	log.Printf("[INFO] ReturnItem: loan %s returned, fine charged %s", loan.ID(), charged)
	s.metrics.returned(ctx)
	if charged.IsPositive() {
		s.metrics.fineCharged(ctx, charged)
	}

	result := &ReturnResult{Loan: loan.Record(), FineCharged: charged, Notified: []string{}}
	errs := []error{s.persist(ctx, loansCollection, itemsCollection, usersCollection)}

	report, err := s.PromoteWaitlist(ctx, itemID)
	if report != nil {
		result.Notified = report.Notified
	}
	errs = append(errs, err)
	return result, errors.Join(errs...)
}

func (s *circulationService) openLoan(userID, itemID uuid.UUID) *lending.Loan {
	open := s.loans.Filter(func(l *lending.Loan) bool {
		return l.UserID() == userID && l.ItemID() == itemID && l.IsOpen()
	})
	if len(open) == 0 {
		return nil
	}
	return open[0]
}

// ─── Fines ────────────────────────────────────────────────────────────────────

// ApplyOverdueFines charges every open loan's fine as of asOf to its borrower. A failing loan is
// logged and skipped; the rest are still processed.
func (s *circulationService) ApplyOverdueFines(ctx context.Context, asOf time.Time) (*SweepReport, error) {
	report, err := s.sweep(ctx, asOf)
	errs := []error{err}
	if report.Charged > 0 {
		errs = append(errs, s.persist(ctx, usersCollection, loansCollection))
	}
	log.Printf("[INFO] ApplyOverdueFines: examined %d open loans, charged %d (total %s), %d failed",
		report.Examined, report.Charged, report.TotalCharged, report.Failed)
	return report, errors.Join(errs...)
}

func (s *circulationService) sweep(ctx context.Context, asOf time.Time) (*SweepReport, error) {
	report := &SweepReport{AsOf: asOf, TotalCharged: decimal.Zero}
	var errs []error
	for _, loan := range s.loans.Filter((*lending.Loan).IsOpen) {
		report.Examined++
		m, err := s.member(loan.UserID())
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("loan %s: %w", loan.ID(), err))
			continue
		}
		charged, err := loan.ApplyFineToUser(asOf, m.account)
		if err != nil {
			report.Failed++
			errs = append(errs, err)
			continue
		}
		if charged.IsPositive() {
			report.Charged++
			report.TotalCharged = report.TotalCharged.Add(charged)
			s.metrics.fineCharged(ctx, charged)
		}
	}
	return report, errors.Join(errs...)
}

// PayFine takes a payment from the user and books it against their charged loans, oldest first.
func (s *circulationService) PayFine(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.User, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment must be positive", ErrInvalidArgument)
	}
	m, err := s.member(userID)
	if err != nil {
		return nil, err
	}
	if err := m.account.PayFine(amount); err != nil {
		log.Printf("[WARN] PayFine: user %s: %v", userID, err)
		return nil, err
	}

	remaining := amount
	for _, loan := range s.loans.Filter(func(l *lending.Loan) bool { return l.UserID() == userID }) {
		if !remaining.IsPositive() {
			break
		}
		if remaining, err = loan.RecordPayment(remaining); err != nil {
			return nil, err
		}
	}
	log.Printf("[INFO] PayFine: user %s paid %s, balance now %s", userID, amount, m.account.Balance())

	user := m.snapshot()
	return &user, s.persist(ctx, usersCollection, loansCollection)
}

// ─── Waitlist ─────────────────────────────────────────────────────────────────

// PromoteWaitlist empties the item's waitlist and tells every waiting user, in request order,
// that the item can be borrowed again. A failed notification does not stop the others.
func (s *circulationService) PromoteWaitlist(ctx context.Context, itemID uuid.UUID) (*PromotionReport, error) {
	entry, err := s.catalogEntry(itemID)
	if err != nil {
		return nil, err
	}

	report := &PromotionReport{ItemID: itemID, Notified: []string{}, Failed: []string{}}
	waiting := s.waitlist.Drain(itemID)
	if len(waiting) == 0 {
		return report, nil
	}
	errs := []error{s.persist(ctx, waitlistCollection)}

	subject := fmt.Sprintf("%q is available", entry.item.Title)
	for _, w := range waiting {
		m, ok := s.memberByEmail(w.UserEmail)
		if !ok {
			log.Printf("[WARN] PromoteWaitlist: no user registered for %s, skipping", w.UserEmail)
			report.Failed = append(report.Failed, w.UserEmail)
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrNotification, w.UserEmail, ErrUserNotFound))
			continue
		}
		body := fmt.Sprintf("Hello %s, %q which you asked for on %s can be borrowed now.",
			m.user.Name, entry.item.Title, w.RequestDate.Format(time.DateOnly))
		if err := s.notifier.Notify(ctx, m.snapshot(), subject, body); err != nil {
			log.Printf("[WARN] PromoteWaitlist: notifying %s failed: %v", w.UserEmail, err)
			s.metrics.notified(ctx, false)
			report.Failed = append(report.Failed, w.UserEmail)
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrNotification, w.UserEmail, err))
			continue
		}
		s.metrics.notified(ctx, true)
		report.Notified = append(report.Notified, w.UserEmail)
	}

	log.Printf("[INFO] PromoteWaitlist: item %s notified %d of %d waiting users", itemID, len(report.Notified), len(waiting))
	return report, errors.Join(errs...)
}

// ─── Reminders ────────────────────────────────────────────────────────────────

// SendDueReminders notifies borrowers whose loan is due the day after asOf, and warns those whose
// loan became overdue on asOf with the fine accrued so far. Each loan gets at most one of each,
// provided the check runs daily. It returns how many messages went out.
func (s *circulationService) SendDueReminders(ctx context.Context, asOf time.Time) (int, error) {
	var (
		sent int
		errs []error
	)
	for _, loan := range s.loans.Filter((*lending.Loan).IsOpen) {
		daysLeft := lending.DaysBetween(asOf, loan.DueDate())
		if daysLeft != 1 && daysLeft != -1 {
			continue
		}
		m, err := s.member(loan.UserID())
		if err != nil {
			errs = append(errs, fmt.Errorf("loan %s: %w", loan.ID(), err))
			continue
		}
		title := loan.ItemID().String()
		if e, err := s.catalogEntry(loan.ItemID()); err == nil {
			title = e.item.Title
		}

		var subject, body string
		if daysLeft == 1 {
			subject = "Loan due tomorrow"
			body = fmt.Sprintf("%q is due back on %s.", title, loan.DueDate().Format(time.DateOnly))
		} else {
			subject = "Loan overdue"
			body = fmt.Sprintf("%q was due back on %s and is now overdue. Fine so far: %s.",
				title, loan.DueDate().Format(time.DateOnly), loan.CalculateFine(asOf))
		}
		if err := s.notifier.Notify(ctx, m.snapshot(), subject, body); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrNotification, m.user.Email, err))
			continue
		}
		sent++
	}
	log.Printf("[INFO] SendDueReminders: sent %d reminders", sent)
	return sent, errors.Join(errs...)
}
