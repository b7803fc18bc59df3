package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"circulation/internal/models"
)

type collection int

const (
	usersCollection collection = iota
	itemsCollection
	loansCollection
	waitlistCollection
)

func (c collection) String() string {
	switch c {
	case usersCollection:
		return "users"
	case itemsCollection:
		return "items"
	case loansCollection:
		return "loans"
	case waitlistCollection:
		return "waitlist"
	}
	return "unknown"
}

// persist saves a fresh snapshot of each collection. The snapshot is taken while holding the
// collection's save lock so that a slow writer can never overwrite newer state with an older one.
func (s *circulationService) persist(ctx context.Context, collections ...collection) error {
	var errs []error
	for _, c := range collections {
		if err := s.save(ctx, c); err != nil {
			log.Printf("[ERROR] persist: saving %s failed: %v", c, err)
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrPersistence, c, err))
		}
	}
	return errors.Join(errs...)
}

func (s *circulationService) save(ctx context.Context, c collection) error {
	switch c {
	case usersCollection:
		s.saveUsersMu.Lock()
		defer s.saveUsersMu.Unlock()
		return s.repos.Users.SaveAll(ctx, s.userSnapshot())
	case itemsCollection:
		s.saveItemsMu.Lock()
		defer s.saveItemsMu.Unlock()
		return s.repos.Items.SaveAll(ctx, s.ListItems())
	case loansCollection:
		s.saveLoansMu.Lock()
		defer s.saveLoansMu.Unlock()
		return s.repos.Loans.SaveAll(ctx, s.loanRecords())
	case waitlistCollection:
		s.saveWaitlistMu.Lock()
		defer s.saveWaitlistMu.Unlock()
		return s.repos.Waitlist.SaveAll(ctx, s.waitlist.All())
	}
	return fmt.Errorf("unknown collection %d", c)
}

func (s *circulationService) userSnapshot() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, m := range s.users {
		users = append(users, m.snapshot())
	}
	return users
}

func (s *circulationService) loanRecords() []models.LoanRecord {
	return records(s.loans.Snapshot())
}
