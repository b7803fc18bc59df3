package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"circulation/internal/lending"
	"circulation/internal/models"
	"circulation/internal/notify"
	"circulation/internal/repositories"
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrInvalidArgument is returned for missing ids, empty names or non-positive amounts.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrItemNotFound is returned when the referenced item does not exist.
	ErrItemNotFound = errors.New("item not found")

	// ErrLoanNotFound is returned when a return finds no open loan for the user and item.
	ErrLoanNotFound = errors.New("no open loan for this user and item")

	// ErrDuplicateUser is returned when the e-mail address is already registered.
	ErrDuplicateUser = errors.New("user with this email already exists")

	// ErrAlreadyBorrowed is returned when the user already holds a copy of the item.
	ErrAlreadyBorrowed = errors.New("user already has this item on loan")

	// ErrOutstandingFines is returned when a user with an unpaid fine balance tries to borrow.
	ErrOutstandingFines = errors.New("user has outstanding fines")

	// ErrOverdueLoans is returned when a user with an overdue loan tries to borrow.
	ErrOverdueLoans = errors.New("user has overdue items")

	// ErrPersistence wraps repository failures. The in-memory change it follows has already
	// happened and is not rolled back.
	ErrPersistence = errors.New("persisting state failed")

	// ErrNotification wraps waitlist notification failures.
	ErrNotification = errors.New("notifying waiting users failed")
)

// ─── Results ──────────────────────────────────────────────────────────────────

type Outcome string

const (
	OutcomeBorrowed Outcome = "borrowed"
	OutcomeQueued   Outcome = "queued"
)

// BorrowResult carries either the new loan or the waitlist entry the request was queued as.
type BorrowResult struct {
	Outcome       Outcome               `json:"outcome"`
	Loan          *models.LoanRecord    `json:"loan,omitempty"`
	WaitlistEntry *models.WaitlistEntry `json:"waitlist_entry,omitempty"`
}

type ReturnResult struct {
	Loan        models.LoanRecord `json:"loan"`
	FineCharged decimal.Decimal   `json:"fine_charged"`
	Notified    []string          `json:"notified"`
}

type SweepReport struct {
	AsOf         time.Time       `json:"as_of"`
	Examined     int             `json:"examined"`
	Charged      int             `json:"charged"`
	TotalCharged decimal.Decimal `json:"total_charged"`
	Failed       int             `json:"failed"`
}

type PromotionReport struct {
	ItemID   uuid.UUID `json:"item_id"`
	Notified []string  `json:"notified"`
	Failed   []string  `json:"failed"`
}

// ─── Service Interface ────────────────────────────────────────────────────────

// CirculationService lends items, charges overdue fines and hands returned items to the
// waitlist.
type CirculationService interface {
	// Load replaces the in-memory state with what the repositories hold. It is meant to run once,
	// before the service handles requests.
	Load(ctx context.Context) error

	RegisterUser(ctx context.Context, name, email string) (*models.User, error)
	GetUser(userID uuid.UUID) (*models.User, error)
	AddItem(ctx context.Context, category models.ItemCategory, title, creator string, totalCopies int) (*models.Item, error)
	SetTotalCopies(ctx context.Context, itemID uuid.UUID, totalCopies int) (*models.Item, error)
	ListItems() []models.Item

	Borrow(ctx context.Context, userID, itemID uuid.UUID) (*BorrowResult, error)
	ReturnItem(ctx context.Context, userID, itemID uuid.UUID) (*ReturnResult, error)
	ApplyOverdueFines(ctx context.Context, asOf time.Time) (*SweepReport, error)
	PromoteWaitlist(ctx context.Context, itemID uuid.UUID) (*PromotionReport, error)
	PayFine(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*models.User, error)
	SendDueReminders(ctx context.Context, asOf time.Time) (int, error)

	GetOverdueItems(asOf time.Time) []models.LoanRecord
	GetOpenLoans() []models.LoanRecord
	CalculateTotalFines(userID uuid.UUID, asOf time.Time) (decimal.Decimal, error)
	GetBorrowRecordsForUser(userID uuid.UUID) ([]models.LoanRecord, error)
	ListWaitlist(itemID uuid.UUID) ([]models.WaitlistEntry, error)
}

// ─── Implementation ───────────────────────────────────────────────────────────

type catalogEntry struct {
	item   models.Item
	copies *lending.Availability
}

type member struct {
	user    models.User
	account *lending.Account

	// borrowMu serializes this user's borrow decisions, so the open-loan check and the new loan
	// cannot interleave with another borrow by the same user.
	borrowMu sync.Mutex
}

type circulationService struct {
	repos    repositories.Set
	policy   lending.Policy
	notifier notify.Notifier
	metrics  *Metrics
	now      func() time.Time

	mu           sync.RWMutex
	items        map[uuid.UUID]*catalogEntry
	users        map[uuid.UUID]*member
	usersByEmail map[string]*member

	loans    *lending.Registry
	waitlist *lending.Waitlist

	saveUsersMu    sync.Mutex
	saveItemsMu    sync.Mutex
	saveLoansMu    sync.Mutex
	saveWaitlistMu sync.Mutex
}

// Option customises a CirculationService.
type Option func(*circulationService)

// WithClock replaces time.Now as the source of "today".
func WithClock(now func() time.Time) Option {
	return func(s *circulationService) { s.now = now }
}

func WithMetrics(m *Metrics) Option {
	return func(s *circulationService) { s.metrics = m }
}

// NewCirculationService wires up all dependencies and returns a CirculationService. Call Load
// before serving requests to pick up persisted state.
func NewCirculationService(
	repos repositories.Set,
	policy lending.Policy,
	notifier notify.Notifier,
	opts ...Option,
) (CirculationService, error) {
	s := &circulationService{
		repos:        repos,
		policy:       policy,
		notifier:     notifier,
		now:          time.Now,
		items:        make(map[uuid.UUID]*catalogEntry),
		users:        make(map[uuid.UUID]*member),
		usersByEmail: make(map[string]*member),
		loans:        lending.NewRegistry(),
		waitlist:     lending.NewWaitlist(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		m, err := NewMetrics(nil)
		if err != nil {
			return nil, err
		}
		s.metrics = m
	}
	return s, nil
}

// Load replaces the in-memory state with what the repositories hold.
func (s *circulationService) Load(ctx context.Context) error {
	users, err := s.repos.Users.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	items, err := s.repos.Items.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	loanRecords, err := s.repos.Loans.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load loans: %w", err)
	}
	entries, err := s.repos.Waitlist.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load waitlist: %w", err)
	}

	byID := make(map[uuid.UUID]*member, len(users))
	byEmail := make(map[string]*member, len(users))
	for _, u := range users {
		account, err := lending.NewAccount(u.FineBalance)
		if err != nil {
			return fmt.Errorf("user %s: %w", u.ID, err)
		}
		m := &member{user: u, account: account}
		byID[u.ID] = m
		byEmail[normalizeEmail(u.Email)] = m
	}

	catalog := make(map[uuid.UUID]*catalogEntry, len(items))
	for _, it := range items {
		copies, err := lending.NewAvailability(it.TotalCopies, it.AvailableCopies)
		if err != nil {
			return fmt.Errorf("item %s: %w", it.ID, err)
		}
		catalog[it.ID] = &catalogEntry{item: it, copies: copies}
	}

	sort.SliceStable(loanRecords, func(i, j int) bool { return loanRecords[i].BorrowDate.Before(loanRecords[j].BorrowDate) })
	loans := make([]*lending.Loan, 0, len(loanRecords))
	for _, rec := range loanRecords {
		loan, err := lending.RestoreLoan(rec)
		if err != nil {
			return err
		}
		loans = append(loans, loan)
	}

	s.mu.Lock()
	s.users = byID
	s.usersByEmail = byEmail
	s.items = catalog
	s.mu.Unlock()

	s.loans.Reset(loans...)
	s.waitlist.Restore(entries)

	log.Printf("[INFO] Load: %d users, %d items, %d loans, %d waitlist entries", len(users), len(items), len(loans), len(entries))
	return nil
}

// ─── Users & Catalogue ────────────────────────────────────────────────────────

// RegisterUser adds a borrower with a zero fine balance.
func (s *circulationService) RegisterUser(ctx context.Context, name, email string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: name and a valid email are required", ErrInvalidArgument)
	}

	m := &member{
		user:    models.User{ID: uuid.New(), Name: name, Email: email, FineBalance: decimal.Zero},
		account: &lending.Account{},
	}

	s.mu.Lock()
	if _, exists := s.usersByEmail[normalizeEmail(email)]; exists {
		s.mu.Unlock()
		return nil, ErrDuplicateUser
	}
	s.users[m.user.ID] = m
	s.usersByEmail[normalizeEmail(email)] = m
	s.mu.Unlock()

	log.Printf("[INFO] RegisterUser: registered %s (id=%s)", email, m.user.ID)
	user := m.snapshot()
	return &user, s.persist(ctx, usersCollection)
}

func (s *circulationService) GetUser(userID uuid.UUID) (*models.User, error) {
	m, err := s.member(userID)
	if err != nil {
		return nil, err
	}
	user := m.snapshot()
	return &user, nil
}

// AddItem puts a new title into the catalogue with every copy on the shelf.
func (s *circulationService) AddItem(ctx context.Context, category models.ItemCategory, title, creator string, totalCopies int) (*models.Item, error) {
	category, err := models.ParseItemCategory(string(category))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if _, err := s.policy.StrategyFor(category); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidArgument)
	}
	copies, err := lending.NewAvailability(totalCopies, totalCopies)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	entry := &catalogEntry{
		item:   models.Item{ID: uuid.New(), Type: category, Title: title, Creator: strings.TrimSpace(creator)},
		copies: copies,
	}
	s.mu.Lock()
	s.items[entry.item.ID] = entry
	s.mu.Unlock()

	log.Printf("[INFO] AddItem: added %s %q (id=%s) with %d copies", category, title, entry.item.ID, totalCopies)
	item := entry.snapshot()
	return &item, s.persist(ctx, itemsCollection)
}

// SetTotalCopies changes how many copies the library owns. It cannot go below the number of
// copies currently on loan. When copies become available and users are waiting, they are
// notified.
func (s *circulationService) SetTotalCopies(ctx context.Context, itemID uuid.UUID, totalCopies int) (*models.Item, error) {
	entry, err := s.catalogEntry(itemID)
	if err != nil {
		return nil, err
	}
	if err := entry.copies.Resize(totalCopies); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	item := entry.snapshot()
	log.Printf("[INFO] SetTotalCopies: item %s now has %d/%d copies available", itemID, item.AvailableCopies, item.TotalCopies)

	errs := []error{s.persist(ctx, itemsCollection)}
	if entry.copies.IsAvailable() && len(s.waitlist.Entries(itemID)) > 0 {
		_, err := s.PromoteWaitlist(ctx, itemID)
		errs = append(errs, err)
	}
	return &item, errors.Join(errs...)
}

// ListItems returns the catalogue ordered by title.
func (s *circulationService) ListItems() []models.Item {
	s.mu.RLock()
	items := make([]models.Item, 0, len(s.items))
	for _, e := range s.items {
		items = append(items, e.snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].Title != items[j].Title {
			return items[i].Title < items[j].Title
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	return items
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

func (s *circulationService) today() time.Time {
	return s.now().UTC()
}

func (s *circulationService) member(userID uuid.UUID) (*member, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return m, nil
}

func (s *circulationService) memberByEmail(email string) (*member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.usersByEmail[normalizeEmail(email)]
	return m, ok
}

func (s *circulationService) catalogEntry(itemID uuid.UUID) (*catalogEntry, error) {
	if itemID == uuid.Nil {
		return nil, fmt.Errorf("%w: item id is required", ErrInvalidArgument)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[itemID]
	if !ok {
		return nil, ErrItemNotFound
	}
	return e, nil
}

func (m *member) snapshot() models.User {
	u := m.user
	u.FineBalance = m.account.Balance()
	return u
}

func (e *catalogEntry) snapshot() models.Item {
	it := e.item
	it.TotalCopies, it.AvailableCopies = e.copies.Counts()
	return it
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
