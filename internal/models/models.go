package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ItemCategory string

const (
	ItemCategoryBook    ItemCategory = "BOOK"
	ItemCategoryCD      ItemCategory = "CD"
	ItemCategoryJournal ItemCategory = "JOURNAL"
)

// ParseItemCategory resolves the persisted discriminant of an item.
func ParseItemCategory(s string) (ItemCategory, error) {
	switch c := ItemCategory(s); c {
	case ItemCategoryBook, ItemCategoryCD, ItemCategoryJournal:
		return c, nil
	}
	return "", fmt.Errorf("unknown item type %q", s)
}

type LoanStatus string

const (
	LoanStatusBorrowed LoanStatus = "BORROWED"
	LoanStatusReturned LoanStatus = "RETURNED"
)

type User struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string          `gorm:"size:255;not null" json:"name"`
	Email       string          `gorm:"size:255;not null;uniqueIndex" json:"email"`
	FineBalance decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"fine_balance"`
}

// Item is one catalogue entry. Type is the discriminant that selects the material category when
// records are read back from storage.
type Item struct {
	ID              uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Type            ItemCategory `gorm:"column:type;size:16;not null;index" json:"type"`
	Title           string       `gorm:"size:255;not null" json:"title"`
	Creator         string       `gorm:"size:255" json:"creator"`
	TotalCopies     int          `gorm:"not null" json:"total_copies"`
	AvailableCopies int          `gorm:"not null" json:"available_copies"`
}

// LoanRecord is the persisted shape of one borrowing transaction. The strategy columns are a
// snapshot taken at borrow time.
type LoanRecord struct {
	ID                       uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                   uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	ItemID                   uuid.UUID       `gorm:"type:uuid;not null;index" json:"item_id"`
	StrategyBorrowPeriodDays int             `gorm:"not null" json:"strategy_borrow_period_days"`
	StrategyRatePerDay       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"strategy_rate_per_day"`
	BorrowDate               time.Time       `gorm:"not null" json:"borrow_date"`
	DueDate                  time.Time       `gorm:"not null" json:"due_date"`
	ReturnDate               *time.Time      `json:"return_date"`
	Status                   LoanStatus      `gorm:"size:16;not null;index" json:"status"`
	FineAccrued              decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"fine_accrued"`
	FinePaid                 decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"fine_paid"`
	FineApplied              bool            `gorm:"not null;default:false" json:"fine_applied"`
}

type WaitlistEntry struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID      uuid.UUID `gorm:"type:uuid;not null;index" json:"item_id"`
	UserEmail   string    `gorm:"size:255;not null" json:"user_email"`
	RequestDate time.Time `gorm:"not null" json:"request_date"`
	Position    int64     `gorm:"not null;index" json:"position"`
}

// Notification is a delivered message kept for the user's inbox.
type Notification struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Subject   string    `gorm:"size:255;not null" json:"subject"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}
