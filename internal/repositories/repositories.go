package repositories

import (
	"context"
	"fmt"
	"sync"

	"circulation/internal/models"
)

// Repository loads and stores a whole collection of records. SaveAll replaces what was stored
// before with records; there is no transactional batching across repositories.
type Repository[T any] interface {
	LoadAll(ctx context.Context) ([]T, error)
	SaveAll(ctx context.Context, records []T) error
}

// Appender is implemented by repositories that can add records without rewriting the whole
// collection.
type Appender[T any] interface {
	Append(ctx context.Context, records ...T) error
}

// Set groups the repositories the circulation service persists to.
type Set struct {
	Users         Repository[models.User]
	Items         Repository[models.Item]
	Loans         Repository[models.LoanRecord]
	Waitlist      Repository[models.WaitlistEntry]
	Notifications Repository[models.Notification]
}

// concrete implementations

type memoryRepository[T any] struct {
	mu      sync.RWMutex
	records []T
}

// NewMemoryRepository keeps records in process memory only.
func NewMemoryRepository[T any](seed ...T) Repository[T] {
	return &memoryRepository[T]{records: append([]T(nil), seed...)}
}

func (r *memoryRepository[T]) LoadAll(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]T(nil), r.records...), nil
}

func (r *memoryRepository[T]) SaveAll(ctx context.Context, records []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append([]T(nil), records...)
	return nil
}

func (r *memoryRepository[T]) Append(ctx context.Context, records ...T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
	return nil
}

// NewMemorySet returns a Set backed entirely by memory.
func NewMemorySet() Set {
	return Set{
		Users:         NewMemoryRepository[models.User](),
		Items:         NewMemoryRepository[models.Item](),
		Loans:         NewMemoryRepository[models.LoanRecord](),
		Waitlist:      NewMemoryRepository[models.WaitlistEntry](),
		Notifications: NewMemoryRepository[models.Notification](),
	}
}

type validatingRepository[T any] struct {
	Repository[T]
	check func(T) error
}

// Validated rejects loaded records for which check fails, so corrupt rows never reach the
// service.
func Validated[T any](inner Repository[T], check func(T) error) Repository[T] {
	return &validatingRepository[T]{Repository: inner, check: check}
}

func (r *validatingRepository[T]) LoadAll(ctx context.Context) ([]T, error) {
	records, err := r.Repository.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for i, rec := range records {
		if err := r.check(rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return records, nil
}

// CheckItem validates the category discriminant and copy counts of a stored item.
func CheckItem(item models.Item) error {
	if _, err := models.ParseItemCategory(string(item.Type)); err != nil {
		return fmt.Errorf("item %s: %w", item.ID, err)
	}
	if item.TotalCopies < 1 || item.AvailableCopies < 0 || item.AvailableCopies > item.TotalCopies {
		return fmt.Errorf("item %s: copies %d of %d out of range", item.ID, item.AvailableCopies, item.TotalCopies)
	}
	return nil
}
