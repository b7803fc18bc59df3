package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"circulation/internal/models"
)

const saveBatchSize = 200

type gormRepository[T any] struct {
	db      *gorm.DB
	order   string
	replace bool
}

// NewGormRepository stores records in the table of T. Rows are upserted by primary key; when
// replace is set, rows missing from the saved set are deleted in the same transaction.
func NewGormRepository[T any](db *gorm.DB, order string, replace bool) Repository[T] {
	return &gormRepository[T]{db: db, order: order, replace: replace}
}

func (r *gormRepository[T]) LoadAll(ctx context.Context) ([]T, error) {
	var records []T
	q := r.db.WithContext(ctx)
	if r.order != "" {
		q = q.Order(r.order)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *gormRepository[T]) SaveAll(ctx context.Context, records []T) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.replace {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(new(T)).Error; err != nil {
				return err
			}
		}
		if len(records) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).
			CreateInBatches(records, saveBatchSize).
			Error
	})
}

// Append inserts records as new rows; nothing already stored is touched.
func (r *gormRepository[T]) Append(ctx context.Context, records ...T) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(records, saveBatchSize).Error
}

// NewGormSet wires a Set onto one database. Only waitlist entries are ever removed, so the
// waitlist is the one table saved with replace semantics.
func NewGormSet(db *gorm.DB) Set {
	return Set{
		Users:         NewGormRepository[models.User](db, "email", false),
		Items:         Validated(NewGormRepository[models.Item](db, "title", false), CheckItem),
		Loans:         NewGormRepository[models.LoanRecord](db, "borrow_date", false),
		Waitlist:      NewGormRepository[models.WaitlistEntry](db, "position", true),
		Notifications: NewGormRepository[models.Notification](db, "created_at", false),
	}
}

// Migrate creates or updates the tables of every persisted model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Item{},
		&models.LoanRecord{},
		&models.WaitlistEntry{},
		&models.Notification{},
	)
}
