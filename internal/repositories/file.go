package repositories

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"circulation/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type fileRepository[T any] struct {
	mu   sync.Mutex
	path string
}

// NewFileRepository keeps the collection as one indented JSON array in path. Writes go to a
// temporary file first and are renamed into place.
func NewFileRepository[T any](path string) (Repository[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileRepository[T]{path: path}, nil
}

func (r *fileRepository[T]) LoadAll(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLocked()
}

func (r *fileRepository[T]) SaveAll(ctx context.Context, records []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeLocked(records)
}

// Append still rewrites the file, but reads and writes under one lock so concurrent appends
// cannot lose each other's records.
func (r *fileRepository[T]) Append(ctx context.Context, records ...T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.readLocked()
	if err != nil {
		return err
	}
	return r.writeLocked(append(existing, records...))
}

func (r *fileRepository[T]) readLocked() ([]T, error) {
	raw, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var records []T
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *fileRepository[T]) writeLocked(records []T) error {
	if records == nil {
		records = []T{}
	}
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), r.path)
}

// NewFileSet stores every collection as its own file under dir.
func NewFileSet(dir string) (Set, error) {
	users, err := NewFileRepository[models.User](filepath.Join(dir, "users.json"))
	if err != nil {
		return Set{}, err
	}
	items, err := NewFileRepository[models.Item](filepath.Join(dir, "items.json"))
	if err != nil {
		return Set{}, err
	}
	loans, err := NewFileRepository[models.LoanRecord](filepath.Join(dir, "loans.json"))
	if err != nil {
		return Set{}, err
	}
	waitlist, err := NewFileRepository[models.WaitlistEntry](filepath.Join(dir, "waitlist.json"))
	if err != nil {
		return Set{}, err
	}
	notifications, err := NewFileRepository[models.Notification](filepath.Join(dir, "notifications.json"))
	if err != nil {
		return Set{}, err
	}
	return Set{
		Users:         users,
		Items:         Validated(items, CheckItem),
		Loans:         loans,
		Waitlist:      waitlist,
		Notifications: notifications,
	}, nil
}
