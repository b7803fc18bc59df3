package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"circulation/internal/models"
	"circulation/internal/repositories"
)

// Notifier delivers a message to a user. A delivery failure is reported but is never fatal to
// the caller's operation.
type Notifier interface {
	Notify(ctx context.Context, user models.User, subject, body string) error
}

// ─── Log file ─────────────────────────────────────────────────────────────────

// LogNotifier appends one line per message to a log file.
type LogNotifier struct {
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
}

func NewLogNotifier(path string) (*LogNotifier, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &LogNotifier{file: f, logger: log.New(f, "", log.LstdFlags|log.LUTC)}, nil
}

func (n *LogNotifier) Notify(ctx context.Context, user models.User, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.logger.Output(2, fmt.Sprintf("to=%s subject=%q body=%q", user.Email, subject, body))
}

func (n *LogNotifier) Close() error {
	return n.file.Close()
}

// ─── Inbox ────────────────────────────────────────────────────────────────────

// StoreNotifier keeps every message as a models.Notification in a repository, so users can read
// them later. Repositories implementing repositories.Appender get one Append per message; any
// other repository has its whole inbox loaded and saved back, which grows with the inbox.
type StoreNotifier struct {
	mu   sync.Mutex
	repo repositories.Repository[models.Notification]
	now  func() time.Time
}

func NewStoreNotifier(repo repositories.Repository[models.Notification]) *StoreNotifier {
	return &StoreNotifier{repo: repo, now: time.Now}
}

func (n *StoreNotifier) Notify(ctx context.Context, user models.User, subject, body string) error {
	msg := models.Notification{
		ID:        uuid.New(),
		UserID:    user.ID,
		Subject:   subject,
		Body:      body,
		CreatedAt: n.now().UTC(),
	}

	if appender, ok := n.repo.(repositories.Appender[models.Notification]); ok {
		if err := appender.Append(ctx, msg); err != nil {
			return fmt.Errorf("save notification: %w", err)
		}
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	inbox, err := n.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}
	if err := n.repo.SaveAll(ctx, append(inbox, msg)); err != nil {
		return fmt.Errorf("save notification: %w", err)
	}
	return nil
}

// ─── Fan-out ──────────────────────────────────────────────────────────────────

// Fanout delivers every message through each notifier in turn. All of them are tried; their
// errors are joined.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, user models.User, subject, body string) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, user, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
