package workers

import (
	"context"
	"log"
	"time"

	"circulation/internal/services"
)

// Circulation is the part of the circulation service the sweeper drives.
type Circulation interface {
	ApplyOverdueFines(ctx context.Context, asOf time.Time) (*services.SweepReport, error)
	SendDueReminders(ctx context.Context, asOf time.Time) (int, error)
}

// Sweeper periodically charges overdue fines and reminds borrowers of upcoming and missed due
// dates.
type Sweeper struct {
	svc      Circulation
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(svc Circulation, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, interval: interval, now: time.Now}
}

// Run checks once immediately and then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("[INFO] Sweeper: stopped")
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

func (s *Sweeper) Check(ctx context.Context) {
	today := s.now().UTC()
	log.Printf("[INFO] Sweeper: checking loans as of %s", today.Format(time.DateOnly))

	if _, err := s.svc.ApplyOverdueFines(ctx, today); err != nil {
		log.Printf("[ERROR] Sweeper: applying overdue fines: %v", err)
	}
	if _, err := s.svc.SendDueReminders(ctx, today); err != nil {
		log.Printf("[ERROR] Sweeper: sending reminders: %v", err)
	}
}
