package lending

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"circulation/internal/models"
)

// Waitlist keeps, per item, the users who asked for it while every copy was out, in request
// order.
type Waitlist struct {
	mu      sync.Mutex
	queues  map[uuid.UUID][]models.WaitlistEntry
	nextPos int64
}

func NewWaitlist() *Waitlist {
	return &Waitlist{queues: make(map[uuid.UUID][]models.WaitlistEntry)}
}

// Restore replaces the contents with persisted entries, ordered by position.
func (w *Waitlist) Restore(entries []models.WaitlistEntry) {
	sorted := append([]models.WaitlistEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	w.mu.Lock()
	defer w.mu.Unlock()

	w.queues = make(map[uuid.UUID][]models.WaitlistEntry)
	w.nextPos = 0
	for _, e := range sorted {
		w.queues[e.ItemID] = append(w.queues[e.ItemID], e)
		if e.Position > w.nextPos {
			w.nextPos = e.Position
		}
	}
}

// Enqueue appends a request for itemID at the back of its queue.
func (w *Waitlist) Enqueue(itemID uuid.UUID, userEmail string, requestDate time.Time) models.WaitlistEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enqueueLocked(itemID, userEmail, requestDate)
}

func (w *Waitlist) enqueueLocked(itemID uuid.UUID, userEmail string, requestDate time.Time) models.WaitlistEntry {
	w.nextPos++
	entry := models.WaitlistEntry{
		ID:          uuid.New(),
		ItemID:      itemID,
		UserEmail:   userEmail,
		RequestDate: requestDate,
		Position:    w.nextPos,
	}
	w.queues[itemID] = append(w.queues[itemID], entry)
	return entry
}

// EnqueueOnce appends a request for itemID unless userEmail (compared case-insensitively) is
// already queued for it. It returns the entry now holding the user's place and whether it was
// added by this call.
func (w *Waitlist) EnqueueOnce(itemID uuid.UUID, userEmail string, requestDate time.Time) (models.WaitlistEntry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, e := range w.queues[itemID] {
		if strings.EqualFold(e.UserEmail, userEmail) {
			return e, false
		}
	}
	return w.enqueueLocked(itemID, userEmail, requestDate), true
}

// Drain removes and returns every entry for itemID, oldest first.
func (w *Waitlist) Drain(itemID uuid.UUID) []models.WaitlistEntry {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := w.queues[itemID]
	delete(w.queues, itemID)
	return entries
}

// Entries is a copy of the queue for itemID.
func (w *Waitlist) Entries(itemID uuid.UUID) []models.WaitlistEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.WaitlistEntry(nil), w.queues[itemID]...)
}

// All is a copy of every queued entry in global request order, for persistence.
func (w *Waitlist) All() []models.WaitlistEntry {
	w.mu.Lock()
	var out []models.WaitlistEntry
	for _, q := range w.queues {
		out = append(out, q...)
	}
	w.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}
