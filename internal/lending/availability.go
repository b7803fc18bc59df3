package lending

import (
	"fmt"
	"sync"
)

// Availability tracks how many physical copies of one catalogue item are on the shelf.
//
// Every transition runs under the instance's own mutex, so at most one concurrent caller can
// claim a vacated copy and 0 <= available <= total holds after every call.
type Availability struct {
	mu        sync.Mutex
	total     int
	available int
}

// NewAvailability builds a counter with the given totals. total must be at least 1 and available
// must lie in [0, total].
func NewAvailability(total, available int) (*Availability, error) {
	if total < 1 {
		return nil, fmt.Errorf("%w: total copies %d", ErrInvalidCopies, total)
	}
	if available < 0 || available > total {
		return nil, fmt.Errorf("%w: available copies %d of %d", ErrInvalidCopies, available, total)
	}
	return &Availability{total: total, available: available}, nil
}

// TryBorrow takes one copy off the shelf. It reports false, without changing anything, when no
// copy is available.
func (a *Availability) TryBorrow() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.available <= 0 {
		return false
	}
	a.available--
	a.checkLocked()
	return true
}

// TryReturn puts one copy back. It reports false when every copy is already on the shelf.
func (a *Availability) TryReturn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.available >= a.total {
		return false
	}
	a.available++
	a.checkLocked()
	return true
}

// IsAvailable reports whether at least one copy can be borrowed right now.
func (a *Availability) IsAvailable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.available > 0
}

// SetTotalCopies changes the number of owned copies. The available count moves by the same
// delta and is then clamped to [0, newTotal].
func (a *Availability) SetTotalCopies(newTotal int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.setTotalLocked(newTotal)
}

// Resize changes the number of owned copies like SetTotalCopies, but refuses to drop below the
// number of copies currently out on loan.
func (a *Availability) Resize(newTotal int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if out := a.total - a.available; newTotal < out {
		return fmt.Errorf("%w: %d copies are on loan, cannot own only %d", ErrInvalidCopies, out, newTotal)
	}
	return a.setTotalLocked(newTotal)
}

func (a *Availability) setTotalLocked(newTotal int) error {
	if newTotal < 1 {
		return fmt.Errorf("%w: total copies %d", ErrInvalidCopies, newTotal)
	}

	a.available += newTotal - a.total
	a.total = newTotal
	if a.available < 0 {
		a.available = 0
	}
	if a.available > a.total {
		a.available = a.total
	}
	a.checkLocked()
	return nil
}

// Counts returns a consistent (total, available) pair.
func (a *Availability) Counts() (total, available int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total, a.available
}

// checkLocked panics when the copy invariant is broken; reaching it means a bug in this file.
func (a *Availability) checkLocked() {
	if a.available < 0 || a.available > a.total {
		panic(fmt.Sprintf("lending: availability invariant broken: %d of %d", a.available, a.total))
	}
}
