package coordination

import (
	"context"
	"log/slog"
	"sync"
)

// Availability records whether the primary transport is currently usable.
// The subscriber writes it, the spool poller reads it. Setting the current
// value again is a no-op; real transitions are logged and reported to the
// observer.
type Availability struct {
	mu       sync.RWMutex
	up       bool
	observer func(up bool)
}

// NewAvailability starts in the unavailable state. observer may be nil.
func NewAvailability(observer func(up bool)) *Availability {
	a := &Availability{observer: observer}
	if observer != nil {
		observer(false)
	}
	return a
}

func (a *Availability) Available() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.up
}

// Set stores the flag and reports whether it changed.
func (a *Availability) Set(ctx context.Context, up bool, reason string) bool {
	a.mu.Lock()
	if a.up == up {
		a.mu.Unlock()
		return false
	}
	a.up = up
	observer := a.observer
	a.mu.Unlock()

	if up {
		slog.InfoContext(ctx, "Primary transport available, spool fallback paused", "reason", reason)
	} else {
		slog.WarnContext(ctx, "Primary transport unavailable, spool fallback active", "reason", reason)
	}
	if observer != nil {
		observer(up)
	}
	return true
}
