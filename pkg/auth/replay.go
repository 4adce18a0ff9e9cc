package auth

import (
	"sync"
	"time"

	"github.com/tendant/gymkeeper/pkg/domain"
)

// ReplayGuard remembers credential signatures until their tolerance window
// closes. Entries expire on their own, so memory is bounded by the scan rate
// times the window.
type ReplayGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewReplayGuard creates an empty guard.
func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{seen: make(map[string]time.Time)}
}

// Consume records c and reports whether this is its first presentation.
func (g *ReplayGuard) Consume(c domain.Credential, now time.Time, tolerance time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pruneLocked(now)
	if _, ok := g.seen[c.Signature]; ok {
		return false
	}
	g.seen[c.Signature] = c.IssuedTime().Add(tolerance)
	return true
}

// Prune drops entries whose window has closed and returns how many remain.
func (g *ReplayGuard) Prune(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(now)
	return len(g.seen)
}

func (g *ReplayGuard) pruneLocked(now time.Time) {
	for sig, expires := range g.seen {
		if now.After(expires) {
			delete(g.seen, sig)
		}
	}
}
