package resume

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemorySize bounds the number of remembered tokens
const DefaultMemorySize = 100000

// ErrGuardFull is returned when every remembered token is still live.
// Evicting one would make it replayable, so the caller must refuse the resume.
var ErrGuardFull = errors.New("resume guard is full")

// MemoryGuard is a process-local Guard for single-instance deployments.
// It never forgets a token before its ttl has passed.
type MemoryGuard struct {
	mu   sync.Mutex
	size int
	seen *lru.LRU[string, struct{}]
}

// NewMemoryGuard creates a guard remembering up to size tokens for ttl
func NewMemoryGuard(size int, ttl time.Duration) *MemoryGuard {
	if size <= 0 {
		size = DefaultMemorySize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryGuard{
		size: size,
		seen: lru.NewLRU[string, struct{}](size, nil, ttl),
	}
}

// Consume implements Guard
func (g *MemoryGuard) Consume(_ context.Context, token string) (bool, error) {
	if token == "" {
		return false, ErrEmptyToken
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.seen.Contains(token) {
		return false, nil
	}
	if g.seen.Len() >= g.size {
		// entries share one ttl, so only the oldest can have expired first
		oldest, _, ok := g.seen.GetOldest()
		if ok {
			if _, live := g.seen.Peek(oldest); live {
				return false, ErrGuardFull
			}
			g.seen.Remove(oldest)
		}
	}
	g.seen.Add(token, struct{}{})
	return true, nil
}
