package orchestrator

import (
	"sync"
	"time"

	"github.com/hdtickets/scout/internal/domain"
)

// breaker is a per-platform circuit breaker over consecutive fetch
// failures. After threshold consecutive failures the platform is skipped
// until the cooldown elapses; the first call after the cooldown acts as the
// half-open probe.
type breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	state map[domain.Platform]*breakerState
}

type breakerState struct {
	consecutive int
	openedAt    time.Time
	open        bool
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     make(map[domain.Platform]*breakerState),
	}
}

// Allow reports whether the platform may be fetched right now. When an open
// breaker's cooldown has elapsed it closes optimistically; the next failure
// reopens it immediately.
func (b *breaker) Allow(platform domain.Platform) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.state[platform]
	if !ok || !st.open {
		return true
	}

	if b.now().Sub(st.openedAt) >= b.cooldown {
		// half-open: one failure away from reopening
		st.open = false
		st.consecutive = b.threshold - 1
		return true
	}

	return false
}

func (b *breaker) Success(platform domain.Platform) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.state[platform]; ok {
		st.consecutive = 0
		st.open = false
	}
}

func (b *breaker) Failure(platform domain.Platform) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.state[platform]
	if !ok {
		st = &breakerState{}
		b.state[platform] = st
	}

	st.consecutive++
	if st.consecutive >= b.threshold && !st.open {
		st.open = true
		st.openedAt = b.now()
	}
}

func (b *breaker) Open(platform domain.Platform) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.state[platform]
	return ok && st.open
}
