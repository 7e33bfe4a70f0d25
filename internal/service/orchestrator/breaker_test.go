package orchestrator

import (
	"testing"
	"time"

	"github.com/hdtickets/scout/internal/domain"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := newBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		b.Failure(domain.PlatformStubHub)
	}
	if !b.Allow(domain.PlatformStubHub) {
		t.Fatal("breaker must stay closed below threshold")
	}

	b.Failure(domain.PlatformStubHub)
	if b.Allow(domain.PlatformStubHub) {
		t.Fatal("breaker must open at threshold")
	}
	if !b.Open(domain.PlatformStubHub) {
		t.Fatal("Open should report true")
	}

	// other platforms are unaffected
	if !b.Allow(domain.PlatformViagogo) {
		t.Fatal("breaker state must be per platform")
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := newBreaker(3, time.Minute)

	b.Failure(domain.PlatformTickPick)
	b.Failure(domain.PlatformTickPick)
	b.Success(domain.PlatformTickPick)
	b.Failure(domain.PlatformTickPick)
	b.Failure(domain.PlatformTickPick)

	if !b.Allow(domain.PlatformTickPick) {
		t.Fatal("success must reset the consecutive failure count")
	}
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	b := newBreaker(2, time.Minute)

	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	b.Failure(domain.PlatformFunZone)
	b.Failure(domain.PlatformFunZone)
	if b.Allow(domain.PlatformFunZone) {
		t.Fatal("breaker should be open")
	}

	now = now.Add(time.Minute)
	if !b.Allow(domain.PlatformFunZone) {
		t.Fatal("breaker should half-open after cooldown")
	}

	// a single failure in half-open reopens immediately
	b.Failure(domain.PlatformFunZone)
	if b.Allow(domain.PlatformFunZone) {
		t.Fatal("failure during half-open must reopen the breaker")
	}

	// and a success closes it for good
	now = now.Add(time.Minute)
	if !b.Allow(domain.PlatformFunZone) {
		t.Fatal("cooldown should half-open again")
	}
	b.Success(domain.PlatformFunZone)
	b.Failure(domain.PlatformFunZone)
	if !b.Allow(domain.PlatformFunZone) {
		t.Fatal("single failure after close must not open the breaker")
	}
}
