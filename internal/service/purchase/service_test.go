package purchase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hdtickets/scout/internal/domain"
	"github.com/hdtickets/scout/internal/repository"
)

// memQueue mirrors the SQL queue's invariants: one live entry per
// fingerprint, first-claim-wins, terminal states are final.
type memQueue struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*domain.QueueEntry
}

func newMemQueue() *memQueue {
	return &memQueue{entries: make(map[uuid.UUID]*domain.QueueEntry)}
}

func (q *memQueue) Admit(_ context.Context, e *domain.QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, cur := range q.entries {
		if cur.Fingerprint == e.Fingerprint && !cur.Status.Terminal() {
			return repository.ErrDuplicateAdmission
		}
	}
	cp := *e
	cp.Status = domain.QueueQueued
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	q.entries[cp.ID] = &cp
	return nil
}

func (q *memQueue) Claim(_ context.Context, id uuid.UUID, claimant string, until time.Time) (*domain.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if e.Status != domain.QueueQueued {
		return nil, repository.ErrAlreadyReserved
	}
	e.Status = domain.QueueReserved
	e.ReservedBy = claimant
	e.ReservedUntil = &until
	cp := *e
	return &cp, nil
}

func (q *memQueue) Close(_ context.Context, id uuid.UUID, status domain.QueueStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok || e.Status != domain.QueueReserved {
		return repository.ErrInvalidTransition
	}
	e.Status = status
	return nil
}

func (q *memQueue) ExpireReservations(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	var n int64
	for _, e := range q.entries {
		if e.Status == domain.QueueReserved && e.ReservedUntil != nil && !e.ReservedUntil.After(now) {
			e.Status = domain.QueueExpired
			n++
		}
	}
	return n, nil
}

func (q *memQueue) Get(_ context.Context, id uuid.UUID) (*domain.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (q *memQueue) List(_ context.Context, onlyLive bool, limit, _ int) ([]domain.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.QueueEntry
	for _, e := range q.entries {
		if onlyLive && e.Status.Terminal() {
			continue
		}
		out = append(out, *e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func newTestService(q Repo, ttl time.Duration) *Service {
	return New(q, Config{ReservationTTL: ttl}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAdmitIsIdempotentPerFingerprint(t *testing.T) {
	svc := newTestService(newMemQueue(), time.Minute)
	ctx := context.Background()

	e, err := svc.Admit(ctx, "fp-1", 7)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if e.Status != domain.QueueQueued {
		t.Fatalf("status = %s, want queued", e.Status)
	}

	if _, err := svc.Admit(ctx, "fp-1", 8); !errors.Is(err, ErrDuplicateAdmission) {
		t.Fatalf("second admission must be rejected, got %v", err)
	}

	// a different listing queues fine
	if _, err := svc.Admit(ctx, "fp-2", 7); err != nil {
		t.Fatalf("Admit fp-2: %v", err)
	}
}

func TestClaimFirstWins(t *testing.T) {
	q := newMemQueue()
	svc := newTestService(q, time.Minute)
	ctx := context.Background()

	e, _ := svc.Admit(ctx, "fp-1", 7)

	const claimants = 8

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		winner int
		losers int
	)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Claim(ctx, e.ID, "collab-"+string(rune('a'+n)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winner++
			case errors.Is(err, ErrAlreadyReserved):
				losers++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if winner != 1 || losers != claimants-1 {
		t.Fatalf("winners=%d losers=%d, want exactly one winner", winner, losers)
	}
}

func TestClaimSetsReservation(t *testing.T) {
	svc := newTestService(newMemQueue(), 10*time.Minute)
	ctx := context.Background()

	e, _ := svc.Admit(ctx, "fp-1", 7)
	claimed, err := svc.Claim(ctx, e.ID, "alice")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if claimed.Status != domain.QueueReserved || claimed.ReservedBy != "alice" {
		t.Fatalf("claimed = %+v", claimed)
	}
	if claimed.ReservedUntil == nil || time.Until(*claimed.ReservedUntil) < 9*time.Minute {
		t.Fatalf("reservation TTL not applied: %v", claimed.ReservedUntil)
	}

	if _, err := svc.Claim(ctx, e.ID, "bob"); !errors.Is(err, ErrAlreadyReserved) {
		t.Fatalf("want ErrAlreadyReserved, got %v", err)
	}
	if _, err := svc.Claim(ctx, uuid.New(), "bob"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("want ErrEntryNotFound, got %v", err)
	}
	if _, err := svc.Claim(ctx, e.ID, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("empty claimant must be rejected, got %v", err)
	}
}

func TestSettlementTransitions(t *testing.T) {
	svc := newTestService(newMemQueue(), time.Minute)
	ctx := context.Background()

	e, _ := svc.Admit(ctx, "fp-1", 7)

	// settling an unclaimed entry is invalid
	if err := svc.MarkPurchased(ctx, e.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("queued -> purchased must be rejected, got %v", err)
	}

	svc.Claim(ctx, e.ID, "alice")
	if err := svc.MarkPurchased(ctx, e.ID); err != nil {
		t.Fatalf("MarkPurchased: %v", err)
	}

	// terminal states are final
	if err := svc.MarkFailed(ctx, e.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("purchased -> failed must be rejected, got %v", err)
	}

	// the fingerprint is free again after settlement
	if _, err := svc.Admit(ctx, "fp-1", 9); err != nil {
		t.Fatalf("re-admission after settlement: %v", err)
	}
}

func TestExpireReservationsFreesFingerprint(t *testing.T) {
	q := newMemQueue()
	svc := newTestService(q, time.Millisecond)
	ctx := context.Background()

	e, _ := svc.Admit(ctx, "fp-1", 7)
	if _, err := svc.Claim(ctx, e.ID, "alice"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	n, err := svc.ExpireReservations(ctx)
	if err != nil {
		t.Fatalf("ExpireReservations: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}

	got, _ := svc.Get(ctx, e.ID)
	if got.Status != domain.QueueExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}

	if _, err := svc.Admit(ctx, "fp-1", 7); err != nil {
		t.Fatalf("fingerprint must be admittable after expiry: %v", err)
	}
}
