package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hdtickets/scout/internal/domain"
	"github.com/hdtickets/scout/internal/scrape"
	"github.com/hdtickets/scout/internal/service/rotation"
)

type fakeAdapter struct {
	platform domain.Platform

	mu      sync.Mutex
	calls   int
	idents  []int64
	results []fetchResult
}

type fetchResult struct {
	raw []scrape.RawListing
	err error
}

func (a *fakeAdapter) Platform() domain.Platform { return a.platform }

func (a *fakeAdapter) Fetch(_ context.Context, _ scrape.Query, ident domain.Identity) ([]scrape.RawListing, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.idents = append(a.idents, ident.ID)
	i := a.calls
	a.calls++
	if i >= len(a.results) {
		i = len(a.results) - 1
	}
	return a.results[i].raw, a.results[i].err
}

type fakePool struct {
	mu       sync.Mutex
	next     int64
	checkins []domain.FetchOutcome
	empty    bool
}

func (p *fakePool) Checkout(_ context.Context, _ domain.Platform, _ string) (*domain.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.empty {
		return nil, rotation.ErrNoIdentityAvailable
	}
	p.next++
	return &domain.Identity{ID: p.next}, nil
}

func (p *fakePool) Checkin(_ context.Context, _ *domain.Identity, outcome domain.FetchOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkins = append(p.checkins, outcome)
	return nil
}

type fakeIngestor struct {
	mu       sync.Mutex
	applied  map[domain.Platform]int
	finished map[domain.Platform][]string
	applyErr error
}

func newFakeIngestor() *fakeIngestor {
	return &fakeIngestor{
		applied:  make(map[domain.Platform]int),
		finished: make(map[domain.Platform][]string),
	}
}

func (i *fakeIngestor) Apply(_ context.Context, platform domain.Platform, raw []scrape.RawListing) ([]string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.applyErr != nil {
		return nil, i.applyErr
	}
	i.applied[platform] += len(raw)
	fps := make([]string, len(raw))
	for j, r := range raw {
		fps[j] = r.ExternalID
	}
	return fps, nil
}

func (i *fakeIngestor) FinishCycle(_ context.Context, platform domain.Platform, seen []string) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.finished[platform] = seen
	return 1, nil
}

func newTestService(adapters []scrape.Adapter, pool IdentityPool, ing Ingestor, cfg Config) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(adapters, pool, ing, nil, cfg, log)
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

func raws(ids ...string) []scrape.RawListing {
	out := make([]scrape.RawListing, len(ids))
	for i, id := range ids {
		out[i] = scrape.RawListing{ExternalID: id}
	}
	return out
}

func TestRunCycleRetriesTransientWithFreshIdentity(t *testing.T) {
	adapter := &fakeAdapter{
		platform: domain.PlatformStubHub,
		results: []fetchResult{
			{err: &scrape.TransientError{Platform: domain.PlatformStubHub, Status: 429, Err: errors.New("throttled")}},
			{raw: raws("a", "b")},
		},
	}
	pool := &fakePool{}
	ing := newFakeIngestor()

	svc := newTestService([]scrape.Adapter{adapter}, pool, ing, Config{
		MaxRetries: 2,
		Keywords:   []string{"Manchester United"},
	})

	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if adapter.calls != 2 {
		t.Fatalf("adapter called %d times, want 2", adapter.calls)
	}
	if adapter.idents[0] == adapter.idents[1] {
		t.Fatal("retry must use a fresh identity")
	}
	if want := []domain.FetchOutcome{domain.FetchTransient, domain.FetchSuccess}; len(pool.checkins) != 2 ||
		pool.checkins[0] != want[0] || pool.checkins[1] != want[1] {
		t.Fatalf("checkins = %v, want %v", pool.checkins, want)
	}
	if report.Listings != 2 || report.Failures != 0 {
		t.Fatalf("report = %+v", report)
	}
	if got := ing.finished[domain.PlatformStubHub]; len(got) != 2 {
		t.Fatalf("FinishCycle seen = %v, want 2 fingerprints", got)
	}
}

func TestRunCyclePermanentStopsRetrying(t *testing.T) {
	adapter := &fakeAdapter{
		platform: domain.PlatformViagogo,
		results: []fetchResult{
			{err: &scrape.PermanentError{Platform: domain.PlatformViagogo, Status: 403, Err: errors.New("forbidden")}},
		},
	}
	pool := &fakePool{}
	ing := newFakeIngestor()

	svc := newTestService([]scrape.Adapter{adapter}, pool, ing, Config{
		MaxRetries: 3,
		Keywords:   []string{"Old Trafford"},
	})

	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if adapter.calls != 1 {
		t.Fatalf("adapter called %d times, want 1 for a permanent error", adapter.calls)
	}
	if len(pool.checkins) != 1 || pool.checkins[0] != domain.FetchPermanent {
		t.Fatalf("checkins = %v", pool.checkins)
	}
	if report.Failures != 1 {
		t.Fatalf("report.Failures = %d, want 1", report.Failures)
	}
	if _, ok := ing.finished[domain.PlatformViagogo]; ok {
		t.Fatal("FinishCycle must not run for a platform with no successful batch")
	}
}

func TestRunCycleBreakerSkipsPlatform(t *testing.T) {
	adapter := &fakeAdapter{
		platform: domain.PlatformTickPick,
		results: []fetchResult{
			{err: &scrape.TransientError{Platform: domain.PlatformTickPick, Status: 500, Err: errors.New("boom")}},
		},
	}
	pool := &fakePool{}
	ing := newFakeIngestor()

	svc := newTestService([]scrape.Adapter{adapter}, pool, ing, Config{
		MaxRetries:       0,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Hour,
		Keywords:         []string{"k"},
	})

	for i := 0; i < 2; i++ {
		if _, err := svc.RunCycle(context.Background()); err != nil {
			t.Fatalf("RunCycle %d: %v", i, err)
		}
	}
	if !svc.BreakerOpen(domain.PlatformTickPick) {
		t.Fatal("breaker should be open after consecutive failing cycles")
	}

	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Fetches != 0 {
		t.Fatalf("open breaker must skip fetches, got %d", report.Fetches)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != domain.PlatformTickPick {
		t.Fatalf("report.Skipped = %v", report.Skipped)
	}
}

func TestRunCycleNoIdentityIsNotABreakerFailure(t *testing.T) {
	adapter := &fakeAdapter{
		platform: domain.PlatformFunZone,
		results:  []fetchResult{{raw: raws("x")}},
	}
	pool := &fakePool{empty: true}
	ing := newFakeIngestor()

	svc := newTestService([]scrape.Adapter{adapter}, pool, ing, Config{
		BreakerThreshold: 1,
		Keywords:         []string{"k"},
	})

	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if adapter.calls != 0 {
		t.Fatal("no fetch should run without an identity")
	}
	if svc.BreakerOpen(domain.PlatformFunZone) {
		t.Fatal("an empty identity pool must not trip the breaker")
	}
	if report.Failures != 1 {
		t.Fatalf("report.Failures = %d, want 1", report.Failures)
	}
}

func TestRunCycleSurfacesPersistenceFailure(t *testing.T) {
	adapter := &fakeAdapter{
		platform: domain.PlatformStubHub,
		results:  []fetchResult{{raw: raws("a")}},
	}
	pool := &fakePool{}
	ing := newFakeIngestor()
	ing.applyErr = errors.New("connection refused")

	svc := newTestService([]scrape.Adapter{adapter}, pool, ing, Config{
		Keywords: []string{"Manchester United"},
	})

	report, err := svc.RunCycle(context.Background())
	if !errors.Is(err, ing.applyErr) {
		t.Fatalf("an unpersisted batch must fail the cycle, got err=%v", err)
	}
	if report == nil || report.Failures != 1 {
		t.Fatalf("report = %+v, want Failures=1", report)
	}
	if _, ok := ing.finished[domain.PlatformStubHub]; ok {
		t.Fatal("FinishCycle must not run for a platform whose batch did not land")
	}
}

func TestRunCycleWarnsWhenPoolExhausted(t *testing.T) {
	var buf bytes.Buffer
	adapter := &fakeAdapter{
		platform: domain.PlatformFunZone,
		results:  []fetchResult{{raw: raws("x")}},
	}
	svc := New([]scrape.Adapter{adapter}, &fakePool{empty: true}, newFakeIngestor(), nil, Config{
		Keywords: []string{"k"},
	}, slog.New(slog.NewTextHandler(&buf, nil)))
	svc.sleep = func(context.Context, time.Duration) error { return nil }

	if _, err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "identity pool exhausted") {
		t.Fatalf("capacity warning missing from logs: %q", out)
	}
	if strings.Contains(out, "fetch failed") {
		t.Fatal("pool exhaustion must not log as a fetch failure")
	}
}

func TestRunCycleFansOutKeywords(t *testing.T) {
	adapter := &fakeAdapter{
		platform: domain.PlatformTicketmaster,
		results:  []fetchResult{{raw: raws("e1")}},
	}
	pool := &fakePool{}
	ing := newFakeIngestor()

	svc := newTestService([]scrape.Adapter{adapter}, pool, ing, Config{
		Workers:  4,
		Keywords: []string{"Manchester United", "Premier League", "Champions League"},
	})

	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if report.Fetches != 3 {
		t.Fatalf("report.Fetches = %d, want one per keyword", report.Fetches)
	}
	if got := ing.applied[domain.PlatformTicketmaster]; got != 3 {
		t.Fatalf("ingested %d listings, want 3", got)
	}
}
