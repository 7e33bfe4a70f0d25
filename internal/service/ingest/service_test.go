package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hdtickets/scout/internal/domain"
	"github.com/hdtickets/scout/internal/repository"
	"github.com/hdtickets/scout/internal/scrape"
	"github.com/hdtickets/scout/internal/service/scoring"
)

// memRepo is an in-memory listing store mirroring the SQL repository's
// semantics closely enough for pipeline tests.
type memRepo struct {
	mu       sync.Mutex
	listings map[string]*domain.Listing
	obs      map[string][]domain.PriceObservation
	nextID   int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		listings: make(map[string]*domain.Listing),
		obs:      make(map[string][]domain.PriceObservation),
	}
}

func (r *memRepo) GetByFingerprint(_ context.Context, fp string) (*domain.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[fp]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *memRepo) Insert(_ context.Context, l *domain.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.listings[l.Fingerprint]; ok {
		return repository.ErrConflict
	}
	cp := *l
	r.listings[l.Fingerprint] = &cp
	return nil
}

func (r *memRepo) UpdateObserved(_ context.Context, l *domain.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.listings[l.Fingerprint]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Title = l.Title
	cur.MinPrice = l.MinPrice
	cur.MaxPrice = l.MaxPrice
	cur.Currency = l.Currency
	cur.Available = l.Available
	cur.EventDate = l.EventDate
	cur.MissedCycles = 0
	cur.Retired = false
	cur.LastSeen = l.LastSeen
	cur.LastScraped = l.LastScraped
	return nil
}

func (r *memRepo) UpdateScore(_ context.Context, fp string, score, reliability float64, trend domain.Trend, highDemand bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.listings[fp]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Score = score
	cur.Reliability = reliability
	cur.Trend = trend
	cur.HighDemand = highDemand
	return nil
}

func (r *memRepo) LastObservation(_ context.Context, fp string) (*domain.PriceObservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	os := r.obs[fp]
	if len(os) == 0 {
		return nil, repository.ErrNotFound
	}
	cp := os[len(os)-1]
	return &cp, nil
}

func (r *memRepo) AppendObservation(_ context.Context, o domain.PriceObservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	o.ID = r.nextID
	r.obs[o.Fingerprint] = append(r.obs[o.Fingerprint], o)
	return nil
}

func (r *memRepo) RecentObservations(_ context.Context, fp string, limit int) ([]domain.PriceObservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	os := append([]domain.PriceObservation(nil), r.obs[fp]...)
	sort.Slice(os, func(i, j int) bool { return os[i].ID > os[j].ID })
	if len(os) > limit {
		os = os[:limit]
	}
	return os, nil
}

func (r *memRepo) MarkMissed(_ context.Context, platform domain.Platform, seen []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := make(map[string]struct{}, len(seen))
	for _, fp := range seen {
		in[fp] = struct{}{}
	}
	var n int64
	for fp, l := range r.listings {
		if l.Platform != platform || l.Retired {
			continue
		}
		if _, ok := in[fp]; !ok {
			l.MissedCycles++
			n++
		}
	}
	return n, nil
}

func (r *memRepo) DowngradeMissed(_ context.Context, platform domain.Platform, grace int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.listings {
		if l.Platform == platform && l.Available && l.MissedCycles > grace {
			l.Available = false
			n++
		}
	}
	return n, nil
}

func (r *memRepo) RetireStale(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.listings {
		if !l.Retired && l.LastSeen.Before(cutoff) {
			l.Retired = true
			l.Available = false
			n++
		}
	}
	return n, nil
}

func (r *memRepo) PruneObservations(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for fp, os := range r.obs {
		keep := os[:0]
		for _, o := range os {
			if o.ObservedAt.Before(cutoff) {
				n++
				continue
			}
			keep = append(keep, o)
		}
		r.obs[fp] = keep
	}
	return n, nil
}

func newTestService(repo Repo) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(repo, scoring.New(scoring.Config{}), nil, nil, nil, Config{GraceMissedCycles: 2}, log)
}

func raw(title, venue, section string, price int64, availability int) scrape.RawListing {
	return scrape.RawListing{
		ExternalID:   "ext-1",
		Title:        title,
		Venue:        venue,
		Section:      section,
		EventDate:    time.Now().Add(14 * 24 * time.Hour),
		MinPrice:     decimal.NewFromInt(price),
		MaxPrice:     decimal.NewFromInt(price + 50),
		Currency:     "GBP",
		Availability: availability,
	}
}

func TestApplyInsertsNewListingWithFirstObservation(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	fps, err := svc.Apply(ctx, domain.PlatformStubHub, []scrape.RawListing{
		raw("Manchester United vs Arsenal", "Old Trafford", "N3404", 120, 4),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(fps) != 1 {
		t.Fatalf("got %d fingerprints, want 1", len(fps))
	}

	l, err := svc.repo.GetByFingerprint(ctx, fps[0])
	if err != nil {
		t.Fatalf("listing not stored: %v", err)
	}
	if !l.Available || l.Platform != domain.PlatformStubHub {
		t.Fatalf("listing = %+v", l)
	}
	if len(repo.obs[fps[0]]) != 1 {
		t.Fatalf("first observation must be recorded, got %d", len(repo.obs[fps[0]]))
	}
}

func TestApplyDeduplicatesAcrossCycles(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	r := raw("Manchester United vs Arsenal", "Old Trafford", "N3404", 120, 4)

	fps1, _ := svc.Apply(ctx, domain.PlatformStubHub, []scrape.RawListing{r})
	fps2, _ := svc.Apply(ctx, domain.PlatformStubHub, []scrape.RawListing{r})

	if fps1[0] != fps2[0] {
		t.Fatal("same listing must map to the same fingerprint")
	}
	if len(repo.listings) != 1 {
		t.Fatalf("expected a single canonical listing, got %d", len(repo.listings))
	}
	// same price: no second observation
	if n := len(repo.obs[fps1[0]]); n != 1 {
		t.Fatalf("unchanged price must not append history, got %d observations", n)
	}
}

func TestApplyAppendsHistoryOnlyOnPriceChange(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	apply := func(price int64) string {
		fps, err := svc.Apply(ctx, domain.PlatformStubHub, []scrape.RawListing{
			raw("Manchester United vs Arsenal", "Old Trafford", "N3404", price, 4),
		})
		if err != nil {
			t.Fatalf("Apply(%d): %v", price, err)
		}
		return fps[0]
	}

	fp := apply(100)
	apply(100)
	apply(120)
	apply(120)
	apply(130)

	if n := len(repo.obs[fp]); n != 3 {
		t.Fatalf("want 3 observations (100, 120, 130), got %d", n)
	}

	l, _ := repo.GetByFingerprint(ctx, fp)
	if l.Trend != domain.TrendRising {
		t.Fatalf("trend = %s, want rising after 100->120->130", l.Trend)
	}
	if !l.HighDemand {
		t.Fatal("a rising price over the window must flag high demand")
	}
	if !l.MinPrice.Equal(decimal.NewFromInt(130)) {
		t.Fatalf("listing must carry the latest price, got %s", l.MinPrice)
	}
}

// failRepo turns every insert into a database outage.
type failRepo struct {
	*memRepo
	insertErr error
}

func (r *failRepo) Insert(ctx context.Context, l *domain.Listing) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	return r.memRepo.Insert(ctx, l)
}

func TestApplySurfacesPersistenceFailure(t *testing.T) {
	dbDown := errors.New("connection refused")
	repo := &failRepo{memRepo: newMemRepo(), insertErr: dbDown}
	svc := newTestService(repo)

	fps, err := svc.Apply(context.Background(), domain.PlatformStubHub, []scrape.RawListing{
		raw("Manchester United vs Arsenal", "Old Trafford", "N3404", 120, 4),
	})
	if !errors.Is(err, dbDown) {
		t.Fatalf("a failed write must surface to the caller, got err=%v", err)
	}
	if len(fps) != 0 {
		t.Fatalf("no fingerprint may be reported for an unpersisted listing, got %v", fps)
	}
}

// raceRepo misses the first lookup so the insert collides with a row another
// process already committed.
type raceRepo struct {
	*memRepo
	missFirst bool
}

func (r *raceRepo) GetByFingerprint(ctx context.Context, fp string) (*domain.Listing, error) {
	if r.missFirst {
		r.missFirst = false
		return nil, repository.ErrNotFound
	}
	return r.memRepo.GetByFingerprint(ctx, fp)
}

func TestApplyInsertRaceKeepsAppendOnChange(t *testing.T) {
	shared := newMemRepo()
	ctx := context.Background()

	first := newTestService(shared)
	fps, err := first.Apply(ctx, domain.PlatformStubHub, []scrape.RawListing{
		raw("Manchester United vs Arsenal", "Old Trafford", "N3404", 120, 4),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	fp := fps[0]

	second := newTestService(&raceRepo{memRepo: shared, missFirst: true})
	if _, err := second.Apply(ctx, domain.PlatformStubHub, []scrape.RawListing{
		raw("Manchester United vs Arsenal", "Old Trafford", "N3404", 120, 4),
	}); err != nil {
		t.Fatalf("Apply after insert race: %v", err)
	}

	if n := len(shared.obs[fp]); n != 1 {
		t.Fatalf("unchanged price after an insert race must not append history, got %d observations", n)
	}
	if len(shared.listings) != 1 {
		t.Fatalf("expected a single canonical listing, got %d", len(shared.listings))
	}
}

func TestFinishCycleGracePeriod(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	fps, _ := svc.Apply(ctx, domain.PlatformStubHub, []scrape.RawListing{
		raw("Manchester United vs Arsenal", "Old Trafford", "N3404", 120, 4),
	})
	fp := fps[0]

	// absent for two cycles: still available on grace
	for i := 0; i < 2; i++ {
		if _, err := svc.FinishCycle(ctx, domain.PlatformStubHub, nil); err != nil {
			t.Fatalf("FinishCycle: %v", err)
		}
	}
	l, _ := repo.GetByFingerprint(ctx, fp)
	if !l.Available {
		t.Fatal("listing must stay available within the grace window")
	}

	// third miss exceeds grace
	n, err := svc.FinishCycle(ctx, domain.PlatformStubHub, nil)
	if err != nil {
		t.Fatalf("FinishCycle: %v", err)
	}
	if n != 1 {
		t.Fatalf("downgraded = %d, want 1", n)
	}
	l, _ = repo.GetByFingerprint(ctx, fp)
	if l.Available {
		t.Fatal("listing must go unavailable past the grace window")
	}

	// reappearing resets the counter and availability
	svc.Apply(ctx, domain.PlatformStubHub, []scrape.RawListing{
		raw("Manchester United vs Arsenal", "Old Trafford", "N3404", 120, 4),
	})
	l, _ = repo.GetByFingerprint(ctx, fp)
	if !l.Available || l.MissedCycles != 0 {
		t.Fatalf("reappearance must reset availability, got %+v", l)
	}
}

func TestFinishCycleSparesSeenListings(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	fps, _ := svc.Apply(ctx, domain.PlatformViagogo, []scrape.RawListing{
		raw("Manchester United vs Chelsea", "Old Trafford", "E130", 90, 2),
	})

	if _, err := svc.FinishCycle(ctx, domain.PlatformViagogo, fps); err != nil {
		t.Fatalf("FinishCycle: %v", err)
	}
	l, _ := repo.GetByFingerprint(ctx, fps[0])
	if l.MissedCycles != 0 {
		t.Fatalf("seen listing must not burn grace, missed=%d", l.MissedCycles)
	}
}

func TestHousekeepRetiresAndPrunes(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	fps, _ := svc.Apply(ctx, domain.PlatformTickPick, []scrape.RawListing{
		raw("Manchester United vs Spurs", "Old Trafford", "W206", 75, 3),
	})

	// move "now" past both windows
	svc.now = func() time.Time { return time.Now().Add(60 * 24 * time.Hour) }

	retired, pruned, err := svc.Housekeep(ctx)
	if err != nil {
		t.Fatalf("Housekeep: %v", err)
	}
	if retired != 1 {
		t.Fatalf("retired = %d, want 1", retired)
	}
	if pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}

	l, _ := repo.GetByFingerprint(ctx, fps[0])
	if !l.Retired || l.Available {
		t.Fatalf("stale listing must be retired and unavailable, got %+v", l)
	}
}
