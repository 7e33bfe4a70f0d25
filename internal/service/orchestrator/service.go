// Package orchestrator runs the scrape cycle: it fans queries out across
// platform adapters, borrows one identity per fetch attempt, retries
// transient failures with backoff and trips a per-platform circuit breaker
// on sustained failure. Parsed listings go to the ingest pipeline; fetch
// outcomes go to the platform health sink.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hdtickets/scout/internal/domain"
	"github.com/hdtickets/scout/internal/scrape"
	"github.com/hdtickets/scout/internal/service/rotation"
)

// IdentityPool lends identities for single fetches.
type IdentityPool interface {
	Checkout(ctx context.Context, platform domain.Platform, purpose string) (*domain.Identity, error)
	Checkin(ctx context.Context, ident *domain.Identity, outcome domain.FetchOutcome) error
}

// Ingestor normalizes and persists one batch of raw listings. Apply returns
// the fingerprints present in the batch; FinishCycle settles availability
// for everything the platform's cycle did not return.
type Ingestor interface {
	Apply(ctx context.Context, platform domain.Platform, raw []scrape.RawListing) ([]string, error)
	FinishCycle(ctx context.Context, platform domain.Platform, seen []string) (int64, error)
}

// HealthSink records per-fetch outcomes, e.g. the Redis reliability EWMA.
type HealthSink interface {
	RecordFetch(ctx context.Context, platform domain.Platform, outcome domain.FetchOutcome, latency time.Duration) (float64, error)
}

const identityPurpose = "scraping"

type Config struct {
	Workers          int
	MaxRetries       int
	RetryBackoffBase time.Duration
	FetchTimeout     time.Duration
	CycleDeadline    time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	Keywords         []string
}

type Service struct {
	adapters map[domain.Platform]scrape.Adapter
	pool     IdentityPool
	ingestor Ingestor
	health   HealthSink
	breaker  *breaker
	cfg      Config
	log      *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// CycleReport summarizes one full scrape cycle.
type CycleReport struct {
	StartedAt  time.Time
	Duration   time.Duration
	Fetches    int
	Failures   int
	Listings   int
	Downgraded int64
	Skipped    []domain.Platform
}

func New(
	adapters []scrape.Adapter,
	pool IdentityPool,
	ingestor Ingestor,
	health HealthSink,
	cfg Config,
	log *slog.Logger,
) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = 2 * time.Second
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 10 * time.Minute
	}

	byPlatform := make(map[domain.Platform]scrape.Adapter, len(adapters))
	for _, a := range adapters {
		byPlatform[a.Platform()] = a
	}

	return &Service{
		adapters: byPlatform,
		pool:     pool,
		ingestor: ingestor,
		health:   health,
		breaker:  newBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		cfg:      cfg,
		log:      log,
		sleep:    sleepCtx,
	}
}

// RunCycle executes one scrape cycle across every registered platform and
// configured keyword. Platform fetch failures never abort the cycle and only
// show up in the report; persistence failures are returned alongside it.
func (s *Service) RunCycle(ctx context.Context) (*CycleReport, error) {
	const op = "service.orchestrator.RunCycle"

	started := time.Now()
	report := &CycleReport{StartedAt: started}

	if s.cfg.CycleDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.CycleDeadline)
		defer cancel()
	}

	var (
		mu          sync.Mutex
		seen        = make(map[domain.Platform][]string)
		ok          = make(map[domain.Platform]bool)
		persistErrs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for platform, adapter := range s.adapters {
		if !s.breaker.Allow(platform) {
			s.log.Warn("platform breaker open, skipping cycle",
				slog.String("platform", string(platform)))
			report.Skipped = append(report.Skipped, platform)
			continue
		}

		for _, keyword := range s.cfg.Keywords {
			platform, adapter, keyword := platform, adapter, keyword
			g.Go(func() error {
				raw, err := s.fetchWithRetry(gctx, adapter, scrape.Query{Keyword: keyword})

				mu.Lock()
				report.Fetches++
				mu.Unlock()

				if err != nil {
					if errors.Is(err, errPlatformSkipped) {
						s.log.Warn("identity pool exhausted, skipping fetch",
							slog.String("platform", string(platform)),
							slog.String("keyword", keyword))
					} else {
						s.breaker.Failure(platform)
						s.log.Error("fetch failed",
							slog.String("platform", string(platform)),
							slog.String("keyword", keyword),
							slog.String("error", err.Error()))
					}
					mu.Lock()
					report.Failures++
					mu.Unlock()
					return nil
				}

				s.breaker.Success(platform)

				fps, err := s.ingestor.Apply(gctx, platform, raw)
				if err != nil {
					s.log.Error("ingest failed",
						slog.String("platform", string(platform)),
						slog.String("error", err.Error()))
					mu.Lock()
					report.Failures++
					persistErrs = append(persistErrs, err)
					mu.Unlock()
					return nil
				}

				mu.Lock()
				report.Listings += len(fps)
				seen[platform] = append(seen[platform], fps...)
				ok[platform] = true
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("%s:%w", op, err)
	}

	// Settle availability only for platforms that produced at least one
	// successful batch this cycle. An outage must not burn grace cycles.
	for platform := range s.adapters {
		if !ok[platform] {
			continue
		}
		n, err := s.ingestor.FinishCycle(ctx, platform, seen[platform])
		if err != nil {
			s.log.Error("cycle settlement failed",
				slog.String("platform", string(platform)),
				slog.String("error", err.Error()))
			persistErrs = append(persistErrs, err)
			continue
		}
		report.Downgraded += n
	}

	report.Duration = time.Since(started)
	s.log.Info("scrape cycle finished",
		slog.Int("fetches", report.Fetches),
		slog.Int("failures", report.Failures),
		slog.Int("listings", report.Listings),
		slog.Int64("downgraded", report.Downgraded),
		slog.Duration("took", report.Duration))

	// Adapter and identity failures are the cycle's normal weather and stay
	// in the report; a write that did not land is not recoverable by the
	// next cycle alone and must reach the caller.
	if len(persistErrs) > 0 {
		return report, fmt.Errorf("%s:%w", op, errors.Join(persistErrs...))
	}

	return report, nil
}

var errPlatformSkipped = errors.New("no identity for platform")

// fetchWithRetry runs one query with up to MaxRetries additional attempts.
// Every attempt borrows a fresh identity and always checks it back in with
// the attempt's outcome. Permanent errors stop the retry loop.
func (s *Service) fetchWithRetry(ctx context.Context, adapter scrape.Adapter, q scrape.Query) ([]scrape.RawListing, error) {
	platform := adapter.Platform()

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, s.cfg.RetryBackoffBase<<(attempt-1)); err != nil {
				return nil, err
			}
		}

		ident, err := s.pool.Checkout(ctx, platform, identityPurpose)
		if err != nil {
			if errors.Is(err, rotation.ErrNoIdentityAvailable) {
				return nil, fmt.Errorf("%w: %s", errPlatformSkipped, platform)
			}
			return nil, err
		}

		raw, ferr := s.fetchOnce(ctx, adapter, q, *ident)

		outcome := scrape.Outcome(ferr)
		if err := s.pool.Checkin(ctx, ident, outcome); err != nil {
			s.log.Error("identity checkin failed",
				slog.String("platform", string(platform)),
				slog.Int64("identity_id", ident.ID),
				slog.String("error", err.Error()))
		}

		if ferr == nil {
			return raw, nil
		}

		lastErr = ferr
		if scrape.IsPermanent(ferr) {
			break
		}
	}

	return nil, lastErr
}

func (s *Service) fetchOnce(ctx context.Context, adapter scrape.Adapter, q scrape.Query, ident domain.Identity) ([]scrape.RawListing, error) {
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := adapter.Fetch(ctx, q, ident)

	if s.health != nil {
		if _, herr := s.health.RecordFetch(ctx, adapter.Platform(), scrape.Outcome(err), time.Since(start)); herr != nil {
			s.log.Warn("health record failed",
				slog.String("platform", string(adapter.Platform())),
				slog.String("error", herr.Error()))
		}
	}

	return raw, err
}

// BreakerOpen exposes breaker state for the admin health endpoint.
func (s *Service) BreakerOpen(platform domain.Platform) bool {
	return s.breaker.Open(platform)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
