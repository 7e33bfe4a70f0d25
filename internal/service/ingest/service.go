// Package ingest turns raw adapter output into canonical listings: it
// fingerprints, deduplicates, appends price history on change and keeps the
// scoring fields current. All writes for one fingerprint are serialized
// through a striped lock so concurrent batches cannot interleave updates to
// the same listing.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/hdtickets/scout/internal/domain"
	"github.com/hdtickets/scout/internal/repository"
	"github.com/hdtickets/scout/internal/scrape"
	"github.com/hdtickets/scout/internal/service/scoring"
)

// Repo is the listing storage contract the pipeline writes through.
type Repo interface {
	GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Listing, error)
	Insert(ctx context.Context, l *domain.Listing) error
	UpdateObserved(ctx context.Context, l *domain.Listing) error
	UpdateScore(ctx context.Context, fingerprint string, score, reliability float64, trend domain.Trend, highDemand bool) error
	LastObservation(ctx context.Context, fingerprint string) (*domain.PriceObservation, error)
	AppendObservation(ctx context.Context, o domain.PriceObservation) error
	RecentObservations(ctx context.Context, fingerprint string, limit int) ([]domain.PriceObservation, error)
	MarkMissed(ctx context.Context, platform domain.Platform, seen []string) (int64, error)
	DowngradeMissed(ctx context.Context, platform domain.Platform, graceCycles int) (int64, error)
	RetireStale(ctx context.Context, cutoff time.Time) (int64, error)
	PruneObservations(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReliabilityReader exposes the current platform reliability for scoring.
type ReliabilityReader interface {
	Reliability(ctx context.Context, platform domain.Platform) (float64, error)
}

// Invalidator drops cached read-model entries after a write.
type Invalidator interface {
	InvalidateListing(ctx context.Context, fingerprint string) error
}

// Matcher fires purchase alerts against a freshly observed listing.
type Matcher interface {
	MatchListing(ctx context.Context, l *domain.Listing) error
}

type Config struct {
	GraceMissedCycles int
	StalenessWindow   time.Duration
	RetentionWindow   time.Duration
}

const lockStripes = 64

type Service struct {
	repo        Repo
	scorer      *scoring.Service
	reliability ReliabilityReader
	cache       Invalidator
	matcher     Matcher
	cfg         Config
	log         *slog.Logger

	locks [lockStripes]sync.Mutex

	now func() time.Time
}

func New(
	repo Repo,
	scorer *scoring.Service,
	reliability ReliabilityReader,
	cache Invalidator,
	matcher Matcher,
	cfg Config,
	log *slog.Logger,
) *Service {
	if cfg.GraceMissedCycles <= 0 {
		cfg.GraceMissedCycles = 2
	}
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = 48 * time.Hour
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = 30 * 24 * time.Hour
	}

	return &Service{
		repo:        repo,
		scorer:      scorer,
		reliability: reliability,
		cache:       cache,
		matcher:     matcher,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// Apply ingests one batch of raw listings for a platform and returns the
// distinct fingerprints it contained. A record with no title is skipped;
// a persistence failure aborts the batch and surfaces to the caller, since
// the pipeline cannot continue past an unpersisted write.
func (s *Service) Apply(ctx context.Context, platform domain.Platform, raw []scrape.RawListing) ([]string, error) {
	const op = "service.ingest.Apply"

	seen := make(map[string]struct{}, len(raw))
	fps := make([]string, 0, len(raw))

	for _, r := range raw {
		if r.Title == "" {
			continue
		}

		fp := Fingerprint(platform, r.Title, r.Venue, r.Section)
		if err := s.applyOne(ctx, platform, fp, r); err != nil {
			s.log.Error("listing ingest failed",
				slog.String("platform", string(platform)),
				slog.String("fingerprint", fp),
				slog.String("error", err.Error()))
			return fps, fmt.Errorf("%s:%w", op, err)
		}

		if _, dup := seen[fp]; !dup {
			seen[fp] = struct{}{}
			fps = append(fps, fp)
		}
	}

	return fps, nil
}

func (s *Service) applyOne(ctx context.Context, platform domain.Platform, fp string, r scrape.RawListing) error {
	lock := s.lockFor(fp)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	available := r.Availability > 0

	existing, err := s.repo.GetByFingerprint(ctx, fp)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		l := &domain.Listing{
			Fingerprint: fp,
			Platform:    platform,
			ExternalID:  r.ExternalID,
			Title:       r.Title,
			Sport:       r.Sport,
			Venue:       r.Venue,
			Section:     r.Section,
			Location:    r.Location,
			EventDate:   r.EventDate,
			MinPrice:    r.MinPrice,
			MaxPrice:    r.MaxPrice,
			Currency:    currencyOr(r.Currency),
			Available:   available,
			Reliability: 100,
			Trend:       domain.TrendStable,
			FirstSeen:   now,
			LastSeen:    now,
			LastScraped: now,
		}
		ierr := s.repo.Insert(ctx, l)
		switch {
		case ierr == nil:
			if err := s.repo.AppendObservation(ctx, domain.PriceObservation{
				Fingerprint: fp,
				MinPrice:    r.MinPrice,
				MaxPrice:    r.MaxPrice,
				ObservedAt:  now,
			}); err != nil {
				return err
			}
			return s.rescore(ctx, l, false)
		case errors.Is(ierr, repository.ErrConflict):
			// lost the insert race to another process; re-read the winner's
			// row and continue on the update path so history stays
			// append-on-change
			existing, err = s.repo.GetByFingerprint(ctx, fp)
			if err != nil {
				return err
			}
		default:
			return ierr
		}

	case err != nil:
		return err
	}

	availabilityDropping := existing.Available && !available

	updated := *existing
	updated.Title = r.Title
	updated.MinPrice = r.MinPrice
	updated.MaxPrice = r.MaxPrice
	updated.Currency = currencyOr(r.Currency)
	updated.Available = available
	if !r.EventDate.IsZero() {
		updated.EventDate = r.EventDate
	}
	updated.LastSeen = now
	updated.LastScraped = now

	if err := s.repo.UpdateObserved(ctx, &updated); err != nil {
		return err
	}

	// history is append-on-change: a cycle observing the same price adds
	// nothing
	last, err := s.repo.LastObservation(ctx, fp)
	priceChanged := false
	switch {
	case errors.Is(err, repository.ErrNotFound):
		priceChanged = true
	case err != nil:
		return err
	default:
		priceChanged = !last.MinPrice.Equal(r.MinPrice) || !last.MaxPrice.Equal(r.MaxPrice)
	}

	if priceChanged {
		if err := s.repo.AppendObservation(ctx, domain.PriceObservation{
			Fingerprint: fp,
			MinPrice:    r.MinPrice,
			MaxPrice:    r.MaxPrice,
			ObservedAt:  now,
		}); err != nil {
			return err
		}
	}

	return s.rescore(ctx, &updated, availabilityDropping)
}

// rescore recomputes trend, demand flag and score from the stored history
// and persists them on the listing row.
func (s *Service) rescore(ctx context.Context, l *domain.Listing, availabilityDropping bool) error {
	obs, err := s.repo.RecentObservations(ctx, l.Fingerprint, 32)
	if err != nil {
		return err
	}

	reliability := 100.0
	if s.reliability != nil {
		if v, err := s.reliability.Reliability(ctx, l.Platform); err == nil {
			reliability = v
		}
	}

	trend := s.scorer.Trend(obs)
	highDemand := s.scorer.HighDemand(obs, trend, availabilityDropping)
	score := s.scorer.Score(l, obs, trend, reliability, s.now())

	if err := s.repo.UpdateScore(ctx, l.Fingerprint, score, reliability, trend, highDemand); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateListing(ctx, l.Fingerprint); err != nil {
			s.log.Warn("cache invalidation failed",
				slog.String("fingerprint", l.Fingerprint),
				slog.String("error", err.Error()))
		}
	}

	if s.matcher != nil && l.Available {
		matched := *l
		matched.Score = score
		matched.Trend = trend
		matched.HighDemand = highDemand
		if err := s.matcher.MatchListing(ctx, &matched); err != nil {
			s.log.Error("alert matching failed",
				slog.String("fingerprint", l.Fingerprint),
				slog.String("error", err.Error()))
		}
	}

	return nil
}

// FinishCycle settles availability for a platform after a successful cycle:
// listings absent from the batch burn one grace cycle, and listings past the
// grace window go unavailable. Returns how many were downgraded.
func (s *Service) FinishCycle(ctx context.Context, platform domain.Platform, seen []string) (int64, error) {
	const op = "service.ingest.FinishCycle"

	if seen == nil {
		seen = []string{}
	}

	missed, err := s.repo.MarkMissed(ctx, platform, seen)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	downgraded, err := s.repo.DowngradeMissed(ctx, platform, s.cfg.GraceMissedCycles)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	if missed > 0 || downgraded > 0 {
		s.log.Info("cycle availability settled",
			slog.String("platform", string(platform)),
			slog.Int64("missed", missed),
			slog.Int64("downgraded", downgraded))
	}

	return downgraded, nil
}

// Housekeep retires listings unseen past the staleness window and prunes
// price history past retention. Run from cron, not from the scrape cycle.
func (s *Service) Housekeep(ctx context.Context) (retired, pruned int64, err error) {
	const op = "service.ingest.Housekeep"

	now := s.now()

	retired, err = s.repo.RetireStale(ctx, now.Add(-s.cfg.StalenessWindow))
	if err != nil {
		return 0, 0, fmt.Errorf("%s:%w", op, err)
	}

	pruned, err = s.repo.PruneObservations(ctx, now.Add(-s.cfg.RetentionWindow))
	if err != nil {
		return retired, 0, fmt.Errorf("%s:%w", op, err)
	}

	return retired, pruned, nil
}

func (s *Service) lockFor(fp string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(fp))
	return &s.locks[h.Sum32()%lockStripes]
}

func currencyOr(c string) string {
	if c == "" {
		return "USD"
	}
	return c
}
