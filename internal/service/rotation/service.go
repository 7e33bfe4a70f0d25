// Package rotation owns the scraping-identity pool. Workers borrow an
// identity for exactly one fetch through Checkout and report the outcome
// through Checkin; nothing else touches the pool.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hdtickets/scout/internal/domain"
	"github.com/hdtickets/scout/internal/repository"
)

type Config struct {
	BanThreshold int
	CooldownBase time.Duration
	CooldownCap  time.Duration
}

// Repo is the identity storage contract. Checkout must be atomic: two
// concurrent callers never receive the same identity.
type Repo interface {
	Checkout(ctx context.Context, platform domain.Platform, purpose string, banThreshold int) (*domain.Identity, error)
	CheckinSuccess(ctx context.Context, id int64) error
	CheckinTransient(ctx context.Context, id int64, cooldownUntil time.Time) error
	Disable(ctx context.Context, id int64) error
	Reactivate(ctx context.Context, id int64) error
	Insert(ctx context.Context, ident *domain.Identity) (int64, error)
	List(ctx context.Context, platform domain.Platform) ([]domain.Identity, error)
	ReleaseStuck(ctx context.Context, olderThan time.Time) (int64, error)
}

type Service struct {
	repo Repo
	cfg  Config
}

func New(repo Repo, cfg Config) *Service {
	if cfg.BanThreshold <= 0 {
		cfg.BanThreshold = 5
	}
	if cfg.CooldownBase <= 0 {
		cfg.CooldownBase = 30 * time.Second
	}
	if cfg.CooldownCap <= 0 || cfg.CooldownCap < cfg.CooldownBase {
		cfg.CooldownCap = 30 * time.Minute
	}

	return &Service{repo: repo, cfg: cfg}
}

// Checkout borrows the least-recently-used eligible identity for the
// (platform, purpose) pair. The caller must Checkin the identity after its
// single fetch, whatever the outcome.
func (s *Service) Checkout(ctx context.Context, platform domain.Platform, purpose string) (*domain.Identity, error) {
	const op = "service.rotation.Checkout"

	ident, err := s.repo.Checkout(ctx, platform, purpose, s.cfg.BanThreshold)
	if err != nil {
		if errors.Is(err, repository.ErrNoIdentityAvailable) {
			return nil, fmt.Errorf("%s:%w", op, ErrNoIdentityAvailable)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return ident, nil
}

// Checkin returns an identity to the pool. A success clears the failure
// counter; a transient failure applies an exponential cooldown; a permanent
// failure disables the identity until manual reactivation.
func (s *Service) Checkin(ctx context.Context, ident *domain.Identity, outcome domain.FetchOutcome) error {
	const op = "service.rotation.Checkin"

	var err error

	switch outcome {
	case domain.FetchSuccess:
		err = s.repo.CheckinSuccess(ctx, ident.ID)
	case domain.FetchPermanent:
		err = s.repo.Disable(ctx, ident.ID)
	default:
		until := time.Now().Add(s.CooldownFor(ident.Failures + 1))
		err = s.repo.CheckinTransient(ctx, ident.ID, until)
	}

	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// CooldownFor computes base * 2^(failures-1), capped. The first failure
// waits one base interval.
func (s *Service) CooldownFor(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}

	d := s.cfg.CooldownBase
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= s.cfg.CooldownCap {
			return s.cfg.CooldownCap
		}
	}

	if d > s.cfg.CooldownCap {
		return s.cfg.CooldownCap
	}

	return d
}

// Reactivate returns a disabled identity to rotation.
func (s *Service) Reactivate(ctx context.Context, id int64) error {
	const op = "service.rotation.Reactivate"

	if err := s.repo.Reactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrIdentityNotFound)
		}

		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Add registers a new identity in the pool.
func (s *Service) Add(ctx context.Context, ident *domain.Identity) (int64, error) {
	const op = "service.rotation.Add"

	id, err := s.repo.Insert(ctx, ident)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

// Pool lists the pool for the admin surface.
func (s *Service) Pool(ctx context.Context, platform domain.Platform) ([]domain.Identity, error) {
	const op = "service.rotation.Pool"

	idents, err := s.repo.List(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return idents, nil
}

// ReleaseStuck frees identities held past the deadline by workers that
// never checked in, e.g. after a crash mid-fetch.
func (s *Service) ReleaseStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	const op = "service.rotation.ReleaseStuck"

	n, err := s.repo.ReleaseStuck(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return n, nil
}
