// Package purchase manages the purchase-decision queue: admission of
// matched listings, exclusive claims by collaborators and terminal
// settlement. Exclusivity lives in the storage layer's conditional
// transitions; this service adds policy (reservation TTL) and the service
// error taxonomy.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hdtickets/scout/internal/domain"
	"github.com/hdtickets/scout/internal/repository"
)

// Repo is the queue storage contract.
type Repo interface {
	Admit(ctx context.Context, e *domain.QueueEntry) error
	Claim(ctx context.Context, id uuid.UUID, claimant string, reservedUntil time.Time) (*domain.QueueEntry, error)
	Close(ctx context.Context, id uuid.UUID, status domain.QueueStatus) error
	ExpireReservations(ctx context.Context) (int64, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.QueueEntry, error)
	List(ctx context.Context, onlyLive bool, limit, offset int) ([]domain.QueueEntry, error)
}

type Config struct {
	ReservationTTL time.Duration
}

type Service struct {
	repo Repo
	cfg  Config
	log  *slog.Logger

	now func() time.Time
}

func New(repo Repo, cfg Config, log *slog.Logger) *Service {
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = 10 * time.Minute
	}

	return &Service{repo: repo, cfg: cfg, log: log, now: time.Now}
}

// Admit puts a listing on the queue for a purchase decision. At most one
// live entry exists per fingerprint; admitting an already-queued listing
// returns ErrDuplicateAdmission.
func (s *Service) Admit(ctx context.Context, fingerprint string, userID int64) (*domain.QueueEntry, error) {
	const op = "service.purchase.Admit"

	e := &domain.QueueEntry{
		ID:          uuid.New(),
		Fingerprint: fingerprint,
		UserID:      userID,
		Status:      domain.QueueQueued,
	}

	if err := s.repo.Admit(ctx, e); err != nil {
		if errors.Is(err, repository.ErrDuplicateAdmission) {
			return nil, fmt.Errorf("%s:%w", op, ErrDuplicateAdmission)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.log.Info("listing admitted to purchase queue",
		slog.String("entry_id", e.ID.String()),
		slog.String("fingerprint", fingerprint),
		slog.Int64("user_id", userID))

	return e, nil
}

// Claim reserves a queued entry for one collaborator. First claim wins;
// everyone else gets ErrAlreadyReserved.
func (s *Service) Claim(ctx context.Context, id uuid.UUID, claimant string) (*domain.QueueEntry, error) {
	const op = "service.purchase.Claim"

	if claimant == "" {
		return nil, fmt.Errorf("%s:%w: empty claimant", op, ErrInvalidTransition)
	}

	e, err := s.repo.Claim(ctx, id, claimant, s.now().Add(s.cfg.ReservationTTL))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyReserved):
			return nil, fmt.Errorf("%s:%w", op, ErrAlreadyReserved)
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s:%w", op, ErrEntryNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s.log.Info("queue entry claimed",
		slog.String("entry_id", id.String()),
		slog.String("claimant", claimant))

	return e, nil
}

// MarkPurchased settles a reserved entry as bought.
func (s *Service) MarkPurchased(ctx context.Context, id uuid.UUID) error {
	return s.close(ctx, "service.purchase.MarkPurchased", id, domain.QueuePurchased)
}

// MarkFailed settles a reserved entry as not bought. The fingerprint is
// free to be admitted again on a later match.
func (s *Service) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return s.close(ctx, "service.purchase.MarkFailed", id, domain.QueueFailed)
}

func (s *Service) close(ctx context.Context, op string, id uuid.UUID, status domain.QueueStatus) error {
	if err := s.repo.Close(ctx, id, status); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return fmt.Errorf("%s:%w", op, ErrInvalidTransition)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	s.log.Info("queue entry settled",
		slog.String("entry_id", id.String()),
		slog.String("status", string(status)))

	return nil
}

// ExpireReservations releases reservations whose TTL has lapsed. Run from
// cron.
func (s *Service) ExpireReservations(ctx context.Context) (int64, error) {
	const op = "service.purchase.ExpireReservations"

	n, err := s.repo.ExpireReservations(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	if n > 0 {
		s.log.Info("reservations expired", slog.Int64("count", n))
	}

	return n, nil
}

// Get returns one queue entry.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.QueueEntry, error) {
	const op = "service.purchase.Get"

	e, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrEntryNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return e, nil
}

// List returns queue entries for the review surface.
func (s *Service) List(ctx context.Context, onlyLive bool, limit, offset int) ([]domain.QueueEntry, error) {
	const op = "service.purchase.List"

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	out, err := s.repo.List(ctx, onlyLive, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
