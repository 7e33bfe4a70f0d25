// Package alerts owns purchase-alert definitions and the matching engine
// that fires them against freshly ingested listings.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hdtickets/scout/internal/domain"
	"github.com/hdtickets/scout/internal/notify"
	"github.com/hdtickets/scout/internal/repository"
	"github.com/hdtickets/scout/internal/service/purchase"
)

// Repo is the alert storage contract.
type Repo interface {
	Insert(ctx context.Context, a *domain.Alert) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Alert, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Alert, error)
	ListActiveForPlatform(ctx context.Context, platform domain.Platform) ([]domain.Alert, error)
	UpdateStatus(ctx context.Context, id int64, status domain.AlertStatus) error
	InsertTrigger(ctx context.Context, t *domain.AlertTrigger) (bool, error)
	MarkTriggered(ctx context.Context, id int64, at time.Time) error
	ListTriggers(ctx context.Context, alertID int64, limit int) ([]domain.AlertTrigger, error)
}

// Notifier delivers a fired trigger out of process.
type Notifier interface {
	AlertTriggered(ctx context.Context, p notify.AlertTriggeredPayload) error
}

// Admitter places a matched listing on the purchase-decision queue.
type Admitter interface {
	Admit(ctx context.Context, fingerprint string, userID int64) (*domain.QueueEntry, error)
}

// TxRunner executes fn against a transaction-bound Repo. Hooks registered
// through after run only if the transaction commits, which keeps
// notifications and queue admissions off rolled-back triggers. A nil
// TxRunner degrades to non-transactional writes.
type TxRunner interface {
	Fire(ctx context.Context, fn func(ctx context.Context, repo Repo, after func(func(context.Context))) error) error
}

type Service struct {
	repo     Repo
	tx       TxRunner
	notifier Notifier
	admitter Admitter
	log      *slog.Logger

	now func() time.Time
}

func New(repo Repo, tx TxRunner, notifier Notifier, admitter Admitter, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		notifier: notifier,
		admitter: admitter,
		log:      log,
		now:      time.Now,
	}
}

// Create validates and stores a new alert. An empty platform set means
// every platform.
func (s *Service) Create(ctx context.Context, a *domain.Alert) (int64, error) {
	const op = "service.alerts.Create"

	if a.UserID == 0 || (a.Keyword == "" && a.Venue == "") {
		return 0, fmt.Errorf("%s:%w", op, ErrInvalidAlert)
	}
	if a.MaxPrice.IsNegative() {
		return 0, fmt.Errorf("%s:%w", op, ErrInvalidAlert)
	}
	if len(a.Platforms) == 0 {
		a.Platforms = append([]domain.Platform(nil), domain.AllPlatforms...)
	}
	for _, p := range a.Platforms {
		if !knownPlatform(p) {
			return 0, fmt.Errorf("%s:%w: unknown platform %q", op, ErrInvalidAlert, p)
		}
	}

	id, err := s.repo.Insert(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

// Get returns one alert.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Alert, error) {
	const op = "service.alerts.Get"

	a, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrAlertNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return a, nil
}

// ListByUser returns a user's alerts.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]domain.Alert, error) {
	const op = "service.alerts.ListByUser"

	out, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// SetStatus pauses, resumes or expires an alert.
func (s *Service) SetStatus(ctx context.Context, id int64, status domain.AlertStatus) error {
	const op = "service.alerts.SetStatus"

	switch status {
	case domain.AlertActive, domain.AlertPaused, domain.AlertExpired:
	default:
		return fmt.Errorf("%s:%w: status %q", op, ErrInvalidAlert, status)
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrAlertNotFound)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Triggers returns an alert's trigger history, newest first.
func (s *Service) Triggers(ctx context.Context, alertID int64, limit int) ([]domain.AlertTrigger, error) {
	const op = "service.alerts.Triggers"

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	out, err := s.repo.ListTriggers(ctx, alertID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// MatchListing runs every active alert for the listing's platform against
// the listing and fires those that match. A pair that already fired is a
// no-op, so re-observing a listing across cycles cannot notify twice.
func (s *Service) MatchListing(ctx context.Context, l *domain.Listing) error {
	const op = "service.alerts.MatchListing"

	if !l.Available || l.Retired {
		return nil
	}

	candidates, err := s.repo.ListActiveForPlatform(ctx, l.Platform)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	for i := range candidates {
		a := &candidates[i]
		if !matches(a, l) {
			continue
		}
		if err := s.fire(ctx, a, l); err != nil {
			s.log.Error("alert fire failed",
				slog.Int64("alert_id", a.ID),
				slog.String("fingerprint", l.Fingerprint),
				slog.String("error", err.Error()))
		}
	}

	return nil
}

func (s *Service) fire(ctx context.Context, a *domain.Alert, l *domain.Listing) error {
	now := s.now()

	trigger := &domain.AlertTrigger{
		ID:          uuid.New(),
		AlertID:     a.ID,
		Fingerprint: l.Fingerprint,
		Price:       l.MinPrice,
		FiredAt:     now,
	}

	if s.tx != nil {
		return s.tx.Fire(ctx, func(ctx context.Context, repo Repo, after func(func(context.Context))) error {
			inserted, err := repo.InsertTrigger(ctx, trigger)
			if err != nil || !inserted {
				return err
			}
			if err := repo.MarkTriggered(ctx, a.ID, now); err != nil {
				return err
			}
			after(func(ctx context.Context) { s.deliver(ctx, a, l, now) })
			return nil
		})
	}

	inserted, err := s.repo.InsertTrigger(ctx, trigger)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	if err := s.repo.MarkTriggered(ctx, a.ID, now); err != nil {
		return err
	}

	s.deliver(ctx, a, l, now)

	return nil
}

// deliver runs the trigger's side effects: the out-of-process notification
// and the purchase-queue admission.
func (s *Service) deliver(ctx context.Context, a *domain.Alert, l *domain.Listing, now time.Time) {
	if s.notifier != nil {
		err := s.notifier.AlertTriggered(ctx, notify.AlertTriggeredPayload{
			AlertID:     a.ID,
			UserID:      a.UserID,
			Fingerprint: l.Fingerprint,
			Title:       l.Title,
			Price:       l.MinPrice.String(),
			Currency:    l.Currency,
			FiredAt:     now.Unix(),
		})
		if err != nil {
			s.log.Error("trigger notification enqueue failed",
				slog.Int64("alert_id", a.ID),
				slog.String("error", err.Error()))
		}
	}

	if s.admitter != nil {
		if _, err := s.admitter.Admit(ctx, l.Fingerprint, a.UserID); err != nil &&
			!errors.Is(err, purchase.ErrDuplicateAdmission) {
			s.log.Error("queue admission failed",
				slog.Int64("alert_id", a.ID),
				slog.String("fingerprint", l.Fingerprint),
				slog.String("error", err.Error()))
		}
	}

	s.log.Info("alert fired",
		slog.Int64("alert_id", a.ID),
		slog.Int64("user_id", a.UserID),
		slog.String("fingerprint", l.Fingerprint),
		slog.String("price", l.MinPrice.String()))
}

// matches applies the alert criteria: price ceiling, optional keyword
// against the title and optional venue filter. Text matching is
// case-insensitive substring containment.
func matches(a *domain.Alert, l *domain.Listing) bool {
	if a.MaxPrice.IsPositive() && l.MinPrice.GreaterThan(a.MaxPrice) {
		return false
	}
	if a.Keyword != "" && !containsFold(l.Title, a.Keyword) && !containsFold(l.Venue, a.Keyword) {
		return false
	}
	if a.Venue != "" && !containsFold(l.Venue, a.Venue) {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func knownPlatform(p domain.Platform) bool {
	for _, k := range domain.AllPlatforms {
		if p == k {
			return true
		}
	}
	return false
}
