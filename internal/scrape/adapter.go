// Package scrape contains the per-marketplace listing adapters.
//
// Adapters are stateless and safe for concurrent use with different
// identities. They never retry and never interpret results beyond mapping
// the platform payload into RawListing; retry policy, backoff and circuit
// breaking belong to the orchestrator.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hdtickets/scout/internal/domain"
	"github.com/shopspring/decimal"
)

// Query describes one marketplace search.
type Query struct {
	Keyword  string
	MaxPrice decimal.Decimal
	DateFrom time.Time
	DateTo   time.Time
}

// RawListing is the platform-neutral shape every adapter returns.
// Platform-specific payloads never travel past the adapter boundary.
type RawListing struct {
	Platform     domain.Platform
	ExternalID   string
	Title        string
	Sport        string
	Venue        string
	Section      string
	Location     string
	EventDate    time.Time
	MinPrice     decimal.Decimal
	MaxPrice     decimal.Decimal
	Currency     string
	Availability int
	URL          string
}

// Adapter fetches raw listings for a query from one external platform.
type Adapter interface {
	Platform() domain.Platform
	Fetch(ctx context.Context, q Query, ident domain.Identity) ([]RawListing, error)
}

// TransientError marks a failure worth retrying with another identity:
// network errors, timeouts, HTTP 429 and 5xx.
type TransientError struct {
	Platform domain.Platform
	Status   int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient fetch failure (status %d): %v", e.Platform, e.Status, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure retrying cannot fix: rejected auth,
// forbidden access or a payload the adapter no longer understands. The
// identity used for the fetch must be deactivated.
type PermanentError struct {
	Platform domain.Platform
	Status   int
	Err      error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: permanent fetch failure (status %d): %v", e.Platform, e.Status, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Outcome classifies an adapter error for identity checkin. A nil error is
// a success; anything unclassified is treated as transient so the pool
// degrades instead of banning identities on unknown failures.
func Outcome(err error) domain.FetchOutcome {
	switch {
	case err == nil:
		return domain.FetchSuccess
	case IsPermanent(err):
		return domain.FetchPermanent
	default:
		return domain.FetchTransient
	}
}
