package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Platform string

const (
	PlatformStubHub      Platform = "stubhub"
	PlatformTicketmaster Platform = "ticketmaster"
	PlatformViagogo      Platform = "viagogo"
	PlatformTickPick     Platform = "tickpick"
	PlatformFunZone      Platform = "funzone"
)

// AllPlatforms lists every marketplace the scraper knows about.
var AllPlatforms = []Platform{
	PlatformStubHub,
	PlatformTicketmaster,
	PlatformViagogo,
	PlatformTickPick,
	PlatformFunZone,
}

type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// Listing is the canonical ticket record one raw marketplace listing is
// normalized into. Identity is the Fingerprint: re-scraping the same
// seat/section updates the row instead of duplicating it.
type Listing struct {
	Fingerprint  string
	Platform     Platform
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
	Available    bool
	HighDemand   bool
	Score        float64
	Reliability  float64
	Trend        Trend
	MissedCycles int
	Retired      bool
	FirstSeen    time.Time
	LastSeen     time.Time
	LastScraped  time.Time
}

// PriceObservation is one append-only price sample for a listing.
type PriceObservation struct {
	ID          int64
	Fingerprint string
	MinPrice    decimal.Decimal
	MaxPrice    decimal.Decimal
	ObservedAt  time.Time
}

type AlertStatus string

const (
	AlertActive    AlertStatus = "active"
	AlertPaused    AlertStatus = "paused"
	AlertTriggered AlertStatus = "triggered"
	AlertExpired   AlertStatus = "expired"
)

// Alert is a user-defined purchase alert. Platforms must be non-empty and
// MaxPrice non-negative. Scraping never mutates alerts directly; only the
// matching engine bumps TriggeredAt and MatchesFound.
type Alert struct {
	ID           int64
	UserID       int64
	Keyword      string
	Venue        string
	MaxPrice     decimal.Decimal
	Platforms    []Platform
	Status       AlertStatus
	TriggeredAt  *time.Time
	MatchesFound int
	CreatedAt    time.Time
}

// AlertTrigger records that an alert fired for a listing fingerprint.
// At most one row exists per (alert, fingerprint) pair.
type AlertTrigger struct {
	ID          uuid.UUID
	AlertID     int64
	Fingerprint string
	Price       decimal.Decimal
	FiredAt     time.Time
}

type QueueStatus string

const (
	QueueQueued    QueueStatus = "queued"
	QueueReserved  QueueStatus = "reserved"
	QueuePurchased QueueStatus = "purchased"
	QueueFailed    QueueStatus = "failed"
	QueueExpired   QueueStatus = "expired"
)

// Terminal reports whether the status is a terminal queue state.
func (s QueueStatus) Terminal() bool {
	return s == QueuePurchased || s == QueueFailed || s == QueueExpired
}

// QueueEntry is a purchase-decision queue member. At most one non-terminal
// entry may exist per listing fingerprint at a time.
type QueueEntry struct {
	ID            uuid.UUID
	Fingerprint   string
	UserID        int64
	Status        QueueStatus
	ReservedBy    string
	ReservedUntil *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type FetchOutcome string

const (
	FetchSuccess   FetchOutcome = "success"
	FetchTransient FetchOutcome = "transient"
	FetchPermanent FetchOutcome = "permanent"
)

// Identity is a rotation-pool member: the credential/proxy pair a scrape
// worker borrows for exactly one fetch.
type Identity struct {
	ID            int64
	Platform      Platform
	Purpose       string
	Username      string
	UserAgent     string
	ProxyURL      string
	LastUsed      *time.Time
	Failures      int
	CooldownUntil *time.Time
	Disabled      bool
	InUse         bool
}

// PlatformHealth is the per-platform fetch health snapshot surfaced to the
// observability sink and the admin API.
type PlatformHealth struct {
	Platform    Platform
	Reliability float64
	Successes   int64
	Failures    int64
	BreakerOpen bool
	LastFetch   time.Time
}
