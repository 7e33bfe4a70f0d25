package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/hdtickets/scout/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ListingRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ListingRepo) With(db DB) *ListingRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ListingRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const listingColumns = `fingerprint, platform, external_id, title, sport, venue, section,
	location, event_date, min_price, max_price, currency, available, high_demand,
	score, reliability, trend, missed_cycles, retired, first_seen, last_seen, last_scraped`

func scanListing(row interface{ Scan(...any) error }) (*domain.Listing, error) {
	var l domain.Listing
	var platform, trend string

	err := row.Scan(
		&l.Fingerprint, &platform, &l.ExternalID, &l.Title, &l.Sport, &l.Venue,
		&l.Section, &l.Location, &l.EventDate, &l.MinPrice, &l.MaxPrice, &l.Currency,
		&l.Available, &l.HighDemand, &l.Score, &l.Reliability, &trend,
		&l.MissedCycles, &l.Retired, &l.FirstSeen, &l.LastSeen, &l.LastScraped,
	)
	if err != nil {
		return nil, err
	}

	l.Platform = domain.Platform(platform)
	l.Trend = domain.Trend(trend)

	return &l, nil
}

// GetByFingerprint retrieves the canonical listing for a fingerprint.
//
// Returns repository.ErrNotFound when no listing exists.
func (r *ListingRepo) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.Listing, error) {
	const op = "postgres.ListingRepo.GetByFingerprint"

	db := r.handle()

	l, err := scanListing(db.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE fingerprint = $1`,
		fingerprint,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return l, nil
}

// Insert creates a listing on first observation.
//
// Returns repository.ErrConflict when the fingerprint already exists.
func (r *ListingRepo) Insert(ctx context.Context, l *domain.Listing) error {
	const op = "postgres.ListingRepo.Insert"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO listings (`+listingColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		l.Fingerprint, string(l.Platform), l.ExternalID, l.Title, l.Sport, l.Venue,
		l.Section, l.Location, l.EventDate, l.MinPrice, l.MaxPrice, l.Currency,
		l.Available, l.HighDemand, l.Score, l.Reliability, string(l.Trend),
		l.MissedCycles, l.Retired, l.FirstSeen, l.LastSeen, l.LastScraped,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// UpdateObserved applies a fresh observation to an existing listing: price,
// availability, timestamps; resets the missed-cycle counter and un-retires
// a listing that reappeared.
func (r *ListingRepo) UpdateObserved(ctx context.Context, l *domain.Listing) error {
	const op = "postgres.ListingRepo.UpdateObserved"

	db := r.handle()

	_, err := db.Exec(ctx,
		`UPDATE listings
		 SET title = $2, min_price = $3, max_price = $4, currency = $5,
		     available = $6, event_date = $7, missed_cycles = 0, retired = FALSE,
		     last_seen = $8, last_scraped = $9
		 WHERE fingerprint = $1`,
		l.Fingerprint, l.Title, l.MinPrice, l.MaxPrice, l.Currency,
		l.Available, l.EventDate, l.LastSeen, l.LastScraped,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// UpdateScore writes the recomputed scoring fields for a listing.
func (r *ListingRepo) UpdateScore(
	ctx context.Context,
	fingerprint string,
	score, reliability float64,
	trend domain.Trend,
	highDemand bool,
) error {
	const op = "postgres.ListingRepo.UpdateScore"

	db := r.handle()

	_, err := db.Exec(ctx,
		`UPDATE listings
		 SET score = $2, reliability = $3, trend = $4, high_demand = $5
		 WHERE fingerprint = $1`,
		fingerprint, score, reliability, string(trend), highDemand,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// LastObservation returns the most recent price observation for a listing.
func (r *ListingRepo) LastObservation(ctx context.Context, fingerprint string) (*domain.PriceObservation, error) {
	const op = "postgres.ListingRepo.LastObservation"

	db := r.handle()

	var o domain.PriceObservation
	err := db.QueryRow(ctx,
		`SELECT id, fingerprint, min_price, max_price, observed_at
		 FROM price_observations
		 WHERE fingerprint = $1
		 ORDER BY observed_at DESC
		 LIMIT 1`,
		fingerprint,
	).Scan(&o.ID, &o.Fingerprint, &o.MinPrice, &o.MaxPrice, &o.ObservedAt)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &o, nil
}

// AppendObservation appends one price sample. Observations are append-only;
// nothing updates or deletes them except retention pruning.
func (r *ListingRepo) AppendObservation(ctx context.Context, o domain.PriceObservation) error {
	const op = "postgres.ListingRepo.AppendObservation"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO price_observations (fingerprint, min_price, max_price, observed_at)
		 VALUES ($1, $2, $3, $4)`,
		o.Fingerprint, o.MinPrice, o.MaxPrice, o.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// RecentObservations returns up to limit observations, newest first.
func (r *ListingRepo) RecentObservations(
	ctx context.Context,
	fingerprint string,
	limit int,
) ([]domain.PriceObservation, error) {
	const op = "postgres.ListingRepo.RecentObservations"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, fingerprint, min_price, max_price, observed_at
		 FROM price_observations
		 WHERE fingerprint = $1
		 ORDER BY observed_at DESC
		 LIMIT $2`,
		fingerprint, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.PriceObservation
	for rows.Next() {
		var o domain.PriceObservation
		if err := rows.Scan(&o.ID, &o.Fingerprint, &o.MinPrice, &o.MaxPrice, &o.ObservedAt); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// MarkMissed bumps the missed-cycle counter for every live listing of a
// platform that was absent from the latest batch.
func (r *ListingRepo) MarkMissed(
	ctx context.Context,
	platform domain.Platform,
	seen []string,
) (int64, error) {
	const op = "postgres.ListingRepo.MarkMissed"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE listings
		 SET missed_cycles = missed_cycles + 1
		 WHERE platform = $1 AND retired = FALSE AND NOT (fingerprint = ANY($2))`,
		string(platform), seen,
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}

// DowngradeMissed marks listings unavailable once their missed-cycle count
// exceeds the grace window.
func (r *ListingRepo) DowngradeMissed(
	ctx context.Context,
	platform domain.Platform,
	graceCycles int,
) (int64, error) {
	const op = "postgres.ListingRepo.DowngradeMissed"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE listings
		 SET available = FALSE
		 WHERE platform = $1 AND available = TRUE AND missed_cycles > $2`,
		string(platform), graceCycles,
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}

// RetireStale soft-retires listings not observed since the cutoff.
func (r *ListingRepo) RetireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "postgres.ListingRepo.RetireStale"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE listings
		 SET retired = TRUE, available = FALSE
		 WHERE retired = FALSE AND last_seen < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}

// PruneObservations removes price history older than the retention cutoff.
func (r *ListingRepo) PruneObservations(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "postgres.ListingRepo.PruneObservations"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`DELETE FROM price_observations WHERE observed_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}

// SearchFilter narrows the listing query API. Zero values mean "no filter".
type SearchFilter struct {
	Platform       domain.Platform
	OnlyAvailable  bool
	OnlyHighDemand bool
	MinPrice       string
	MaxPrice       string
	Limit          int
	Offset         int
}

// Search returns listings matching the filter, best recommendation first.
func (r *ListingRepo) Search(ctx context.Context, f SearchFilter) ([]domain.Listing, error) {
	const op = "postgres.ListingRepo.Search"

	db := r.handle()

	sql := `SELECT ` + listingColumns + ` FROM listings WHERE retired = FALSE`
	args := []any{}
	n := 0

	if f.Platform != "" {
		n++
		sql += fmt.Sprintf(" AND platform = $%d", n)
		args = append(args, string(f.Platform))
	}
	if f.OnlyAvailable {
		sql += " AND available = TRUE"
	}
	if f.OnlyHighDemand {
		sql += " AND high_demand = TRUE"
	}
	if f.MinPrice != "" {
		n++
		sql += fmt.Sprintf(" AND min_price >= $%d", n)
		args = append(args, f.MinPrice)
	}
	if f.MaxPrice != "" {
		n++
		sql += fmt.Sprintf(" AND min_price <= $%d", n)
		args = append(args, f.MaxPrice)
	}

	sql += " ORDER BY score DESC, min_price ASC"
	n++
	sql += fmt.Sprintf(" LIMIT $%d", n)
	args = append(args, f.Limit)
	n++
	sql += fmt.Sprintf(" OFFSET $%d", n)
	args = append(args, f.Offset)

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
