package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hdtickets/scout/internal/domain"
	"github.com/hdtickets/scout/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type IdentityRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *IdentityRepo) With(db DB) *IdentityRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *IdentityRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const identityColumns = `id, platform, purpose, username, user_agent, proxy_url,
	last_used, failures, cooldown_until, disabled, in_use`

func scanIdentity(row interface{ Scan(...any) error }) (*domain.Identity, error) {
	var ident domain.Identity
	var platform string

	err := row.Scan(
		&ident.ID, &platform, &ident.Purpose, &ident.Username, &ident.UserAgent,
		&ident.ProxyURL, &ident.LastUsed, &ident.Failures, &ident.CooldownUntil,
		&ident.Disabled, &ident.InUse,
	)
	if err != nil {
		return nil, err
	}

	ident.Platform = domain.Platform(platform)

	return &ident, nil
}

// Checkout atomically claims the best eligible identity for (platform,
// purpose): cooldown elapsed, failures below the ban threshold, not
// disabled, not held by another worker. Eligible identities are ordered by
// lowest failure count, then oldest last-used. The claim is a single
// statement over a SKIP LOCKED subselect so two workers can never receive
// the same identity.
//
// Returns repository.ErrNoIdentityAvailable when the pool is exhausted.
func (r *IdentityRepo) Checkout(
	ctx context.Context,
	platform domain.Platform,
	purpose string,
	banThreshold int,
) (*domain.Identity, error) {
	const op = "postgres.IdentityRepo.Checkout"

	db := r.handle()

	ident, err := scanIdentity(db.QueryRow(ctx,
		`UPDATE scraping_identities
		 SET in_use = TRUE, last_used = now()
		 WHERE id = (
		     SELECT id FROM scraping_identities
		     WHERE platform = $1
		       AND purpose = $2
		       AND disabled = FALSE
		       AND in_use = FALSE
		       AND failures < $3
		       AND (cooldown_until IS NULL OR cooldown_until <= now())
		     ORDER BY failures ASC, last_used ASC NULLS FIRST
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+identityColumns,
		string(platform), purpose, banThreshold,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s:%w", op, repository.ErrNoIdentityAvailable)
		}
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return ident, nil
}

// CheckinSuccess releases an identity after a successful fetch and resets
// its failure counter.
func (r *IdentityRepo) CheckinSuccess(ctx context.Context, id int64) error {
	const op = "postgres.IdentityRepo.CheckinSuccess"

	db := r.handle()

	_, err := db.Exec(ctx,
		`UPDATE scraping_identities
		 SET in_use = FALSE, failures = 0, cooldown_until = NULL
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// CheckinTransient releases an identity after a retryable failure,
// incrementing its failure count and applying the computed cooldown.
func (r *IdentityRepo) CheckinTransient(ctx context.Context, id int64, cooldownUntil time.Time) error {
	const op = "postgres.IdentityRepo.CheckinTransient"

	db := r.handle()

	_, err := db.Exec(ctx,
		`UPDATE scraping_identities
		 SET in_use = FALSE, failures = failures + 1, cooldown_until = $2
		 WHERE id = $1`,
		id, cooldownUntil,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// Disable takes an identity out of rotation until manual reactivation.
func (r *IdentityRepo) Disable(ctx context.Context, id int64) error {
	const op = "postgres.IdentityRepo.Disable"

	db := r.handle()

	_, err := db.Exec(ctx,
		`UPDATE scraping_identities
		 SET in_use = FALSE, disabled = TRUE
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// Reactivate returns a disabled identity to the pool with a clean slate.
func (r *IdentityRepo) Reactivate(ctx context.Context, id int64) error {
	const op = "postgres.IdentityRepo.Reactivate"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE scraping_identities
		 SET disabled = FALSE, failures = 0, cooldown_until = NULL, in_use = FALSE
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// Insert adds a new identity to the rotation pool.
func (r *IdentityRepo) Insert(ctx context.Context, ident *domain.Identity) (int64, error) {
	const op = "postgres.IdentityRepo.Insert"

	db := r.handle()

	var id int64
	err := db.QueryRow(ctx,
		`INSERT INTO scraping_identities (platform, purpose, username, user_agent, proxy_url)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		string(ident.Platform), ident.Purpose, ident.Username, ident.UserAgent, ident.ProxyURL,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

// List returns the pool, optionally filtered by platform.
func (r *IdentityRepo) List(ctx context.Context, platform domain.Platform) ([]domain.Identity, error) {
	const op = "postgres.IdentityRepo.List"

	db := r.handle()

	var rows pgx.Rows
	var err error

	if platform != "" {
		rows, err = db.Query(ctx,
			`SELECT `+identityColumns+`
			 FROM scraping_identities
			 WHERE platform = $1
			 ORDER BY platform, id`,
			string(platform),
		)
	} else {
		rows, err = db.Query(ctx,
			`SELECT `+identityColumns+`
			 FROM scraping_identities
			 ORDER BY platform, id`,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Identity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// ReleaseStuck frees identities still marked in-use after the deadline,
// covering workers that died without checking in.
func (r *IdentityRepo) ReleaseStuck(ctx context.Context, olderThan time.Time) (int64, error) {
	const op = "postgres.IdentityRepo.ReleaseStuck"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE scraping_identities
		 SET in_use = FALSE
		 WHERE in_use = TRUE AND last_used < $1`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}
