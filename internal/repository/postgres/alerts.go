package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hdtickets/scout/internal/domain"
	"github.com/hdtickets/scout/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AlertRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *AlertRepo) With(db DB) *AlertRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *AlertRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const alertColumns = `id, user_id, keyword, venue, max_price, platforms, status,
	triggered_at, matches_found, created_at`

func scanAlert(row interface{ Scan(...any) error }) (*domain.Alert, error) {
	var a domain.Alert
	var status string
	var platforms []string

	err := row.Scan(
		&a.ID, &a.UserID, &a.Keyword, &a.Venue, &a.MaxPrice, &platforms,
		&status, &a.TriggeredAt, &a.MatchesFound, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = domain.AlertStatus(status)
	for _, p := range platforms {
		a.Platforms = append(a.Platforms, domain.Platform(p))
	}

	return &a, nil
}

// Insert creates an alert definition on behalf of the configuration surface.
func (r *AlertRepo) Insert(ctx context.Context, a *domain.Alert) (int64, error) {
	const op = "postgres.AlertRepo.Insert"

	db := r.handle()

	platforms := make([]string, 0, len(a.Platforms))
	for _, p := range a.Platforms {
		platforms = append(platforms, string(p))
	}

	var id int64
	err := db.QueryRow(ctx,
		`INSERT INTO alerts (user_id, keyword, venue, max_price, platforms, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, 'active', now())
		 RETURNING id`,
		a.UserID, a.Keyword, a.Venue, a.MaxPrice, platforms,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

// ListActiveForPlatform returns active alerts whose platform set includes
// the given platform. This is the matching engine's candidate set.
func (r *AlertRepo) ListActiveForPlatform(ctx context.Context, platform domain.Platform) ([]domain.Alert, error) {
	const op = "postgres.AlertRepo.ListActiveForPlatform"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+alertColumns+`
		 FROM alerts
		 WHERE status = 'active' AND $1 = ANY(platforms)
		 ORDER BY id`,
		string(platform),
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// ListByUser returns a user's alerts, newest first.
func (r *AlertRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Alert, error) {
	const op = "postgres.AlertRepo.ListByUser"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+alertColumns+`
		 FROM alerts
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Get retrieves one alert.
func (r *AlertRepo) Get(ctx context.Context, id int64) (*domain.Alert, error) {
	const op = "postgres.AlertRepo.Get"

	db := r.handle()

	a, err := scanAlert(db.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return a, nil
}

// UpdateStatus pauses, resumes or expires an alert.
func (r *AlertRepo) UpdateStatus(ctx context.Context, id int64, status domain.AlertStatus) error {
	const op = "postgres.AlertRepo.UpdateStatus"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE alerts SET status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// InsertTrigger records one (alert, fingerprint) trigger. The unique
// constraint on the pair makes re-matching across cycles a no-op: the first
// insert wins and reports inserted=true, every later attempt reports false.
func (r *AlertRepo) InsertTrigger(ctx context.Context, t *domain.AlertTrigger) (bool, error) {
	const op = "postgres.AlertRepo.InsertTrigger"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`INSERT INTO alert_triggers (id, alert_id, fingerprint, price, fired_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (alert_id, fingerprint) DO NOTHING`,
		t.ID, t.AlertID, t.Fingerprint, t.Price, t.FiredAt,
	)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected() == 1, nil
}

// MarkTriggered bumps the alert's match counter and stamps triggered_at on
// the first trigger only.
func (r *AlertRepo) MarkTriggered(ctx context.Context, id int64, at time.Time) error {
	const op = "postgres.AlertRepo.MarkTriggered"

	db := r.handle()

	_, err := db.Exec(ctx,
		`UPDATE alerts
		 SET matches_found = matches_found + 1,
		     triggered_at = COALESCE(triggered_at, $2)
		 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// ListTriggers returns an alert's trigger history, newest first.
func (r *AlertRepo) ListTriggers(ctx context.Context, alertID int64, limit int) ([]domain.AlertTrigger, error) {
	const op = "postgres.AlertRepo.ListTriggers"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, alert_id, fingerprint, price, fired_at
		 FROM alert_triggers
		 WHERE alert_id = $1
		 ORDER BY fired_at DESC
		 LIMIT $2`,
		alertID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.AlertTrigger
	for rows.Next() {
		var t domain.AlertTrigger
		var id uuid.UUID
		if err := rows.Scan(&id, &t.AlertID, &t.Fingerprint, &t.Price, &t.FiredAt); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		t.ID = id
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
