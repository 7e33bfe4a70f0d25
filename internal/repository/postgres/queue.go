package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hdtickets/scout/internal/domain"
	"github.com/hdtickets/scout/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type QueueRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *QueueRepo) With(db DB) *QueueRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *QueueRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const queueColumns = `id, fingerprint, user_id, status, reserved_by, reserved_until, created_at, updated_at`

func scanQueueEntry(row interface{ Scan(...any) error }) (*domain.QueueEntry, error) {
	var e domain.QueueEntry
	var status string

	err := row.Scan(
		&e.ID, &e.Fingerprint, &e.UserID, &status,
		&e.ReservedBy, &e.ReservedUntil, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status = domain.QueueStatus(status)

	return &e, nil
}

// Admit creates a queued entry for a fingerprint. A partial unique index on
// non-terminal entries enforces the core invariant: at most one queued or
// reserved entry per fingerprint.
//
// Returns repository.ErrDuplicateAdmission when the fingerprint already has
// a live entry.
func (r *QueueRepo) Admit(ctx context.Context, e *domain.QueueEntry) error {
	const op = "postgres.QueueRepo.Admit"

	db := r.handle()

	_, err := db.Exec(ctx,
		`INSERT INTO purchase_queue (id, fingerprint, user_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, 'queued', now(), now())`,
		e.ID, e.Fingerprint, e.UserID,
	)
	if err != nil {
		if errors.Is(translateDBErr(err), repository.ErrConflict) {
			return fmt.Errorf("%s:%w", op, repository.ErrDuplicateAdmission)
		}
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// Claim performs the queued -> reserved transition. The conditional UPDATE
// makes it first-claim-wins across concurrent claimants.
//
// Returns repository.ErrAlreadyReserved when the entry exists but is not
// claimable, repository.ErrNotFound when it does not exist.
func (r *QueueRepo) Claim(
	ctx context.Context,
	id uuid.UUID,
	claimant string,
	reservedUntil time.Time,
) (*domain.QueueEntry, error) {
	const op = "postgres.QueueRepo.Claim"

	db := r.handle()

	e, err := scanQueueEntry(db.QueryRow(ctx,
		`UPDATE purchase_queue
		 SET status = 'reserved', reserved_by = $2, reserved_until = $3, updated_at = now()
		 WHERE id = $1 AND status = 'queued'
		 RETURNING `+queueColumns,
		id, claimant, reservedUntil,
	))
	if err == nil {
		return e, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	// Lost the race or bad ID; look at the row to say which.
	var status string
	err = db.QueryRow(ctx,
		`SELECT status FROM purchase_queue WHERE id = $1`, id,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil, fmt.Errorf("%s:%w", op, repository.ErrAlreadyReserved)
}

// Close moves a reserved entry into a terminal state (purchased or failed).
//
// Returns repository.ErrInvalidTransition unless the entry is reserved.
func (r *QueueRepo) Close(ctx context.Context, id uuid.UUID, status domain.QueueStatus) error {
	const op = "postgres.QueueRepo.Close"

	if status != domain.QueuePurchased && status != domain.QueueFailed {
		return fmt.Errorf("%s:%w", op, repository.ErrInvalidTransition)
	}

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE purchase_queue
		 SET status = $2, updated_at = now()
		 WHERE id = $1 AND status = 'reserved'`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrInvalidTransition)
	}

	return nil
}

// ExpireReservations moves timed-out reservations to expired, freeing their
// fingerprints for fresh admissions.
func (r *QueueRepo) ExpireReservations(ctx context.Context) (int64, error) {
	const op = "postgres.QueueRepo.ExpireReservations"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE purchase_queue
		 SET status = 'expired', updated_at = now()
		 WHERE status = 'reserved' AND reserved_until <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}

// Get retrieves one queue entry.
func (r *QueueRepo) Get(ctx context.Context, id uuid.UUID) (*domain.QueueEntry, error) {
	const op = "postgres.QueueRepo.Get"

	db := r.handle()

	e, err := scanQueueEntry(db.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM purchase_queue WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return e, nil
}

// List returns queue entries, live ones first, newest within each state.
func (r *QueueRepo) List(ctx context.Context, onlyLive bool, limit, offset int) ([]domain.QueueEntry, error) {
	const op = "postgres.QueueRepo.List"

	db := r.handle()

	var rows pgx.Rows
	var err error

	if onlyLive {
		rows, err = db.Query(ctx,
			`SELECT `+queueColumns+`
			 FROM purchase_queue
			 WHERE status IN ('queued', 'reserved')
			 ORDER BY created_at DESC
			 LIMIT $1 OFFSET $2`,
			limit, offset,
		)
	} else {
		rows, err = db.Query(ctx,
			`SELECT `+queueColumns+`
			 FROM purchase_queue
			 ORDER BY status IN ('queued', 'reserved') DESC, created_at DESC
			 LIMIT $1 OFFSET $2`,
			limit, offset,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
