// README: Bid store backed by PostgreSQL.
package bid

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carpool/internal/infra"
	"carpool/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const bidColumns = `
	id, ride_id, user_id, amount, currency, seats_requested,
	status, status_version, created_at, updated_at, responded_at`

func scanBid(row pgx.Row) (*Bid, error) {
	var b Bid
	err := row.Scan(
		&b.ID, &b.RideID, &b.UserID, &b.Amount.Amount, &b.Amount.Currency, &b.SeatsRequested,
		&b.Status, &b.StatusVersion, &b.CreatedAt, &b.UpdatedAt, &b.RespondedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Upsert places or replaces the user's bid on a ride. Pending and withdrawn
// bids are replaced; a bid the driver already answered is left alone and
// ErrBidLocked is returned.
func (s *Store) Upsert(ctx context.Context, tx infra.DBTX, b *Bid) (*Bid, error) {
	out, err := scanBid(tx.QueryRow(ctx, `
		INSERT INTO bids (id, ride_id, user_id, amount, currency, seats_requested, status, status_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', 0, $7, $7)
		ON CONFLICT (ride_id, user_id) DO UPDATE
		SET amount = EXCLUDED.amount,
		    currency = EXCLUDED.currency,
		    seats_requested = EXCLUDED.seats_requested,
		    status = 'pending',
		    status_version = bids.status_version + 1,
		    responded_at = NULL,
		    updated_at = EXCLUDED.updated_at
		WHERE bids.status IN ('pending', 'cancelled')
		RETURNING `+bidColumns,
		string(b.ID), string(b.RideID), string(b.UserID), b.Amount.Amount, b.Amount.Currency, b.SeatsRequested, b.CreatedAt,
	))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrBidLocked
	}
	return out, err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Bid, error) {
	return scanBid(s.db.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, string(id)))
}

func (s *Store) ListByRide(ctx context.Context, rideID types.ID) ([]Bid, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bidColumns+`
		FROM bids
		WHERE ride_id = $1
		ORDER BY created_at`, string(rideID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// UpdateStatus is a compare-and-set on (status, status_version).
func (s *Store) UpdateStatus(ctx context.Context, tx infra.DBTX, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE bids
		SET status = $1,
		    status_version = status_version + 1,
		    responded_at = CASE WHEN $1 IN ('accepted', 'rejected') THEN NOW() ELSE responded_at END,
		    updated_at = NOW()
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to), string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
