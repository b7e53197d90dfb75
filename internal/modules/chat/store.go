// README: Chat store backed by PostgreSQL.
package chat

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carpool/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, m *Message) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO chat_messages (id, ride_id, sender_id, receiver_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(m.ID), string(m.RideID), string(m.SenderID), string(m.ReceiverID), m.Text, m.CreatedAt,
	)
	return err
}

// History returns the ride's messages oldest first. A non-empty participant
// limits it to messages that user sent or received.
func (s *Store) History(ctx context.Context, rideID, participant types.ID, limit int) ([]Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, sender_id, receiver_id, body, created_at
		FROM chat_messages
		WHERE ride_id = $1
		  AND ($2 = '' OR sender_id = $2 OR receiver_id = $2)
		ORDER BY created_at
		LIMIT $3`,
		string(rideID), string(participant), limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.ID, &m.RideID, &m.SenderID, &m.ReceiverID, &m.Text, &m.CreatedAt)
		return m, err
	})
}

// SeatHolders lists users holding seats on the ride through an accepted,
// confirmed or picked-up booking or an accepted bid.
func (s *Store) SeatHolders(ctx context.Context, rideID types.ID) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT passenger_id FROM bookings
		WHERE ride_id = $1 AND status IN ('accepted', 'confirmed', 'picked_up')
		UNION
		SELECT user_id FROM bids
		WHERE ride_id = $1 AND status = 'accepted'`,
		string(rideID),
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[types.ID])
}
