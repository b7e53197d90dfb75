// README: Contact store backed by PostgreSQL.
package notify

import (
	"context"
	"errors"

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

// Upsert replaces the non-empty fields of the user's contact.
func (s *Store) Upsert(ctx context.Context, c *Contact) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO user_contacts (user_id, device_token, phone, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET device_token = CASE WHEN EXCLUDED.device_token = '' THEN user_contacts.device_token ELSE EXCLUDED.device_token END,
		    phone = CASE WHEN EXCLUDED.phone = '' THEN user_contacts.phone ELSE EXCLUDED.phone END,
		    updated_at = NOW()
		RETURNING device_token, phone, updated_at`,
		string(c.UserID), c.DeviceToken, c.Phone,
	).Scan(&c.DeviceToken, &c.Phone, &c.UpdatedAt)
}

func (s *Store) Get(ctx context.Context, userID types.ID) (*Contact, error) {
	c := Contact{UserID: userID}
	err := s.db.QueryRow(ctx, `
		SELECT device_token, phone, updated_at FROM user_contacts WHERE user_id = $1`,
		string(userID),
	).Scan(&c.DeviceToken, &c.Phone, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
