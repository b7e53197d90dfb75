// README: Contact registration for notification delivery.
package notify

import (
	"context"
	"strings"

	"carpool/internal/types"
)

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

type RegisterContactCommand struct {
	UserID      types.ID
	DeviceToken string
	Phone       string
}

func (s *Service) RegisterContact(ctx context.Context, cmd RegisterContactCommand) (*Contact, error) {
	c := &Contact{
		UserID:      cmd.UserID,
		DeviceToken: strings.TrimSpace(cmd.DeviceToken),
		Phone:       strings.TrimSpace(cmd.Phone),
	}
	if c.DeviceToken == "" && c.Phone == "" {
		return nil, ErrBadContact
	}
	if c.Phone != "" && !strings.HasPrefix(c.Phone, "+") {
		return nil, ErrBadContact.WithField("phone", "must be in E.164 format")
	}
	if err := s.store.Upsert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
