package store

import (
	"context"
	"fmt"

	"github.com/tariel-x/affiliates/internal/models"
)

// CreateInvite persists a new personal invite. Existing records are never overwritten.
func (s *Store) CreateInvite(ctx context.Context, rec *models.InviteRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create invite %s: %w", rec.Code, err)
	}
	return nil
}

func (s *Store) InviteByOwner(ctx context.Context, ownerID string) (*models.InviteRecord, error) {
	var rec models.InviteRecord
	if err := s.db.WithContext(ctx).First(&rec, "owner_discord_id = ?", ownerID).Error; err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (s *Store) InviteByCode(ctx context.Context, code string) (*models.InviteRecord, error) {
	var rec models.InviteRecord
	if err := s.db.WithContext(ctx).First(&rec, "code = ?", code).Error; err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}
