package store

import (
	"context"
	"fmt"

	"github.com/tariel-x/affiliates/internal/models"
)

// ReplacePushSubscription keeps only the latest subscription per admin.
func (s *Store) ReplacePushSubscription(ctx context.Context, sub *models.PushSubscription) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("admin_id = ?", sub.AdminID).Delete(&models.PushSubscription{}).Error; err != nil {
		return fmt.Errorf("delete old subscriptions for %s: %w", sub.AdminID, err)
	}
	if err := db.Create(sub).Error; err != nil {
		return fmt.Errorf("create subscription for %s: %w", sub.AdminID, err)
	}
	return nil
}

func (s *Store) RemovePushSubscription(ctx context.Context, adminID, endpoint string) error {
	res := s.db.WithContext(ctx).
		Where("admin_id = ? AND endpoint = ?", adminID, endpoint).
		Delete(&models.PushSubscription{})
	if res.Error != nil {
		return fmt.Errorf("remove subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeletePushSubscription(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&models.PushSubscription{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete subscription %s: %w", id, err)
	}
	return nil
}

func (s *Store) PushSubscriptions(ctx context.Context) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}
