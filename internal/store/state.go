package store

import (
	"context"
	"fmt"

	"github.com/tariel-x/affiliates/internal/models"

	"gorm.io/gorm/clause"
)

func (s *Store) LoadRolloverState(ctx context.Context, name string) (*models.RolloverState, error) {
	var st models.RolloverState
	if err := s.db.WithContext(ctx).First(&st, "name = ?", name).Error; err != nil {
		return nil, notFound(err)
	}
	return &st, nil
}

func (s *Store) SaveRolloverState(ctx context.Context, st *models.RolloverState) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(st).Error
	if err != nil {
		return fmt.Errorf("save rollover state %s: %w", st.Name, err)
	}
	return nil
}

func (s *Store) ChannelMessage(ctx context.Context, name string) (*models.ChannelMessage, error) {
	var msg models.ChannelMessage
	if err := s.db.WithContext(ctx).First(&msg, "name = ?", name).Error; err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

func (s *Store) SaveChannelMessage(ctx context.Context, msg *models.ChannelMessage) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(msg).Error
	if err != nil {
		return fmt.Errorf("save channel message %s: %w", msg.Name, err)
	}
	return nil
}
