package store

import (
	"context"
	"fmt"
	"time"

	"github.com/tariel-x/affiliates/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertMember creates the member or refreshes its username. joinedAt is
// only written when non-nil.
func (s *Store) UpsertMember(ctx context.Context, discordID, username string, joinedAt *time.Time) error {
	member := models.Member{DiscordID: discordID, Username: username}
	updates := []string{"username", "updated_at"}
	if joinedAt != nil {
		t := joinedAt.UTC()
		member.JoinedAt = &t
		updates = append(updates, "joined_at")
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "discord_id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&member).Error
	if err != nil {
		return fmt.Errorf("upsert member %s: %w", discordID, err)
	}
	return nil
}

// UpsertMembers writes usernames for many members in batches.
func (s *Store) UpsertMembers(ctx context.Context, members []models.Member, batchSize int) error {
	if len(members) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "discord_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "updated_at"}),
	}).CreateInBatches(&members, batchSize).Error
	if err != nil {
		return fmt.Errorf("upsert %d members: %w", len(members), err)
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, discordID string) (*models.Member, error) {
	var member models.Member
	if err := s.db.WithContext(ctx).First(&member, "discord_id = ?", discordID).Error; err != nil {
		return nil, notFound(err)
	}
	return &member, nil
}

// MarkEarningsNotified moves the member's last notified month forward to
// month. It reports false when the marker is already at or past month.
func (s *Store) MarkEarningsNotified(ctx context.Context, discordID, month string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("discord_id = ? AND (last_earnings_dm_month IS NULL OR last_earnings_dm_month < ?)", discordID, month).
		Update("last_earnings_dm_month", month)
	if res.Error != nil {
		return false, fmt.Errorf("mark earnings notified %s: %w", discordID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ensureMember inserts an empty member row if none exists.
func ensureMember(tx *gorm.DB, discordID string) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Member{DiscordID: discordID}).Error
}

// EnsureMember creates an empty member row when discordID is unknown.
func (s *Store) EnsureMember(ctx context.Context, discordID string) error {
	if err := ensureMember(s.db.WithContext(ctx), discordID); err != nil {
		return fmt.Errorf("ensure member %s: %w", discordID, err)
	}
	return nil
}
