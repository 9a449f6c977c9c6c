package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tariel-x/affiliates/internal/models"

	"gorm.io/gorm"
)

// errAlreadyAttributed aborts the recording transaction without an error
// reaching the caller.
var errAlreadyAttributed = errors.New("member already attributed")

// RecordAttribution sets the invitee's inviter fields and appends entry to
// the log in one transaction. It returns false, and writes nothing, when the
// invitee already has an inviter.
func (s *Store) RecordAttribution(ctx context.Context, entry *models.AttributionEntry) (bool, error) {
	entry.JoinedAt = entry.JoinedAt.UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureMember(tx, entry.InviteeDiscordID); err != nil {
			return err
		}

		res := tx.Model(&models.Member{}).
			Where("discord_id = ? AND invited_by_discord_id IS NULL", entry.InviteeDiscordID).
			Updates(map[string]any{
				"invited_by_discord_id": entry.InviterDiscordID,
				"invite_code_used":      entry.Code,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errAlreadyAttributed
		}

		return tx.Create(entry).Error
	})
	if errors.Is(err, errAlreadyAttributed) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("record attribution for %s: %w", entry.InviteeDiscordID, err)
	}
	return true, nil
}

// EntriesForMonths returns every log entry whose month key is one of months,
// oldest first.
func (s *Store) EntriesForMonths(ctx context.Context, months ...string) ([]models.AttributionEntry, error) {
	if len(months) == 0 {
		return nil, nil
	}
	var entries []models.AttributionEntry
	err := s.db.WithContext(ctx).
		Where("month_key IN ?", months).
		Order("joined_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list entries for %v: %w", months, err)
	}
	return entries, nil
}

func (s *Store) EntriesForInviter(ctx context.Context, inviterID string) ([]models.AttributionEntry, error) {
	var entries []models.AttributionEntry
	err := s.db.WithContext(ctx).
		Where("inviter_discord_id = ?", inviterID).
		Order("joined_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list entries for inviter %s: %w", inviterID, err)
	}
	return entries, nil
}

func (s *Store) EntriesForInvitee(ctx context.Context, inviteeID string) ([]models.AttributionEntry, error) {
	var entries []models.AttributionEntry
	err := s.db.WithContext(ctx).
		Where("invitee_discord_id = ?", inviteeID).
		Order("joined_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list entries for invitee %s: %w", inviteeID, err)
	}
	return entries, nil
}

// MarkQualified flips the invitee's entry to qualified. It is idempotent:
// false means the entry was already qualified. ErrNotFound means the invitee
// was never attributed.
func (s *Store) MarkQualified(ctx context.Context, inviteeID string, at time.Time) (bool, error) {
	at = at.UTC()
	res := s.db.WithContext(ctx).
		Model(&models.AttributionEntry{}).
		Where("invitee_discord_id = ? AND qualified = ?", inviteeID, false).
		Updates(map[string]any{"qualified": true, "qualified_at": &at})
	if res.Error != nil {
		return false, fmt.Errorf("mark qualified %s: %w", inviteeID, res.Error)
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.AttributionEntry{}).
		Where("invitee_discord_id = ?", inviteeID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("mark qualified %s: %w", inviteeID, err)
	}
	if count == 0 {
		return false, ErrNotFound
	}
	return false, nil
}
