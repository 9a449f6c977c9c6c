package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttributionEntry is one row of the append-only invite log.
// Only Qualified/QualifiedAt are ever changed after insert.
type AttributionEntry struct {
	ID               string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	InviteeDiscordID string     `gorm:"type:varchar(32);not null;index" json:"invitee_discord_id"`
	InviterDiscordID string     `gorm:"type:varchar(32);not null;index" json:"inviter_discord_id"`
	Code             string     `gorm:"type:varchar(32);not null" json:"code"`
	JoinedAt         time.Time  `gorm:"not null" json:"joined_at"`
	MonthKey         string     `gorm:"type:varchar(7);not null;index" json:"month_key"`
	Qualified        bool       `gorm:"not null;default:false" json:"qualified"`
	QualifiedAt      *time.Time `json:"qualified_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (e *AttributionEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}
