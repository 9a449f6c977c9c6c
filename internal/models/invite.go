package models

import "time"

// InviteRecord binds a personal invite code to the member who owns it.
// Records are created once and never modified.
type InviteRecord struct {
	Code           string    `gorm:"type:varchar(32);primaryKey" json:"code"`
	OwnerDiscordID string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"owner_discord_id"`
	URL            string    `gorm:"type:text;not null" json:"url"`
	CreatedAt      time.Time `json:"created_at"`
}
