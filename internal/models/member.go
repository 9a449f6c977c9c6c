package models

import "time"

// Member is a community member known to the affiliate program.
// InvitedByDiscordID and InviteCodeUsed are write-once; LastEarningsDMMonth only moves forward.
type Member struct {
	DiscordID           string     `gorm:"type:varchar(32);primaryKey" json:"discord_id"`
	Username            string     `gorm:"type:varchar(100)" json:"username"`
	JoinedAt            *time.Time `json:"joined_at,omitempty"`
	InvitedByDiscordID  *string    `gorm:"type:varchar(32);index" json:"invited_by_discord_id,omitempty"`
	InviteCodeUsed      *string    `gorm:"type:varchar(32)" json:"invite_code_used,omitempty"`
	LastEarningsDMMonth *string    `gorm:"type:varchar(7)" json:"last_earnings_dm_month,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}
