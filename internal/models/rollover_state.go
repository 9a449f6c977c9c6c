package models

import "time"

// RolloverState persists the scheduler's month so a restart at a month
// boundary can still close the previous month.
type RolloverState struct {
	Name            string    `gorm:"type:varchar(64);primaryKey" json:"name"`
	CurrentMonth    string    `gorm:"type:varchar(7)" json:"current_month"`
	LastClosedMonth string    `gorm:"type:varchar(7)" json:"last_closed_month"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ChannelMessage remembers a bot-owned message that is edited in place.
type ChannelMessage struct {
	Name      string    `gorm:"type:varchar(64);primaryKey" json:"name"`
	ChannelID string    `gorm:"type:varchar(32);not null" json:"channel_id"`
	MessageID string    `gorm:"type:varchar(32);not null" json:"message_id"`
	UpdatedAt time.Time `json:"updated_at"`
}
