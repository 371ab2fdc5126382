package models

import "time"

type User struct {
	ID       int    `gorm:"primaryKey" json:"id"`
	Username string `gorm:"unique;not null" json:"username"`
	Email    string `gorm:"unique;not null" json:"email"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Phone    string `json:"-"` // E.164, used for SMS alerts

	// Opt-in for emails about mentions and announcements
	EmailWhenMentioned bool `gorm:"default:true" json:"email_when_mentioned"`

	Identities []Identity `gorm:"foreignKey:UserID" json:"identities,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
