package models

import "time"

// Group owns discussions; only its members may vote on their motions.
type Group struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership - exactly one row per (group_id, user_id)
type Membership struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	GroupID   int       `gorm:"uniqueIndex:idx_membership_group_user;not null" json:"group_id"`
	UserID    int       `gorm:"uniqueIndex:idx_membership_group_user;not null" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"user"`
	CreatedAt time.Time `json:"created_at"`
}
