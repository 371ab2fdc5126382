package models

import "time"

// Identity links a user to an external provider account. Rows of every
// provider share this table and are told apart by IdentityType.
type Identity struct {
	ID           int               `gorm:"primaryKey" json:"id"`
	UserID       int               `gorm:"index;not null" json:"user_id"`
	IdentityType string            `gorm:"uniqueIndex:idx_identity_type_uid;not null" json:"identity_type"`
	UID          string            `gorm:"uniqueIndex:idx_identity_type_uid;not null" json:"uid"`
	AccessToken  string            `gorm:"not null" json:"-"`
	Email        string            `json:"email"`
	Name         string            `json:"name"`
	Logo         string            `json:"logo,omitempty"`
	CustomFields map[string]string `gorm:"serializer:json" json:"custom_fields,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (Identity) TableName() string {
	return "omniauth_identities"
}
