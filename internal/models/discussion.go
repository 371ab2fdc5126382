package models

import "time"

type Volume string

const (
	VolumeMute   Volume = "mute"
	VolumeQuiet  Volume = "quiet"
	VolumeNormal Volume = "normal"
	VolumeLoud   Volume = "loud"
)

// NormalOrLoud reports whether the member wants announcement emails.
func (v Volume) NormalOrLoud() bool {
	return v == VolumeNormal || v == VolumeLoud
}

type Discussion struct {
	ID       int    `gorm:"primaryKey" json:"id"`
	GroupID  int    `gorm:"index;not null" json:"group_id"`
	Group    Group  `gorm:"foreignKey:GroupID" json:"-"`
	AuthorID int    `json:"author_id"`
	Title    string `gorm:"not null" json:"title"`

	// Only grows; bumped by vote creation and position changes
	Activity int `gorm:"default:0;not null" json:"activity"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DiscussionReader holds a member's volume preference for one discussion.
type DiscussionReader struct {
	ID           int       `gorm:"primaryKey" json:"id"`
	DiscussionID int       `gorm:"uniqueIndex:idx_reader_discussion_user;not null" json:"discussion_id"`
	UserID       int       `gorm:"uniqueIndex:idx_reader_discussion_user;not null" json:"user_id"`
	User         User      `gorm:"foreignKey:UserID" json:"user"`
	Volume       Volume    `gorm:"not null;default:normal" json:"volume"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
