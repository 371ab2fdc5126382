package models

import "time"

type Phase string

const (
	PhaseVoting Phase = "voting"
	PhaseClosed Phase = "closed"
)

// Motion - a proposal inside a discussion, voted on while Phase is voting.
// The phase is owned by whoever closes the motion; vote submission only reads it.
type Motion struct {
	ID           int        `gorm:"primaryKey" json:"id"`
	DiscussionID int        `gorm:"index;not null" json:"discussion_id"`
	Discussion   Discussion `gorm:"foreignKey:DiscussionID" json:"-"`
	AuthorID     int        `gorm:"not null" json:"author_id"`
	Name         string     `gorm:"not null" json:"name"`
	Description  string     `json:"description"`
	Phase        Phase      `gorm:"not null;default:voting" json:"phase"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// GroupID is derived through the owning discussion; Discussion must be loaded.
func (m Motion) GroupID() int {
	return m.Discussion.GroupID
}
