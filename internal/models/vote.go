package models

import (
	"regexp"
	"time"
)

type Position string

const (
	PositionYes     Position = "yes"
	PositionNo      Position = "no"
	PositionAbstain Position = "abstain"
	PositionBlock   Position = "block"
)

var positionVerbs = map[Position]string{
	PositionYes:     "agreed",
	PositionNo:      "disagreed",
	PositionAbstain: "abstained",
	PositionBlock:   "blocked",
}

// Valid reports whether p is one of the four accepted positions.
func (p Position) Valid() bool {
	_, ok := positionVerbs[p]
	return ok
}

// Verb is the past-tense wording used in notifications ("agreed", "blocked", ...).
func (p Position) Verb() string {
	return positionVerbs[p]
}

const MaxStatementLength = 250

// Vote model - one row per (motion_id, user_id); re-voting updates it in place
type Vote struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	MotionID  int       `gorm:"uniqueIndex:idx_vote_motion_user;not null" json:"motion_id"`
	UserID    int       `gorm:"uniqueIndex:idx_vote_motion_user;not null" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"user"`
	Position  Position  `gorm:"not null" json:"position"`
	Statement string    `gorm:"size:250" json:"statement,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Position held before the save that produced this value; nil for a first vote
	PreviousPosition *Position `gorm:"-" json:"previous_position,omitempty"`
}

var mentionPattern = regexp.MustCompile(`(?:^|[^\w@])@(\w+)`)

// MentionedUsernames returns the distinct @usernames in the statement, in order.
func (v Vote) MentionedUsernames() []string {
	matches := mentionPattern.FindAllStringSubmatch(v.Statement, -1)
	seen := make(map[string]bool, len(matches))
	var names []string
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}
