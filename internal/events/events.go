// Package events defines the domain events recorded when a vote changes.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emilythestrangee/consensus/backend/internal/models"
)

type Kind string

const (
	KindNewVote       Kind = "new_vote"
	KindMotionBlocked Kind = "motion_blocked"
)

// Event is the notification context for a vote. The vote itself is the
// eventable; dispatch reloads it so recipients see committed state.
type Event struct {
	ID           string          `json:"id"`
	Kind         Kind            `json:"kind"`
	VoteID       int             `json:"vote_id"`
	MotionID     int             `json:"motion_id"`
	DiscussionID int             `json:"discussion_id"`
	GroupID      int             `json:"group_id"`
	ActorID      int             `json:"actor_id"`
	Position     models.Position `json:"position"`
	Announcement bool            `json:"announcement"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// ForVote builds an event of the given kind for a saved vote on motion.
func ForVote(kind Kind, vote models.Vote, motion models.Motion, announcement bool, at time.Time) Event {
	return Event{
		ID:           uuid.NewString(),
		Kind:         kind,
		VoteID:       vote.ID,
		MotionID:     motion.ID,
		DiscussionID: motion.DiscussionID,
		GroupID:      motion.GroupID(),
		ActorID:      vote.UserID,
		Position:     vote.Position,
		Announcement: announcement,
		OccurredAt:   at.UTC(),
	}
}

// ToOutbox serializes the event into a pending outbox row.
func (e Event) ToOutbox() (models.OutboxEvent, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return models.OutboxEvent{
		ID:        e.ID,
		Kind:      string(e.Kind),
		Payload:   payload,
		Status:    models.OutboxPending,
		CreatedAt: e.OccurredAt,
	}, nil
}

// FromOutbox decodes an outbox row back into an event.
func FromOutbox(row models.OutboxEvent) (Event, error) {
	var e Event
	if err := json.Unmarshal(row.Payload, &e); err != nil {
		return Event{}, fmt.Errorf("decode outbox event %s: %w", row.ID, err)
	}
	return e, nil
}
