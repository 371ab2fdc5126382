package models

import "time"

// Notification - in-app notice; unique per (event_id, user_id) so a
// redelivered event does not notify twice
type Notification struct {
	ID        int        `gorm:"primaryKey" json:"id"`
	EventID   string     `gorm:"uniqueIndex:idx_notification_event_user;not null" json:"event_id"`
	UserID    int        `gorm:"uniqueIndex:idx_notification_event_user;not null" json:"user_id"`
	Kind      string     `gorm:"not null" json:"kind"`
	VoteID    int        `json:"vote_id"`
	MotionID  int        `json:"motion_id"`
	ActorID   int        `json:"actor_id"`
	Message   string     `json:"message"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxDispatched OutboxStatus = "dispatched"
	OutboxFailed     OutboxStatus = "failed"
)

// OutboxEvent stores an emitted domain event until it has been dispatched.
type OutboxEvent struct {
	ID           string       `gorm:"primaryKey;type:uuid" json:"id"`
	Kind         string       `gorm:"not null" json:"kind"`
	Payload      []byte       `gorm:"type:jsonb;not null" json:"payload"`
	Status       OutboxStatus `gorm:"index;not null;default:pending" json:"status"`
	Attempts     int          `gorm:"not null;default:0" json:"attempts"`
	LastError    string       `json:"last_error,omitempty"`
	CreatedAt    time.Time    `gorm:"index" json:"created_at"`
	DispatchedAt *time.Time   `json:"dispatched_at,omitempty"`
}
