package voting

import (
	"context"

	"github.com/emilythestrangee/consensus/backend/internal/events"
	"github.com/emilythestrangee/consensus/backend/internal/models"
)

// Repository is the storage boundary of the vote state machine.
type Repository interface {
	// GetMotion returns the motion with its discussion loaded, or ErrMotionNotFound.
	GetMotion(ctx context.Context, motionID int) (models.Motion, error)
	// IsMember reports whether user belongs to group.
	IsMember(ctx context.Context, groupID, userID int) (bool, error)
	// Transact runs fn in one transaction, serialized against every other
	// Transact call for the same (motion, user) pair. An error from fn rolls
	// back and is returned unchanged.
	Transact(ctx context.Context, motionID, userID int, fn func(Tx) error) error
}

// ActivityCounter bumps a discussion's activity by one, atomically.
type ActivityCounter interface {
	IncrementActivity(ctx context.Context, discussionID int) error
}

// Tx is the transactional view Transact hands to its callback.
type Tx interface {
	ActivityCounter

	// RefreshPhase overwrites motion's phase fields with the committed values,
	// read under a lock that holds off a concurrent close until commit.
	RefreshPhase(ctx context.Context, motion *models.Motion) error
	// FindVote returns the vote for the transaction's (motion, user), or nil.
	FindVote(ctx context.Context) (*models.Vote, error)
	SaveVote(ctx context.Context, vote *models.Vote) error
	// AppendEvents records events durably as part of the transaction.
	AppendEvents(ctx context.Context, evs []events.Event) error
}

// Publisher is the post-commit hook. It is only called once the events it
// receives have been committed.
type Publisher interface {
	Publish(ctx context.Context, evs []events.Event) error
}
