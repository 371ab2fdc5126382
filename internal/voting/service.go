// Package voting records members' positions on motions.
//
// Service.Submit is the only way a vote is created or changed. It validates
// the submission, persists the single vote row for (motion, user), bumps the
// discussion activity and records new_vote / motion_blocked events when the
// position actually changed, all inside one serialized transaction.
package voting

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/emilythestrangee/consensus/backend/internal/events"
	"github.com/emilythestrangee/consensus/backend/internal/models"
)

// SubmitVote is a member's request to take a position on a motion.
type SubmitVote struct {
	MotionID  int
	UserID    int
	Position  models.Position
	Statement string
	// Announce addresses the resulting new_vote event to the discussion
	// audience instead of the users mentioned in the statement.
	Announce bool
}

// Result is the saved vote and what the submission changed.
type Result struct {
	Vote             models.Vote
	PreviousPosition *models.Position
	Created          bool
	Changed          bool
	Events           []events.Event
}

type Service struct {
	repo      Repository
	gate      PhaseGate
	publisher Publisher
	logger    *zap.Logger

	Now func() time.Time
}

// NewService wires the state machine. A nil gate reads the motion's phase,
// a nil publisher skips the post-commit hook.
func NewService(repo Repository, gate PhaseGate, publisher Publisher, logger *zap.Logger) *Service {
	if gate == nil {
		gate = MotionPhase{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		gate:      gate,
		publisher: publisher,
		logger:    logger,
		Now:       time.Now,
	}
}

// Submit validates and saves cmd. Validation failures are *FieldError;
// storage errors are returned as the repository produced them.
func (s *Service) Submit(ctx context.Context, cmd SubmitVote) (Result, error) {
	log := s.logger.With(
		zap.Int("motion_id", cmd.MotionID),
		zap.Int("user_id", cmd.UserID),
		zap.String("position", string(cmd.Position)),
	)

	if !cmd.Position.Valid() {
		return Result{}, &FieldError{Field: "position", Err: ErrInvalidPosition}
	}
	if utf8.RuneCountInString(cmd.Statement) > models.MaxStatementLength {
		return Result{}, &FieldError{Field: "statement", Err: ErrStatementTooLong}
	}

	motion, err := s.repo.GetMotion(ctx, cmd.MotionID)
	if err != nil {
		return Result{}, err
	}
	member, err := s.repo.IsMember(ctx, motion.GroupID(), cmd.UserID)
	if err != nil {
		return Result{}, err
	}
	if !member {
		return Result{}, &FieldError{Field: "user", Err: ErrNotAMember}
	}

	var result Result
	err = s.repo.Transact(ctx, motion.ID, cmd.UserID, func(tx Tx) error {
		result = Result{}

		if err := tx.RefreshPhase(ctx, &motion); err != nil {
			return err
		}
		existing, err := tx.FindVote(ctx)
		if err != nil {
			return err
		}

		vote := models.Vote{MotionID: motion.ID, UserID: cmd.UserID}
		if existing != nil {
			vote = *existing
			previous := existing.Position
			result.PreviousPosition = &previous
		}

		changed := existing == nil || existing.Position != cmd.Position
		if changed && !s.gate.IsOpenForVoting(motion) {
			return &FieldError{Field: "position", Err: ErrVotingClosed}
		}

		vote.Position = cmd.Position
		vote.Statement = cmd.Statement
		if err := tx.SaveVote(ctx, &vote); err != nil {
			return err
		}
		vote.PreviousPosition = result.PreviousPosition

		result.Vote = vote
		result.Created = existing == nil
		result.Changed = changed
		if !changed {
			return nil
		}

		if err := tx.IncrementActivity(ctx, motion.DiscussionID); err != nil {
			return err
		}

		now := s.Now()
		evs := []events.Event{events.ForVote(events.KindNewVote, vote, motion, cmd.Announce, now)}
		if vote.Position == models.PositionBlock {
			evs = append(evs, events.ForVote(events.KindMotionBlocked, vote, motion, false, now))
		}
		if err := tx.AppendEvents(ctx, evs); err != nil {
			return err
		}
		result.Events = evs
		return nil
	})
	if err != nil {
		if IsValidation(err) {
			log.Info("vote rejected", zap.Error(err))
		} else {
			log.Error("vote submission failed", zap.Error(err))
		}
		return Result{}, err
	}

	log.Info("vote saved",
		zap.Int("vote_id", result.Vote.ID),
		zap.Bool("created", result.Created),
		zap.Bool("changed", result.Changed),
		zap.Int("events", len(result.Events)),
	)

	if len(result.Events) > 0 && s.publisher != nil {
		// the vote is committed; delivery is retried from the outbox
		if err := s.publisher.Publish(ctx, result.Events); err != nil {
			log.Warn("publishing vote events failed", zap.Error(err))
		}
	}

	return result, nil
}
