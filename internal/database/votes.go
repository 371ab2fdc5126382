package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/consensus/backend/internal/events"
	"github.com/emilythestrangee/consensus/backend/internal/models"
	"github.com/emilythestrangee/consensus/backend/internal/outbox"
	"github.com/emilythestrangee/consensus/backend/internal/voting"
)

var (
	ErrVoteNotFound = errors.New("vote not found")
	ErrUserNotFound = errors.New("user not found")
	ErrConflict     = errors.New("conflicting write")
)

// Store is the Postgres implementation of the voting, notify and outbox
// ports.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) GetMotion(ctx context.Context, motionID int) (models.Motion, error) {
	var motion models.Motion
	err := s.db.WithContext(ctx).Preload("Discussion").First(&motion, motionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Motion{}, voting.ErrMotionNotFound
		}
		return models.Motion{}, s.logError("get motion", err, zap.Int("motion_id", motionID))
	}
	return motion, nil
}

func (s *Store) IsMember(ctx context.Context, groupID, userID int) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Membership{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	if err != nil {
		return false, s.logError("check membership", err, zap.Int("group_id", groupID), zap.Int("user_id", userID))
	}
	return count > 0, nil
}

// Transact holds a transaction-scoped advisory lock on (motion, user) so
// concurrent submissions by the same member run one after the other. The
// unique index on votes(motion_id, user_id) backs this up.
func (s *Store) Transact(ctx context.Context, motionID, userID int, fn func(voting.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?::int, ?::int)", motionID, userID).Error; err != nil {
			return err
		}
		return fn(&voteTx{db: tx, motionID: motionID, userID: userID})
	})
}

func (s *Store) GetVote(ctx context.Context, voteID int) (models.Vote, error) {
	var vote models.Vote
	err := s.db.WithContext(ctx).First(&vote, voteID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Vote{}, ErrVoteNotFound
		}
		return models.Vote{}, s.logError("get vote", err, zap.Int("vote_id", voteID))
	}
	return vote, nil
}

// ListVotes returns the motion's votes with their voters, oldest first.
func (s *Store) ListVotes(ctx context.Context, motionID int) ([]models.Vote, error) {
	var votes []models.Vote
	err := s.db.WithContext(ctx).Preload("User").
		Where("motion_id = ?", motionID).
		Order("created_at asc").
		Find(&votes).Error
	if err != nil {
		return nil, s.logError("list votes", err, zap.Int("motion_id", motionID))
	}
	return votes, nil
}

func (s *Store) GetUser(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, s.logError("get user", err, zap.Int("user_id", userID))
	}
	return user, nil
}

func (s *Store) logError(op string, err error, fields ...zap.Field) error {
	s.logger.Error("store operation failed", append(fields, zap.String("op", op), zap.Error(err))...)
	return err
}

type voteTx struct {
	db       *gorm.DB
	motionID int
	userID   int
}

func (t *voteTx) RefreshPhase(ctx context.Context, motion *models.Motion) error {
	var current models.Motion
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Select("id", "phase", "closed_at").
		First(&current, t.motionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return voting.ErrMotionNotFound
		}
		return err
	}
	motion.Phase = current.Phase
	motion.ClosedAt = current.ClosedAt
	return nil
}

func (t *voteTx) FindVote(ctx context.Context) (*models.Vote, error) {
	var vote models.Vote
	err := t.db.WithContext(ctx).
		Where("motion_id = ? AND user_id = ?", t.motionID, t.userID).
		First(&vote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &vote, nil
}

func (t *voteTx) SaveVote(ctx context.Context, vote *models.Vote) error {
	err := t.db.WithContext(ctx).Omit(clause.Associations).Save(vote).Error
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (t *voteTx) IncrementActivity(ctx context.Context, discussionID int) error {
	return t.db.WithContext(ctx).Model(&models.Discussion{}).
		Where("id = ?", discussionID).
		UpdateColumn("activity", gorm.Expr("activity + ?", 1)).Error
}

// AppendEvents inserts outbox rows and signals the listener; Postgres holds
// the notification back until commit.
func (t *voteTx) AppendEvents(ctx context.Context, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	rows := make([]models.OutboxEvent, 0, len(evs))
	for _, ev := range evs {
		row, err := ev.ToOutbox()
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := t.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return err
	}
	return t.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", outbox.Channel, rows[0].ID).Error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ voting.Repository = (*Store)(nil)
var _ voting.Tx = (*voteTx)(nil)
