package database

import (
	"context"

	"go.uber.org/zap"

	"github.com/emilythestrangee/consensus/backend/internal/models"
	"github.com/emilythestrangee/consensus/backend/internal/notify"
)

// Loud returns the users reading the discussion with loud volume.
func (s *Store) Loud(ctx context.Context, discussionID int) ([]models.User, error) {
	return s.usersByVolume(ctx, discussionID, models.VolumeLoud)
}

// NormalOrLoud returns the users reading the discussion with normal or loud volume.
func (s *Store) NormalOrLoud(ctx context.Context, discussionID int) ([]models.User, error) {
	return s.usersByVolume(ctx, discussionID, models.VolumeNormal, models.VolumeLoud)
}

func (s *Store) usersByVolume(ctx context.Context, discussionID int, volumes ...models.Volume) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN discussion_readers ON discussion_readers.user_id = users.id").
		Where("discussion_readers.discussion_id = ? AND discussion_readers.volume IN ?", discussionID, volumes).
		Order("users.id").
		Find(&users).Error
	if err != nil {
		return nil, s.logError("users by volume", err, zap.Int("discussion_id", discussionID))
	}
	return users, nil
}

// UsersToMention resolves the @usernames in the vote's statement to members
// of the group, leaving out the voter.
func (s *Store) UsersToMention(ctx context.Context, vote models.Vote, groupID int) ([]models.User, error) {
	names := vote.MentionedUsernames()
	if len(names) == 0 {
		return nil, nil
	}

	var users []models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN memberships ON memberships.user_id = users.id").
		Where("memberships.group_id = ? AND users.username IN ? AND users.id <> ?", groupID, names, vote.UserID).
		Order("users.id").
		Find(&users).Error
	if err != nil {
		return nil, s.logError("users to mention", err, zap.Int("vote_id", vote.ID))
	}
	return users, nil
}

var _ notify.VolumeQuery = (*Store)(nil)
var _ notify.MentionQuery = (*Store)(nil)
var _ notify.VoteReader = (*Store)(nil)
