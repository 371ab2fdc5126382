package notify

import (
	"context"

	"github.com/emilythestrangee/consensus/backend/internal/events"
	"github.com/emilythestrangee/consensus/backend/internal/models"
)

// VolumeQuery selects a discussion's audience by volume preference.
type VolumeQuery interface {
	Loud(ctx context.Context, discussionID int) ([]models.User, error)
	NormalOrLoud(ctx context.Context, discussionID int) ([]models.User, error)
}

// MentionQuery selects the users a vote explicitly targets.
type MentionQuery interface {
	UsersToMention(ctx context.Context, vote models.Vote, groupID int) ([]models.User, error)
}

// VoteReader loads committed state for dispatch.
type VoteReader interface {
	GetVote(ctx context.Context, voteID int) (models.Vote, error)
	GetUser(ctx context.Context, userID int) (models.User, error)
	GetMotion(ctx context.Context, motionID int) (models.Motion, error)
}

// Resolver computes who hears about an event.
//
// Announcements go to the discussion audience chosen by volume: loud members
// get in-app notifications while normal-or-loud members are emailed, so the
// email set is not a subset of the notification set. Targeted events go to
// the mentioned users and email only the subset that opted in.
type Resolver struct {
	Volumes  VolumeQuery
	Mentions MentionQuery
	Votes    VoteReader
}

func (r Resolver) NotificationRecipients(ctx context.Context, ev events.Event) ([]models.User, error) {
	if ev.Announcement {
		users, err := r.Volumes.Loud(ctx, ev.DiscussionID)
		return unique(users), err
	}
	return r.mentioned(ctx, ev)
}

func (r Resolver) EmailRecipients(ctx context.Context, ev events.Event) ([]models.User, error) {
	var users []models.User
	var err error
	if ev.Announcement {
		users, err = r.Volumes.NormalOrLoud(ctx, ev.DiscussionID)
		users = unique(users)
	} else {
		users, err = r.mentioned(ctx, ev)
	}
	if err != nil {
		return nil, err
	}
	return emailable(users), nil
}

func (r Resolver) mentioned(ctx context.Context, ev events.Event) ([]models.User, error) {
	vote, err := r.Votes.GetVote(ctx, ev.VoteID)
	if err != nil {
		return nil, err
	}
	users, err := r.Mentions.UsersToMention(ctx, vote, ev.GroupID)
	if err != nil {
		return nil, err
	}
	return unique(users), nil
}

func emailable(users []models.User) []models.User {
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.EmailWhenMentioned {
			out = append(out, u)
		}
	}
	return out
}

func unique(users []models.User) []models.User {
	seen := make(map[int]bool, len(users))
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u)
	}
	return out
}
