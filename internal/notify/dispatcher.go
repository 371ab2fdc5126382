// Package notify turns committed vote events into in-app notifications,
// emails and author alerts.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/emilythestrangee/consensus/backend/internal/events"
	"github.com/emilythestrangee/consensus/backend/internal/models"
)

var ErrUnknownEvent = errors.New("unknown event kind")

// Inbox stores in-app notifications. Saving a notification that already
// exists for the same (event, user) is not an error.
type Inbox interface {
	SaveNotifications(ctx context.Context, notes []models.Notification) error
}

type Dispatcher struct {
	resolver Resolver
	inbox    Inbox
	mailer   Mailer
	logger   *zap.Logger

	// Alerter is optional; when set, blocked motions also alert the author.
	Alerter         BlockAlerter
	MailConcurrency int
}

func NewDispatcher(resolver Resolver, inbox Inbox, mailer Mailer, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		resolver:        resolver,
		inbox:           inbox,
		mailer:          mailer,
		logger:          logger,
		MailConcurrency: 4,
	}
}

// Dispatch delivers ev. Wording comes from the event's own position; the
// reloaded vote only supplies the current statement for mention lookup and
// mail bodies. Every delivery is attempted; the failures are joined into
// the returned error so the caller can retry the event.
func (d *Dispatcher) Dispatch(ctx context.Context, ev events.Event) error {
	votes := d.resolver.Votes

	vote, err := votes.GetVote(ctx, ev.VoteID)
	if err != nil {
		return fmt.Errorf("load vote %d: %w", ev.VoteID, err)
	}
	motion, err := votes.GetMotion(ctx, ev.MotionID)
	if err != nil {
		return fmt.Errorf("load motion %d: %w", ev.MotionID, err)
	}
	voter, err := votes.GetUser(ctx, vote.UserID)
	if err != nil {
		return fmt.Errorf("load voter %d: %w", vote.UserID, err)
	}

	switch ev.Kind {
	case events.KindNewVote:
		return d.fanout(ctx, ev, vote, voter, motion)
	case events.KindMotionBlocked:
		return d.blocked(ctx, ev, vote, voter, motion)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
	}
}

func (d *Dispatcher) fanout(ctx context.Context, ev events.Event, vote models.Vote, voter models.User, motion models.Motion) error {
	log := d.logger.With(zap.String("event_id", ev.ID), zap.Bool("announcement", ev.Announcement))

	recipients, err := d.resolver.NotificationRecipients(ctx, ev)
	if err != nil {
		return fmt.Errorf("resolve notification recipients: %w", err)
	}

	var errs []error
	if len(recipients) > 0 {
		message := fmt.Sprintf("%s %s on %q", displayName(voter), ev.Position.Verb(), motion.Name)
		notes := make([]models.Notification, 0, len(recipients))
		for _, u := range recipients {
			notes = append(notes, notification(ev, u.ID, message))
		}
		if err := d.inbox.SaveNotifications(ctx, notes); err != nil {
			errs = append(errs, fmt.Errorf("save notifications: %w", err))
		}
	}

	emails, err := d.resolver.EmailRecipients(ctx, ev)
	if err != nil {
		errs = append(errs, fmt.Errorf("resolve email recipients: %w", err))
		return errors.Join(errs...)
	}

	kind := MailMention
	if ev.Announcement {
		kind = MailAnnouncement
	}
	if err := d.sendAll(ctx, kind, emails, ev.Position, vote, voter, motion); err != nil {
		errs = append(errs, err)
	}

	log.Info("vote event dispatched",
		zap.Int("notified", len(recipients)),
		zap.Int("emailed", len(emails)),
		zap.Int("failures", len(errs)),
	)
	return errors.Join(errs...)
}

// blocked notifies the motion's author directly; it does not go through
// recipient resolution.
func (d *Dispatcher) blocked(ctx context.Context, ev events.Event, vote models.Vote, voter models.User, motion models.Motion) error {
	author, err := d.resolver.Votes.GetUser(ctx, motion.AuthorID)
	if err != nil {
		return fmt.Errorf("load motion author %d: %w", motion.AuthorID, err)
	}

	var errs []error
	message := fmt.Sprintf("%s blocked %q", displayName(voter), motion.Name)
	if err := d.inbox.SaveNotifications(ctx, []models.Notification{notification(ev, author.ID, message)}); err != nil {
		errs = append(errs, fmt.Errorf("save block notification: %w", err))
	}
	if err := d.mailer.Send(ctx, Mail{Kind: MailMotionBlocked, To: author, Voter: voter, Position: ev.Position, Vote: vote, Motion: motion}); err != nil {
		errs = append(errs, fmt.Errorf("mail motion author %d: %w", author.ID, err))
	}
	if d.Alerter != nil {
		if err := d.Alerter.AlertBlocked(ctx, author, voter, motion); err != nil {
			errs = append(errs, fmt.Errorf("alert motion author %d: %w", author.ID, err))
		}
	}

	d.logger.Info("motion block dispatched",
		zap.String("event_id", ev.ID),
		zap.Int("motion_id", motion.ID),
		zap.Int("author_id", author.ID),
		zap.Int("failures", len(errs)),
	)
	return errors.Join(errs...)
}

func (d *Dispatcher) sendAll(ctx context.Context, kind MailKind, to []models.User, position models.Position, vote models.Vote, voter models.User, motion models.Motion) error {
	if len(to) == 0 {
		return nil
	}
	workers := d.MailConcurrency
	if workers < 1 {
		workers = 1
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(workers)
	for _, u := range to {
		p.Go(func(ctx context.Context) error {
			if err := d.mailer.Send(ctx, Mail{Kind: kind, To: u, Voter: voter, Position: position, Vote: vote, Motion: motion}); err != nil {
				return fmt.Errorf("mail user %d: %w", u.ID, err)
			}
			return nil
		})
	}
	return p.Wait()
}

func notification(ev events.Event, userID int, message string) models.Notification {
	return models.Notification{
		EventID:   ev.ID,
		UserID:    userID,
		Kind:      string(ev.Kind),
		VoteID:    ev.VoteID,
		MotionID:  ev.MotionID,
		ActorID:   ev.ActorID,
		Message:   message,
		CreatedAt: ev.OccurredAt,
	}
}
