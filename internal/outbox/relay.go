// Package outbox delivers recorded vote events after their transaction has
// committed. Delivery is at-least-once: an event stays pending until its
// dispatch succeeds or it runs out of attempts.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/emilythestrangee/consensus/backend/internal/events"
	"github.com/emilythestrangee/consensus/backend/internal/models"
	"github.com/emilythestrangee/consensus/backend/internal/notify"
)

type Repository interface {
	// ListPendingEvents returns up to limit pending rows, oldest first.
	ListPendingEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkEventDispatched(ctx context.Context, id string, at time.Time) error
	// MarkEventFailed records a failed attempt; park moves the row out of
	// the pending set for good.
	MarkEventFailed(ctx context.Context, id string, cause string, park bool) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ev events.Event) error
}

type Relay struct {
	repo       Repository
	dispatcher Dispatcher
	logger     *zap.Logger
	wake       chan struct{}

	BatchSize    int
	MaxAttempts  int
	PollInterval time.Duration
	// MaxRetries bounds the in-cycle retries of one event.
	MaxRetries uint64
	NewBackOff func() backoff.BackOff
	Now        func() time.Time
}

func NewRelay(repo Repository, dispatcher Dispatcher, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		repo:         repo,
		dispatcher:   dispatcher,
		logger:       logger,
		wake:         make(chan struct{}, 1),
		BatchSize:    100,
		MaxAttempts:  10,
		PollInterval: 5 * time.Second,
		MaxRetries:   2,
		NewBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(200*time.Millisecond),
				backoff.WithMaxInterval(2*time.Second),
				backoff.WithMaxElapsedTime(10*time.Second),
			)
		},
		Now: time.Now,
	}
}

// Publish wakes the relay. The events are already in the outbox, so it
// never fails.
func (r *Relay) Publish(_ context.Context, _ []events.Event) error {
	r.Wake()
	return nil
}

// Wake schedules a cycle without blocking.
func (r *Relay) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run processes the outbox until ctx is done, on every wake-up and at least
// once per PollInterval.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("outbox cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

// RunOnce dispatches one batch of pending events and returns how many were
// delivered. A failing event does not stop the batch.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	rows, err := r.repo.ListPendingEvents(ctx, r.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	dispatched := 0
	var errs []error
	for _, row := range rows {
		log := r.logger.With(zap.String("event_id", row.ID), zap.String("kind", row.Kind))

		err := r.dispatch(ctx, row)
		if err == nil {
			if err := r.repo.MarkEventDispatched(ctx, row.ID, r.Now().UTC()); err != nil {
				errs = append(errs, err)
				continue
			}
			dispatched++
			continue
		}
		if ctx.Err() != nil {
			return dispatched, ctx.Err()
		}

		var permanent *backoff.PermanentError
		park := errors.As(err, &permanent) || errors.Is(err, notify.ErrUnknownEvent) ||
			row.Attempts+1 >= r.MaxAttempts
		log.Warn("outbox event dispatch failed",
			zap.Int("attempts", row.Attempts+1),
			zap.Bool("parked", park),
			zap.Error(err),
		)
		if err := r.repo.MarkEventFailed(ctx, row.ID, err.Error(), park); err != nil {
			errs = append(errs, err)
		}
	}

	r.logger.Debug("outbox cycle completed",
		zap.Int("pending", len(rows)),
		zap.Int("dispatched", dispatched),
	)
	return dispatched, errors.Join(errs...)
}

func (r *Relay) dispatch(ctx context.Context, row models.OutboxEvent) error {
	ev, err := events.FromOutbox(row)
	if err != nil {
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(r.NewBackOff(), r.MaxRetries), ctx)
	return backoff.Retry(func() error {
		err := r.dispatcher.Dispatch(ctx, ev)
		if errors.Is(err, notify.ErrUnknownEvent) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
