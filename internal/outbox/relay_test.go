package outbox_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/consensus/backend/internal/events"
	"github.com/emilythestrangee/consensus/backend/internal/memstore"
	"github.com/emilythestrangee/consensus/backend/internal/models"
	"github.com/emilythestrangee/consensus/backend/internal/notify"
	"github.com/emilythestrangee/consensus/backend/internal/outbox"
)

type flakyDispatcher struct {
	mu        sync.Mutex
	failures  map[string]int
	permanent map[string]bool
	calls     map[string]int
	delivered []string
}

func newFlakyDispatcher() *flakyDispatcher {
	return &flakyDispatcher{
		failures:  make(map[string]int),
		permanent: make(map[string]bool),
		calls:     make(map[string]int),
	}
}

func (d *flakyDispatcher) Dispatch(_ context.Context, ev events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[ev.ID]++
	if d.permanent[ev.ID] {
		return fmt.Errorf("%w: %q", notify.ErrUnknownEvent, ev.Kind)
	}
	if d.failures[ev.ID] > 0 {
		d.failures[ev.ID]--
		return errors.New("mail relay unavailable")
	}
	d.delivered = append(d.delivered, ev.ID)
	return nil
}

func newRelay(store *memstore.Store, d outbox.Dispatcher) *outbox.Relay {
	r := outbox.NewRelay(store, d, nil)
	r.NewBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	r.MaxRetries = 0
	r.MaxAttempts = 3
	return r
}

func pending(t *testing.T, store *memstore.Store, id string) {
	t.Helper()
	row, err := events.Event{ID: id, Kind: events.KindNewVote, VoteID: 1, OccurredAt: time.Now()}.ToOutbox()
	require.NoError(t, err)
	store.AppendOutbox(row)
}

func status(store *memstore.Store, id string) models.OutboxEvent {
	for _, row := range store.Outbox() {
		if row.ID == id {
			return row
		}
	}
	return models.OutboxEvent{}
}

func TestRunOnceDeliversPending(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	d := newFlakyDispatcher()
	pending(t, store, "a")
	pending(t, store, "b")

	n, err := newRelay(store, d).RunOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, d.delivered)
	assert.Equal(t, models.OutboxDispatched, status(store, "a").Status)
	assert.NotNil(t, status(store, "a").DispatchedAt)

	// nothing left to do
	n, err = newRelay(store, d).RunOnce(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunOnceContinuesPastFailure(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	d := newFlakyDispatcher()
	d.failures["a"] = 1
	pending(t, store, "a")
	pending(t, store, "b")
	r := newRelay(store, d)

	n, err := r.RunOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"b"}, d.delivered)

	a := status(store, "a")
	assert.Equal(t, models.OutboxPending, a.Status)
	assert.Equal(t, 1, a.Attempts)
	assert.Equal(t, "mail relay unavailable", a.LastError)

	n, err = r.RunOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.OutboxDispatched, status(store, "a").Status)
}

func TestRetriesWithinCycle(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	d := newFlakyDispatcher()
	d.failures["a"] = 2
	pending(t, store, "a")
	r := newRelay(store, d)
	r.MaxRetries = 2

	n, err := r.RunOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, d.calls["a"])
}

func TestParksAfterMaxAttempts(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	d := newFlakyDispatcher()
	d.failures["a"] = 100
	pending(t, store, "a")
	r := newRelay(store, d)

	for range 5 {
		_, err := r.RunOnce(t.Context())
		require.NoError(t, err)
	}

	a := status(store, "a")
	assert.Equal(t, models.OutboxFailed, a.Status)
	assert.Equal(t, 3, a.Attempts)
	assert.Equal(t, 3, d.calls["a"])
}

func TestParksUnknownEventImmediately(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	d := newFlakyDispatcher()
	d.permanent["a"] = true
	pending(t, store, "a")
	r := newRelay(store, d)
	r.MaxRetries = 5

	_, err := r.RunOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, models.OutboxFailed, status(store, "a").Status)
	assert.Equal(t, 1, d.calls["a"])
}

func TestParksUndecodablePayload(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	d := newFlakyDispatcher()
	store.AppendOutbox(models.OutboxEvent{ID: "bad", Kind: "new_vote", Payload: []byte("{"), Status: models.OutboxPending})

	_, err := newRelay(store, d).RunOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, models.OutboxFailed, status(store, "bad").Status)
	assert.Empty(t, d.calls)
}

func TestRunWakesOnPublish(t *testing.T) {
	t.Parallel()
	store := memstore.New()
	d := newFlakyDispatcher()
	r := newRelay(store, d)
	r.PollInterval = time.Hour

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	pending(t, store, "a")
	require.NoError(t, r.Publish(ctx, nil))

	assert.Eventually(t, func() bool {
		return status(store, "a").Status == models.OutboxDispatched
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
