package database_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/emilythestrangee/consensus/backend/internal/config"
	"github.com/emilythestrangee/consensus/backend/internal/database"
	"github.com/emilythestrangee/consensus/backend/internal/events"
	"github.com/emilythestrangee/consensus/backend/internal/models"
	"github.com/emilythestrangee/consensus/backend/internal/notify"
	"github.com/emilythestrangee/consensus/backend/internal/outbox"
	"github.com/emilythestrangee/consensus/backend/internal/voting"
)

func startPostgres(t *testing.T) (database.Service, config.DBConfig) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("consensus_test"),
		tcpostgres.WithUsername("consensus"),
		tcpostgres.WithPassword("consensus"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := config.DBConfig{
		Host:         host,
		Port:         port.Int(),
		User:         "consensus",
		Password:     "consensus",
		Name:         "consensus_test",
		SSLMode:      "disable",
		MaxIdleConns: 5,
		MaxOpenConns: 20,
	}
	svc, err := database.New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, cfg
}

type seeded struct {
	author, voter, alice models.User
	group                models.Group
	discussion           models.Discussion
	motion               models.Motion
}

func seed(t *testing.T, db *gorm.DB) seeded {
	t.Helper()
	var s seeded
	s.author = models.User{Username: "author", Email: "author@example.com"}
	s.voter = models.User{Username: "voter", Email: "voter@example.com"}
	s.alice = models.User{Username: "alice", Email: "alice@example.com"}
	for _, u := range []*models.User{&s.author, &s.voter, &s.alice} {
		require.NoError(t, db.Create(u).Error)
	}

	s.group = models.Group{Name: "council"}
	require.NoError(t, db.Create(&s.group).Error)
	for _, u := range []models.User{s.author, s.voter, s.alice} {
		require.NoError(t, db.Create(&models.Membership{GroupID: s.group.ID, UserID: u.ID}).Error)
	}

	s.discussion = models.Discussion{GroupID: s.group.ID, AuthorID: s.author.ID, Title: "Budget", Activity: 2}
	require.NoError(t, db.Create(&s.discussion).Error)
	require.NoError(t, db.Create(&models.DiscussionReader{DiscussionID: s.discussion.ID, UserID: s.alice.ID, Volume: models.VolumeLoud}).Error)

	s.motion = models.Motion{DiscussionID: s.discussion.ID, AuthorID: s.author.ID, Name: "Adopt the budget"}
	require.NoError(t, db.Create(&s.motion).Error)
	return s
}

func activity(t *testing.T, db *gorm.DB, discussionID int) int {
	t.Helper()
	var d models.Discussion
	require.NoError(t, db.First(&d, discussionID).Error)
	return d.Activity
}

func TestPostgresStore(t *testing.T) {
	svc, _ := startPostgres(t)
	db := svc.GetDB()
	s := seed(t, db)
	store := database.NewStore(db, zaptest.NewLogger(t))
	service := voting.NewService(store, nil, nil, nil)
	ctx := t.Context()

	assert.Equal(t, "up", svc.Health()["status"])

	t.Run("vote lifecycle", func(t *testing.T) {
		submit := func(p models.Position, statement string) voting.Result {
			res, err := service.Submit(ctx, voting.SubmitVote{MotionID: s.motion.ID, UserID: s.voter.ID, Position: p, Statement: statement})
			require.NoError(t, err)
			return res
		}

		first := submit(models.PositionYes, "@alice have a look")
		assert.True(t, first.Created)
		assert.Equal(t, 3, activity(t, db, s.discussion.ID))

		second := submit(models.PositionBlock, "")
		require.NotNil(t, second.PreviousPosition)
		assert.Equal(t, models.PositionYes, *second.PreviousPosition)
		assert.Len(t, second.Events, 2)
		assert.Equal(t, 4, activity(t, db, s.discussion.ID))

		submit(models.PositionBlock, "")
		assert.Equal(t, 4, activity(t, db, s.discussion.ID))

		votes, err := store.ListVotes(ctx, s.motion.ID)
		require.NoError(t, err)
		require.Len(t, votes, 1)
		assert.Equal(t, "voter", votes[0].User.Username)

		pending, err := store.ListPendingEvents(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, pending, 3)
	})

	t.Run("concurrent submissions", func(t *testing.T) {
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := service.Submit(ctx, voting.SubmitVote{MotionID: s.motion.ID, UserID: s.alice.ID, Position: models.PositionAbstain})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		var count int64
		require.NoError(t, db.Model(&models.Vote{}).Where("motion_id = ? AND user_id = ?", s.motion.ID, s.alice.ID).Count(&count).Error)
		assert.EqualValues(t, 1, count)
		assert.Equal(t, 5, activity(t, db, s.discussion.ID))
	})

	t.Run("non member and closed motion", func(t *testing.T) {
		outsider := models.User{Username: "outsider", Email: "outsider@example.com"}
		require.NoError(t, db.Create(&outsider).Error)
		_, err := service.Submit(ctx, voting.SubmitVote{MotionID: s.motion.ID, UserID: outsider.ID, Position: models.PositionYes})
		assert.ErrorIs(t, err, voting.ErrNotAMember)

		_, err = service.Submit(ctx, voting.SubmitVote{MotionID: 999999, UserID: s.voter.ID, Position: models.PositionYes})
		assert.ErrorIs(t, err, voting.ErrMotionNotFound)

		closed := models.Motion{DiscussionID: s.discussion.ID, AuthorID: s.author.ID, Name: "Closed", Phase: models.PhaseClosed}
		require.NoError(t, db.Create(&closed).Error)
		_, err = service.Submit(ctx, voting.SubmitVote{MotionID: closed.ID, UserID: s.voter.ID, Position: models.PositionYes})
		assert.ErrorIs(t, err, voting.ErrVotingClosed)
	})

	t.Run("recipients", func(t *testing.T) {
		loud, err := store.Loud(ctx, s.discussion.ID)
		require.NoError(t, err)
		require.Len(t, loud, 1)
		assert.Equal(t, s.alice.ID, loud[0].ID)

		mentioned, err := store.UsersToMention(ctx, models.Vote{UserID: s.voter.ID, Statement: "@alice @voter @ghost"}, s.group.ID)
		require.NoError(t, err)
		require.Len(t, mentioned, 1)
		assert.Equal(t, s.alice.ID, mentioned[0].ID)
	})

	t.Run("relay drains outbox", func(t *testing.T) {
		dispatcher := notify.NewDispatcher(notify.Resolver{Volumes: store, Mentions: store, Votes: store}, store, notify.LogMailer{Logger: zaptest.NewLogger(t)}, nil)
		relay := outbox.NewRelay(store, dispatcher, zaptest.NewLogger(t))

		n, err := relay.RunOnce(ctx)
		require.NoError(t, err)
		assert.Positive(t, n)

		pending, err := store.ListPendingEvents(ctx, 100)
		require.NoError(t, err)
		assert.Empty(t, pending)

		notes, err := store.ListNotifications(ctx, s.author.ID, 10)
		require.NoError(t, err)
		require.NotEmpty(t, notes)
		assert.Equal(t, string(events.KindMotionBlocked), notes[0].Kind)
	})

	t.Run("identities upsert", func(t *testing.T) {
		linked := models.Identity{UserID: s.voter.ID, IdentityType: "google", UID: "g-1", AccessToken: "t1", CustomFields: map[string]string{"hosted_domain": "example.com"}}
		require.NoError(t, store.SaveIdentity(ctx, &linked))

		relinked := models.Identity{UserID: s.alice.ID, IdentityType: "google", UID: "g-1", AccessToken: "t2"}
		require.NoError(t, store.SaveIdentity(ctx, &relinked))

		voterIDs, err := store.ListIdentities(ctx, s.voter.ID)
		require.NoError(t, err)
		assert.Empty(t, voterIDs)

		aliceIDs, err := store.ListIdentities(ctx, s.alice.ID)
		require.NoError(t, err)
		require.Len(t, aliceIDs, 1)
		assert.Equal(t, "t2", aliceIDs[0].AccessToken)
	})
}

func TestListenerWakesRelay(t *testing.T) {
	svc, cfg := startPostgres(t)
	db := svc.GetDB()
	s := seed(t, db)
	store := database.NewStore(db, nil)

	delivered := make(chan string, 64)
	relay := outbox.NewRelay(store, dispatchFunc(func(_ context.Context, ev events.Event) error {
		delivered <- ev.ID
		return nil
	}), nil)
	relay.PollInterval = time.Hour

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = outbox.Listen(ctx, database.DSN(cfg), relay, nil) }()
	go func() { _ = relay.Run(ctx) }()
	time.Sleep(200 * time.Millisecond)

	// no publisher: only NOTIFY can wake the relay. Keep changing position
	// until one notification lands after the listener subscribed.
	service := voting.NewService(store, nil, nil, nil)
	positions := []models.Position{models.PositionYes, models.PositionNo}
	i := 0
	require.Eventually(t, func() bool {
		p := positions[i%2]
		i++
		if _, err := service.Submit(ctx, voting.SubmitVote{MotionID: s.motion.ID, UserID: s.voter.ID, Position: p}); err != nil {
			return false
		}
		select {
		case <-delivered:
			return true
		case <-time.After(500 * time.Millisecond):
			return false
		}
	}, 20*time.Second, time.Second)
}

type dispatchFunc func(context.Context, events.Event) error

func (f dispatchFunc) Dispatch(ctx context.Context, ev events.Event) error { return f(ctx, ev) }
