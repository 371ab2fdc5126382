// Package memstore is an in-memory implementation of the storage ports,
// used by tests and local runs without Postgres.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/emilythestrangee/consensus/backend/internal/events"
	"github.com/emilythestrangee/consensus/backend/internal/models"
	"github.com/emilythestrangee/consensus/backend/internal/voting"
)

var (
	ErrVoteNotFound = errors.New("vote not found")
	ErrUserNotFound = errors.New("user not found")
)

type readerKey struct{ discussionID, userID int }
type voteKey struct{ motionID, userID int }
type noteKey struct {
	eventID string
	userID  int
}

type Store struct {
	txMu sync.Mutex // serializes Transact
	mu   sync.RWMutex

	users       map[int]models.User
	groups      map[int]models.Group
	members     map[int]map[int]bool
	discussions map[int]models.Discussion
	readers     map[readerKey]models.Volume
	motions     map[int]models.Motion
	votes       map[int]models.Vote
	voteIndex   map[voteKey]int
	outbox      []models.OutboxEvent
	notes       []models.Notification
	noteIndex   map[noteKey]bool
	identities  []models.Identity
	lastID      int

	// SaveErr, when set, fails every SaveVote inside Transact.
	SaveErr error
	// NotifyErr, when set, fails SaveNotifications.
	NotifyErr error
}

func New() *Store {
	return &Store{
		users:       make(map[int]models.User),
		groups:      make(map[int]models.Group),
		members:     make(map[int]map[int]bool),
		discussions: make(map[int]models.Discussion),
		readers:     make(map[readerKey]models.Volume),
		motions:     make(map[int]models.Motion),
		votes:       make(map[int]models.Vote),
		voteIndex:   make(map[voteKey]int),
		noteIndex:   make(map[noteKey]bool),
	}
}

func (s *Store) nextID() int {
	s.lastID++
	return s.lastID
}

// AddUser stores u, assigning an id when it has none.
func (s *Store) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.nextID()
	}
	s.users[u.ID] = u
	return u
}

func (s *Store) AddGroup(name string, memberIDs ...int) models.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := models.Group{ID: s.nextID(), Name: name}
	s.groups[g.ID] = g
	s.members[g.ID] = make(map[int]bool)
	for _, id := range memberIDs {
		s.members[g.ID][id] = true
	}
	return g
}

func (s *Store) AddMember(groupID, userID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[groupID] == nil {
		s.members[groupID] = make(map[int]bool)
	}
	s.members[groupID][userID] = true
}

func (s *Store) AddDiscussion(d models.Discussion) models.Discussion {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == 0 {
		d.ID = s.nextID()
	}
	s.discussions[d.ID] = d
	return d
}

// Discussion returns the current state of a discussion.
func (s *Store) Discussion(id int) models.Discussion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.discussions[id]
}

func (s *Store) SetVolume(discussionID, userID int, v models.Volume) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers[readerKey{discussionID, userID}] = v
}

func (s *Store) AddMotion(m models.Motion) models.Motion {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		m.ID = s.nextID()
	}
	if m.Phase == "" {
		m.Phase = models.PhaseVoting
	}
	s.motions[m.ID] = m
	return m
}

// CloseVoting moves a motion out of its voting phase.
func (s *Store) CloseVoting(motionID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.motions[motionID]
	now := time.Now().UTC()
	m.Phase = models.PhaseClosed
	m.ClosedAt = &now
	s.motions[motionID] = m
}

func (s *Store) GetMotion(_ context.Context, motionID int) (models.Motion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.motions[motionID]
	if !ok {
		return models.Motion{}, voting.ErrMotionNotFound
	}
	m.Discussion = s.discussions[m.DiscussionID]
	return m, nil
}

func (s *Store) IsMember(_ context.Context, groupID, userID int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[groupID][userID], nil
}

func (s *Store) GetVote(_ context.Context, voteID int) (models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.votes[voteID]
	if !ok {
		return models.Vote{}, ErrVoteNotFound
	}
	return v, nil
}

func (s *Store) ListVotes(_ context.Context, motionID int) ([]models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Vote
	for _, v := range s.votes {
		if v.MotionID == motionID {
			v.User = s.users[v.UserID]
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetUser(_ context.Context, userID int) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return u, nil
}

// Transact runs fn against a buffered transaction that is applied only when
// fn succeeds.
func (s *Store) Transact(ctx context.Context, motionID, userID int, fn func(voting.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{store: s, motionID: motionID, userID: userID, activity: make(map[int]int)}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *Store) Loud(_ context.Context, discussionID int) ([]models.User, error) {
	return s.usersByVolume(discussionID, models.VolumeLoud), nil
}

func (s *Store) NormalOrLoud(_ context.Context, discussionID int) ([]models.User, error) {
	return s.usersByVolume(discussionID, models.VolumeNormal, models.VolumeLoud), nil
}

func (s *Store) usersByVolume(discussionID int, volumes ...models.Volume) []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.User
	for key, v := range s.readers {
		if key.discussionID != discussionID {
			continue
		}
		for _, want := range volumes {
			if v == want {
				out = append(out, s.users[key.userID])
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) UsersToMention(_ context.Context, vote models.Vote, groupID int) ([]models.User, error) {
	names := vote.MentionedUsernames()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.User
	for _, name := range names {
		for _, u := range s.users {
			if u.Username == name && u.ID != vote.UserID && s.members[groupID][u.ID] {
				out = append(out, u)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memTx struct {
	store    *Store
	motionID int
	userID   int

	vote     *models.Vote
	activity map[int]int
	events   []models.OutboxEvent
}

func (t *memTx) RefreshPhase(_ context.Context, motion *models.Motion) error {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	current, ok := t.store.motions[t.motionID]
	if !ok {
		return voting.ErrMotionNotFound
	}
	motion.Phase = current.Phase
	motion.ClosedAt = current.ClosedAt
	return nil
}

func (t *memTx) FindVote(_ context.Context) (*models.Vote, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	id, ok := t.store.voteIndex[voteKey{t.motionID, t.userID}]
	if !ok {
		return nil, nil
	}
	v := t.store.votes[id]
	return &v, nil
}

func (t *memTx) SaveVote(_ context.Context, vote *models.Vote) error {
	if t.store.SaveErr != nil {
		return t.store.SaveErr
	}
	now := time.Now().UTC()
	if vote.ID == 0 {
		t.store.mu.Lock()
		vote.ID = t.store.nextID()
		t.store.mu.Unlock()
		vote.CreatedAt = now
	}
	vote.UpdatedAt = now
	saved := *vote
	saved.User = models.User{}
	saved.PreviousPosition = nil
	t.vote = &saved
	return nil
}

func (t *memTx) IncrementActivity(_ context.Context, discussionID int) error {
	t.activity[discussionID]++
	return nil
}

func (t *memTx) AppendEvents(_ context.Context, evs []events.Event) error {
	for _, ev := range evs {
		row, err := ev.ToOutbox()
		if err != nil {
			return err
		}
		t.events = append(t.events, row)
	}
	return nil
}

func (t *memTx) commit() error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.vote != nil {
		s.votes[t.vote.ID] = *t.vote
		s.voteIndex[voteKey{t.vote.MotionID, t.vote.UserID}] = t.vote.ID
	}
	for id, n := range t.activity {
		d := s.discussions[id]
		d.Activity += n
		s.discussions[id] = d
	}
	s.outbox = append(s.outbox, t.events...)
	return nil
}

var _ voting.Repository = (*Store)(nil)
var _ voting.Tx = (*memTx)(nil)
