package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/emilythestrangee/consensus/backend/internal/models"
	"github.com/emilythestrangee/consensus/backend/internal/notify"
	"github.com/emilythestrangee/consensus/backend/internal/outbox"
)

func (s *Store) ListPendingEvents(_ context.Context, limit int) ([]models.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.OutboxEvent
	for _, row := range s.outbox {
		if row.Status != models.OutboxPending {
			continue
		}
		out = append(out, row)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkEventDispatched(_ context.Context, id string, at time.Time) error {
	s.updateOutbox(id, func(row *models.OutboxEvent) {
		row.Status = models.OutboxDispatched
		row.Attempts++
		row.DispatchedAt = &at
	})
	return nil
}

func (s *Store) MarkEventFailed(_ context.Context, id string, cause string, park bool) error {
	s.updateOutbox(id, func(row *models.OutboxEvent) {
		row.Attempts++
		row.LastError = cause
		if park {
			row.Status = models.OutboxFailed
		}
	})
	return nil
}

func (s *Store) updateOutbox(id string, fn func(*models.OutboxEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			fn(&s.outbox[i])
			return
		}
	}
}

// Outbox returns a copy of every recorded outbox row, in insertion order.
func (s *Store) Outbox() []models.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.OutboxEvent(nil), s.outbox...)
}

// AppendOutbox inserts a raw row, bypassing Transact.
func (s *Store) AppendOutbox(row models.OutboxEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(s.outbox, row)
}

func (s *Store) SaveNotifications(_ context.Context, notes []models.Notification) error {
	if s.NotifyErr != nil {
		return s.NotifyErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range notes {
		key := noteKey{n.EventID, n.UserID}
		if s.noteIndex[key] {
			continue
		}
		s.noteIndex[key] = true
		n.ID = s.nextID()
		s.notes = append(s.notes, n)
	}
	return nil
}

func (s *Store) ListNotifications(_ context.Context, userID, limit int) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Notification
	for _, n := range s.notes {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SaveIdentity(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.identities {
		if existing.IdentityType == identity.IdentityType && existing.UID == identity.UID {
			identity.ID = existing.ID
			s.identities[i] = *identity
			return nil
		}
	}
	identity.ID = s.nextID()
	s.identities = append(s.identities, *identity)
	return nil
}

func (s *Store) ListIdentities(_ context.Context, userID int) ([]models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Identity
	for _, identity := range s.identities {
		if identity.UserID == userID {
			out = append(out, identity)
		}
	}
	return out, nil
}

var _ outbox.Repository = (*Store)(nil)
var _ notify.Inbox = (*Store)(nil)
var _ notify.VolumeQuery = (*Store)(nil)
var _ notify.MentionQuery = (*Store)(nil)
var _ notify.VoteReader = (*Store)(nil)
