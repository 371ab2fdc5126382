package database

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/consensus/backend/internal/models"
	"github.com/emilythestrangee/consensus/backend/internal/notify"
	"github.com/emilythestrangee/consensus/backend/internal/outbox"
)

func (s *Store) ListPendingEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := s.db.WithContext(ctx).
		Where("status = ?", models.OutboxPending).
		Order("created_at asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, s.logError("list pending outbox", err)
	}
	return rows, nil
}

func (s *Store) MarkEventDispatched(ctx context.Context, id string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        models.OutboxDispatched,
			"dispatched_at": at,
			"attempts":      gorm.Expr("attempts + 1"),
		}).Error
	if err != nil {
		return s.logError("mark outbox dispatched", err, zap.String("event_id", id))
	}
	return nil
}

func (s *Store) MarkEventFailed(ctx context.Context, id string, cause string, park bool) error {
	updates := map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": cause,
	}
	if park {
		updates["status"] = models.OutboxFailed
	}
	err := s.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return s.logError("mark outbox failed", err, zap.String("event_id", id))
	}
	return nil
}

// SaveNotifications inserts in-app notifications, skipping ones already
// stored for the same event and user.
func (s *Store) SaveNotifications(ctx context.Context, notes []models.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&notes).Error
	if err != nil {
		return s.logError("save notifications", err, zap.Int("count", len(notes)))
	}
	return nil
}

// ListNotifications returns the user's newest notifications first.
func (s *Store) ListNotifications(ctx context.Context, userID, limit int) ([]models.Notification, error) {
	var notes []models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&notes).Error
	if err != nil {
		return nil, s.logError("list notifications", err, zap.Int("user_id", userID))
	}
	return notes, nil
}

var _ outbox.Repository = (*Store)(nil)
var _ notify.Inbox = (*Store)(nil)
