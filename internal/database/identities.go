package database

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/emilythestrangee/consensus/backend/internal/models"
)

// SaveIdentity upserts by (identity_type, uid). Relinking an account moves
// it to identity.UserID and refreshes its token and profile.
func (s *Store) SaveIdentity(ctx context.Context, identity *models.Identity) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "identity_type"}, {Name: "uid"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"user_id", "access_token", "email", "name", "logo", "custom_fields", "updated_at",
			}),
		}).
		Create(identity).Error
	if err != nil {
		return s.logError("save identity", err, zap.Int("user_id", identity.UserID), zap.String("identity_type", identity.IdentityType))
	}
	return nil
}

func (s *Store) ListIdentities(ctx context.Context, userID int) ([]models.Identity, error) {
	var identities []models.Identity
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&identities).Error; err != nil {
		return nil, s.logError("list identities", err, zap.Int("user_id", userID))
	}
	return identities, nil
}
