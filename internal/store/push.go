package store

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/parium/parium-api/internal/models"
)

func (s *Store) PushSubscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	var out []models.PushSubscription
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&out).Error
	return out, err
}

// SavePushSubscription stores sub, re-binding an existing endpoint to the new user and keys.
func (s *Store) SavePushSubscription(ctx context.Context, sub *models.PushSubscription) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth", "updated_at"}),
	}).Create(sub).Error
}

func (s *Store) DeletePushSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&models.PushSubscription{}).Error
}

func (s *Store) LogEmail(ctx context.Context, e *models.OutboundEmail) error {
	return s.db.WithContext(ctx).Create(e).Error
}
