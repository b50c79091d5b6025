package store

import (
	"context"

	"github.com/parium/parium-api/internal/models"
)

func (s *Store) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) GetCompany(ctx context.Context, id string) (*models.Company, error) {
	var c models.Company
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// RewriteStoragePath points every profile and application that referenced
// oldPath at newPath. Used after moving a file between buckets.
func (s *Store) RewriteStoragePath(ctx context.Context, oldPath, newPath string) error {
	tx := s.db.WithContext(ctx)
	if err := tx.Model(&models.Profile{}).Where("cv_path = ?", oldPath).Update("cv_path", newPath).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.Profile{}).Where("avatar_path = ?", oldPath).Update("avatar_path", newPath).Error; err != nil {
		return err
	}
	return tx.Model(&models.Application{}).Where("cv_path = ?", oldPath).Update("cv_path", newPath).Error
}
