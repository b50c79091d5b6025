package store

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/parium/parium-api/internal/models"
)

func (s *Store) SavedJobIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.SavedJob{}).
		Where("user_id = ?", userID).Order("created_at ASC").Pluck("job_id", &ids).Error
	return ids, err
}

func (s *Store) SaveJob(ctx context.Context, userID, jobID string) error {
	return translate(s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.SavedJob{UserID: userID, JobID: jobID}).Error)
}

func (s *Store) UnsaveJob(ctx context.Context, userID, jobID string) error {
	return s.db.WithContext(ctx).Where("user_id = ? AND job_id = ?", userID, jobID).
		Delete(&models.SavedJob{}).Error
}

func (s *Store) SavedSearches(ctx context.Context, userID string) ([]models.SavedSearch, error) {
	var out []models.SavedSearch
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&out).Error
	return out, err
}

func (s *Store) AllSavedSearches(ctx context.Context) ([]models.SavedSearch, error) {
	var out []models.SavedSearch
	err := s.db.WithContext(ctx).Order("user_id, created_at").Find(&out).Error
	return out, err
}

func (s *Store) CreateSavedSearch(ctx context.Context, ss *models.SavedSearch) error {
	return translate(s.db.WithContext(ctx).Create(ss).Error)
}

func (s *Store) MarkSavedSearchNotified(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.SavedSearch{}).Where("id = ?", id).
		Update("last_notified_at", at).Error
}
