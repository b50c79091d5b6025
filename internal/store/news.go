package store

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/parium/parium-api/internal/models"
)

// UpsertNews inserts items whose link is new and returns how many were added.
func (s *Store) UpsertNews(ctx context.Context, items []models.HRNewsItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "link"}},
		DoNothing: true,
	}).Create(&items)
	return res.RowsAffected, res.Error
}

func (s *Store) LatestNews(ctx context.Context, limit int) ([]models.HRNewsItem, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []models.HRNewsItem
	err := s.db.WithContext(ctx).Order("published_at DESC").Limit(limit).Find(&out).Error
	return out, err
}
