package store

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/parium/parium-api/internal/models"
)

type JobFilter struct {
	Query          string
	County         string
	Category       string
	EmploymentType string
	Limit          int
	Offset         int
}

func (f JobFilter) apply(q *gorm.DB, now time.Time) *gorm.DB {
	q = q.Where("is_active = ?", true).Where("expires_at IS NULL OR expires_at > ?", now)
	for _, term := range strings.Fields(strings.ToLower(f.Query)) {
		like := "%" + term + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	if f.County != "" {
		q = q.Where("county = ?", f.County)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.EmploymentType != "" {
		q = q.Where("employment_type = ?", f.EmploymentType)
	}
	return q
}

func (s *Store) CreateJob(ctx context.Context, job *models.JobPosting) error {
	return translate(s.db.WithContext(ctx).Create(job).Error)
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.JobPosting, error) {
	var job models.JobPosting
	if err := s.db.WithContext(ctx).Preload("Company").First(&job, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &job, nil
}

// SearchJobs returns one page of active postings, newest first, and the total match count.
func (s *Store) SearchJobs(ctx context.Context, f JobFilter) ([]models.JobPosting, int64, error) {
	now := time.Now()
	var total int64
	if err := f.apply(s.db.WithContext(ctx).Model(&models.JobPosting{}), now).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var jobs []models.JobPosting
	err := f.apply(s.db.WithContext(ctx).Preload("Company"), now).
		Order("created_at DESC").Limit(limit).Offset(f.Offset).
		Find(&jobs).Error
	return jobs, total, err
}

func (s *Store) CountJobs(ctx context.Context, f JobFilter) (int64, error) {
	var n int64
	err := f.apply(s.db.WithContext(ctx).Model(&models.JobPosting{}), time.Now()).Count(&n).Error
	return n, err
}

// CountJobsByCategory counts active postings matching f per category. The
// category field of f itself is ignored.
func (s *Store) CountJobsByCategory(ctx context.Context, f JobFilter) (map[string]int64, error) {
	f.Category = ""
	var rows []struct {
		Category string
		Count    int64
	}
	err := f.apply(s.db.WithContext(ctx).Model(&models.JobPosting{}), time.Now()).
		Select("category, count(*) as count").Group("category").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Category] = r.Count
	}
	return out, nil
}

// JobsCreatedSince lists active postings created after since, oldest first.
func (s *Store) JobsCreatedSince(ctx context.Context, since time.Time) ([]models.JobPosting, error) {
	var jobs []models.JobPosting
	err := JobFilter{}.apply(s.db.WithContext(ctx), time.Now()).
		Where("created_at > ?", since).Order("created_at ASC").Find(&jobs).Error
	return jobs, err
}

func (s *Store) JobsByIDs(ctx context.Context, ids []string) ([]models.JobPosting, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var jobs []models.JobPosting
	err := s.db.WithContext(ctx).Preload("Company").Where("id IN ?", ids).Find(&jobs).Error
	return jobs, err
}
