package store

import (
	"context"

	"github.com/parium/parium-api/internal/models"
)

func (s *Store) CreateApplication(ctx context.Context, app *models.Application) error {
	return translate(s.db.WithContext(ctx).Create(app).Error)
}

func (s *Store) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	var app models.Application
	if err := s.db.WithContext(ctx).First(&app, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &app, nil
}

func (s *Store) ApplicationsByApplicant(ctx context.Context, applicantID string) ([]models.Application, error) {
	var out []models.Application
	err := s.db.WithContext(ctx).Where("applicant_id = ?", applicantID).Order("created_at DESC").Find(&out).Error
	return out, err
}

func (s *Store) ApplicationsByJob(ctx context.Context, jobID string) ([]models.Application, error) {
	var out []models.Application
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Order("created_at ASC").Find(&out).Error
	return out, err
}

func (s *Store) UpdateApplication(ctx context.Context, id string, updates map[string]any) error {
	res := s.db.WithContext(ctx).Model(&models.Application{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplicationStatusCounts counts an applicant's applications per status.
func (s *Store) ApplicationStatusCounts(ctx context.Context, applicantID string) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&models.Application{}).
		Select("status, count(*) as count").Where("applicant_id = ?", applicantID).
		Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

func (s *Store) CreateInterview(ctx context.Context, iv *models.Interview) error {
	return translate(s.db.WithContext(ctx).Create(iv).Error)
}

func (s *Store) InterviewsByApplication(ctx context.Context, applicationID string) ([]models.Interview, error) {
	var out []models.Interview
	err := s.db.WithContext(ctx).Where("application_id = ?", applicationID).Order("scheduled_at ASC").Find(&out).Error
	return out, err
}
