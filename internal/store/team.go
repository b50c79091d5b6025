package store

import (
	"context"

	"github.com/parium/parium-api/internal/models"
)

func (s *Store) TeamMembers(ctx context.Context, companyID string) ([]models.TeamMember, error) {
	var out []models.TeamMember
	err := s.db.WithContext(ctx).Where("company_id = ?", companyID).Order("created_at ASC").Find(&out).Error
	return out, err
}

func (s *Store) AddTeamMember(ctx context.Context, m *models.TeamMember) error {
	return translate(s.db.WithContext(ctx).Create(m).Error)
}

func (s *Store) RemoveTeamMember(ctx context.Context, companyID, id string) error {
	res := s.db.WithContext(ctx).Where("company_id = ? AND id = ?", companyID, id).Delete(&models.TeamMember{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
