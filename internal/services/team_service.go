package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/parium/parium-api/internal/cache"
	"github.com/parium/parium-api/internal/dtos"
	"github.com/parium/parium-api/internal/models"
)

// TeamService manages the recruiters of a company. The member list is cached
// per company and shared by every member of it.
type TeamService struct {
	repo    TeamRepository
	mailer  Mailer
	members *cache.Cache[[]models.TeamMember]
	log     logrus.FieldLogger
}

func NewTeamService(repo TeamRepository, mailer Mailer, cc CacheConfig, log logrus.FieldLogger) *TeamService {
	return &TeamService{
		repo:    repo,
		mailer:  mailer,
		members: cache.New[[]models.TeamMember]("team", cc.Backend, cc.Options),
		log:     log,
	}
}

func (s *TeamService) company(ctx context.Context, caller Caller) (string, *models.Profile, error) {
	p, err := s.repo.GetProfile(ctx, caller.UserID)
	if err != nil {
		return "", nil, fromStore(err)
	}
	if p.Role != models.RoleEmployer || p.CompanyID == nil {
		return "", nil, fmt.Errorf("%w: no company", ErrForbidden)
	}
	return *p.CompanyID, p, nil
}

// requireOwner lets through owners of the company. A company without any
// owner yet is managed by its employer profiles, so the first one can set
// the team up.
func (s *TeamService) requireOwner(ctx context.Context, companyID, userID string) error {
	members, err := s.repo.TeamMembers(ctx, companyID)
	if err != nil {
		return err
	}
	hasOwner := false
	for _, m := range members {
		if m.Role != models.TeamOwner {
			continue
		}
		if m.UserID == userID {
			return nil
		}
		hasOwner = true
	}
	if hasOwner {
		return fmt.Errorf("%w: only team owners can manage the team", ErrForbidden)
	}
	return nil
}

func (s *TeamService) fetch(companyID string) cache.FetchFunc[[]models.TeamMember] {
	return func(ctx context.Context) ([]models.TeamMember, error) {
		return s.repo.TeamMembers(ctx, companyID)
	}
}

func (s *TeamService) List(ctx context.Context, caller Caller) (cache.Result[[]models.TeamMember], error) {
	companyID, _, err := s.company(ctx, caller)
	if err != nil {
		return cache.Result[[]models.TeamMember]{}, err
	}
	return s.members.Load(ctx, companyID, companyID, s.fetch(companyID))
}

func (s *TeamService) Add(ctx context.Context, caller Caller, req *dtos.TeamInviteRequest) (*models.TeamMember, error) {
	companyID, inviter, err := s.company(ctx, caller)
	if err != nil {
		return nil, err
	}
	if err := s.requireOwner(ctx, companyID, caller.UserID); err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = models.TeamRecruiter
	}
	m := &models.TeamMember{
		CompanyID:    companyID,
		Role:         role,
		InvitedEmail: strings.ToLower(strings.TrimSpace(req.Email)),
	}
	if err := s.repo.AddTeamMember(ctx, m); err != nil {
		return nil, fromStore(err)
	}
	s.InvalidateCompany(ctx, companyID)

	if s.mailer != nil {
		if err := s.mailer.Send(ctx, Email{
			To:       m.InvitedEmail,
			Subject:  inviter.FullName + " har bjudit in dig till Parium",
			Template: TemplateTeamInvite,
			Data:     map[string]any{"Inviter": inviter.FullName, "Role": role},
		}); err != nil {
			s.log.WithError(err).WithField("email", m.InvitedEmail).Warn("send team invite")
		}
	}
	return m, nil
}

// Remove drops a member optimistically: the cached list loses the member
// first and gets it back if the delete fails.
func (s *TeamService) Remove(ctx context.Context, caller Caller, memberID string) error {
	companyID, _, err := s.company(ctx, caller)
	if err != nil {
		return err
	}
	if err := s.requireOwner(ctx, companyID, caller.UserID); err != nil {
		return err
	}
	if _, ok := s.members.Peek(ctx, companyID, companyID); !ok {
		if _, err := s.members.Refresh(ctx, companyID, companyID, s.fetch(companyID)); err != nil {
			return err
		}
	}
	_, err = s.members.Mutate(ctx, companyID, companyID,
		func(cur []models.TeamMember, _ bool) ([]models.TeamMember, error) {
			next := make([]models.TeamMember, 0, len(cur))
			for _, m := range cur {
				if m.ID != memberID {
					next = append(next, m)
				}
			}
			return next, nil
		},
		func(ctx context.Context, _ []models.TeamMember) error {
			return fromStore(s.repo.RemoveTeamMember(ctx, companyID, memberID))
		},
	)
	return err
}

// InvalidateCompany drops the cached member list, e.g. after a realtime change.
func (s *TeamService) InvalidateCompany(ctx context.Context, companyID string) {
	if err := s.members.Invalidate(ctx, companyID); err != nil {
		s.log.WithError(err).WithField("company_id", companyID).Warn("invalidate team cache")
	}
}
