package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/parium/parium-api/internal/cache"
	"github.com/parium/parium-api/internal/dtos"
	"github.com/parium/parium-api/internal/location"
	"github.com/parium/parium-api/internal/models"
	"github.com/parium/parium-api/internal/store"
)

// Locator resolves a postal code to its city and county.
type Locator interface {
	Resolve(ctx context.Context, code string) (location.Location, error)
}

// JobPage is one page of search results as cached for a device.
type JobPage struct {
	Jobs  []models.JobPosting `json:"jobs"`
	Total int64               `json:"total"`
}

type JobService struct {
	repo     JobRepository
	locator  Locator
	searches *cache.Cache[JobPage]
	counts   *cache.Cache[Tally]
	log      logrus.FieldLogger
}

func NewJobService(repo JobRepository, locator Locator, cc CacheConfig, log logrus.FieldLogger) *JobService {
	return &JobService{
		repo:     repo,
		locator:  locator,
		searches: cache.New[JobPage]("jobs", cc.Backend, cc.Options),
		counts:   cache.New[Tally]("job_counts", cc.Backend, cc.Options),
		log:      log,
	}
}

// CreateJob publishes a posting for the caller's company. Only employers
// attached to a company may post.
func (s *JobService) CreateJob(ctx context.Context, caller Caller, req *dtos.JobCreationRequest) (*models.JobPosting, error) {
	profile, err := s.repo.GetProfile(ctx, caller.UserID)
	if err != nil {
		return nil, fromStore(err)
	}
	if profile.Role != models.RoleEmployer || profile.CompanyID == nil {
		return nil, fmt.Errorf("%w: only employers can post jobs", ErrForbidden)
	}
	if req.SalaryMax > 0 && req.SalaryMin > req.SalaryMax {
		return nil, invalid("salary_min %d exceeds salary_max %d", req.SalaryMin, req.SalaryMax)
	}

	loc, err := s.locator.Resolve(ctx, req.PostalCode)
	switch {
	case errors.Is(err, location.ErrInvalidPostalCode), errors.Is(err, location.ErrNotFound):
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	case err != nil:
		return nil, err
	}

	job := &models.JobPosting{
		CompanyID:      *profile.CompanyID,
		CreatedBy:      caller.UserID,
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		Category:       req.Category,
		EmploymentType: req.EmploymentType,
		PostalCode:     loc.PostalCode,
		City:           loc.City,
		County:         loc.County,
		SalaryMin:      req.SalaryMin,
		SalaryMax:      req.SalaryMax,
		IsActive:       true,
		ExpiresAt:      req.ExpiresAt,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fromStore(err)
	}
	s.log.WithFields(logrus.Fields{"job_id": job.ID, "company_id": job.CompanyID}).Info("job posted")
	return job, nil
}

func (s *JobService) GetJob(ctx context.Context, id string) (*models.JobPosting, error) {
	job, err := s.repo.GetJob(ctx, id)
	return job, fromStore(err)
}

func filterKey(slot string, f store.JobFilter) string {
	return fmt.Sprintf("%s:%s|%s|%s|%s|%d|%d", slot,
		strings.ToLower(strings.TrimSpace(f.Query)), f.County, f.Category, f.EmploymentType, f.Limit, f.Offset)
}

// Search serves the caller's cached result page for f, refetching in the
// background once it is stale.
func (s *JobService) Search(ctx context.Context, caller Caller, f store.JobFilter) (cache.Result[JobPage], error) {
	return s.searches.Load(ctx, caller.UserID, filterKey(caller.slot(), f), func(ctx context.Context) (JobPage, error) {
		jobs, total, err := s.repo.SearchJobs(ctx, f)
		if err != nil {
			return JobPage{}, err
		}
		return JobPage{Jobs: jobs, Total: total}, nil
	})
}

// CategoryCounts returns active postings per category for f; Total is derived.
func (s *JobService) CategoryCounts(ctx context.Context, caller Caller, f store.JobFilter) (cache.Result[Tally], error) {
	f.Category, f.Limit, f.Offset = "", 0, 0
	return s.counts.Load(ctx, caller.UserID, filterKey(caller.slot(), f), func(ctx context.Context) (Tally, error) {
		byCategory, err := s.repo.CountJobsByCategory(ctx, f)
		if err != nil {
			return Tally{}, err
		}
		return NewTally(byCategory), nil
	})
}
