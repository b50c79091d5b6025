package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/parium/parium-api/internal/cache"
	"github.com/parium/parium-api/internal/dtos"
	"github.com/parium/parium-api/internal/models"
)

type SavedJobService struct {
	repo  SavedJobRepository
	saved *cache.Cache[cache.IDSet]
	log   logrus.FieldLogger
}

func NewSavedJobService(repo SavedJobRepository, cc CacheConfig, log logrus.FieldLogger) *SavedJobService {
	return &SavedJobService{
		repo:  repo,
		saved: cache.New[cache.IDSet]("saved_jobs", cc.Backend, cc.Options),
		log:   log,
	}
}

func (s *SavedJobService) fetch(userID string) cache.FetchFunc[cache.IDSet] {
	return func(ctx context.Context) (cache.IDSet, error) {
		ids, err := s.repo.SavedJobIDs(ctx, userID)
		return cache.IDSet(ids), err
	}
}

func (s *SavedJobService) List(ctx context.Context, caller Caller) (cache.Result[cache.IDSet], error) {
	return s.saved.Load(ctx, caller.UserID, caller.slot(), s.fetch(caller.UserID))
}

// Toggle flips jobID in the caller's saved set. The cached set changes first;
// if the database write fails the set is restored and the error returned.
func (s *SavedJobService) Toggle(ctx context.Context, caller Caller, jobID string) (bool, error) {
	if jobID == "" {
		return false, invalid("job id is required")
	}
	// seed the slot so the toggle applies to the full remote set
	if _, ok := s.saved.Peek(ctx, caller.UserID, caller.slot()); !ok {
		if _, err := s.saved.Refresh(ctx, caller.UserID, caller.slot(), s.fetch(caller.UserID)); err != nil {
			return false, err
		}
	}

	var saved bool
	_, err := s.saved.Mutate(ctx, caller.UserID, caller.slot(),
		func(cur cache.IDSet, _ bool) (cache.IDSet, error) {
			var next cache.IDSet
			next, saved = cur.Toggle(jobID)
			return next, nil
		},
		func(ctx context.Context, _ cache.IDSet) error {
			if saved {
				return fromStore(s.repo.SaveJob(ctx, caller.UserID, jobID))
			}
			return fromStore(s.repo.UnsaveJob(ctx, caller.UserID, jobID))
		},
	)
	if err != nil {
		return false, err
	}
	s.log.WithFields(logrus.Fields{"user_id": caller.UserID, "job_id": jobID, "saved": saved}).Debug("saved job toggled")
	return saved, nil
}

func (s *SavedJobService) SavedSearches(ctx context.Context, caller Caller) ([]models.SavedSearch, error) {
	return s.repo.SavedSearches(ctx, caller.UserID)
}

func (s *SavedJobService) CreateSavedSearch(ctx context.Context, caller Caller, req *dtos.SavedSearchRequest) (*models.SavedSearch, error) {
	ss := &models.SavedSearch{
		UserID:         caller.UserID,
		Name:           strings.TrimSpace(req.Name),
		Query:          strings.TrimSpace(req.Query),
		County:         req.County,
		Category:       req.Category,
		EmploymentType: req.EmploymentType,
	}
	if ss.Query == "" && ss.County == "" && ss.Category == "" && ss.EmploymentType == "" {
		return nil, invalid("a saved search needs at least one criterion")
	}
	if err := s.repo.CreateSavedSearch(ctx, ss); err != nil {
		return nil, fromStore(err)
	}
	return ss, nil
}
