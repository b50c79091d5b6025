package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/parium/parium-api/internal/cache"
)

// Dashboard groups the derived counts shown on the start page. Every Total
// is computed from its Counts.
type Dashboard struct {
	UnreadMessages     Tally `json:"unread_messages"`
	Applications       Tally `json:"applications"`
	SavedSearchMatches Tally `json:"saved_search_matches"`
}

type DashboardService struct {
	messages     *MessageService
	applications *ApplicationService
	matcher      *MatcherService
	boards       *cache.Cache[Dashboard]
}

func NewDashboardService(messages *MessageService, applications *ApplicationService, matcher *MatcherService, cc CacheConfig) *DashboardService {
	return &DashboardService{
		messages:     messages,
		applications: applications,
		matcher:      matcher,
		boards:       cache.New[Dashboard]("dashboard", cc.Backend, cc.Options),
	}
}

func (s *DashboardService) Get(ctx context.Context, caller Caller) (cache.Result[Dashboard], error) {
	return s.boards.Load(ctx, caller.UserID, caller.slot(), func(ctx context.Context) (Dashboard, error) {
		var d Dashboard
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			d.UnreadMessages, err = s.messages.Unread(ctx, caller)
			return err
		})
		g.Go(func() (err error) {
			d.Applications, err = s.applications.StatusCounts(ctx, caller)
			return err
		})
		g.Go(func() (err error) {
			d.SavedSearchMatches, err = s.matcher.MatchCounts(ctx, caller)
			return err
		})
		return d, g.Wait()
	})
}
