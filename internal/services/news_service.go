package services

import (
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"

	"github.com/parium/parium-api/internal/cache"
	"github.com/parium/parium-api/internal/models"
)

const (
	newsOwner = "shared"
	newsKey   = "latest"
	newsLimit = 50
)

// NewsService pulls HR news from RSS/Atom feeds into hr_news_items.
type NewsService struct {
	repo   NewsRepository
	feeds  []string
	parser *gofeed.Parser
	latest *cache.Cache[[]models.HRNewsItem]
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewNewsService(repo NewsRepository, feeds []string, cc CacheConfig, log logrus.FieldLogger) *NewsService {
	return &NewsService{
		repo:   repo,
		feeds:  feeds,
		parser: gofeed.NewParser(),
		latest: cache.New[[]models.HRNewsItem]("news", cc.Backend, cc.Options),
		log:    log,
		now:    time.Now,
	}
}

// Fetch reads every configured feed and stores unseen items. A failing feed
// is logged and skipped.
func (s *NewsService) Fetch(ctx context.Context) (int64, error) {
	var added int64
	for _, url := range s.feeds {
		feed, err := s.parser.ParseURLWithContext(url, ctx)
		if err != nil {
			s.log.WithError(err).WithField("feed", url).Warn("fetch news feed")
			continue
		}
		items := make([]models.HRNewsItem, 0, len(feed.Items))
		for _, it := range feed.Items {
			if it.Link == "" || strings.TrimSpace(it.Title) == "" {
				continue
			}
			published := s.now()
			if it.PublishedParsed != nil {
				published = *it.PublishedParsed
			} else if it.UpdatedParsed != nil {
				published = *it.UpdatedParsed
			}
			items = append(items, models.HRNewsItem{
				Source:      feed.Title,
				Title:       strings.TrimSpace(it.Title),
				Link:        it.Link,
				Summary:     truncate(strings.TrimSpace(it.Description), 500),
				PublishedAt: published,
			})
		}
		n, err := s.repo.UpsertNews(ctx, items)
		if err != nil {
			return added, err
		}
		added += n
		s.log.WithFields(logrus.Fields{"feed": url, "items": len(items), "added": n}).Debug("news feed read")
	}
	if added > 0 {
		s.Invalidate(ctx)
	}
	return added, nil
}

func (s *NewsService) Latest(ctx context.Context) (cache.Result[[]models.HRNewsItem], error) {
	return s.latest.Load(ctx, newsOwner, newsKey, func(ctx context.Context) ([]models.HRNewsItem, error) {
		return s.repo.LatestNews(ctx, newsLimit)
	})
}

func (s *NewsService) Invalidate(ctx context.Context) {
	if err := s.latest.Invalidate(ctx, newsKey); err != nil {
		s.log.WithError(err).Warn("invalidate news cache")
	}
}
