package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parium/parium-api/internal/models"
	"github.com/parium/parium-api/internal/store"
)

// MatcherService matches job postings against saved searches and sends the
// daily digest of new matches.
type MatcherService struct {
	jobs   JobRepository
	saved  SavedJobRepository
	mailer Mailer
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewMatcherService(jobs JobRepository, saved SavedJobRepository, mailer Mailer, log logrus.FieldLogger) *MatcherService {
	return &MatcherService{jobs: jobs, saved: saved, mailer: mailer, log: log, now: time.Now}
}

// Matches reports whether job satisfies every criterion of ss.
func Matches(job models.JobPosting, ss models.SavedSearch) bool {
	// --- RULE 1: every keyword appears in the title or description ---
	text := strings.ToLower(job.Title + " " + job.Description)
	for _, term := range strings.Fields(strings.ToLower(ss.Query)) {
		if !strings.Contains(text, term) {
			return false
		}
	}
	// --- RULE 2: exact filters, ignored when empty ---
	if ss.County != "" && !strings.EqualFold(ss.County, job.County) {
		return false
	}
	if ss.Category != "" && !strings.EqualFold(ss.Category, job.Category) {
		return false
	}
	if ss.EmploymentType != "" && !strings.EqualFold(ss.EmploymentType, job.EmploymentType) {
		return false
	}
	return true
}

func searchFilter(ss models.SavedSearch) store.JobFilter {
	return store.JobFilter{
		Query:          ss.Query,
		County:         ss.County,
		Category:       ss.Category,
		EmploymentType: ss.EmploymentType,
	}
}

// MatchCounts counts active postings per saved search of the caller, keyed
// by search id; Total is their sum.
func (s *MatcherService) MatchCounts(ctx context.Context, caller Caller) (Tally, error) {
	searches, err := s.saved.SavedSearches(ctx, caller.UserID)
	if err != nil {
		return Tally{}, err
	}
	counts := make(map[string]int64, len(searches))
	for _, ss := range searches {
		n, err := s.jobs.CountJobs(ctx, searchFilter(ss))
		if err != nil {
			return Tally{}, err
		}
		counts[ss.ID] = n
	}
	return NewTally(counts), nil
}

type digestEntry struct {
	Search string
	Jobs   []models.JobPosting
}

// SendDigests emails every user the postings created since each of their
// searches was last notified. Returns the number of emails sent.
func (s *MatcherService) SendDigests(ctx context.Context) (int, error) {
	searches, err := s.saved.AllSavedSearches(ctx)
	if err != nil {
		return 0, err
	}
	if len(searches) == 0 {
		return 0, nil
	}

	now := s.now()
	oldest := now.Add(-24 * time.Hour)
	for _, ss := range searches {
		if ss.LastNotifiedAt != nil && ss.LastNotifiedAt.Before(oldest) {
			oldest = *ss.LastNotifiedAt
		}
	}
	jobs, err := s.jobs.JobsCreatedSince(ctx, oldest)
	if err != nil {
		return 0, err
	}

	byUser := make(map[string][]digestEntry)
	var matched []models.SavedSearch
	for _, ss := range searches {
		since := now.Add(-24 * time.Hour)
		if ss.LastNotifiedAt != nil {
			since = *ss.LastNotifiedAt
		}
		var hits []models.JobPosting
		for _, j := range jobs {
			if j.CreatedAt.After(since) && Matches(j, ss) {
				hits = append(hits, j)
			}
		}
		if len(hits) == 0 {
			continue
		}
		byUser[ss.UserID] = append(byUser[ss.UserID], digestEntry{Search: ss.Name, Jobs: hits})
		matched = append(matched, ss)
	}

	users := make([]string, 0, len(byUser))
	for u := range byUser {
		users = append(users, u)
	}
	sort.Strings(users)

	sent := 0
	failed := make(map[string]bool)
	for _, userID := range users {
		profile, err := s.jobs.GetProfile(ctx, userID)
		if err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("load profile for digest")
			failed[userID] = true
			continue
		}
		if err := s.mailer.Send(ctx, Email{
			To:       profile.Email,
			Subject:  "Nya jobb som matchar dina bevakningar",
			Template: TemplateSavedSearchDigest,
			Data:     map[string]any{"Name": profile.FullName, "Entries": byUser[userID]},
		}); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("send digest")
			failed[userID] = true
			continue
		}
		sent++
	}

	for _, ss := range matched {
		if failed[ss.UserID] {
			continue
		}
		if err := s.saved.MarkSavedSearchNotified(ctx, ss.ID, now); err != nil {
			s.log.WithError(err).WithField("saved_search_id", ss.ID).Warn("mark saved search notified")
		}
	}
	s.log.WithFields(logrus.Fields{"searches": len(searches), "emails": sent}).Info("saved search digests sent")
	return sent, nil
}
