package services

import (
	"context"
	"time"

	"github.com/parium/parium-api/internal/cache"
	"github.com/parium/parium-api/internal/models"
	"github.com/parium/parium-api/internal/store"
)

// Repository interfaces are satisfied by *store.Store; services depend on the
// narrow slice they use.

type ProfileRepository interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
}

type JobRepository interface {
	ProfileRepository
	CreateJob(ctx context.Context, job *models.JobPosting) error
	GetJob(ctx context.Context, id string) (*models.JobPosting, error)
	SearchJobs(ctx context.Context, f store.JobFilter) ([]models.JobPosting, int64, error)
	CountJobs(ctx context.Context, f store.JobFilter) (int64, error)
	CountJobsByCategory(ctx context.Context, f store.JobFilter) (map[string]int64, error)
	JobsCreatedSince(ctx context.Context, since time.Time) ([]models.JobPosting, error)
}

type SavedJobRepository interface {
	SavedJobIDs(ctx context.Context, userID string) ([]string, error)
	SaveJob(ctx context.Context, userID, jobID string) error
	UnsaveJob(ctx context.Context, userID, jobID string) error
	SavedSearches(ctx context.Context, userID string) ([]models.SavedSearch, error)
	AllSavedSearches(ctx context.Context) ([]models.SavedSearch, error)
	CreateSavedSearch(ctx context.Context, ss *models.SavedSearch) error
	MarkSavedSearchNotified(ctx context.Context, id string, at time.Time) error
}

type ApplicationRepository interface {
	ProfileRepository
	GetJob(ctx context.Context, id string) (*models.JobPosting, error)
	CreateApplication(ctx context.Context, app *models.Application) error
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	ApplicationsByApplicant(ctx context.Context, applicantID string) ([]models.Application, error)
	ApplicationsByJob(ctx context.Context, jobID string) ([]models.Application, error)
	UpdateApplication(ctx context.Context, id string, updates map[string]any) error
	ApplicationStatusCounts(ctx context.Context, applicantID string) (map[string]int64, error)
	CreateInterview(ctx context.Context, iv *models.Interview) error
	InterviewsByApplication(ctx context.Context, applicationID string) ([]models.Interview, error)
}

type MessageRepository interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	MessagesInConversation(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID, recipientID string, at time.Time) (int64, error)
	UnreadByConversation(ctx context.Context, recipientID string) (map[string]int64, error)
}

type TeamRepository interface {
	ProfileRepository
	TeamMembers(ctx context.Context, companyID string) ([]models.TeamMember, error)
	AddTeamMember(ctx context.Context, m *models.TeamMember) error
	RemoveTeamMember(ctx context.Context, companyID, id string) error
}

type NewsRepository interface {
	UpsertNews(ctx context.Context, items []models.HRNewsItem) (int64, error)
	LatestNews(ctx context.Context, limit int) ([]models.HRNewsItem, error)
}

type PushRepository interface {
	PushSubscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error)
	SavePushSubscription(ctx context.Context, sub *models.PushSubscription) error
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

type EmailLog interface {
	LogEmail(ctx context.Context, e *models.OutboundEmail) error
}

type PathRewriter interface {
	RewriteStoragePath(ctx context.Context, oldPath, newPath string) error
}

var _ interface {
	JobRepository
	SavedJobRepository
	ApplicationRepository
	MessageRepository
	TeamRepository
	NewsRepository
	PushRepository
	EmailLog
	PathRewriter
} = (*store.Store)(nil)

// CacheConfig carries the backend and options every service cache is built with.
type CacheConfig struct {
	Backend cache.Backend
	Options cache.Options
}
