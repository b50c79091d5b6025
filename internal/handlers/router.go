package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/parium/parium-api/internal/auth"
)

// Routes bundles everything the /api/v1 tree needs.
type Routes struct {
	Verifier    *auth.Verifier
	IsAdmin     func(userID string) bool
	RateLimiter *RateLimiter

	Jobs         *JobHandler
	Saved        *SavedJobHandler
	Applications *ApplicationHandler
	Messages     *MessageHandler
	Team         *TeamHandler
	Feed         *FeedHandler
	Admin        *AdminHandler
}

// Register mounts the API on r. Everything except /health requires a
// bearer token.
func Register(r gin.IRouter, rt Routes) {
	api := r.Group("/api/v1")
	api.GET("/health", HealthCheck)

	authed := api.Group("", Authenticate(rt.Verifier))
	if rt.RateLimiter != nil {
		authed.Use(rt.RateLimiter.Handler())
	}
	{
		authed.GET("/jobs", rt.Jobs.Search)
		authed.GET("/jobs/counts", rt.Jobs.Counts)
		authed.GET("/jobs/:id", rt.Jobs.Get)
		authed.POST("/jobs", rt.Jobs.CreateJob)
		authed.POST("/jobs/extract", rt.Jobs.ParseJob)
		authed.GET("/jobs/:id/applications", rt.Jobs.ListApplications)

		authed.GET("/saved-jobs", rt.Saved.List)
		authed.POST("/saved-jobs/:jobId/toggle", rt.Saved.Toggle)
		authed.GET("/saved-searches", rt.Saved.ListSearches)
		authed.POST("/saved-searches", rt.Saved.CreateSearch)
		authed.GET("/saved-searches/counts", rt.Saved.SearchCounts)

		authed.GET("/applications", rt.Applications.Mine)
		authed.POST("/applications", rt.Applications.Apply)
		authed.PATCH("/applications/:id/status", rt.Applications.UpdateStatus)
		authed.GET("/applications/:id/interviews", rt.Applications.Interviews)
		authed.POST("/applications/:id/interviews", rt.Applications.ScheduleInterview)

		authed.POST("/messages", rt.Messages.Send)
		authed.GET("/conversations/unread", rt.Messages.Unread)
		authed.GET("/conversations/:id/messages", rt.Messages.Conversation)

		authed.GET("/team", rt.Team.List)
		authed.POST("/team", rt.Team.Add)
		authed.DELETE("/team/:id", rt.Team.Remove)

		authed.GET("/news", rt.Feed.LatestNews)
		authed.GET("/dashboard", rt.Feed.GetDashboard)
		authed.GET("/locations/:postalCode", rt.Feed.ResolveLocation)
		authed.GET("/media/signed-url", rt.Feed.SignedURL)
		authed.POST("/push/subscriptions", rt.Feed.Subscribe)
	}

	admin := authed.Group("/admin", RequireAdmin(rt.IsAdmin))
	{
		admin.GET("/storage/stats", rt.Admin.StorageStats)
		admin.POST("/storage/migrate", rt.Admin.Migrate)
	}
}
