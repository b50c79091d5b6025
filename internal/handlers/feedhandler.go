package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parium/parium-api/internal/dtos"
	"github.com/parium/parium-api/internal/location"
	"github.com/parium/parium-api/internal/services"
)

// FeedHandler serves the read-mostly endpoints around the core job flow.
type FeedHandler struct {
	News      *services.NewsService
	Dashboard *services.DashboardService
	Locations *location.Resolver
	Media     *services.MediaService
	Push      *services.PushService
}

func (h *FeedHandler) LatestNews(c *gin.Context) {
	res, err := h.News.Latest(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	cached(c, res.Value, res.Cached, res.Stale)
}

func (h *FeedHandler) GetDashboard(c *gin.Context) {
	res, err := h.Dashboard.Get(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	cached(c, res.Value, res.Cached, res.Stale)
}

// ResolveLocation is GET /locations/:postalCode
func (h *FeedHandler) ResolveLocation(c *gin.Context) {
	loc, err := h.Locations.Resolve(c.Request.Context(), c.Param("postalCode"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"postal_code": location.FormatPostalCode(loc.PostalCode),
		"city":        loc.City,
		"county":      loc.County,
		"approximate": loc.Approximate,
	})
}

// SignedURL is GET /media/signed-url?bucket=&path=
func (h *FeedHandler) SignedURL(c *gin.Context) {
	bucket, path := c.Query("bucket"), c.Query("path")
	if bucket == "" || path == "" {
		badRequest(c, errors.New("bucket and path are required"))
		return
	}
	u, err := h.Media.SignedURL(c.Request.Context(), callerFrom(c), bucket, path)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *FeedHandler) Subscribe(c *gin.Context) {
	var req dtos.PushSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sub, err := h.Push.Subscribe(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": sub.ID, "endpoint": sub.Endpoint})
}
