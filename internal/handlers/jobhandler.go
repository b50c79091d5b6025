package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parium/parium-api/internal/dtos"
	"github.com/parium/parium-api/internal/services"
	"github.com/parium/parium-api/internal/store"
)

type JobHandler struct {
	LLMService   *services.LLMService
	JobService   *services.JobService
	Applications *services.ApplicationService
}

func NewJobHandler(llm *services.LLMService, j *services.JobService, apps *services.ApplicationService) *JobHandler {
	return &JobHandler{LLMService: llm, JobService: j, Applications: apps}
}

func bindFilter(c *gin.Context) (store.JobFilter, bool) {
	var q dtos.JobSearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return store.JobFilter{}, false
	}
	return store.JobFilter{
		Query:          q.Query,
		County:         q.County,
		Category:       q.Category,
		EmploymentType: q.EmploymentType,
		Limit:          q.Limit,
		Offset:         q.Offset,
	}, true
}

// Search is GET /jobs
func (h *JobHandler) Search(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	res, err := h.JobService.Search(c.Request.Context(), callerFrom(c), f)
	if err != nil {
		respondError(c, err)
		return
	}
	cached(c, res.Value, res.Cached, res.Stale)
}

// Counts is GET /jobs/counts
func (h *JobHandler) Counts(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	res, err := h.JobService.CategoryCounts(c.Request.Context(), callerFrom(c), f)
	if err != nil {
		respondError(c, err)
		return
	}
	cached(c, res.Value, res.Cached, res.Stale)
}

func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.JobService.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// CreateJob is POST /jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dtos.JobCreationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	job, err := h.JobService.CreateJob(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// ParseJob is POST /jobs/extract
func (h *JobHandler) ParseJob(c *gin.Context) {
	var req dtos.JobExtractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	draft, err := h.LLMService.ExtractJobDetails(c.Request.Context(), req.RawText)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": draft})
}

// Applications is GET /jobs/:id/applications
func (h *JobHandler) ListApplications(c *gin.Context) {
	apps, err := h.Applications.ForJob(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": apps})
}
