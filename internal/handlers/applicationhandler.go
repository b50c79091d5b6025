package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parium/parium-api/internal/dtos"
	"github.com/parium/parium-api/internal/services"
)

type ApplicationHandler struct {
	Applications *services.ApplicationService
}

func NewApplicationHandler(apps *services.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{Applications: apps}
}

func (h *ApplicationHandler) Mine(c *gin.Context) {
	res, err := h.Applications.Mine(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	cached(c, res.Value, res.Cached, res.Stale)
}

func (h *ApplicationHandler) Apply(c *gin.Context) {
	var req dtos.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	app, err := h.Applications.Apply(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

// UpdateStatus is PATCH /applications/:id/status
func (h *ApplicationHandler) UpdateStatus(c *gin.Context) {
	var req dtos.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	app, err := h.Applications.UpdateStatus(c.Request.Context(), callerFrom(c), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *ApplicationHandler) Interviews(c *gin.Context) {
	list, err := h.Applications.Interviews(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *ApplicationHandler) ScheduleInterview(c *gin.Context) {
	var req dtos.InterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	iv, err := h.Applications.ScheduleInterview(c.Request.Context(), callerFrom(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, iv)
}
