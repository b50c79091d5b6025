package dtos

import "time"

type ApplyRequest struct {
	JobID       string `json:"job_id" binding:"required,uuid"`
	CoverLetter string `json:"cover_letter"`
	CVPath      string `json:"cv_path"`
}

type StatusUpdateRequest struct {
	Status string `json:"status" binding:"required,oneof=pending reviewing interview offered rejected withdrawn"`
}

type InterviewRequest struct {
	ScheduledAt     time.Time `json:"scheduled_at" binding:"required"`
	DurationMinutes int       `json:"duration_minutes" binding:"omitempty,min=5,max=480"`
	Location        string    `json:"location"`
	Notes           string    `json:"notes"`
}
