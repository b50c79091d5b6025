package dtos

import "time"

type JobExtractionRequest struct {
	RawText string `json:"raw_text" binding:"required"`
	URL     string `json:"url"`
}

type JobCreationRequest struct {
	Title          string `json:"title" binding:"required"`
	Description    string `json:"description" binding:"required"`
	Category       string `json:"category" binding:"required"`
	EmploymentType string `json:"employment_type" binding:"required"`
	PostalCode     string `json:"postal_code" binding:"required"`

	// Optional Fields
	SalaryMin int        `json:"salary_min" binding:"gte=0"`
	SalaryMax int        `json:"salary_max" binding:"gte=0"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// JobSearchQuery is bound from the query string of GET /jobs.
type JobSearchQuery struct {
	Query          string `form:"q"`
	County         string `form:"county"`
	Category       string `form:"category"`
	EmploymentType string `form:"employment_type"`
	Limit          int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset         int    `form:"offset" binding:"omitempty,min=0"`
}

type SavedSearchRequest struct {
	Name           string `json:"name" binding:"required"`
	Query          string `json:"query"`
	County         string `json:"county"`
	Category       string `json:"category"`
	EmploymentType string `json:"employment_type"`
}
