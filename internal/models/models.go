package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base carries the uuid primary key and timestamps shared by every table.
type Base struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Base) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

const (
	RoleJobSeeker = "job_seeker"
	RoleEmployer  = "employer"
)

// Profile mirrors an auth user. Its ID is the auth user id, not generated.
type Profile struct {
	Base
	Email      string  `gorm:"uniqueIndex;not null" json:"email"`
	FullName   string  `json:"full_name"`
	Role       string  `gorm:"not null;default:'job_seeker'" json:"role"`
	CompanyID  *string `gorm:"type:uuid;index" json:"company_id,omitempty"`
	PostalCode string  `json:"postal_code"`
	City       string  `json:"city"`
	County     string  `json:"county"`
	CVPath     string  `json:"cv_path,omitempty"`
	AvatarPath string  `json:"avatar_path,omitempty"`
}

type Company struct {
	Base
	Name      string `gorm:"uniqueIndex;not null" json:"name"`
	OrgNumber string `json:"org_number"`
	LogoPath  string `json:"logo_path,omitempty"`

	Jobs []JobPosting `json:"jobs,omitempty"`
}

type JobPosting struct {
	Base
	CompanyID      string     `gorm:"type:uuid;index;not null" json:"company_id"`
	Company        Company    `json:"company,omitempty"`
	CreatedBy      string     `gorm:"type:uuid;not null" json:"created_by"`
	Title          string     `gorm:"not null" json:"title"`
	Description    string     `gorm:"type:text" json:"description"`
	Category       string     `gorm:"index" json:"category"`
	EmploymentType string     `json:"employment_type"`
	PostalCode     string     `json:"postal_code"`
	City           string     `json:"city"`
	County         string     `gorm:"index" json:"county"`
	SalaryMin      int        `json:"salary_min,omitempty"`
	SalaryMax      int        `json:"salary_max,omitempty"`
	IsActive       bool       `gorm:"default:true;index" json:"is_active"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

type SavedJob struct {
	UserID    string    `gorm:"type:uuid;primaryKey" json:"user_id"`
	JobID     string    `gorm:"type:uuid;primaryKey" json:"job_id"`
	CreatedAt time.Time `json:"created_at"`

	User *Profile    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Job  *JobPosting `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"-"`
}

type SavedSearch struct {
	Base
	UserID         string     `gorm:"type:uuid;index;not null" json:"user_id"`
	Name           string     `json:"name"`
	Query          string     `json:"query"`
	County         string     `json:"county"`
	Category       string     `json:"category"`
	EmploymentType string     `json:"employment_type"`
	LastNotifiedAt *time.Time `json:"last_notified_at,omitempty"`

	User *Profile `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

const (
	ApplicationPending   = "pending"
	ApplicationReviewing = "reviewing"
	ApplicationInterview = "interview"
	ApplicationOffered   = "offered"
	ApplicationRejected  = "rejected"
	ApplicationWithdrawn = "withdrawn"
)

type Application struct {
	Base
	JobID       string     `gorm:"type:uuid;uniqueIndex:idx_application_job_applicant;not null" json:"job_id"`
	ApplicantID string     `gorm:"type:uuid;uniqueIndex:idx_application_job_applicant;not null" json:"applicant_id"`
	Status      string     `gorm:"default:'pending';index" json:"status"`
	CoverLetter string     `gorm:"type:text" json:"cover_letter"`
	CVPath      string     `json:"cv_path,omitempty"`
	ViewedAt    *time.Time `json:"viewed_at,omitempty"`

	Job       *JobPosting `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"-"`
	Applicant *Profile    `gorm:"foreignKey:ApplicantID;constraint:OnDelete:CASCADE" json:"-"`
}

type Interview struct {
	Base
	ApplicationID   string    `gorm:"type:uuid;index;not null" json:"application_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Location        string    `json:"location"`
	Notes           string    `gorm:"type:text" json:"notes"`
	Status          string    `gorm:"default:'scheduled'" json:"status"`

	Application *Application `gorm:"foreignKey:ApplicationID;constraint:OnDelete:CASCADE" json:"-"`
}

type Conversation struct {
	Base
	JobID       *string `gorm:"type:uuid" json:"job_id,omitempty"`
	CandidateID string  `gorm:"type:uuid;index;not null" json:"candidate_id"`
	EmployerID  string  `gorm:"type:uuid;index;not null" json:"employer_id"`
}

type Message struct {
	Base
	ConversationID string     `gorm:"type:uuid;index;not null" json:"conversation_id"`
	SenderID       string     `gorm:"type:uuid;not null" json:"sender_id"`
	RecipientID    string     `gorm:"type:uuid;index;not null" json:"recipient_id"`
	Body           string     `gorm:"type:text;not null" json:"body"`
	ReadAt         *time.Time `json:"read_at,omitempty"`

	Conversation *Conversation `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
	Sender       *Profile      `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE" json:"-"`
	Recipient    *Profile      `gorm:"foreignKey:RecipientID;constraint:OnDelete:CASCADE" json:"-"`
}

const (
	TeamOwner     = "owner"
	TeamRecruiter = "recruiter"
	TeamViewer    = "viewer"
)

type TeamMember struct {
	Base
	CompanyID    string `gorm:"type:uuid;index;not null" json:"company_id"`
	UserID       string `gorm:"type:uuid" json:"user_id,omitempty"`
	Role         string `gorm:"default:'recruiter'" json:"role"`
	InvitedEmail string `json:"invited_email"`
}

type HRNewsItem struct {
	Base
	Source      string    `json:"source"`
	Title       string    `gorm:"not null" json:"title"`
	Link        string    `gorm:"uniqueIndex;not null" json:"link"`
	Summary     string    `gorm:"type:text" json:"summary"`
	PublishedAt time.Time `gorm:"index" json:"published_at"`
}

type PushSubscription struct {
	Base
	UserID   string `gorm:"type:uuid;index;not null" json:"user_id"`
	Endpoint string `gorm:"uniqueIndex;not null" json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

type OutboundEmail struct {
	Base
	To       string `gorm:"index" json:"to"`
	Subject  string `json:"subject"`
	Template string `json:"template"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// All lists every model for migrations.
func All() []any {
	return []any{
		&Company{}, &Profile{}, &JobPosting{}, &SavedJob{}, &SavedSearch{},
		&Application{}, &Interview{}, &Conversation{}, &Message{},
		&TeamMember{}, &HRNewsItem{}, &PushSubscription{}, &OutboundEmail{},
	}
}
