package services

import (
	"context"
	"time"
)

// Notification is the payload shown by the service worker.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, userID string, n Notification) error
}

type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// Email names a template and the data it is rendered with.
type Email struct {
	To       string
	Subject  string
	Template string
	Data     any
}

const (
	TemplateApplicationReceived = "application_received"
	TemplateStatusChanged       = "status_changed"
	TemplateInterviewScheduled  = "interview_scheduled"
	TemplateSavedSearchDigest   = "saved_search_digest"
	TemplateTeamInvite          = "team_invite"
)

var stockholm = loadStockholm()

func loadStockholm() *time.Location {
	loc, err := time.LoadLocation("Europe/Stockholm")
	if err != nil {
		return time.UTC
	}
	return loc
}
