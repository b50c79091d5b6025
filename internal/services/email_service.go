package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/parium/parium-api/internal/models"
)

var emailTemplates = template.Must(template.New("email").Parse(`
{{define "layout_top"}}<!doctype html><html><body style="font-family:Arial,sans-serif;color:#1a1a2e">{{end}}
{{define "layout_bottom"}}<p style="color:#888;font-size:12px">Parium</p></body></html>{{end}}

{{define "application_received"}}{{template "layout_top"}}
<p>Hej {{.Name}},</p>
<p>Din ansökan till <strong>{{.JobTitle}}</strong> har skickats. Du får besked här när arbetsgivaren har tittat på den.</p>
{{template "layout_bottom"}}{{end}}

{{define "status_changed"}}{{template "layout_top"}}
<p>Hej {{.Name}},</p>
<p>Din ansökan till <strong>{{.JobTitle}}</strong> har fått status: <strong>{{.Status}}</strong>.</p>
{{template "layout_bottom"}}{{end}}

{{define "interview_scheduled"}}{{template "layout_top"}}
<p>Hej {{.Name}},</p>
<p>Du är inbjuden till intervju för <strong>{{.JobTitle}}</strong> den {{.When}}{{if .Location}}, {{.Location}}{{end}}.</p>
{{template "layout_bottom"}}{{end}}

{{define "saved_search_digest"}}{{template "layout_top"}}
<p>Hej {{.Name}},</p>
{{range .Entries}}<h3>{{.Search}}</h3><ul>{{range .Jobs}}<li>{{.Title}}{{if .City}}, {{.City}}{{end}}</li>{{end}}</ul>{{end}}
{{template "layout_bottom"}}{{end}}

{{define "team_invite"}}{{template "layout_top"}}
<p>{{.Inviter}} har bjudit in dig som {{.Role}} på Parium.</p>
{{template "layout_bottom"}}{{end}}
`))

// EmailService sends templated HTML email through the Gmail API. Without a
// Gmail client it only logs what would have been sent.
type EmailService struct {
	GmailClient *gmail.Service
	From        string
	emails      EmailLog
	log         logrus.FieldLogger
	sleep       func(time.Duration)
}

func NewEmailService(gmailClient *gmail.Service, from string, emails EmailLog, log logrus.FieldLogger) *EmailService {
	return &EmailService{GmailClient: gmailClient, From: from, emails: emails, log: log, sleep: time.Sleep}
}

func (s *EmailService) Send(ctx context.Context, e Email) error {
	if e.To == "" {
		return invalid("email recipient is empty")
	}
	var body bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&body, e.Template, e.Data); err != nil {
		return fmt.Errorf("render %s: %w", e.Template, err)
	}

	record := &models.OutboundEmail{To: e.To, Subject: e.Subject, Template: e.Template}
	if s.GmailClient == nil {
		s.log.WithFields(logrus.Fields{"to": e.To, "template": e.Template}).Info("gmail disabled, email logged only")
		record.Status = "logged"
		s.record(ctx, record)
		return nil
	}

	raw := buildMessage(s.From, e.To, e.Subject, body.Bytes())
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	err := s.retry(ctx, 3, time.Second, func() error {
		_, err := s.GmailClient.Users.Messages.Send("me", msg).Context(ctx).Do()
		return err
	})
	if err != nil {
		record.Status, record.Error = "failed", err.Error()
		s.record(ctx, record)
		return fmt.Errorf("send %s to %s: %w", e.Template, e.To, err)
	}
	record.Status = "sent"
	s.record(ctx, record)
	s.log.WithFields(logrus.Fields{"to": e.To, "template": e.Template}).Info("email sent")
	return nil
}

func (s *EmailService) record(ctx context.Context, rec *models.OutboundEmail) {
	if s.emails == nil {
		return
	}
	if err := s.emails.LogEmail(ctx, rec); err != nil {
		s.log.WithError(err).Warn("log outbound email")
	}
}

func buildMessage(from, to, subject string, html []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.Write(html)
	return b.Bytes()
}

// retry executes f with exponential backoff. Client errors other than 429
// are returned at once.
func (s *EmailService) retry(ctx context.Context, attempts int, sleep time.Duration, f func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = f(); err == nil {
			return nil
		}
		if !isRetryableGmailError(err) || i == attempts-1 {
			break
		}
		s.log.WithError(err).Warnf("gmail API error, retrying in %v", sleep)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.sleep(sleep)
		sleep *= 2
	}
	return err
}

func isRetryableGmailError(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusTooManyRequests || gErr.Code >= 500
	}
	return true
}
