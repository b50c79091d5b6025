package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/parium/parium-api/internal/cache"
	"github.com/parium/parium-api/internal/dtos"
	"github.com/parium/parium-api/internal/models"
)

// transitions lists the statuses reachable from each status. Rejected and
// withdrawn are terminal.
var transitions = map[string][]string{
	models.ApplicationPending:   {models.ApplicationReviewing, models.ApplicationInterview, models.ApplicationOffered, models.ApplicationRejected, models.ApplicationWithdrawn},
	models.ApplicationReviewing: {models.ApplicationInterview, models.ApplicationOffered, models.ApplicationRejected, models.ApplicationWithdrawn},
	models.ApplicationInterview: {models.ApplicationOffered, models.ApplicationRejected, models.ApplicationWithdrawn},
	models.ApplicationOffered:   {models.ApplicationRejected, models.ApplicationWithdrawn},
}

func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type ApplicationService struct {
	repo     ApplicationRepository
	notifier Notifier
	mailer   Mailer
	mine     *cache.Cache[[]models.Application]
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewApplicationService(repo ApplicationRepository, notifier Notifier, mailer Mailer, cc CacheConfig, log logrus.FieldLogger) *ApplicationService {
	return &ApplicationService{
		repo:     repo,
		notifier: notifier,
		mailer:   mailer,
		mine:     cache.New[[]models.Application]("applications", cc.Backend, cc.Options),
		log:      log,
		now:      time.Now,
	}
}

// Apply files the caller's application to an active job. A second application
// to the same job is rejected with ErrConflict.
func (s *ApplicationService) Apply(ctx context.Context, caller Caller, req *dtos.ApplyRequest) (*models.Application, error) {
	profile, err := s.repo.GetProfile(ctx, caller.UserID)
	if err != nil {
		return nil, fromStore(err)
	}
	if profile.Role != models.RoleJobSeeker {
		return nil, fmt.Errorf("%w: only job seekers can apply", ErrForbidden)
	}
	job, err := s.repo.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, fromStore(err)
	}
	if !job.IsActive || (job.ExpiresAt != nil && job.ExpiresAt.Before(s.now())) {
		return nil, invalid("job %s is no longer open", job.ID)
	}

	cv := req.CVPath
	if cv == "" {
		cv = profile.CVPath
	}
	app := &models.Application{
		JobID:       job.ID,
		ApplicantID: caller.UserID,
		Status:      models.ApplicationPending,
		CoverLetter: req.CoverLetter,
		CVPath:      cv,
	}
	if err := s.repo.CreateApplication(ctx, app); err != nil {
		return nil, fromStore(err)
	}
	s.forget(ctx, caller)

	s.mail(ctx, Email{
		To:       profile.Email,
		Subject:  "Din ansökan till " + job.Title + " är skickad",
		Template: TemplateApplicationReceived,
		Data:     map[string]any{"Name": profile.FullName, "JobTitle": job.Title},
	})
	s.notify(ctx, job.CreatedBy, Notification{
		Title: "Ny ansökan",
		Body:  "Någon har sökt " + job.Title,
		URL:   "/employer/jobs/" + job.ID,
	})
	return app, nil
}

func (s *ApplicationService) Mine(ctx context.Context, caller Caller) (cache.Result[[]models.Application], error) {
	return s.mine.Load(ctx, caller.UserID, caller.slot(), func(ctx context.Context) ([]models.Application, error) {
		return s.repo.ApplicationsByApplicant(ctx, caller.UserID)
	})
}

func (s *ApplicationService) forget(ctx context.Context, caller Caller) {
	if err := s.mine.Invalidate(ctx, caller.slot()); err != nil {
		s.log.WithError(err).Warn("invalidate cached applications")
	}
}

// authorizeEmployer loads the job and checks the caller belongs to its company.
func (s *ApplicationService) authorizeEmployer(ctx context.Context, caller Caller, jobID string) (*models.JobPosting, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, fromStore(err)
	}
	profile, err := s.repo.GetProfile(ctx, caller.UserID)
	if err != nil {
		return nil, fromStore(err)
	}
	if profile.Role != models.RoleEmployer || profile.CompanyID == nil || *profile.CompanyID != job.CompanyID {
		return nil, fmt.Errorf("%w: job belongs to another company", ErrForbidden)
	}
	return job, nil
}

// ForJob lists the applications to a job for its employer. Applications seen
// for the first time are marked viewed.
func (s *ApplicationService) ForJob(ctx context.Context, caller Caller, jobID string) ([]models.Application, error) {
	if _, err := s.authorizeEmployer(ctx, caller, jobID); err != nil {
		return nil, err
	}
	apps, err := s.repo.ApplicationsByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range apps {
		if apps[i].ViewedAt != nil {
			continue
		}
		if err := s.repo.UpdateApplication(ctx, apps[i].ID, map[string]any{"viewed_at": now}); err != nil {
			s.log.WithError(err).WithField("application_id", apps[i].ID).Warn("mark application viewed")
			continue
		}
		apps[i].ViewedAt = &now
	}
	return apps, nil
}

// UpdateStatus moves an application along the status table. Applicants may
// only withdraw; every other change is made by the job's employer.
func (s *ApplicationService) UpdateStatus(ctx context.Context, caller Caller, id, status string) (*models.Application, error) {
	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		return nil, fromStore(err)
	}
	job, err := s.authorizeStatusChange(ctx, caller, app, status)
	if err != nil {
		return nil, err
	}
	if !CanTransition(app.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, app.Status, status)
	}
	if err := s.repo.UpdateApplication(ctx, id, map[string]any{"status": status}); err != nil {
		return nil, fromStore(err)
	}
	prev := app.Status
	app.Status = status
	s.log.WithFields(logrus.Fields{"application_id": id, "from": prev, "to": status}).Info("application status changed")

	if caller.UserID == app.ApplicantID {
		s.forget(ctx, caller)
	} else {
		s.announceStatus(ctx, app, job)
	}
	return app, nil
}

func (s *ApplicationService) authorizeStatusChange(ctx context.Context, caller Caller, app *models.Application, status string) (*models.JobPosting, error) {
	if caller.UserID == app.ApplicantID {
		if status != models.ApplicationWithdrawn {
			return nil, fmt.Errorf("%w: applicants can only withdraw", ErrForbidden)
		}
		return s.repo.GetJob(ctx, app.JobID)
	}
	return s.authorizeEmployer(ctx, caller, app.JobID)
}

func (s *ApplicationService) announceStatus(ctx context.Context, app *models.Application, job *models.JobPosting) {
	applicant, err := s.repo.GetProfile(ctx, app.ApplicantID)
	if err != nil {
		s.log.WithError(err).WithField("applicant_id", app.ApplicantID).Warn("load applicant for notification")
		return
	}
	label := statusLabels[app.Status]
	s.mail(ctx, Email{
		To:       applicant.Email,
		Subject:  "Uppdatering om din ansökan till " + job.Title,
		Template: TemplateStatusChanged,
		Data:     map[string]any{"Name": applicant.FullName, "JobTitle": job.Title, "Status": label},
	})
	s.notify(ctx, app.ApplicantID, Notification{
		Title: job.Title,
		Body:  "Din ansökan har status: " + label,
		URL:   "/applications/" + app.ID,
	})
}

var statusLabels = map[string]string{
	models.ApplicationPending:   "Skickad",
	models.ApplicationReviewing: "Under granskning",
	models.ApplicationInterview: "Intervju",
	models.ApplicationOffered:   "Erbjudande",
	models.ApplicationRejected:  "Avböjd",
	models.ApplicationWithdrawn: "Återkallad",
}

// ScheduleInterview books an interview for an application and moves it to
// the interview status when it is not there yet.
func (s *ApplicationService) ScheduleInterview(ctx context.Context, caller Caller, applicationID string, req *dtos.InterviewRequest) (*models.Interview, error) {
	app, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, fromStore(err)
	}
	job, err := s.authorizeEmployer(ctx, caller, app.JobID)
	if err != nil {
		return nil, err
	}
	if !req.ScheduledAt.After(s.now()) {
		return nil, invalid("interview must be scheduled in the future")
	}
	if app.Status != models.ApplicationInterview && !CanTransition(app.Status, models.ApplicationInterview) {
		return nil, fmt.Errorf("%w: cannot interview a %s application", ErrInvalidTransition, app.Status)
	}

	duration := req.DurationMinutes
	if duration == 0 {
		duration = 30
	}
	iv := &models.Interview{
		ApplicationID:   app.ID,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: duration,
		Location:        req.Location,
		Notes:           req.Notes,
		Status:          "scheduled",
	}
	if err := s.repo.CreateInterview(ctx, iv); err != nil {
		return nil, fromStore(err)
	}
	if app.Status != models.ApplicationInterview {
		if err := s.repo.UpdateApplication(ctx, app.ID, map[string]any{"status": models.ApplicationInterview}); err != nil {
			return nil, fromStore(err)
		}
		app.Status = models.ApplicationInterview
	}

	applicant, err := s.repo.GetProfile(ctx, app.ApplicantID)
	if err == nil {
		s.mail(ctx, Email{
			To:       applicant.Email,
			Subject:  "Intervju bokad: " + job.Title,
			Template: TemplateInterviewScheduled,
			Data: map[string]any{
				"Name": applicant.FullName, "JobTitle": job.Title,
				"When": iv.ScheduledAt.In(stockholm).Format("2006-01-02 15:04"), "Location": iv.Location,
			},
		})
	}
	s.notify(ctx, app.ApplicantID, Notification{Title: "Intervju bokad", Body: job.Title, URL: "/applications/" + app.ID})
	return iv, nil
}

// Interviews lists an application's interviews for its applicant or employer.
func (s *ApplicationService) Interviews(ctx context.Context, caller Caller, applicationID string) ([]models.Interview, error) {
	app, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, fromStore(err)
	}
	if caller.UserID != app.ApplicantID {
		if _, err := s.authorizeEmployer(ctx, caller, app.JobID); err != nil {
			return nil, err
		}
	}
	return s.repo.InterviewsByApplication(ctx, applicationID)
}

func (s *ApplicationService) StatusCounts(ctx context.Context, caller Caller) (Tally, error) {
	counts, err := s.repo.ApplicationStatusCounts(ctx, caller.UserID)
	if err != nil {
		return Tally{}, err
	}
	return NewTally(counts), nil
}

func (s *ApplicationService) mail(ctx context.Context, e Email) {
	if s.mailer == nil || e.To == "" {
		return
	}
	if err := s.mailer.Send(ctx, e); err != nil {
		s.log.WithError(err).WithField("template", e.Template).Warn("send application email")
	}
}

func (s *ApplicationService) notify(ctx context.Context, userID string, n Notification) {
	if s.notifier == nil || userID == "" {
		return
	}
	if err := s.notifier.Notify(ctx, userID, n); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("push application update")
	}
}
