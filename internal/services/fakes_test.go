package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parium/parium-api/internal/cache"
	"github.com/parium/parium-api/internal/logging"
	"github.com/parium/parium-api/internal/models"
	"github.com/parium/parium-api/internal/store"
)

var errDown = errors.New("database unavailable")

// memRepo is an in-memory stand-in for *store.Store.
type memRepo struct {
	mu           sync.Mutex
	profiles     map[string]*models.Profile
	jobs         map[string]*models.JobPosting
	saved        map[string][]string
	searches     []models.SavedSearch
	apps         map[string]*models.Application
	interviews   []models.Interview
	convs        map[string]*models.Conversation
	messages     []models.Message
	team         []models.TeamMember
	news         []models.HRNewsItem
	subs         []models.PushSubscription
	emails       []models.OutboundEmail
	rewrites     map[string]string
	failWrites   error
	savedJobCall int
}

func newMemRepo() *memRepo {
	return &memRepo{
		profiles: map[string]*models.Profile{},
		jobs:     map[string]*models.JobPosting{},
		saved:    map[string][]string{},
		apps:     map[string]*models.Application{},
		convs:    map[string]*models.Conversation{},
		rewrites: map[string]string{},
	}
}

func (r *memRepo) addProfile(id, role string, companyID string) *models.Profile {
	p := &models.Profile{Base: models.Base{ID: id}, Email: id + "@example.se", FullName: strings.ToUpper(id), Role: role}
	if companyID != "" {
		p.CompanyID = &companyID
	}
	r.profiles[id] = p
	return p
}

func (r *memRepo) addJob(j models.JobPosting) *models.JobPosting {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	j.IsActive = true
	r.jobs[j.ID] = &j
	return &j
}

func (r *memRepo) GetProfile(_ context.Context, id string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) CreateJob(_ context.Context, job *models.JobPosting) error {
	if r.failWrites != nil {
		return r.failWrites
	}
	job.ID = uuid.NewString()
	r.jobs[job.ID] = job
	return nil
}

func (r *memRepo) GetJob(_ context.Context, id string) (*models.JobPosting, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memRepo) match(f store.JobFilter) []models.JobPosting {
	ss := models.SavedSearch{Query: f.Query, County: f.County, Category: f.Category, EmploymentType: f.EmploymentType}
	var out []models.JobPosting
	for _, j := range r.jobs {
		if j.IsActive && Matches(*j, ss) {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

func (r *memRepo) SearchJobs(_ context.Context, f store.JobFilter) ([]models.JobPosting, int64, error) {
	all := r.match(f)
	return all, int64(len(all)), nil
}

func (r *memRepo) CountJobs(_ context.Context, f store.JobFilter) (int64, error) {
	return int64(len(r.match(f))), nil
}

func (r *memRepo) CountJobsByCategory(_ context.Context, f store.JobFilter) (map[string]int64, error) {
	f.Category = ""
	out := map[string]int64{}
	for _, j := range r.match(f) {
		out[j.Category]++
	}
	return out, nil
}

func (r *memRepo) JobsCreatedSince(_ context.Context, since time.Time) ([]models.JobPosting, error) {
	var out []models.JobPosting
	for _, j := range r.jobs {
		if j.CreatedAt.After(since) {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *memRepo) SavedJobIDs(_ context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.saved[userID]...), nil
}

func (r *memRepo) SaveJob(_ context.Context, userID, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.savedJobCall++
	if r.failWrites != nil {
		return r.failWrites
	}
	if _, ok := r.jobs[jobID]; !ok {
		return store.ErrInvalidReference
	}
	r.saved[userID] = append(r.saved[userID], jobID)
	return nil
}

func (r *memRepo) UnsaveJob(_ context.Context, userID, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.savedJobCall++
	if r.failWrites != nil {
		return r.failWrites
	}
	ids := r.saved[userID][:0]
	for _, id := range r.saved[userID] {
		if id != jobID {
			ids = append(ids, id)
		}
	}
	r.saved[userID] = ids
	return nil
}

func (r *memRepo) SavedSearches(_ context.Context, userID string) ([]models.SavedSearch, error) {
	var out []models.SavedSearch
	for _, ss := range r.searches {
		if ss.UserID == userID {
			out = append(out, ss)
		}
	}
	return out, nil
}

func (r *memRepo) AllSavedSearches(context.Context) ([]models.SavedSearch, error) {
	return append([]models.SavedSearch(nil), r.searches...), nil
}

func (r *memRepo) CreateSavedSearch(_ context.Context, ss *models.SavedSearch) error {
	ss.ID = uuid.NewString()
	r.searches = append(r.searches, *ss)
	return nil
}

func (r *memRepo) MarkSavedSearchNotified(_ context.Context, id string, at time.Time) error {
	for i := range r.searches {
		if r.searches[i].ID == id {
			r.searches[i].LastNotifiedAt = &at
		}
	}
	return nil
}

func (r *memRepo) CreateApplication(_ context.Context, app *models.Application) error {
	for _, a := range r.apps {
		if a.JobID == app.JobID && a.ApplicantID == app.ApplicantID {
			return store.ErrConflict
		}
	}
	app.ID = uuid.NewString()
	cp := *app
	r.apps[app.ID] = &cp
	return nil
}

func (r *memRepo) GetApplication(_ context.Context, id string) (*models.Application, error) {
	a, ok := r.apps[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) ApplicationsByApplicant(_ context.Context, applicantID string) ([]models.Application, error) {
	var out []models.Application
	for _, a := range r.apps {
		if a.ApplicantID == applicantID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) ApplicationsByJob(_ context.Context, jobID string) ([]models.Application, error) {
	var out []models.Application
	for _, a := range r.apps {
		if a.JobID == jobID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateApplication(_ context.Context, id string, updates map[string]any) error {
	a, ok := r.apps[id]
	if !ok {
		return store.ErrNotFound
	}
	if s, ok := updates["status"].(string); ok {
		a.Status = s
	}
	if t, ok := updates["viewed_at"].(time.Time); ok {
		a.ViewedAt = &t
	}
	return nil
}

func (r *memRepo) ApplicationStatusCounts(_ context.Context, applicantID string) (map[string]int64, error) {
	out := map[string]int64{}
	for _, a := range r.apps {
		if a.ApplicantID == applicantID {
			out[a.Status]++
		}
	}
	return out, nil
}

func (r *memRepo) CreateInterview(_ context.Context, iv *models.Interview) error {
	iv.ID = uuid.NewString()
	r.interviews = append(r.interviews, *iv)
	return nil
}

func (r *memRepo) InterviewsByApplication(_ context.Context, applicationID string) ([]models.Interview, error) {
	var out []models.Interview
	for _, iv := range r.interviews {
		if iv.ApplicationID == applicationID {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (r *memRepo) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	c, ok := r.convs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (r *memRepo) CreateMessage(_ context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites != nil {
		return r.failWrites
	}
	for _, m := range r.messages {
		if m.ID != msg.ID {
			continue
		}
		if m.ConversationID != msg.ConversationID || m.SenderID != msg.SenderID || m.Body != msg.Body {
			return store.ErrConflict
		}
		*msg = m
		return nil
	}
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *memRepo) MessagesInConversation(_ context.Context, conversationID string, _ int) ([]models.Message, error) {
	var out []models.Message
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memRepo) MarkConversationRead(_ context.Context, conversationID, recipientID string, at time.Time) (int64, error) {
	var n int64
	for i := range r.messages {
		m := &r.messages[i]
		if m.ConversationID == conversationID && m.RecipientID == recipientID && m.ReadAt == nil {
			m.ReadAt = &at
			n++
		}
	}
	return n, nil
}

func (r *memRepo) UnreadByConversation(_ context.Context, recipientID string) (map[string]int64, error) {
	out := map[string]int64{}
	for _, m := range r.messages {
		if m.RecipientID == recipientID && m.ReadAt == nil {
			out[m.ConversationID]++
		}
	}
	return out, nil
}

func (r *memRepo) TeamMembers(_ context.Context, companyID string) ([]models.TeamMember, error) {
	var out []models.TeamMember
	for _, m := range r.team {
		if m.CompanyID == companyID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memRepo) AddTeamMember(_ context.Context, m *models.TeamMember) error {
	m.ID = uuid.NewString()
	r.team = append(r.team, *m)
	return nil
}

func (r *memRepo) RemoveTeamMember(_ context.Context, companyID, id string) error {
	if r.failWrites != nil {
		return r.failWrites
	}
	for i, m := range r.team {
		if m.CompanyID == companyID && m.ID == id {
			r.team = append(r.team[:i], r.team[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (r *memRepo) UpsertNews(_ context.Context, items []models.HRNewsItem) (int64, error) {
	var n int64
outer:
	for _, it := range items {
		for _, have := range r.news {
			if have.Link == it.Link {
				continue outer
			}
		}
		r.news = append(r.news, it)
		n++
	}
	return n, nil
}

func (r *memRepo) LatestNews(_ context.Context, limit int) ([]models.HRNewsItem, error) {
	out := append([]models.HRNewsItem(nil), r.news...)
	sort.Slice(out, func(a, b int) bool { return out[a].PublishedAt.After(out[b].PublishedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) PushSubscriptions(_ context.Context, userID string) ([]models.PushSubscription, error) {
	var out []models.PushSubscription
	for _, s := range r.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memRepo) SavePushSubscription(_ context.Context, sub *models.PushSubscription) error {
	r.subs = append(r.subs, *sub)
	return nil
}

func (r *memRepo) DeletePushSubscription(_ context.Context, endpoint string) error {
	out := r.subs[:0]
	for _, s := range r.subs {
		if s.Endpoint != endpoint {
			out = append(out, s)
		}
	}
	r.subs = out
	return nil
}

func (r *memRepo) LogEmail(_ context.Context, e *models.OutboundEmail) error {
	r.emails = append(r.emails, *e)
	return nil
}

func (r *memRepo) RewriteStoragePath(_ context.Context, oldPath, newPath string) error {
	r.rewrites[oldPath] = newPath
	return nil
}

type sentMail struct {
	mu   sync.Mutex
	sent []Email
	err  error
}

func (m *sentMail) Send(_ context.Context, e Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, e)
	return nil
}

type pushed struct {
	userID string
	n      Notification
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []pushed
}

func (r *recordingNotifier) Notify(_ context.Context, userID string, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, pushed{userID, n})
	return nil
}

func testCacheConfig() CacheConfig {
	return CacheConfig{
		Backend: cache.NewMemoryBackend(0, 0),
		Options: cache.Options{StaleAfter: time.Minute, Retention: time.Hour, Logger: logging.Discard()},
	}
}
