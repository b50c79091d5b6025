package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/parium/parium-api/internal/logging"
)

func TestEmailWithoutGmailIsLogged(t *testing.T) {
	repo := newMemRepo()
	svc := NewEmailService(nil, "Parium <noreply@parium.se>", repo, logging.Discard())

	err := svc.Send(context.Background(), Email{
		To: "anna@example.se", Subject: "Hej", Template: TemplateStatusChanged,
		Data: map[string]any{"Name": "Anna", "JobTitle": "Kock", "Status": "Intervju"},
	})
	require.NoError(t, err)
	require.Len(t, repo.emails, 1)
	assert.Equal(t, "logged", repo.emails[0].Status)
}

func TestEmailUnknownTemplate(t *testing.T) {
	svc := NewEmailService(nil, "x@parium.se", nil, logging.Discard())
	err := svc.Send(context.Background(), Email{To: "a@b.se", Template: "nope"})
	assert.Error(t, err)
}

func TestEmailSendsThroughGmail(t *testing.T) {
	var raw string
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.True(t, strings.HasSuffix(r.URL.Path, "/users/me/messages/send"), r.URL.Path)
		var msg gmail.Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		raw = msg.Raw
		_ = json.NewEncoder(w).Encode(gmail.Message{Id: "sent-1"})
	}))
	defer srv.Close()

	client, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	repo := newMemRepo()
	svc := NewEmailService(client, "Parium <noreply@parium.se>", repo, logging.Discard())
	svc.sleep = func(time.Duration) {}

	err = svc.Send(context.Background(), Email{
		To: "anna@example.se", Subject: "Intervju bokad", Template: TemplateInterviewScheduled,
		Data: map[string]any{"Name": "Anna", "JobTitle": "Kock", "When": "2024-09-01 10:00", "Location": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	body := string(decoded)
	assert.Contains(t, body, "To: anna@example.se")
	assert.Contains(t, body, "Content-Type: text/html")
	assert.Contains(t, body, "Kock")
	require.Len(t, repo.emails, 1)
	assert.Equal(t, "sent", repo.emails[0].Status)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(" {\"a\":1} "))
}
