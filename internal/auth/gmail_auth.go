package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// ErrGmailNotConfigured is returned when the credential or token file is missing.
var ErrGmailNotConfigured = errors.New("gmail credentials not configured")

// NewGmailService builds a send-only Gmail client from the OAuth client file
// and a previously authorized token. Refreshed tokens are written back to
// tokenFile.
func NewGmailService(ctx context.Context, credentialsFile, tokenFile string, log logrus.FieldLogger) (*gmail.Service, error) {
	b, err := os.ReadFile(credentialsFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrGmailNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("read client secret file: %w", err)
	}
	config, err := google.ConfigFromJSON(b, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secret file: %w", err)
	}

	tok, err := tokenFromFile(tokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrGmailNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}

	ts := &savingTokenSource{
		base: config.TokenSource(ctx, tok),
		path: tokenFile,
		last: tok.AccessToken,
		log:  log,
	}
	return gmail.NewService(ctx, option.WithTokenSource(oauth2.ReuseTokenSource(tok, ts)))
}

// savingTokenSource persists every newly issued access token.
type savingTokenSource struct {
	base oauth2.TokenSource
	path string
	log  logrus.FieldLogger

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := saveToken(s.path, tok); err != nil {
			s.log.WithError(err).Warn("persist refreshed gmail token")
		}
	}
	return tok, nil
}

// Retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// Saves a token to a file path.
func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
