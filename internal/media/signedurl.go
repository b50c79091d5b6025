// Package media caches signed URLs for private CVs and profile media so that
// lists of applicants don't re-sign every file on every render.
package media

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Signer creates a signed URL valid for expiresIn.
type Signer interface {
	CreateSignedURL(ctx context.Context, bucket, path string, expiresIn time.Duration) (string, error)
}

type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Options struct {
	// TTL is the validity requested from the signer.
	TTL time.Duration
	// RefreshMargin is how long before expiry a URL stops being handed out.
	RefreshMargin time.Duration
	Size          int
	Now           func() time.Time
}

type SignedURLs struct {
	signer Signer
	opts   Options
	cache  *expirable.LRU[string, SignedURL]
	group  singleflight.Group
}

func NewSignedURLs(s Signer, opts Options) (*SignedURLs, error) {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.RefreshMargin < 0 || opts.RefreshMargin >= opts.TTL {
		return nil, errors.New("media: refresh margin must be shorter than ttl")
	}
	if opts.Size <= 0 {
		opts.Size = 10000
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SignedURLs{
		signer: s,
		opts:   opts,
		cache:  expirable.NewLRU[string, SignedURL](opts.Size, nil, opts.TTL-opts.RefreshMargin),
	}, nil
}

func key(bucket, path string) string { return bucket + "/" + path }

// Get returns a URL that stays valid for at least RefreshMargin.
func (s *SignedURLs) Get(ctx context.Context, bucket, path string) (SignedURL, error) {
	k := key(bucket, path)
	if u, ok := s.cache.Get(k); ok && s.opts.Now().Before(u.ExpiresAt.Add(-s.opts.RefreshMargin)) {
		return u, nil
	}

	v, err, _ := s.group.Do(k, func() (any, error) {
		signedAt := s.opts.Now()
		raw, err := s.signer.CreateSignedURL(ctx, bucket, path, s.opts.TTL)
		if err != nil {
			return SignedURL{}, err
		}
		u := SignedURL{URL: raw, ExpiresAt: signedAt.Add(s.opts.TTL)}
		s.cache.Add(k, u)
		return u, nil
	})
	if err != nil {
		return SignedURL{}, err
	}
	return v.(SignedURL), nil
}

// Invalidate forgets the URL of an object that was replaced or deleted.
func (s *SignedURLs) Invalidate(bucket, path string) {
	s.cache.Remove(key(bucket, path))
}
