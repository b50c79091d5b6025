package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/parium/parium-api/internal/media"
	"github.com/parium/parium-api/internal/models"
)

// URLSigner hands out cached signed URLs.
type URLSigner interface {
	Get(ctx context.Context, bucket, path string) (media.SignedURL, error)
}

// MediaService guards signed URL access to the private buckets. Files live
// under "<user id>/"; owners may read their own files and employers may read
// any CV. Profile media is readable by every signed-in user.
type MediaService struct {
	urls        URLSigner
	profiles    ProfileRepository
	cvBucket    string
	mediaBucket string
}

func NewMediaService(urls URLSigner, profiles ProfileRepository, cvBucket, mediaBucket string) *MediaService {
	return &MediaService{urls: urls, profiles: profiles, cvBucket: cvBucket, mediaBucket: mediaBucket}
}

func (s *MediaService) SignedURL(ctx context.Context, caller Caller, bucket, path string) (media.SignedURL, error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" || strings.Contains(path, "..") {
		return media.SignedURL{}, invalid("bad object path %q", path)
	}
	switch bucket {
	case s.mediaBucket:
	case s.cvBucket:
		if !strings.HasPrefix(path, caller.UserID+"/") {
			p, err := s.profiles.GetProfile(ctx, caller.UserID)
			if err != nil {
				return media.SignedURL{}, fromStore(err)
			}
			if p.Role != models.RoleEmployer {
				return media.SignedURL{}, fmt.Errorf("%w: not your file", ErrForbidden)
			}
		}
	default:
		return media.SignedURL{}, invalid("unknown bucket %q", bucket)
	}
	return s.urls.Get(ctx, bucket, path)
}
