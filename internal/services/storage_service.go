package services

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/parium/parium-api/internal/dtos"
	"github.com/parium/parium-api/internal/supabase"
)

// ObjectStore is the slice of Supabase Storage used by the storage tasks.
type ObjectStore interface {
	ListAll(ctx context.Context, bucket, prefix string) ([]supabase.StoredObject, error)
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string, upsert bool) error
	Remove(ctx context.Context, bucket string, paths ...string) error
}

// URLInvalidator forgets cached signed URLs for a moved object.
type URLInvalidator interface {
	Invalidate(bucket, path string)
}

type BucketStats struct {
	Bucket     string `json:"bucket"`
	TotalBytes int64  `json:"total_bytes"`
	// Objects counts files per mime type; Objects.Total is the file count.
	Objects Tally `json:"objects"`
	// Bytes sums file sizes per mime type.
	Bytes map[string]int64 `json:"bytes_by_mime_type"`
}

type FileResult struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Error string `json:"error,omitempty"`
}

type MigrationReport struct {
	Moved   int          `json:"moved"`
	Failed  int          `json:"failed"`
	Results []FileResult `json:"results"`
}

type StorageService struct {
	objects ObjectStore
	paths   PathRewriter
	urls    URLInvalidator
	buckets []string
	log     logrus.FieldLogger
}

func NewStorageService(objects ObjectStore, paths PathRewriter, urls URLInvalidator, buckets []string, log logrus.FieldLogger) *StorageService {
	return &StorageService{objects: objects, paths: paths, urls: urls, buckets: buckets, log: log}
}

// Stats walks every configured bucket.
func (s *StorageService) Stats(ctx context.Context) ([]BucketStats, error) {
	out := make([]BucketStats, 0, len(s.buckets))
	for _, bucket := range s.buckets {
		objs, err := s.objects.ListAll(ctx, bucket, "")
		if err != nil {
			return nil, err
		}
		counts := make(map[string]int64)
		bytes := make(map[string]int64)
		var total int64
		for _, o := range objs {
			mt := o.MimeType
			if mt == "" {
				mt = "unknown"
			}
			counts[mt]++
			bytes[mt] += o.Size
			total += o.Size
		}
		out = append(out, BucketStats{Bucket: bucket, TotalBytes: total, Objects: NewTally(counts), Bytes: bytes})
	}
	return out, nil
}

// LogStats is the scheduled form of Stats.
func (s *StorageService) LogStats(ctx context.Context) error {
	stats, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	for _, b := range stats {
		s.log.WithFields(logrus.Fields{
			"bucket":  b.Bucket,
			"objects": b.Objects.Total,
			"bytes":   b.TotalBytes,
		}).Info("storage usage")
	}
	return nil
}

// Migrate copies every object under req.Prefix from one bucket to another,
// optionally re-rooting it under req.DestPrefix, and deletes the source unless asked to
// keep it. Stored references to a renamed path are rewritten. A failing file
// is reported and the rest continue.
func (s *StorageService) Migrate(ctx context.Context, req *dtos.MigrateRequest) (*MigrationReport, error) {
	dp := strings.Trim(req.DestPrefix, "/")
	if req.From == req.To && (dp == "" || dp == strings.Trim(req.Prefix, "/")) {
		return nil, invalid("source and destination are the same")
	}
	objs, err := s.objects.ListAll(ctx, req.From, req.Prefix)
	if err != nil {
		return nil, err
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Path < objs[j].Path })

	report := &MigrationReport{Results: make([]FileResult, 0, len(objs))}
	var moved []string
	for _, o := range objs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		dest := destinationPath(o.Path, req.Prefix, req.DestPrefix)
		res := FileResult{From: req.From + "/" + o.Path, To: req.To + "/" + dest}
		if err := s.moveOne(ctx, req, o, dest); err != nil {
			res.Error = err.Error()
			report.Failed++
			s.log.WithError(err).WithField("path", o.Path).Warn("migrate object")
		} else {
			report.Moved++
			moved = append(moved, o.Path)
		}
		report.Results = append(report.Results, res)
	}

	if !req.KeepOriginal && len(moved) > 0 {
		if err := s.objects.Remove(ctx, req.From, moved...); err != nil {
			s.log.WithError(err).WithField("bucket", req.From).Warn("remove migrated originals")
		}
	}
	s.log.WithFields(logrus.Fields{"from": req.From, "to": req.To, "moved": report.Moved, "failed": report.Failed}).
		Info("storage migration finished")
	return report, nil
}

func (s *StorageService) moveOne(ctx context.Context, req *dtos.MigrateRequest, o supabase.StoredObject, dest string) error {
	data, err := s.objects.Download(ctx, req.From, o.Path)
	if err != nil {
		return err
	}
	if err := s.objects.Upload(ctx, req.To, dest, data, o.MimeType, true); err != nil {
		return err
	}
	if dest != o.Path {
		if err := s.paths.RewriteStoragePath(ctx, o.Path, dest); err != nil {
			return err
		}
	}
	if s.urls != nil {
		s.urls.Invalidate(req.From, o.Path)
	}
	return nil
}

// destinationPath swaps prefix for destPrefix. An empty destPrefix keeps the path.
func destinationPath(path, prefix, destPrefix string) string {
	destPrefix = strings.Trim(destPrefix, "/")
	if destPrefix == "" {
		return path
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(path, strings.Trim(prefix, "/")), "/")
	return destPrefix + "/" + rel
}
