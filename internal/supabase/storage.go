package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Object is one entry of a bucket listing. Folders have an empty ID.
type Object struct {
	Name      string         `json:"name"`
	ID        string         `json:"id"`
	UpdatedAt string         `json:"updated_at"`
	Metadata  ObjectMetadata `json:"metadata"`
}

type ObjectMetadata struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimetype"`
}

func (o Object) IsFolder() bool { return o.ID == "" }

// StoredObject is a file found by ListAll, with its full path inside the bucket.
type StoredObject struct {
	Path     string
	Size     int64
	MimeType string
}

func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

// CreateSignedURL returns an absolute, time-limited URL for a private object.
func (c *Client) CreateSignedURL(ctx context.Context, bucket, path string, expiresIn time.Duration) (string, error) {
	var out struct {
		SignedURL string `json:"signedURL"`
	}
	in := map[string]int{"expiresIn": int(expiresIn.Seconds())}
	if err := c.doJSON(ctx, http.MethodPost, "/storage/v1/object/sign/"+bucket+"/"+escapePath(path), in, &out, true); err != nil {
		return "", fmt.Errorf("sign %s/%s: %w", bucket, path, err)
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("sign %s/%s: empty signed url", bucket, path)
	}
	if strings.HasPrefix(out.SignedURL, "http") {
		return out.SignedURL, nil
	}
	return c.baseURL + "/storage/v1" + out.SignedURL, nil
}

const listPageSize = 1000

// List returns one level of a bucket under prefix, following pagination.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	var all []Object
	for offset := 0; ; offset += listPageSize {
		in := map[string]any{
			"prefix": strings.Trim(prefix, "/"),
			"limit":  listPageSize,
			"offset": offset,
			"sortBy": map[string]string{"column": "name", "order": "asc"},
		}
		var page []Object
		if err := c.doJSON(ctx, http.MethodPost, "/storage/v1/object/list/"+bucket, in, &page, true); err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
		}
		all = append(all, page...)
		if len(page) < listPageSize {
			return all, nil
		}
	}
}

// ListAll walks the bucket recursively from prefix and returns every file.
func (c *Client) ListAll(ctx context.Context, bucket, prefix string) ([]StoredObject, error) {
	entries, err := c.List(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}
	var out []StoredObject
	for _, e := range entries {
		full := joinPath(prefix, e.Name)
		if e.IsFolder() {
			sub, err := c.ListAll(ctx, bucket, full)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		out = append(out, StoredObject{Path: full, Size: e.Metadata.Size, MimeType: e.Metadata.MimeType})
	}
	return out, nil
}

func joinPath(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func (c *Client) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	data, err := c.do(ctx, http.MethodGet, "/storage/v1/object/"+bucket+"/"+escapePath(path), nil, nil, true)
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", bucket, path, err)
	}
	return data, nil
}

// Upload writes data to bucket/path, replacing any existing object when upsert is set.
func (c *Client) Upload(ctx context.Context, bucket, path string, data []byte, contentType string, upsert bool) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := http.Header{}
	h.Set("Content-Type", contentType)
	if upsert {
		h.Set("x-upsert", "true")
	}
	if _, err := c.do(ctx, http.MethodPost, "/storage/v1/object/"+bucket+"/"+escapePath(path), data, h, upsert); err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	return nil
}

func (c *Client) Remove(ctx context.Context, bucket string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	in := map[string][]string{"prefixes": paths}
	if err := c.doJSON(ctx, http.MethodDelete, "/storage/v1/object/"+bucket, in, nil, true); err != nil {
		return fmt.Errorf("remove from %s: %w", bucket, err)
	}
	return nil
}
