package location

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// HTTPProvider queries a Zippopotam-style API: GET {base}/{"123 45"}.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPProvider{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

func (p *HTTPProvider) Lookup(ctx context.Context, code string) (Location, error) {
	reqURL := p.baseURL + "/" + url.PathEscape(FormatPostalCode(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Location{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("postal lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Location{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("postal lookup: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Location{}, fmt.Errorf("postal lookup: %w", err)
	}

	place := gjson.GetBytes(body, "places.0")
	if !place.Exists() {
		return Location{}, ErrNotFound
	}
	return Location{
		City:   place.Get("place name").String(),
		County: place.Get("state").String(),
	}, nil
}
