package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parium/parium-api/internal/logging"
)

const hrFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>HR-nytt</title>
<item><title>Ny lag om visstidsanställning</title><link>https://hr.example.se/1</link>
<description>Reglerna ändras från årsskiftet.</description><pubDate>Mon, 02 Sep 2024 08:00:00 +0200</pubDate></item>
<item><title>Rekryteringstrender</title><link>https://hr.example.se/2</link>
<pubDate>Tue, 03 Sep 2024 08:00:00 +0200</pubDate></item>
<item><title></title><link>https://hr.example.se/untitled</link></item>
</channel></rss>`

func TestNewsFetchStoresNewItemsOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(hrFeed))
	}))
	defer srv.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	repo := newMemRepo()
	svc := NewNewsService(repo, []string{broken.URL, srv.URL}, testCacheConfig(), logging.Discard())
	ctx := context.Background()

	added, err := svc.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), added)
	assert.Equal(t, "HR-nytt", repo.news[0].Source)

	added, err = svc.Fetch(ctx)
	require.NoError(t, err)
	assert.Zero(t, added)

	latest, err := svc.Latest(ctx)
	require.NoError(t, err)
	require.Len(t, latest.Value, 2)
	assert.Equal(t, "Rekryteringstrender", latest.Value[0].Title)
}
