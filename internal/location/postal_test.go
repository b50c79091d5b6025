package location

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePostalCode(t *testing.T) {
	valid := map[string]string{
		"11122":     "11122",
		"111 22":    "11122",
		" 411 05 ":  "41105",
		"SE-753 20": "75320",
		"se 98132":  "98132",
	}
	for in, want := range valid {
		got, err := NormalizePostalCode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "1234", "123456", "01234", "12a45", "SE-"} {
		_, err := NormalizePostalCode(in)
		assert.ErrorIs(t, err, ErrInvalidPostalCode, in)
	}
}

func TestCountyFromCode(t *testing.T) {
	assert.Equal(t, "Stockholms län", CountyFromCode("11122"))
	assert.Equal(t, "Skåne län", CountyFromCode("21119"))
	assert.Equal(t, "Västra Götalands län", CountyFromCode("41105"))
	assert.Equal(t, "Norrbottens län", CountyFromCode("97231"))
	assert.Equal(t, "", CountyFromCode("99999"))
}

type stubProvider struct {
	calls int32
	loc   Location
	err   error
}

func (s *stubProvider) Lookup(context.Context, string) (Location, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.loc, s.err
}

func TestResolverCachesHits(t *testing.T) {
	p := &stubProvider{loc: Location{City: "Stockholm", County: "Stockholms län"}}
	r := NewResolver(p, ResolverOptions{})

	for _, raw := range []string{"111 22", "11122", "SE-111 22"} {
		loc, err := r.Resolve(context.Background(), raw)
		require.NoError(t, err)
		assert.Equal(t, "Stockholm", loc.City)
		assert.Equal(t, "11122", loc.PostalCode)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&p.calls))
}

func TestResolverCachesNotFound(t *testing.T) {
	p := &stubProvider{err: ErrNotFound}
	r := NewResolver(p, ResolverOptions{})

	for i := 0; i < 2; i++ {
		_, err := r.Resolve(context.Background(), "19999")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&p.calls))
}

func TestResolverFallsBackToPrefix(t *testing.T) {
	p := &stubProvider{err: errors.New("timeout")}
	r := NewResolver(p, ResolverOptions{})

	loc, err := r.Resolve(context.Background(), "41105")
	require.NoError(t, err)
	assert.True(t, loc.Approximate)
	assert.Equal(t, "Västra Götalands län", loc.County)
	assert.Empty(t, loc.City)
}

func TestHTTPProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/se/111 22":
			_, _ = w.Write([]byte(`{"post code":"111 22","country":"Sweden","places":[{"place name":"Stockholm","state":"Stockholm","state abbreviation":"AB"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL+"/se/", nil)
	loc, err := p.Lookup(context.Background(), "11122")
	require.NoError(t, err)
	assert.Equal(t, "Stockholm", loc.City)
	assert.Equal(t, "Stockholm", loc.County)

	_, err = p.Lookup(context.Background(), "19999")
	assert.ErrorIs(t, err, ErrNotFound)
}
