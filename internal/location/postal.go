// Package location resolves Swedish postal codes to a city and county.
package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var (
	ErrInvalidPostalCode = errors.New("location: invalid postal code")
	ErrNotFound          = errors.New("location: postal code not found")
)

type Location struct {
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	County     string `json:"county"`
	// Approximate is set when only the county could be inferred from the code.
	Approximate bool `json:"approximate,omitempty"`
}

// NormalizePostalCode accepts "12345", "123 45" and "SE-123 45" and returns
// the five digit form.
func NormalizePostalCode(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "SE-")
	s = strings.TrimPrefix(s, "SE")
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidPostalCode, raw)
		}
	}
	code := b.String()
	if len(code) != 5 || code[0] == '0' {
		return "", fmt.Errorf("%w: %q", ErrInvalidPostalCode, raw)
	}
	return code, nil
}

// FormatPostalCode renders a normalized code as "123 45".
func FormatPostalCode(code string) string {
	if len(code) != 5 {
		return code
	}
	return code[:3] + " " + code[3:]
}

// Provider looks up a normalized postal code. It returns ErrNotFound for
// codes that do not exist.
type Provider interface {
	Lookup(ctx context.Context, code string) (Location, error)
}

type ResolverOptions struct {
	Size        int
	TTL         time.Duration
	NotFoundTTL time.Duration
	Logger      logrus.FieldLogger
}

type Resolver struct {
	provider Provider
	found    *expirable.LRU[string, Location]
	missing  *expirable.LRU[string, struct{}]
	group    singleflight.Group
	log      logrus.FieldLogger
}

func NewResolver(p Provider, opts ResolverOptions) *Resolver {
	if opts.Size <= 0 {
		opts.Size = 5000
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.NotFoundTTL <= 0 {
		opts.NotFoundTTL = time.Hour
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		opts.Logger = l
	}
	return &Resolver{
		provider: p,
		found:    expirable.NewLRU[string, Location](opts.Size, nil, opts.TTL),
		missing:  expirable.NewLRU[string, struct{}](opts.Size, nil, opts.NotFoundTTL),
		log:      opts.Logger,
	}
}

// Resolve normalizes raw and returns its location. Provider failures other
// than not-found degrade to a county inferred from the code prefix.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Location, error) {
	code, err := NormalizePostalCode(raw)
	if err != nil {
		return Location{}, err
	}
	if loc, ok := r.found.Get(code); ok {
		return loc, nil
	}
	if _, ok := r.missing.Get(code); ok {
		return Location{}, ErrNotFound
	}

	v, err, _ := r.group.Do(code, func() (any, error) {
		loc, err := r.provider.Lookup(ctx, code)
		if err != nil {
			return Location{}, err
		}
		loc.PostalCode = code
		if loc.County == "" {
			loc.County = CountyFromCode(code)
		}
		r.found.Add(code, loc)
		return loc, nil
	})
	if err == nil {
		return v.(Location), nil
	}
	if errors.Is(err, ErrNotFound) {
		r.missing.Add(code, struct{}{})
		return Location{}, ErrNotFound
	}

	r.log.WithError(err).WithField("postal_code", code).Warn("postal code lookup failed, using prefix")
	county := CountyFromCode(code)
	if county == "" {
		return Location{}, fmt.Errorf("resolve %s: %w", code, err)
	}
	return Location{PostalCode: code, County: county, Approximate: true}, nil
}

// countyPrefixes maps the first two digits of a postal code to its county.
// Ranges follow the PostNord numbering areas.
var countyPrefixes = []struct {
	from, to int
	county   string
}{
	{10, 19, "Stockholms län"},
	{20, 29, "Skåne län"},
	{30, 31, "Hallands län"},
	{33, 34, "Jönköpings län"},
	{35, 36, "Kronobergs län"},
	{37, 37, "Blekinge län"},
	{38, 39, "Kalmar län"},
	{40, 47, "Västra Götalands län"},
	{50, 54, "Västra Götalands län"},
	{55, 56, "Jönköpings län"},
	{58, 61, "Östergötlands län"},
	{62, 62, "Gotlands län"},
	{63, 64, "Södermanlands län"},
	{65, 68, "Värmlands län"},
	{69, 71, "Örebro län"},
	{72, 73, "Västmanlands län"},
	{74, 75, "Uppsala län"},
	{76, 76, "Stockholms län"},
	{77, 79, "Dalarnas län"},
	{80, 82, "Gävleborgs län"},
	{83, 84, "Jämtlands län"},
	{85, 88, "Västernorrlands län"},
	{89, 89, "Västernorrlands län"},
	{90, 94, "Västerbottens län"},
	{95, 98, "Norrbottens län"},
}

// CountyFromCode infers the county from a normalized code, or "" if unknown.
func CountyFromCode(code string) string {
	if len(code) < 2 {
		return ""
	}
	prefix := int(code[0]-'0')*10 + int(code[1]-'0')
	for _, p := range countyPrefixes {
		if prefix >= p.from && prefix <= p.to {
			return p.county
		}
	}
	return ""
}
