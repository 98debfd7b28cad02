package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
)

const (
	robotsTTL      = 24 * time.Hour
	robotsMaxBytes = 512 * 1024
	defaultPause   = 1 * time.Second
	maxPause       = 10 * time.Second
)

// Robots answers whether a URL may be fetched under the target site's
// robots.txt. Parsed files are cached per origin for a day; origins
// without a usable file cache a nil marker so 404 sites are not re-probed
// on every fetch.
type Robots struct {
	files     *cache.Cache
	userAgent string
	http      *http.Client
}

// NewRobots creates a robots.txt gate for the given bot identity.
func NewRobots(userAgent string) *Robots {
	return &Robots{
		files:     cache.New(robotsTTL, 1*time.Hour),
		userAgent: userAgent,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Allow reports whether target may be fetched, plus the pause the site
// asks crawlers to keep between requests. Sites without a readable
// robots.txt allow everything at the default pause; a non-nil error is
// advisory and the verdict is still usable.
func (r *Robots) Allow(ctx context.Context, target *url.URL) (bool, time.Duration, error) {
	data, err := r.lookup(ctx, target.Scheme+"://"+target.Host)
	if data == nil {
		return true, defaultPause, err
	}
	group := data.FindGroup(r.userAgent)
	return group.Test(target.Path), pauseFor(group), err
}

// lookup returns the parsed robots.txt for origin, from cache or the
// network. nil data means the origin has no usable file.
func (r *Robots) lookup(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	if cached, ok := r.files.Get(origin); ok {
		return cached.(*robotstxt.RobotsData), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("robots.txt request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.http.Do(req)
	if err != nil {
		// Unreachable hosts are not cached; the next fetch retries.
		return nil, fmt.Errorf("robots.txt fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.files.Set(origin, (*robotstxt.RobotsData)(nil), cache.DefaultExpiration)
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBytes))
	if err != nil {
		return nil, fmt.Errorf("robots.txt read: %w", err)
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		r.files.Set(origin, (*robotstxt.RobotsData)(nil), cache.DefaultExpiration)
		return nil, fmt.Errorf("robots.txt parse: %w", err)
	}

	r.files.Set(origin, data, cache.DefaultExpiration)
	return data, nil
}

// pauseFor clamps the group's crawl-delay into [defaultPause, maxPause].
func pauseFor(group *robotstxt.Group) time.Duration {
	switch {
	case group.CrawlDelay <= 0:
		return defaultPause
	case group.CrawlDelay > maxPause:
		return maxPause
	default:
		return group.CrawlDelay
	}
}
