// Package enrich pulls readable text out of members' websites so their
// profiles can contribute interests beyond what they typed in. Fetches
// are polite: robots.txt is honored, hosts and users are paced, and
// response bodies are size-capped.
package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/markusmobius/go-trafilatura"
	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const (
	defaultUserAgent   = "NeuroBot/1.0 (+https://neuro.example.com/bot)"
	maxBodyBytes       = 4 * 1024 * 1024
	maxTextChars       = 16 * 1024
	maxConcurrentFetch = 4
	globalPerSec       = 4.0
	userPerSec         = 1.0
	resultTTL          = 1 * time.Hour
)

var (
	// ErrDisallowed means the site's robots.txt forbids the fetch.
	ErrDisallowed = errors.New("disallowed by robots.txt")
	// ErrNoText means the page fetched fine but nothing readable came out.
	ErrNoText = errors.New("no readable text on page")

	errHostNotPublic = errors.New("host is not public")
)

// Service fetches member websites and boils them down to plain text.
type Service struct {
	client  *Client
	robots  *Robots
	pacer   *Pacer
	results *cache.Cache
	log     *logrus.Logger

	allowLoopback bool // tests fetch from 127.0.0.1 servers
}

// New builds the enrichment pipeline. An empty userAgent selects the
// default bot identity.
func New(userAgent string) *Service {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	s := &Service{
		client:  NewClient(userAgent, maxConcurrentFetch, maxBodyBytes),
		robots:  NewRobots(userAgent),
		pacer:   NewPacer(globalPerSec, userPerSec),
		results: cache.New(resultTTL, 10*time.Minute),
		log:     logger,
	}

	logger.WithFields(logrus.Fields{
		"user_agent":     userAgent,
		"max_concurrent": maxConcurrentFetch,
		"global_rate":    globalPerSec,
	}).Info("Enrich service initialized")
	return s
}

// PageText returns the readable text of the page at rawURL, fetched on
// behalf of uid (empty for background sweeps). Results are cached per URL
// for an hour.
func (s *Service) PageText(ctx context.Context, uid, rawURL string) (string, error) {
	start := time.Now()

	target, err := s.vet(rawURL)
	if err != nil {
		return "", err
	}

	if cached, ok := s.results.Get(rawURL); ok {
		return cached.(string), nil
	}

	allowed, pause, err := s.robots.Allow(ctx, target)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"url":   rawURL,
			"error": err.Error(),
		}).Warn("Robots lookup failed, treating site as open")
	}
	if !allowed {
		return "", fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
	}

	if err := s.pacer.Wait(ctx, uid, target.Host, pause); err != nil {
		return "", fmt.Errorf("pacing: %w", err)
	}

	body, err := s.client.Fetch(ctx, rawURL)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"url":   rawURL,
			"error": err.Error(),
		}).Warn("Fetch failed")
		return "", err
	}

	text, err := extractText(target, body)
	if err != nil {
		return "", err
	}

	s.results.Set(rawURL, text, cache.DefaultExpiration)
	s.log.WithFields(logrus.Fields{
		"url":        rawURL,
		"chars":      len(text),
		"latency_ms": time.Since(start).Milliseconds(),
	}).Info("Page text extracted")
	return text, nil
}

// extractText runs trafilatura over the body and returns title plus
// article text, truncated to maxTextChars.
func extractText(pageURL *url.URL, body []byte) (string, error) {
	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{
		OriginalURL: pageURL,
	})
	if err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}
	if result == nil || strings.TrimSpace(result.ContentText) == "" {
		return "", ErrNoText
	}

	text := strings.TrimSpace(result.Metadata.Title + "\n" + result.ContentText)
	if len(text) > maxTextChars {
		text = text[:maxTextChars]
	}
	return text, nil
}

// vet rejects anything that is not plain public http(s). Hostnames are
// not resolved here; a DNS name pointing at a private address gets past
// this check.
func (s *Service) vet(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, errors.New("url has no host")
	}
	if s.allowLoopback {
		return u, nil
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return nil, errHostNotPublic
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
			ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return nil, errHostNotPublic
		}
	}
	return u, nil
}
